// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package genericconf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ZKAmoeba-Micro/micro-sub000/util/stopwaiter"
)

type ConfigConstraint[T any] interface {
	CanReload(T) error
	GetReloadInterval() time.Duration
}

type OnReloadHook[T any] func(oldCfg T, newCfg T) error

type ConfigParseFunction[T any] func(context.Context, []string) (T, error)

// LiveConfig holds the active configuration and replaces it when a reload is requested,
// either periodically or on SIGUSR1, as long as only fields tagged reload:"hot" changed.
type LiveConfig[T ConfigConstraint[T]] struct {
	stopwaiter.StopWaiter

	mutex          sync.RWMutex
	args           []string
	config         T
	onReloadHook   OnReloadHook[T]
	parseNewConfig ConfigParseFunction[T]
}

func NewLiveConfig[T ConfigConstraint[T]](args []string, config T, parseNewConfig ConfigParseFunction[T]) *LiveConfig[T] {
	return &LiveConfig[T]{
		args:           args,
		config:         config,
		onReloadHook:   func(T, T) error { return nil },
		parseNewConfig: parseNewConfig,
	}
}

func (c *LiveConfig[T]) Get() T {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.config
}

func (c *LiveConfig[T]) Set(config T) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.config.CanReload(config); err != nil {
		return err
	}
	if err := c.onReloadHook(c.config, config); err != nil {
		return err
	}
	c.config = config
	return nil
}

func (c *LiveConfig[T]) SetOnReloadHook(hook OnReloadHook[T]) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onReloadHook = hook
}

func (c *LiveConfig[T]) Start(ctxIn context.Context) {
	c.StopWaiter.Start(ctxIn, c)

	sigusr1 := make(chan os.Signal, 1)
	signal.Notify(sigusr1, syscall.SIGUSR1)

	c.LaunchThread(func(ctx context.Context) {
		defer signal.Stop(sigusr1)
		for {
			reloadInterval := c.Get().GetReloadInterval()
			if reloadInterval == 0 {
				select {
				case <-ctx.Done():
					return
				case <-sigusr1:
					log.Info("Configuration reload triggered by SIGUSR1.")
				}
			} else {
				timer := time.NewTimer(reloadInterval)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-sigusr1:
					timer.Stop()
					log.Info("Configuration reload triggered by SIGUSR1.")
				case <-timer.C:
				}
			}
			config, err := c.parseNewConfig(ctx, c.args)
			if err != nil {
				log.Error("error parsing live config", "error", err.Error())
				continue
			}
			if err := c.Set(config); err != nil {
				log.Error("error updating live config", "error", err.Error())
				continue
			}
		}
	})
}

// CheckHotReload walks two values of the same struct type and reports the first field that
// differs without being tagged reload:"hot".
func CheckHotReload(current, updated any) error {
	var check func(a, b reflect.Value, path string) error
	check = func(a, b reflect.Value, path string) error {
		if a.Kind() == reflect.Pointer {
			if a.IsNil() || b.IsNil() {
				if a.IsNil() != b.IsNil() {
					return fmt.Errorf("illegal change to %v", path)
				}
				return nil
			}
			a, b = a.Elem(), b.Elem()
		}
		if a.Kind() != reflect.Struct {
			return nil
		}
		for i := 0; i < a.NumField(); i++ {
			field := a.Type().Field(i)
			if !field.IsExported() {
				continue
			}
			hot := field.Tag.Get("reload") == "hot"
			dot := path + "." + field.Name
			if hot {
				continue
			}
			if !reflect.DeepEqual(a.Field(i).Interface(), b.Field(i).Interface()) {
				if a.Field(i).Kind() == reflect.Struct {
					if err := check(a.Field(i), b.Field(i), dot); err != nil {
						return err
					}
					continue
				}
				return fmt.Errorf("illegal change to %v", dot)
			}
		}
		return nil
	}
	if reflect.TypeOf(current) != reflect.TypeOf(updated) {
		return errors.New("config types differ")
	}
	return check(reflect.ValueOf(current), reflect.ValueOf(updated), "config")
}
