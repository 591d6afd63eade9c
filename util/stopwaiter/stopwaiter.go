// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package stopwaiter manages the lifetime of background goroutines owned by a service.
package stopwaiter

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const stopDelayWarningTimeout = 30 * time.Second

// StopWaiterSafe returns errors instead of panicking on misuse.
type StopWaiterSafe struct {
	mutex    sync.Mutex // protects everything below except wg
	started  bool
	stopped  bool
	ctx      context.Context
	stopFunc context.CancelFunc
	name     string
	waitChan chan struct{}

	wg sync.WaitGroup
}

func (s *StopWaiterSafe) Started() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.started
}

func (s *StopWaiterSafe) GetContext() (context.Context, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return nil, errors.New("not started")
	}
	return s.ctx, nil
}

func typeName(parent any) string {
	return strings.TrimPrefix(reflect.TypeOf(parent).String(), "*")
}

// Start may only be called once. Starting after StopAndWait cancels the context right away.
func (s *StopWaiterSafe) Start(ctx context.Context, parent any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.started {
		return errors.New("start after start")
	}
	s.started = true
	s.name = typeName(parent)
	s.ctx, s.stopFunc = context.WithCancel(ctx)
	if s.stopped {
		s.stopFunc()
	}
	return nil
}

// stopOnly reports whether this call cancelled the context.
func (s *StopWaiterSafe) stopOnly() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cancelled := false
	if s.started && !s.stopped {
		s.stopFunc()
		cancelled = true
	}
	s.stopped = true
	return cancelled
}

// StopAndWait may be called multiple times, even before Start.
func (s *StopWaiterSafe) StopAndWait() error {
	return s.stopAndWaitImpl(stopDelayWarningTimeout)
}

func (s *StopWaiterSafe) stopAndWaitImpl(warningTimeout time.Duration) error {
	if !s.stopOnly() {
		return nil
	}
	waitChan, err := s.GetWaitChannel()
	if err != nil {
		return err
	}
	timer := time.NewTimer(warningTimeout)
	defer timer.Stop()
	select {
	case <-waitChan:
		return nil
	case <-timer.C:
		log.Warn("taking too long to stop", "name", s.name, "delay", warningTimeout)
	}
	<-waitChan
	return nil
}

// GetWaitChannel returns a channel closed once the context is done and every thread has exited.
func (s *StopWaiterSafe) GetWaitChannel() (<-chan struct{}, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return nil, errors.New("not started")
	}
	if s.waitChan == nil {
		waitChan := make(chan struct{})
		ctx := s.ctx
		go func() {
			<-ctx.Done()
			s.wg.Wait()
			close(waitChan)
		}()
		s.waitChan = waitChan
	}
	return s.waitChan, nil
}

// LaunchThread runs foo in a tracked goroutine. Nothing is launched once stopped.
func (s *StopWaiterSafe) LaunchThread(foo func(context.Context)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return errors.New("not started")
	}
	if s.stopped {
		return nil
	}
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		foo(ctx)
	}()
	return nil
}

// CallIteratively calls foo until stopped, sleeping for the duration it returns between calls.
func (s *StopWaiterSafe) CallIteratively(foo func(context.Context) time.Duration) error {
	return s.LaunchThread(func(ctx context.Context) {
		for {
			interval := foo(ctx)
			if ctx.Err() != nil {
				return
			}
			if interval == 0 {
				continue
			}
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	})
}

// StopWaiter panics where StopWaiterSafe would return an error.
type StopWaiter struct {
	StopWaiterSafe
}

func (s *StopWaiter) Start(ctx context.Context, parent any) {
	if err := s.StopWaiterSafe.Start(ctx, parent); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) StopAndWait() {
	if err := s.StopWaiterSafe.StopAndWait(); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) LaunchThread(foo func(context.Context)) {
	if err := s.StopWaiterSafe.LaunchThread(foo); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) CallIteratively(foo func(context.Context) time.Duration) {
	if err := s.StopWaiterSafe.CallIteratively(foo); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) GetContext() context.Context {
	ctx, err := s.StopWaiterSafe.GetContext()
	if err != nil {
		panic(err)
	}
	return ctx
}
