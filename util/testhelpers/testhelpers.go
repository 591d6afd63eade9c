// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package testhelpers

import (
	"context"
	"math/rand"
	"os"
	"regexp"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/exp/slog"
)

// Fail a test should an error occur
func RequireImpl(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatal(printables, err)
	}
}

func FailImpl(t *testing.T, printables ...interface{}) {
	t.Helper()
	t.Fatal(printables...)
}

func RandomizeSlice(slice []byte) []byte {
	_, err := rand.Read(slice)
	if err != nil {
		panic(err)
	}
	return slice
}

func RandomHash() common.Hash {
	var hash common.Hash
	RandomizeSlice(hash[:])
	return hash
}

// LogHandler records every message it is given, on top of printing it.
type LogHandler struct {
	mutex   *sync.Mutex
	t       *testing.T
	records *[]slog.Record
	inner   slog.Handler
}

func (h *LogHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.inner.Handle(ctx, record); err != nil {
		return err
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	*h.records = append(*h.records, record.Clone())
	return nil
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{mutex: h.mutex, t: h.t, records: h.records, inner: h.inner.WithAttrs(attrs)}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{mutex: h.mutex, t: h.t, records: h.records, inner: h.inner.WithGroup(name)}
}

func (h *LogHandler) WasLogged(pattern string) bool {
	re, err := regexp.Compile(pattern)
	RequireImpl(h.t, err)
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, record := range *h.records {
		if re.MatchString(record.Message) {
			return true
		}
	}
	return false
}

// InitTestLog routes the default logger through a recording handler at the given level.
func InitTestLog(t *testing.T, level slog.Level) *LogHandler {
	handler := &LogHandler{
		mutex:   &sync.Mutex{},
		t:       t,
		records: &[]slog.Record{},
		inner:   log.NewTerminalHandler(os.Stderr, false),
	}
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(level)
	log.SetDefault(log.NewLogger(glogger))
	return handler
}
