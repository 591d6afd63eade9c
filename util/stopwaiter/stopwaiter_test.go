// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package stopwaiter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ZKAmoeba-Micro/micro-sub000/util/testhelpers"
)

const testStopDelayWarningTimeout = 350 * time.Millisecond

type TestStruct struct{}

func TestStopWaiterStopAndWaitTimeout(t *testing.T) {
	logHandler := testhelpers.InitTestLog(t, log.LevelTrace)
	sw := StopWaiter{}
	sw.Start(context.Background(), &TestStruct{})
	sw.LaunchThread(func(ctx context.Context) {
		for ctx.Err() == nil {
			time.Sleep(testStopDelayWarningTimeout + 150*time.Millisecond)
		}
	})
	time.Sleep(50 * time.Millisecond)
	testhelpers.RequireImpl(t, sw.stopAndWaitImpl(testStopDelayWarningTimeout))
	if !logHandler.WasLogged("taking too long to stop") {
		testhelpers.FailImpl(t, "Failed to log about hanging on StopAndWait")
	}
	if sw.name != "stopwaiter.TestStruct" {
		testhelpers.FailImpl(t, "unexpected name", sw.name)
	}
}

func TestCallIterativelyStops(t *testing.T) {
	var calls atomic.Int64
	sw := StopWaiter{}
	sw.Start(context.Background(), &TestStruct{})
	sw.CallIteratively(func(context.Context) time.Duration {
		calls.Add(1)
		return time.Millisecond
	})
	time.Sleep(30 * time.Millisecond)
	sw.StopAndWait()
	after := calls.Load()
	if after == 0 {
		testhelpers.FailImpl(t, "callback never called")
	}
	time.Sleep(10 * time.Millisecond)
	if calls.Load() != after {
		testhelpers.FailImpl(t, "callback called after StopAndWait returned")
	}
	// launching after stop is a no-op
	sw.LaunchThread(func(context.Context) {
		calls.Add(1)
	})
	time.Sleep(5 * time.Millisecond)
	if calls.Load() != after {
		testhelpers.FailImpl(t, "thread launched after stop")
	}
}

func TestStopBeforeStart(t *testing.T) {
	sw := StopWaiterSafe{}
	testhelpers.RequireImpl(t, sw.StopAndWait())
	testhelpers.RequireImpl(t, sw.Start(context.Background(), &TestStruct{}))
	ctx, err := sw.GetContext()
	testhelpers.RequireImpl(t, err)
	if ctx.Err() == nil {
		testhelpers.FailImpl(t, "context should be cancelled when started after stop")
	}
	if sw.Start(context.Background(), &TestStruct{}) == nil {
		testhelpers.FailImpl(t, "second start should fail")
	}
}
