// Copyright 2026 The tinyos Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

// waitBlocked waits until n contexts are blocked for cause.
func waitBlocked(t *testing.T, s *Scheduler, cause Cause, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for s.Blocked(cause) != n {
		if time.Now().After(deadline) {
			t.Fatalf("Blocked(%v): got %d, wanted %d", cause, s.Blocked(cause), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSignalFIFO(t *testing.T) {
	s := New(nil)
	var cv CondVar
	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		s.Spawn(func() {
			s.Lock()
			s.Wait(&cv, CausePipe)
			s.Unlock()
			order <- i
		})
		// Queue the waiters in a known order.
		waitBlocked(t, s, CausePipe, i+1)
	}

	var got []int
	for i := 0; i < 3; i++ {
		s.Lock()
		s.Signal(&cv)
		s.Unlock()
		got = append(got, <-order)
	}
	s.WaitAll()
	if diff := cmp.Diff([]int{0, 1, 2}, got); diff != "" {
		t.Fatalf("wake order mismatch (-want +got):\n%s", diff)
	}
}

func TestSignalWithoutWaiters(t *testing.T) {
	s := New(nil)
	var cv CondVar
	s.Lock()
	s.Signal(&cv)
	s.Broadcast(&cv)
	empty := cv.Empty()
	s.Unlock()
	if !empty {
		t.Fatalf("Empty: got false for unused CondVar")
	}
}

func TestBroadcast(t *testing.T) {
	s := New(nil)
	var cv CondVar
	const n = 5
	for i := 0; i < n; i++ {
		s.Spawn(func() {
			s.Lock()
			s.Wait(&cv, CauseUser)
			s.Unlock()
		})
	}
	waitBlocked(t, s, CauseUser, n)

	s.Lock()
	s.Broadcast(&cv)
	empty := cv.Empty()
	s.Unlock()
	if !empty {
		t.Fatalf("Empty after Broadcast: got false")
	}
	s.WaitAll()
	if got := s.Blocked(CauseUser); got != 0 {
		t.Fatalf("Blocked(CauseUser) after wakeup: got %d, wanted 0", got)
	}
}

func TestTimedWaitTimeout(t *testing.T) {
	clk := clockwork.NewFakeClock()
	s := New(clk)
	var cv CondVar
	res := make(chan bool, 1)
	s.Spawn(func() {
		s.Lock()
		defer s.Unlock()
		res <- s.TimedWait(&cv, CauseIO, time.Second)
	})

	clk.BlockUntil(1)
	clk.Advance(time.Second)
	if <-res {
		t.Fatalf("TimedWait: got true, wanted false after timeout")
	}
	s.WaitAll()

	s.Lock()
	empty := cv.Empty()
	s.Unlock()
	if !empty {
		t.Fatalf("timed out waiter still queued")
	}
}

func TestTimedWaitSignalled(t *testing.T) {
	clk := clockwork.NewFakeClock()
	s := New(clk)
	var cv CondVar
	res := make(chan bool, 1)
	s.Spawn(func() {
		s.Lock()
		defer s.Unlock()
		res <- s.TimedWait(&cv, CauseIO, time.Minute)
	})
	waitBlocked(t, s, CauseIO, 1)

	s.Lock()
	s.Signal(&cv)
	s.Unlock()
	if !<-res {
		t.Fatalf("TimedWait: got false, wanted true after Signal")
	}
	s.WaitAll()
}

func TestSleepForever(t *testing.T) {
	s := New(nil)
	deferred := make(chan struct{})
	s.Spawn(func() {
		defer close(deferred)
		s.Lock()
		s.SleepForever(CauseExited)
		t.Errorf("SleepForever returned")
	})
	s.WaitAll()
	<-deferred

	if got := s.Blocked(CauseExited); got != 1 {
		t.Fatalf("Blocked(CauseExited): got %d, wanted 1", got)
	}
	// The lock must have been released.
	s.Lock()
	s.Unlock()
}

func TestWaitAllContext(t *testing.T) {
	s := New(nil)
	var cv CondVar
	s.Spawn(func() {
		s.Lock()
		s.Wait(&cv, CauseUser)
		s.Unlock()
	})
	waitBlocked(t, s, CauseUser, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.WaitAllContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitAllContext: got %v, wanted %v", err, context.DeadlineExceeded)
	}

	s.Lock()
	s.Signal(&cv)
	s.Unlock()
	if err := s.WaitAllContext(context.Background()); err != nil {
		t.Fatalf("WaitAllContext: got %v, wanted nil", err)
	}
}
