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

// Package sched provides the kernel lock, condition variables and execution
// contexts used by every kernel object.
//
// All kernel state is protected by a single lock owned by the Scheduler.
// Execution contexts (goroutines started by Spawn) run user code without the
// lock and take it on entry to the kernel. A context that must block does so
// on a CondVar, which releases the lock for the duration of the wait and
// reacquires it before returning. Waits may return without the awaited
// condition holding, so callers always wait in a loop:
//
//	s.Lock()
//	for !cond() {
//		s.Wait(&cv, sched.CauseIO)
//	}
//	...
//	s.Unlock()
package sched

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"tinyos.dev/tinyos/pkg/ilist"
)

// Cause records why an execution context is blocked.
type Cause int

// Wait causes.
const (
	// CauseIO is a wait for a peer: an accept waiting for requests or a
	// connect waiting for admission.
	CauseIO Cause = iota

	// CausePipe is a wait for pipe data or pipe space.
	CausePipe

	// CauseUser is a wait on another thread or process, as in join or
	// wait-child.
	CauseUser

	// CauseExited marks a context that has finished and will never run
	// again.
	CauseExited

	numCauses
)

// String implements fmt.Stringer.
func (c Cause) String() string {
	switch c {
	case CauseIO:
		return "io"
	case CausePipe:
		return "pipe"
	case CauseUser:
		return "user"
	case CauseExited:
		return "exited"
	default:
		return fmt.Sprintf("Cause(%d)", int(c))
	}
}

// Scheduler owns the kernel lock and tracks execution contexts.
type Scheduler struct {
	// mu is the kernel lock.
	mu sync.Mutex

	clock clockwork.Clock

	// running tracks contexts started by Spawn.
	running sync.WaitGroup

	// blocked counts contexts currently waiting, by cause.
	blocked [numCauses]atomic.Int64
}

// New returns a Scheduler whose timed waits use clock. A nil clock means the
// real clock.
func New(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock}
}

// Lock acquires the kernel lock.
func (s *Scheduler) Lock() {
	s.mu.Lock()
}

// Unlock releases the kernel lock.
func (s *Scheduler) Unlock() {
	s.mu.Unlock()
}

// Clock returns the clock used for timed waits.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// Spawn starts a new execution context running fn. fn runs without the kernel
// lock.
func (s *Scheduler) Spawn(fn func()) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		fn()
	}()
}

// WaitAll blocks until every context started by Spawn has ended.
//
// Preconditions: the kernel lock is not held.
func (s *Scheduler) WaitAll() {
	s.running.Wait()
}

// WaitAllContext is like WaitAll but gives up when ctx is done.
func (s *Scheduler) WaitAllContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Blocked returns the number of contexts currently blocked for cause. It may
// be called with or without the kernel lock.
func (s *Scheduler) Blocked(cause Cause) int {
	return int(s.blocked[cause].Load())
}

// SleepForever ends the calling execution context. It releases the kernel
// lock and never returns; deferred calls of the context still run.
//
// Preconditions: the kernel lock is held and the caller runs in a context
// started by Spawn.
func (s *Scheduler) SleepForever(cause Cause) {
	s.blocked[cause].Add(1)
	s.mu.Unlock()
	runtime.Goexit()
}

// waiter is a blocked context queued on a CondVar.
type waiter struct {
	ilist.Entry[*waiter]

	// ch receives one value when the waiter is woken.
	ch chan struct{}

	// queued is true while the waiter is linked into its CondVar. Protected
	// by the kernel lock.
	queued bool
}

// CondVar is a condition variable bound to the kernel lock. The zero value is
// ready to use. Waiters are woken in FIFO order.
type CondVar struct {
	waiters ilist.List[*waiter]
}

// Empty returns true if no context is waiting on cv.
//
// Preconditions: the kernel lock is held.
func (cv *CondVar) Empty() bool {
	return cv.waiters.Empty()
}

func (s *Scheduler) enqueue(cv *CondVar) *waiter {
	w := &waiter{ch: make(chan struct{}, 1), queued: true}
	cv.waiters.PushBack(w)
	return w
}

func (s *Scheduler) wake(cv *CondVar, w *waiter) {
	cv.waiters.Remove(w)
	w.queued = false
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Wait atomically releases the kernel lock and blocks until cv is signalled,
// then reacquires the lock.
//
// Preconditions: the kernel lock is held.
func (s *Scheduler) Wait(cv *CondVar, cause Cause) {
	w := s.enqueue(cv)
	s.blocked[cause].Add(1)
	s.mu.Unlock()
	<-w.ch
	s.blocked[cause].Add(-1)
	s.mu.Lock()
}

// TimedWait is like Wait but gives up after timeout. It returns false if the
// wait timed out without cv being signalled. A timeout of zero or less means
// no timeout.
//
// Preconditions: the kernel lock is held.
func (s *Scheduler) TimedWait(cv *CondVar, cause Cause, timeout time.Duration) bool {
	if timeout <= 0 {
		s.Wait(cv, cause)
		return true
	}
	w := s.enqueue(cv)
	t := s.clock.NewTimer(timeout)
	s.blocked[cause].Add(1)
	s.mu.Unlock()
	select {
	case <-w.ch:
	case <-t.Chan():
	}
	t.Stop()
	s.blocked[cause].Add(-1)
	s.mu.Lock()

	if w.queued {
		// Not signalled while we were reacquiring the lock.
		cv.waiters.Remove(w)
		w.queued = false
		return false
	}
	return true
}

// Signal wakes the longest waiting context on cv, if any.
//
// Preconditions: the kernel lock is held.
func (s *Scheduler) Signal(cv *CondVar) {
	if w := cv.waiters.Front(); w != nil {
		s.wake(cv, w)
	}
}

// Broadcast wakes every context waiting on cv.
//
// Preconditions: the kernel lock is held.
func (s *Scheduler) Broadcast(cv *CondVar) {
	for w := cv.waiters.Front(); w != nil; w = cv.waiters.Front() {
		s.wake(cv, w)
	}
}
