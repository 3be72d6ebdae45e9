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

package kernel

import (
	"fmt"

	"tinyos.dev/tinyos/pkg/ilist"
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
	"tinyos.dev/tinyos/pkg/syserr"
)

// ThreadID identifies a user thread. IDs are unique within a kernel.
type ThreadID uint64

// NoThread is the ID of no thread.
const NoThread ThreadID = 0

// String implements fmt.Stringer.
func (tid ThreadID) String() string {
	return fmt.Sprintf("%d", uint64(tid))
}

// PTCB is a process thread control block: the state of one user thread.
//
// A PTCB is linked into its process's thread list from creation until it has
// exited and no joiner is waiting on it.
type PTCB struct {
	ilist.Entry[*PTCB]

	tid ThreadID

	// task is the execution context running the thread.
	task *Task

	entry Entry
	args  []byte

	exitval  int
	exited   bool
	detached bool

	// exitCV is broadcast when the thread exits or is detached.
	exitCV sched.CondVar

	// refs is the number of joiners waiting on the thread.
	refs int
}

// ID returns the thread's ID.
func (pt *PTCB) ID() ThreadID {
	return pt.tid
}

// newThread creates a thread of p running entry with a copy of args and links
// it into p's thread list. The caller starts it.
//
// Preconditions: the kernel lock is held.
func (k *Kernel) newThread(p *Process, entry Entry, args []byte) *PTCB {
	pt := &PTCB{
		tid:   k.nextTID,
		entry: entry,
		args:  append([]byte(nil), args...),
	}
	k.nextTID++
	pt.task = &Task{k: k, p: p, ptcb: pt}
	p.threads.PushBack(pt)
	p.threadCount++
	threadsCreated.Increment()
	return pt
}

// findThread returns the PTCB of p with the given ID, or nil.
//
// Preconditions: the kernel lock is held.
func (p *Process) findThread(tid ThreadID) *PTCB {
	pt, _ := p.threads.Find(func(pt *PTCB) bool { return pt.tid == tid })
	return pt
}

// CreateThread starts a new thread in t's process running entry with a copy
// of args.
func (t *Task) CreateThread(entry Entry, args []byte) (ThreadID, error) {
	if entry == nil {
		return NoThread, syserr.ErrInvalidArgument
	}
	t.k.s.Lock()
	defer t.k.s.Unlock()

	pt := t.k.newThread(t.p, entry, args)
	t.k.start(pt, false /* main */)
	t.Debugf("Created thread %v", pt.tid)
	return pt.tid, nil
}

// ThreadSelf returns the ID of the calling thread.
func (t *Task) ThreadSelf() ThreadID {
	return t.ptcb.tid
}

// ThreadJoin waits for thread tid of the calling process to exit and returns
// its exit value.
//
// ThreadJoin fails without blocking if tid is the caller, does not exist or
// is detached. It fails with ErrThreadDetached if tid is detached while the
// caller waits.
func (t *Task) ThreadJoin(tid ThreadID) (int, error) {
	t.k.s.Lock()
	defer t.k.s.Unlock()

	if tid == t.ptcb.tid {
		return 0, syserr.ErrDeadlock
	}
	pt := t.p.findThread(tid)
	if pt == nil {
		return 0, syserr.ErrNoThread
	}
	if pt.detached {
		return 0, syserr.ErrThreadDetached
	}

	pt.refs++
	for !pt.exited && !pt.detached {
		t.k.s.Wait(&pt.exitCV, sched.CauseUser)
	}
	pt.refs--

	if pt.detached {
		if pt.exited && pt.refs == 0 {
			t.p.threads.Remove(pt)
		}
		return 0, syserr.ErrThreadDetached
	}
	exitval := pt.exitval
	if pt.refs == 0 {
		t.p.threads.Remove(pt)
	}
	return exitval, nil
}

// ThreadDetach makes thread tid of the calling process unjoinable. Threads
// waiting to join it fail with ErrThreadDetached.
func (t *Task) ThreadDetach(tid ThreadID) error {
	t.k.s.Lock()
	defer t.k.s.Unlock()

	pt := t.p.findThread(tid)
	if pt == nil {
		return syserr.ErrNoThread
	}
	if pt.exited {
		return syserr.ErrThreadExited
	}
	pt.detached = true
	t.k.s.Broadcast(&pt.exitCV)
	return nil
}
