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
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
)

// ThreadExit ends the calling thread with the given exit value. If it is the
// last thread of its process, the process terminates. ThreadExit never
// returns.
func (t *Task) ThreadExit(exitval int) {
	t.k.s.Lock()
	t.threadExitLocked(exitval)
}

// Exit sets the exit value of the calling process and ends the calling
// thread. The root process first waits for all of its children. Exit never
// returns.
func (t *Task) Exit(exitval int) {
	t.k.s.Lock()
	t.exitLocked(exitval)
}

// Preconditions: the kernel lock is held.
func (t *Task) exitLocked(exitval int) {
	p := t.p
	p.exitval = exitval
	if p == t.k.root {
		for {
			if _, _, err := t.waitChildLocked(NoPID); err != nil {
				break
			}
		}
	}
	t.threadExitLocked(exitval)
}

// threadExitLocked ends the calling thread and releases the kernel lock.
//
// Preconditions: the kernel lock is held.
func (t *Task) threadExitLocked(exitval int) {
	pt := t.ptcb
	p := t.p

	pt.exitval = exitval
	pt.exited = true
	p.threadCount--
	t.k.s.Broadcast(&pt.exitCV)
	if pt.detached && pt.refs == 0 {
		p.threads.Remove(pt)
	}
	t.Debugf("Thread exited with %d, %d threads left", exitval, p.threadCount)

	if p.threadCount == 0 {
		p.terminate()
		t.Debugf("Process terminated with %d", p.exitval)
	}
	t.k.s.SleepForever(sched.CauseExited)
}
