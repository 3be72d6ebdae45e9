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
	"tinyos.dev/tinyos/pkg/syserr"
)

// Exec creates a child of the calling process whose main thread runs entry
// with a copy of args. The child starts with the caller's open files.
func (t *Task) Exec(entry Entry, args []byte) (PID, error) {
	if entry == nil {
		return NoPID, syserr.ErrInvalidArgument
	}
	t.k.s.Lock()
	defer t.k.s.Unlock()

	c, err := t.k.newProcess(t.p, args)
	if err != nil {
		return NoPID, err
	}
	t.k.startMainThread(c, entry)
	t.Debugf("Exec'd process %d", c.pid)
	return c.pid, nil
}

// GetPid returns the PID of the calling process.
func (t *Task) GetPid() PID {
	return t.p.pid
}

// GetPPid returns the PID of the calling process's parent, or NoPID for the
// root process.
func (t *Task) GetPPid() PID {
	t.k.s.Lock()
	defer t.k.s.Unlock()
	return t.p.ppid()
}

// WaitChild waits for child pid of the calling process to terminate, reaps it
// and returns its PID and exit value. If pid is NoPID, WaitChild waits for
// any child.
func (t *Task) WaitChild(pid PID) (PID, int, error) {
	t.k.s.Lock()
	defer t.k.s.Unlock()
	return t.waitChildLocked(pid)
}

// Preconditions: the kernel lock is held.
func (t *Task) waitChildLocked(pid PID) (PID, int, error) {
	p := t.p
	if pid != NoPID {
		c := t.k.processWithID(pid)
		if c == nil || c.parent != p {
			return NoPID, 0, syserr.ErrNoChild
		}
		for c.state != ProcessZombie {
			t.k.s.Wait(&p.childExit, sched.CauseUser)
			if c.reaped || c.parent != p {
				// Collected by another thread of p.
				return NoPID, 0, syserr.ErrNoChild
			}
		}
		cpid, exitval := p.reap(c)
		return cpid, exitval, nil
	}

	for p.exited.Empty() {
		if p.children.Empty() {
			return NoPID, 0, syserr.ErrNoChild
		}
		t.k.s.Wait(&p.childExit, sched.CauseUser)
	}
	cpid, exitval := p.reap(p.exited.Front().p)
	return cpid, exitval, nil
}
