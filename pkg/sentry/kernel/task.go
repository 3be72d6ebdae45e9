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

	"tinyos.dev/tinyos/pkg/log"
)

// Entry is the function run by a user thread. Its return value is the
// thread's exit value; for a main thread it is also the process exit value.
type Entry func(t *Task, args []byte) int

// Task is the execution context of one user thread. It is passed to the
// thread's Entry and to every system call the thread makes.
//
// A Task must only be used by the thread it was given to.
type Task struct {
	k    *Kernel
	p    *Process
	ptcb *PTCB
}

// String implements fmt.Stringer.
func (t *Task) String() string {
	return fmt.Sprintf("task %d/%d", t.p.pid, t.ptcb.tid)
}

// Kernel returns the kernel t runs in.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// Process returns the process t belongs to.
func (t *Task) Process() *Process {
	return t.p
}

// Debugf logs a debug message prefixed with the task.
func (t *Task) Debugf(format string, v ...any) {
	if log.IsLogging(log.Debug) {
		log.Debugf("[%3d:%3d] "+format, append([]any{t.p.pid, t.ptcb.tid}, v...)...)
	}
}

// Warningf logs a warning prefixed with the task.
func (t *Task) Warningf(format string, v ...any) {
	log.Warningf("[%3d:%3d] "+format, append([]any{t.p.pid, t.ptcb.tid}, v...)...)
}

// start begins running pt on a new execution context.
//
// Preconditions: the kernel lock is held.
func (k *Kernel) start(pt *PTCB, main bool) {
	t := pt.task
	k.s.Spawn(func() {
		ret := pt.entry(t, pt.args)

		k.s.Lock()
		if main {
			t.exitLocked(ret)
		} else {
			t.threadExitLocked(ret)
		}
	})
}

// startMainThread creates and starts the main thread of p.
//
// Preconditions: the kernel lock is held.
func (k *Kernel) startMainThread(p *Process, entry Entry) {
	pt := k.newThread(p, entry, p.args)
	p.mainThread = pt
	k.start(pt, true /* main */)
}
