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

// PID is a process identifier.
type PID int32

// NoPID is the PID of no process. WaitChild(NoPID) waits for any child.
const NoPID PID = 0

// ProcessState is the lifecycle state of a process.
type ProcessState int

// Process states.
const (
	ProcessAlive ProcessState = iota
	ProcessZombie
)

// String implements fmt.Stringer.
func (s ProcessState) String() string {
	switch s {
	case ProcessAlive:
		return "alive"
	case ProcessZombie:
		return "zombie"
	default:
		return fmt.Sprintf("ProcessState(%d)", int(s))
	}
}

// processNode links a process into one of its parent's lists.
type processNode struct {
	ilist.Entry[*processNode]
	p *Process
}

// Process is a process control block.
type Process struct {
	k *Kernel

	pid PID

	// parent is nil only for the root process.
	parent *Process

	// childNode links the process into parent.children; exitedNode links
	// it into parent.exited once it is a zombie.
	childNode  processNode
	exitedNode processNode

	// children holds every unreaped child. exited holds the zombies among
	// them, in the order they exited.
	children ilist.List[*processNode]
	exited   ilist.List[*processNode]

	// childExit is broadcast when a process is added to exited.
	childExit sched.CondVar

	// threads holds the PTCBs that have not been released.
	threads ilist.List[*PTCB]

	// threadCount is the number of threads that have not exited.
	threadCount int

	// mainThread is the thread started by Boot or Exec. It is nil once the
	// process has terminated.
	mainThread *PTCB

	// args is the startup argument buffer of the main thread.
	args []byte

	// exitval is the value passed to Exit, or the main thread's return
	// value.
	exitval int

	fds *FDTable

	state ProcessState

	// reaped is set once the parent has collected the zombie.
	reaped bool
}

// String implements fmt.Stringer.
func (p *Process) String() string {
	return fmt.Sprintf("process %d (%v, %d threads)", p.pid, p.state, p.threadCount)
}

// PID returns the process ID.
func (p *Process) PID() PID {
	return p.pid
}

// FDTable returns the process's descriptor table.
func (p *Process) FDTable() *FDTable {
	return p.fds
}

func (p *Process) ppid() PID {
	if p.parent == nil {
		return NoPID
	}
	return p.parent.pid
}

// newProcess creates a process as a child of parent. A nil parent creates
// the root process.
//
// Preconditions: the kernel lock is held.
func (k *Kernel) newProcess(parent *Process, args []byte) (*Process, error) {
	if k.procs.Len() >= k.cfg.MaxProcs {
		return nil, syserr.ErrNoProcess
	}
	p := &Process{
		k:      k,
		pid:    k.nextPID,
		parent: parent,
		args:   append([]byte(nil), args...),
	}
	p.childNode.p = p
	p.exitedNode.p = p
	if parent != nil {
		p.fds = parent.fds.Fork()
		parent.children.PushBack(&p.childNode)
	} else {
		p.fds = NewFDTable(k.cfg.MaxFDs)
	}
	k.nextPID++
	k.procs.ReplaceOrInsert(p)
	processesCreated.Increment()
	return p, nil
}

// reap releases zombie child c of p.
//
// Preconditions: the kernel lock is held; c is a zombie child of p.
func (p *Process) reap(c *Process) (PID, int) {
	p.children.Remove(&c.childNode)
	p.exited.Remove(&c.exitedNode)
	c.reaped = true
	c.parent = nil
	p.k.procs.Delete(c)
	return c.pid, c.exitval
}

// terminate tears down p after its last thread has exited.
//
// Preconditions: the kernel lock is held; p.threadCount == 0.
func (p *Process) terminate() {
	k := p.k
	if p.parent != nil {
		root := k.root
		// Hand every child, living or zombie, to the root process.
		for n := p.children.Front(); n != nil; n = n.Next() {
			n.p.parent = root
		}
		root.children.PushBackList(&p.children)
		root.exited.PushBackList(&p.exited)
		k.s.Broadcast(&root.childExit)

		p.parent.exited.PushBack(&p.exitedNode)
		k.s.Broadcast(&p.parent.childExit)
	}

	p.args = nil
	p.fds.CloseAll()

	for pt := p.threads.Front(); pt != nil; {
		next := pt.Next()
		if pt.exited && pt.refs == 0 {
			p.threads.Remove(pt)
		}
		pt = next
	}

	p.mainThread = nil
	p.state = ProcessZombie
	processesExited.Increment()
}
