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

// Package kernel provides processes and user threads.
//
// A Kernel owns a Scheduler whose lock protects all kernel state, the
// system-wide file table, the socket port namespace and the process table.
// Each Process holds a list of user threads (PTCBs); each PTCB runs on its own
// execution context, represented by a Task. Every Task method is a system
// call: it takes the kernel lock on entry and releases it on return or while
// blocked.
//
// Processes are created by Boot (the root process) and Task.Exec. A process
// ends when its last thread exits, at which point its children are handed to
// the root process and it becomes a zombie until reaped by its parent with
// Task.WaitChild.
package kernel

import (
	"context"
	"fmt"

	"github.com/google/btree"
	"github.com/jonboulle/clockwork"
	"tinyos.dev/tinyos/pkg/log"
	"tinyos.dev/tinyos/pkg/metric"
	"tinyos.dev/tinyos/pkg/sentry/fs"
	"tinyos.dev/tinyos/pkg/sentry/kernel/pipe"
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
	"tinyos.dev/tinyos/pkg/sentry/socket"
	"tinyos.dev/tinyos/pkg/syserr"
)

var (
	threadsCreated   = metric.MustCreateNewUint64Metric("/kernel/threads_created", "Number of user threads created.")
	processesCreated = metric.MustCreateNewUint64Metric("/kernel/processes_created", "Number of processes created.")
	processesExited  = metric.MustCreateNewUint64Metric("/kernel/processes_exited", "Number of processes that terminated.")
)

// Config holds the limits of a Kernel.
type Config struct {
	// PipeSize is the capacity of every pipe, a power of two.
	PipeSize int

	// MaxPort is the largest valid socket port.
	MaxPort socket.Port

	// MaxFDs is the number of descriptor slots of each process.
	MaxFDs int

	// MaxFiles is the number of file control blocks in the system.
	MaxFiles int

	// MaxProcs is the largest number of processes, zombies included.
	MaxProcs int

	// Clock drives timed waits. nil means the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		PipeSize: pipe.DefaultPipeSize,
		MaxPort:  socket.DefaultMaxPort,
		MaxFDs:   16,
		MaxFiles: 512,
		MaxProcs: 65536,
	}
}

// Validate checks that c describes a usable kernel.
func (c *Config) Validate() error {
	if c.PipeSize <= 0 || c.PipeSize&(c.PipeSize-1) != 0 {
		return fmt.Errorf("pipe size %d is not a power of two", c.PipeSize)
	}
	if c.MaxPort < 1 {
		return fmt.Errorf("max port %d must be positive", c.MaxPort)
	}
	if c.MaxFDs <= 0 || c.MaxFiles <= 0 || c.MaxProcs <= 0 {
		return fmt.Errorf("limits must be positive: fds=%d files=%d procs=%d", c.MaxFDs, c.MaxFiles, c.MaxProcs)
	}
	return nil
}

// Kernel is a tinyos kernel instance.
type Kernel struct {
	cfg Config

	s *sched.Scheduler

	// files is the system-wide file table.
	files *fs.Table

	// sockets is the port namespace.
	sockets *socket.Namespace

	// procs holds every process that has not been reaped, ordered by PID.
	procs *btree.BTreeG[*Process]

	// root is the process created by Boot.
	root *Process

	// nextPID is the PID of the next process created.
	nextPID PID

	// nextTID is the id of the next thread created.
	nextTID ThreadID
}

// New creates a Kernel. The kernel does nothing until Boot is called.
func New(cfg Config) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := sched.New(cfg.Clock)
	return &Kernel{
		cfg:     cfg,
		s:       s,
		files:   fs.NewTable(cfg.MaxFiles),
		sockets: socket.NewNamespace(s, cfg.MaxPort, cfg.PipeSize),
		procs: btree.NewG(2, func(a, b *Process) bool {
			return a.pid < b.pid
		}),
		nextPID: 1,
		nextTID: 1,
	}, nil
}

// Scheduler returns the kernel's scheduler.
func (k *Kernel) Scheduler() *sched.Scheduler {
	return k.s
}

// Files returns the system-wide file table.
func (k *Kernel) Files() *fs.Table {
	return k.files
}

// Sockets returns the socket port namespace.
func (k *Kernel) Sockets() *socket.Namespace {
	return k.sockets
}

// Config returns the kernel's limits.
func (k *Kernel) Config() Config {
	return k.cfg
}

// Boot creates the root process, whose main thread runs entry with a copy of
// args. It returns the root's PID.
func (k *Kernel) Boot(entry Entry, args []byte) (PID, error) {
	if entry == nil {
		return NoPID, syserr.ErrInvalidArgument
	}
	k.s.Lock()
	defer k.s.Unlock()
	if k.root != nil {
		return NoPID, syserr.ErrInvalidEndpointState.Wrap("kernel already booted")
	}
	p, err := k.newProcess(nil, args)
	if err != nil {
		return NoPID, err
	}
	k.root = p
	k.startMainThread(p, entry)
	log.Infof("Booted root process %d", p.pid)
	return p.pid, nil
}

// Wait blocks until every execution context of the kernel has ended or ctx
// is done.
func (k *Kernel) Wait(ctx context.Context) error {
	return k.s.WaitAllContext(ctx)
}

// ProcessInfo is a snapshot of a process.
type ProcessInfo struct {
	PID      PID
	PPID     PID
	State    ProcessState
	Threads  int
	ExitCode int
}

// Processes returns a snapshot of every unreaped process in PID order.
func (k *Kernel) Processes() []ProcessInfo {
	k.s.Lock()
	defer k.s.Unlock()
	infos := make([]ProcessInfo, 0, k.procs.Len())
	k.procs.Ascend(func(p *Process) bool {
		infos = append(infos, ProcessInfo{
			PID:      p.pid,
			PPID:     p.ppid(),
			State:    p.state,
			Threads:  p.threadCount,
			ExitCode: p.exitval,
		})
		return true
	})
	return infos
}

// processWithID returns the unreaped process with the given PID, or nil.
//
// Preconditions: the kernel lock is held.
func (k *Kernel) processWithID(pid PID) *Process {
	p, _ := k.procs.Get(&Process{pid: pid})
	return p
}
