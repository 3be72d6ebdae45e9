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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
	"tinyos.dev/tinyos/pkg/syserr"
)

func newKernel(t *testing.T, modify func(*Config)) *Kernel {
	t.Helper()
	cfg := DefaultConfig()
	if modify != nil {
		modify(&cfg)
	}
	k, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return k
}

// run boots k with entry and waits for every context to finish.
func run(t *testing.T, k *Kernel, entry Entry) {
	t.Helper()
	if _, err := k.Boot(entry, nil); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := k.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// waitFor polls cond under the kernel lock until it holds.
func waitFor(t *testing.T, k *Kernel, what string, cond func() bool) {
	deadline := time.Now().Add(10 * time.Second)
	for {
		k.s.Lock()
		ok := cond()
		k.s.Unlock()
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Errorf("timed out waiting for %s", what)
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConfigValidate(t *testing.T) {
	for _, modify := range []func(*Config){
		func(c *Config) { c.PipeSize = 1000 },
		func(c *Config) { c.PipeSize = 0 },
		func(c *Config) { c.MaxPort = 0 },
		func(c *Config) { c.MaxFDs = 0 },
		func(c *Config) { c.MaxProcs = -1 },
	} {
		cfg := DefaultConfig()
		modify(&cfg)
		if _, err := New(cfg); err == nil {
			t.Errorf("New(%+v) succeeded", cfg)
		}
	}
}

func TestBootTwice(t *testing.T) {
	k := newKernel(t, nil)
	run(t, k, func(task *Task, _ []byte) int {
		if _, err := k.Boot(func(*Task, []byte) int { return 0 }, nil); err == nil {
			t.Errorf("second Boot succeeded")
		}
		return 0
	})
}

func TestCreateJoin(t *testing.T) {
	k := newKernel(t, nil)
	run(t, k, func(task *Task, _ []byte) int {
		tid, err := task.CreateThread(func(_ *Task, args []byte) int {
			return int(args[0])
		}, []byte{42})
		if err != nil {
			t.Errorf("CreateThread: %v", err)
			return 1
		}
		if tid == task.ThreadSelf() {
			t.Errorf("new thread has the caller's ID %v", tid)
		}
		if v, err := task.ThreadJoin(tid); v != 42 || err != nil {
			t.Errorf("ThreadJoin: got (%d, %v), wanted (42, nil)", v, err)
		}
		// The only joiner released the thread.
		if _, err := task.ThreadJoin(tid); !errors.Is(err, syserr.ErrNoThread) {
			t.Errorf("second ThreadJoin: got %v, wanted %v", err, syserr.ErrNoThread)
		}
		return 0
	})
}

func TestJoinErrors(t *testing.T) {
	k := newKernel(t, nil)
	release := make(chan struct{})
	run(t, k, func(task *Task, _ []byte) int {
		if _, err := task.CreateThread(nil, nil); !errors.Is(err, syserr.ErrInvalidArgument) {
			t.Errorf("CreateThread(nil): got %v, wanted %v", err, syserr.ErrInvalidArgument)
		}
		if _, err := task.ThreadJoin(task.ThreadSelf()); !errors.Is(err, syserr.ErrDeadlock) {
			t.Errorf("self join: got %v, wanted %v", err, syserr.ErrDeadlock)
		}
		if _, err := task.ThreadJoin(9999); !errors.Is(err, syserr.ErrNoThread) {
			t.Errorf("join of unknown thread: got %v, wanted %v", err, syserr.ErrNoThread)
		}
		if err := task.ThreadDetach(9999); !errors.Is(err, syserr.ErrNoThread) {
			t.Errorf("detach of unknown thread: got %v, wanted %v", err, syserr.ErrNoThread)
		}

		tid, _ := task.CreateThread(func(*Task, []byte) int {
			<-release
			return 0
		}, nil)
		if err := task.ThreadDetach(tid); err != nil {
			t.Errorf("ThreadDetach: %v", err)
		}
		if _, err := task.ThreadJoin(tid); !errors.Is(err, syserr.ErrThreadDetached) {
			t.Errorf("join of detached thread: got %v, wanted %v", err, syserr.ErrThreadDetached)
		}
		close(release)
		return 0
	})
}

func TestDetachWakesJoiner(t *testing.T) {
	k := newKernel(t, nil)
	release := make(chan struct{})
	run(t, k, func(task *Task, _ []byte) int {
		target, _ := task.CreateThread(func(*Task, []byte) int {
			<-release
			return 1
		}, nil)

		joinErr := make(chan error, 1)
		task.CreateThread(func(j *Task, _ []byte) int {
			_, err := j.ThreadJoin(target)
			joinErr <- err
			return 0
		}, nil)
		waitFor(t, k, "joiner to block", func() bool { return k.s.Blocked(sched.CauseUser) == 1 })

		if err := task.ThreadDetach(target); err != nil {
			t.Errorf("ThreadDetach: %v", err)
		}
		if err := <-joinErr; !errors.Is(err, syserr.ErrThreadDetached) {
			t.Errorf("ThreadJoin: got %v, wanted %v", err, syserr.ErrThreadDetached)
		}

		// A detached thread is released as soon as it exits.
		close(release)
		waitFor(t, k, "detached thread release", func() bool { return task.p.findThread(target) == nil })
		return 0
	})
}

func TestDetachAfterExit(t *testing.T) {
	k := newKernel(t, nil)
	run(t, k, func(task *Task, _ []byte) int {
		tid, _ := task.CreateThread(func(*Task, []byte) int { return 3 }, nil)
		waitFor(t, k, "thread exit", func() bool { return task.p.findThread(tid).exited })

		if err := task.ThreadDetach(tid); !errors.Is(err, syserr.ErrThreadExited) {
			t.Errorf("ThreadDetach after exit: got %v, wanted %v", err, syserr.ErrThreadExited)
		}
		// An exited thread is kept until joined.
		if v, err := task.ThreadJoin(tid); v != 3 || err != nil {
			t.Errorf("ThreadJoin: got (%d, %v), wanted (3, nil)", v, err)
		}
		return 0
	})
}

func TestManyJoiners(t *testing.T) {
	k := newKernel(t, nil)
	release := make(chan struct{})
	const joiners = 3
	run(t, k, func(task *Task, _ []byte) int {
		target, _ := task.CreateThread(func(*Task, []byte) int {
			<-release
			return 7
		}, nil)

		results := make(chan int, joiners)
		var tids []ThreadID
		for i := 0; i < joiners; i++ {
			tid, _ := task.CreateThread(func(j *Task, _ []byte) int {
				v, err := j.ThreadJoin(target)
				if err != nil {
					t.Errorf("ThreadJoin: %v", err)
				}
				results <- v
				return 0
			}, nil)
			tids = append(tids, tid)
		}
		waitFor(t, k, "joiners to block", func() bool { return k.s.Blocked(sched.CauseUser) == joiners })
		close(release)

		for i := 0; i < joiners; i++ {
			if v := <-results; v != 7 {
				t.Errorf("joiner %d: got %d, wanted 7", i, v)
			}
		}
		for _, tid := range tids {
			task.ThreadJoin(tid)
		}
		waitFor(t, k, "target release", func() bool { return task.p.findThread(target) == nil })
		return 0
	})
}

func TestThreadExitEndsThread(t *testing.T) {
	k := newKernel(t, nil)
	run(t, k, func(task *Task, _ []byte) int {
		tid, _ := task.CreateThread(func(c *Task, _ []byte) int {
			c.ThreadExit(9)
			t.Errorf("ThreadExit returned")
			return 0
		}, nil)
		if v, err := task.ThreadJoin(tid); v != 9 || err != nil {
			t.Errorf("ThreadJoin: got (%d, %v), wanted (9, nil)", v, err)
		}
		return 0
	})
}

func TestExitWithLiveThreads(t *testing.T) {
	k := newKernel(t, nil)
	release := make(chan struct{})
	run(t, k, func(task *Task, _ []byte) int {
		pid, err := task.Exec(func(c *Task, _ []byte) int {
			c.CreateThread(func(*Task, []byte) int {
				<-release
				return 0
			}, nil)
			c.Exit(4)
			return 0
		}, nil)
		if err != nil {
			t.Errorf("Exec: %v", err)
			return 1
		}
		// The process lives on in its remaining thread.
		waitFor(t, k, "main thread exit", func() bool {
			c := k.processWithID(pid)
			return c.threadCount == 1 && c.mainThread.exited
		})
		if c := k.processWithID(pid); c.state != ProcessAlive {
			t.Errorf("process state with a live thread: got %v, wanted %v", c.state, ProcessAlive)
		}
		close(release)

		if got, v, err := task.WaitChild(pid); got != pid || v != 4 || err != nil {
			t.Errorf("WaitChild: got (%d, %d, %v), wanted (%d, 4, nil)", got, v, err, pid)
		}
		return 0
	})
}

func TestProcessTeardown(t *testing.T) {
	k := newKernel(t, nil)
	release := make(chan struct{})
	run(t, k, func(root *Task, _ []byte) int {
		grandchildren := make(chan [2]PID, 1)
		pid, err := root.Exec(func(p *Task, _ []byte) int {
			g1, _ := p.Exec(func(*Task, []byte) int {
				<-release
				return 11
			}, nil)
			g2, _ := p.Exec(func(*Task, []byte) int { return 22 }, nil)
			grandchildren <- [2]PID{g1, g2}
			waitFor(t, k, "second grandchild exit", func() bool {
				return k.processWithID(g2).state == ProcessZombie
			})
			return 33
		}, nil)
		if err != nil {
			t.Errorf("Exec: %v", err)
			return 1
		}
		gc := <-grandchildren
		g1, g2 := gc[0], gc[1]
		waitFor(t, k, "child exit", func() bool { return k.processWithID(pid).state == ProcessZombie })

		k.s.Lock()
		var children, exited []PID
		for n := root.p.children.Front(); n != nil; n = n.Next() {
			children = append(children, n.p.pid)
		}
		for n := root.p.exited.Front(); n != nil; n = n.Next() {
			exited = append(exited, n.p.pid)
		}
		ppid := k.processWithID(g1).ppid()
		c := k.processWithID(pid)
		k.s.Unlock()

		if diff := cmp.Diff([]PID{pid, g1, g2}, children); diff != "" {
			t.Errorf("root children mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]PID{g2, pid}, exited); diff != "" {
			t.Errorf("root exited children mismatch (-want +got):\n%s", diff)
		}
		if ppid != root.GetPid() {
			t.Errorf("living grandchild's parent: got %d, wanted %d", ppid, root.GetPid())
		}
		if c.mainThread != nil || c.args != nil || c.threads.Len() != 0 {
			t.Errorf("zombie %v kept main thread, args or threads", c)
		}

		if got, v, err := root.WaitChild(pid); got != pid || v != 33 || err != nil {
			t.Errorf("WaitChild(%d): got (%d, %d, %v), wanted (%d, 33, nil)", pid, got, v, err, pid)
		}
		if _, _, err := root.WaitChild(pid); !errors.Is(err, syserr.ErrNoChild) {
			t.Errorf("second WaitChild(%d): got %v, wanted %v", pid, err, syserr.ErrNoChild)
		}
		if got, v, err := root.WaitChild(NoPID); got != g2 || v != 22 || err != nil {
			t.Errorf("WaitChild(any): got (%d, %d, %v), wanted (%d, 22, nil)", got, v, err, g2)
		}

		close(release)
		if got, v, err := root.WaitChild(NoPID); got != g1 || v != 11 || err != nil {
			t.Errorf("WaitChild(any): got (%d, %d, %v), wanted (%d, 11, nil)", got, v, err, g1)
		}
		if _, _, err := root.WaitChild(NoPID); !errors.Is(err, syserr.ErrNoChild) {
			t.Errorf("WaitChild with no children: got %v, wanted %v", err, syserr.ErrNoChild)
		}
		return 0
	})
}

func TestRootExitReapsChildren(t *testing.T) {
	k := newKernel(t, nil)
	run(t, k, func(root *Task, _ []byte) int {
		for i := 0; i < 3; i++ {
			if _, err := root.Exec(func(c *Task, _ []byte) int {
				if c.GetPPid() != root.GetPid() {
					t.Errorf("GetPPid: got %d, wanted %d", c.GetPPid(), root.GetPid())
				}
				return i
			}, nil); err != nil {
				t.Errorf("Exec: %v", err)
			}
		}
		return 5
	})

	want := []ProcessInfo{{PID: 1, PPID: NoPID, State: ProcessZombie, ExitCode: 5}}
	if diff := cmp.Diff(want, k.Processes()); diff != "" {
		t.Fatalf("Processes mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessLimit(t *testing.T) {
	k := newKernel(t, func(c *Config) { c.MaxProcs = 2 })
	release := make(chan struct{})
	run(t, k, func(root *Task, _ []byte) int {
		if _, err := root.Exec(func(*Task, []byte) int {
			<-release
			return 0
		}, nil); err != nil {
			t.Errorf("Exec: %v", err)
		}
		if _, err := root.Exec(func(*Task, []byte) int { return 0 }, nil); !errors.Is(err, syserr.ErrNoProcess) {
			t.Errorf("Exec past limit: got %v, wanted %v", err, syserr.ErrNoProcess)
		}
		close(release)
		return 0
	})
}

type fakeFile struct {
	closed int
}

func (f *fakeFile) Read([]byte) (int, error)      { return 0, nil }
func (f *fakeFile) Write(b []byte) (int, error) { return len(b), nil }
func (f *fakeFile) Close() error {
	f.closed++
	return nil
}

func TestFilesInheritedAndClosed(t *testing.T) {
	k := newKernel(t, nil)
	ff := &fakeFile{}
	run(t, k, func(root *Task, _ []byte) int {
		k.s.Lock()
		fds, files, err := root.p.fds.Reserve(k.files, 1)
		if err != nil {
			k.s.Unlock()
			t.Errorf("Reserve: %v", err)
			return 1
		}
		files[0].Bind(ff)
		k.s.Unlock()

		pid, _ := root.Exec(func(c *Task, _ []byte) int {
			k.s.Lock()
			defer k.s.Unlock()
			f, err := c.p.fds.Get(fds[0])
			if err != nil || f != files[0] {
				t.Errorf("child fd %d: got (%v, %v), wanted inherited %v", fds[0], f, err, files[0])
			}
			return 0
		}, nil)
		root.WaitChild(pid)

		k.s.Lock()
		refs := files[0].ReadRefs()
		k.s.Unlock()
		if refs != 1 || ff.closed != 0 {
			t.Errorf("after child exit: refs %d, closed %d, wanted 1 and 0", refs, ff.closed)
		}
		return 0
	})
	if ff.closed != 1 {
		t.Fatalf("file closed %d times after root exit, wanted 1", ff.closed)
	}
	if got := k.files.InUse(); got != 0 {
		t.Fatalf("files in use after root exit: got %d, wanted 0", got)
	}
}
