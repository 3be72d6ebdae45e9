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

package syscalls

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"tinyos.dev/tinyos/pkg/sentry/kernel"
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
	"tinyos.dev/tinyos/pkg/sentry/socket"
	"tinyos.dev/tinyos/pkg/syserr"
)

// run boots a kernel configured by modify with entry as its root process and
// waits for it to finish.
func run(t *testing.T, modify func(*kernel.Config), entry kernel.Entry) *kernel.Kernel {
	t.Helper()
	cfg := kernel.DefaultConfig()
	if modify != nil {
		modify(&cfg)
	}
	k, err := kernel.New(cfg)
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	if _, err := k.Boot(entry, nil); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := k.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return k
}

func waitBlocked(t *testing.T, s *sched.Scheduler, cause sched.Cause, n int) {
	deadline := time.Now().Add(10 * time.Second)
	for s.Blocked(cause) != n {
		if time.Now().After(deadline) {
			t.Errorf("timed out waiting for %d contexts blocked on %v", n, cause)
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// readAll reads fd until end of stream.
func readAll(task *kernel.Task, fd kernel.FD) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, 100)
	for {
		n, err := Read(task, fd, buf)
		if err != nil {
			return out.Bytes(), err
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		out.Write(buf[:n])
	}
}

func TestPipe(t *testing.T) {
	k := run(t, nil, func(task *kernel.Task, _ []byte) int {
		r, w, err := Pipe(task)
		if err != nil {
			t.Errorf("Pipe: %v", err)
			return 1
		}
		if n, err := Write(task, w, []byte("hello")); n != 5 || err != nil {
			t.Errorf("Write: got (%d, %v), wanted (5, nil)", n, err)
		}
		if _, err := Write(task, r, []byte("x")); !errors.Is(err, syserr.ErrBadFD) {
			t.Errorf("Write to read end: got %v, wanted %v", err, syserr.ErrBadFD)
		}
		if _, err := Read(task, w, make([]byte, 1)); !errors.Is(err, syserr.ErrBadFD) {
			t.Errorf("Read from write end: got %v, wanted %v", err, syserr.ErrBadFD)
		}
		if err := Close(task, w); err != nil {
			t.Errorf("Close(%d): %v", w, err)
		}
		got, err := readAll(task, r)
		if err != nil || string(got) != "hello" {
			t.Errorf("readAll: got (%q, %v), wanted (%q, nil)", got, err, "hello")
		}
		if err := Close(task, w); !errors.Is(err, syserr.ErrBadFD) {
			t.Errorf("second Close(%d): got %v, wanted %v", w, err, syserr.ErrBadFD)
		}
		Close(task, r)
		return 0
	})
	if got := k.Files().InUse(); got != 0 {
		t.Fatalf("files in use: got %d, wanted 0", got)
	}
}

func TestBrokenPipe(t *testing.T) {
	run(t, nil, func(task *kernel.Task, _ []byte) int {
		r, w, _ := Pipe(task)
		Close(task, r)
		if _, err := Write(task, w, []byte("x")); !errors.Is(err, syserr.ErrBrokenPipe) {
			t.Errorf("Write without reader: got %v, wanted %v", err, syserr.ErrBrokenPipe)
		}
		return 0
	})
}

func TestPipeBetweenThreads(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	run(t, func(c *kernel.Config) { c.PipeSize = 64 }, func(task *kernel.Task, _ []byte) int {
		r, w, _ := Pipe(task)
		writer, _ := task.CreateThread(func(wt *kernel.Task, _ []byte) int {
			defer Close(wt, w)
			for off := 0; off < len(data); {
				n, err := Write(wt, w, data[off:off+100])
				if err != nil {
					t.Errorf("Write: %v", err)
					return 1
				}
				off += n
			}
			return 0
		}, nil)

		got, err := readAll(task, r)
		if err != nil {
			t.Errorf("readAll: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("read %d bytes, wanted the %d bytes written", len(got), len(data))
		}
		if v, err := task.ThreadJoin(writer); v != 0 || err != nil {
			t.Errorf("ThreadJoin: got (%d, %v), wanted (0, nil)", v, err)
		}
		return 0
	})
}

func TestPipeInheritedByChild(t *testing.T) {
	run(t, nil, func(task *kernel.Task, _ []byte) int {
		r, w, _ := Pipe(task)
		pid, err := task.Exec(func(c *kernel.Task, _ []byte) int {
			Write(c, w, []byte("from child"))
			return 0
		}, nil)
		if err != nil {
			t.Errorf("Exec: %v", err)
			return 1
		}
		Close(task, w)

		// The child's copy of the write end closes when it exits.
		got, err := readAll(task, r)
		if err != nil || string(got) != "from child" {
			t.Errorf("readAll: got (%q, %v), wanted (%q, nil)", got, err, "from child")
		}
		task.WaitChild(pid)
		return 0
	})
}

func TestDescriptorLimits(t *testing.T) {
	run(t, func(c *kernel.Config) {
		c.MaxFDs = 3
		c.MaxFiles = 5
	}, func(task *kernel.Task, _ []byte) int {
		if _, _, err := Pipe(task); err != nil {
			t.Errorf("Pipe: %v", err)
		}
		if _, _, err := Pipe(task); !errors.Is(err, syserr.ErrTooManyOpenFiles) {
			t.Errorf("Pipe past descriptor limit: got %v, wanted %v", err, syserr.ErrTooManyOpenFiles)
		}
		fd, err := Socket(task, socket.NoPort)
		if err != nil {
			t.Errorf("Socket: %v", err)
		}
		if diff := cmp.Diff(kernel.FD(2), fd); diff != "" {
			t.Errorf("Socket fd mismatch (-want +got):\n%s", diff)
		}

		// Inherited descriptors share their files with the parent, so
		// closing them in the child frees slots but no files.
		pid, _ := task.Exec(func(c *kernel.Task, _ []byte) int {
			for fd := kernel.FD(0); fd < 3; fd++ {
				Close(c, fd)
			}
			if _, _, err := Pipe(c); err != nil {
				t.Errorf("Pipe after closing inherited fds: %v", err)
			}
			if _, err := Socket(c, socket.NoPort); !errors.Is(err, syserr.ErrFileTableOverflow) {
				t.Errorf("Socket past system limit: got %v, wanted %v", err, syserr.ErrFileTableOverflow)
			}
			return 0
		}, nil)
		task.WaitChild(pid)
		return 0
	})
}

func TestSocketErrors(t *testing.T) {
	k := run(t, nil, func(task *kernel.Task, _ []byte) int {
		if _, err := Socket(task, socket.DefaultMaxPort+1); !errors.Is(err, syserr.ErrInvalidArgument) {
			t.Errorf("Socket(%d): got %v, wanted %v", socket.DefaultMaxPort+1, err, syserr.ErrInvalidArgument)
		}
		r, _, _ := Pipe(task)
		if err := Listen(task, r); !errors.Is(err, syserr.ErrNotASocket) {
			t.Errorf("Listen on a pipe: got %v, wanted %v", err, syserr.ErrNotASocket)
		}
		if err := Listen(task, 10); !errors.Is(err, syserr.ErrBadFD) {
			t.Errorf("Listen on a free fd: got %v, wanted %v", err, syserr.ErrBadFD)
		}
		fd, _ := Socket(task, socket.NoPort)
		if err := Connect(task, fd, 9, 0); !errors.Is(err, syserr.ErrConnectionRefused) {
			t.Errorf("Connect without listener: got %v, wanted %v", err, syserr.ErrConnectionRefused)
		}
		if _, err := Read(task, fd, make([]byte, 1)); !errors.Is(err, syserr.ErrNotConnected) {
			t.Errorf("Read on unconnected socket: got %v, wanted %v", err, syserr.ErrNotConnected)
		}
		return 0
	})
	// Only the pipe and the unbound socket were left open by the root
	// process, and its exit closed them.
	if got := k.Files().InUse(); got != 0 {
		t.Fatalf("files in use: got %d, wanted 0", got)
	}
}

func TestEcho(t *testing.T) {
	const port = 80
	run(t, nil, func(task *kernel.Task, _ []byte) int {
		lfd, _ := Socket(task, port)
		if err := Listen(task, lfd); err != nil {
			t.Errorf("Listen: %v", err)
			return 1
		}

		pid, _ := task.Exec(func(c *kernel.Task, _ []byte) int {
			fd, _ := Socket(c, socket.NoPort)
			if err := Connect(c, fd, port, 0); err != nil {
				t.Errorf("Connect: %v", err)
				return 1
			}
			Write(c, fd, []byte("ping"))
			buf := make([]byte, 4)
			if n, err := Read(c, fd, buf); string(buf[:n]) != "pong" || err != nil {
				t.Errorf("client Read: got (%q, %v), wanted (%q, nil)", buf[:n], err, "pong")
			}
			return 0
		}, nil)

		afd, err := Accept(task, lfd)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return 1
		}
		buf := make([]byte, 4)
		if n, err := Read(task, afd, buf); string(buf[:n]) != "ping" || err != nil {
			t.Errorf("server Read: got (%q, %v), wanted (%q, nil)", buf[:n], err, "ping")
		}
		Write(task, afd, []byte("pong"))

		// The client's exit closes its end of the connection.
		if n, err := Read(task, afd, buf); n != 0 || err != nil {
			t.Errorf("Read after client exit: got (%d, %v), wanted (0, nil)", n, err)
		}
		if _, v, err := task.WaitChild(pid); v != 0 || err != nil {
			t.Errorf("WaitChild: got (%d, %v), wanted (0, nil)", v, err)
		}
		return 0
	})
}

func TestShutDown(t *testing.T) {
	run(t, nil, func(task *kernel.Task, _ []byte) int {
		lfd, _ := Socket(task, 5)
		Listen(task, lfd)
		if err := ShutDown(task, lfd, socket.ShutdownBoth); !errors.Is(err, syserr.ErrNotConnected) {
			t.Errorf("ShutDown on listener: got %v, wanted %v", err, syserr.ErrNotConnected)
		}

		cfd, _ := Socket(task, socket.NoPort)
		connected := make(chan error, 1)
		task.CreateThread(func(c *kernel.Task, _ []byte) int {
			connected <- Connect(c, cfd, 5, 0)
			return 0
		}, nil)
		afd, err := Accept(task, lfd)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return 1
		}
		if err := <-connected; err != nil {
			t.Errorf("Connect: %v", err)
			return 1
		}

		if err := ShutDown(task, afd, socket.ShutdownWrite); err != nil {
			t.Errorf("ShutDown: %v", err)
		}
		if n, err := Read(task, cfd, make([]byte, 1)); n != 0 || err != nil {
			t.Errorf("Read after peer shutdown: got (%d, %v), wanted (0, nil)", n, err)
		}
		if _, err := Write(task, afd, []byte("x")); !errors.Is(err, syserr.ErrBadFD) {
			t.Errorf("Write after shutdown: got %v, wanted %v", err, syserr.ErrBadFD)
		}
		// The other direction still works.
		if n, err := Write(task, cfd, []byte("x")); n != 1 || err != nil {
			t.Errorf("Write: got (%d, %v), wanted (1, nil)", n, err)
		}
		return 0
	})
}

func TestCloseAbortsAccept(t *testing.T) {
	k := run(t, nil, func(task *kernel.Task, _ []byte) int {
		lfd, _ := Socket(task, 6)
		Listen(task, lfd)
		accepted := make(chan error, 1)
		task.CreateThread(func(c *kernel.Task, _ []byte) int {
			_, err := Accept(c, lfd)
			accepted <- err
			return 0
		}, nil)
		waitBlocked(t, task.Kernel().Scheduler(), sched.CauseIO, 1)

		if err := Close(task, lfd); err != nil {
			t.Errorf("Close: %v", err)
		}
		if err := <-accepted; !errors.Is(err, syserr.ErrConnectionAborted) {
			t.Errorf("Accept: got %v, wanted %v", err, syserr.ErrConnectionAborted)
		}
		return 0
	})
	if got := k.Files().InUse(); got != 0 {
		t.Fatalf("files in use: got %d, wanted 0", got)
	}
}

func TestConnectTimeout(t *testing.T) {
	clk := clockwork.NewFakeClock()
	run(t, func(c *kernel.Config) { c.Clock = clk }, func(task *kernel.Task, _ []byte) int {
		lfd, _ := Socket(task, 7)
		Listen(task, lfd)
		cfd, _ := Socket(task, socket.NoPort)
		connected := make(chan error, 1)
		task.CreateThread(func(c *kernel.Task, _ []byte) int {
			connected <- Connect(c, cfd, 7, time.Second)
			return 0
		}, nil)

		clk.BlockUntil(1)
		clk.Advance(time.Second)
		if err := <-connected; !errors.Is(err, syserr.ErrTimedOut) {
			t.Errorf("Connect: got %v, wanted %v", err, syserr.ErrTimedOut)
		}
		return 0
	})
}

func TestCloseWakesBlockedRead(t *testing.T) {
	run(t, nil, func(task *kernel.Task, _ []byte) int {
		r, w, _ := Pipe(task)
		read := make(chan error, 1)
		task.CreateThread(func(c *kernel.Task, _ []byte) int {
			_, err := Read(c, r, make([]byte, 1))
			read <- err
			return 0
		}, nil)
		waitBlocked(t, task.Kernel().Scheduler(), sched.CausePipe, 1)

		// The write end stays open across the close.
		if err := Close(task, r); err != nil {
			t.Errorf("Close(%d): %v", r, err)
		}
		if err := <-read; !errors.Is(err, syserr.ErrBadFD) {
			t.Errorf("Read: got %v, wanted %v", err, syserr.ErrBadFD)
		}
		Close(task, w)
		return 0
	})
}

func TestCloseWakesBlockedWrite(t *testing.T) {
	run(t, func(c *kernel.Config) { c.PipeSize = 64 }, func(task *kernel.Task, _ []byte) int {
		r, w, _ := Pipe(task)
		if n, err := Write(task, w, make([]byte, 64)); n != 64 || err != nil {
			t.Errorf("Write: got (%d, %v), wanted (64, nil)", n, err)
		}
		written := make(chan error, 1)
		task.CreateThread(func(c *kernel.Task, _ []byte) int {
			_, err := Write(c, w, []byte("x"))
			written <- err
			return 0
		}, nil)
		waitBlocked(t, task.Kernel().Scheduler(), sched.CausePipe, 1)

		if err := Close(task, w); err != nil {
			t.Errorf("Close(%d): %v", w, err)
		}
		if err := <-written; !errors.Is(err, syserr.ErrBadFD) {
			t.Errorf("Write: got %v, wanted %v", err, syserr.ErrBadFD)
		}
		Close(task, r)
		return 0
	})
}

func TestCloseWakesBlockedSocketRead(t *testing.T) {
	k := run(t, nil, func(task *kernel.Task, _ []byte) int {
		lfd, _ := Socket(task, 8)
		Listen(task, lfd)
		cfd, _ := Socket(task, socket.NoPort)
		connected := make(chan error, 1)
		task.CreateThread(func(c *kernel.Task, _ []byte) int {
			connected <- Connect(c, cfd, 8, 0)
			return 0
		}, nil)
		afd, err := Accept(task, lfd)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return 1
		}
		if err := <-connected; err != nil {
			t.Errorf("Connect: %v", err)
			return 1
		}

		read := make(chan error, 1)
		task.CreateThread(func(c *kernel.Task, _ []byte) int {
			_, err := Read(c, afd, make([]byte, 1))
			read <- err
			return 0
		}, nil)
		waitBlocked(t, task.Kernel().Scheduler(), sched.CausePipe, 1)

		// The connecting side stays open, so only the close of afd can end
		// the Read.
		if err := Close(task, afd); err != nil {
			t.Errorf("Close(%d): %v", afd, err)
		}
		if err := <-read; !errors.Is(err, syserr.ErrBadFD) {
			t.Errorf("Read: got %v, wanted %v", err, syserr.ErrBadFD)
		}
		Close(task, cfd)
		Close(task, lfd)
		return 0
	})
	if got := k.Files().InUse(); got != 0 {
		t.Fatalf("files in use: got %d, wanted 0", got)
	}
}
