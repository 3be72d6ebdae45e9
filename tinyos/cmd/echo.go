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

package cmd

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"tinyos.dev/tinyos/pkg/sentry/kernel"
	"tinyos.dev/tinyos/pkg/sentry/socket"
	"tinyos.dev/tinyos/pkg/sentry/syscalls"
	"tinyos.dev/tinyos/pkg/syserr"
	"tinyos.dev/tinyos/tinyos/cmd/util"
	"tinyos.dev/tinyos/tinyos/config"
)

// Echo implements subcommands.Command for the "echo" command.
type Echo struct {
	port     int
	clients  int
	messages int
}

// Name implements subcommands.Command.Name.
func (*Echo) Name() string {
	return "echo"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Echo) Synopsis() string {
	return "run an echo server process and client processes over a socket port"
}

// Usage implements subcommands.Command.Usage.
func (*Echo) Usage() string {
	return "echo [flags] - clients send messages to a server that echoes them back.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (e *Echo) SetFlags(f *flag.FlagSet) {
	f.IntVar(&e.port, "port", 7, "port the server listens on.")
	f.IntVar(&e.clients, "clients", 3, "number of client processes.")
	f.IntVar(&e.messages, "messages", 4, "number of messages sent by each client.")
}

// exchange is one message sent by a client and the reply it got.
type exchange struct {
	client int
	sent   []byte
	reply  []byte
}

// Execute implements subcommands.Command.Execute.
func (e *Echo) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	status := args[1].(*int)
	if e.port < 1 || e.port > conf.MaxPort {
		return util.Errorf("-port must be in [1, %d]", conf.MaxPort)
	}
	if e.clients < 0 || e.messages < 0 {
		return util.Errorf("-clients and -messages must not be negative")
	}

	// Buffered so clients never block on a checker that gave up.
	exchanges := make(chan exchange, e.clients*e.messages)
	var ret int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(exchanges)
		var err error
		ret, err = boot(gctx, conf, func(t *kernel.Task, _ []byte) int {
			return e.root(t, conf, exchanges)
		})
		return err
	})
	g.Go(func() error {
		n := 0
		for x := range exchanges {
			if !bytes.Equal(x.sent, x.reply) {
				return fmt.Errorf("client %d sent %q, got back %q", x.client, x.sent, x.reply)
			}
			n++
		}
		if want := e.clients * e.messages; n != want {
			return fmt.Errorf("%d messages echoed, wanted %d", n, want)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return util.Errorf("echo failed: %v", err)
	}
	if ret == 0 {
		util.Infof("Echoed %d messages from %d clients on port %d", e.clients*e.messages, e.clients, e.port)
	}
	*status = ret
	return subcommands.ExitSuccess
}

// root starts the server and the clients and reaps them all. It returns the
// number of children that failed.
func (e *Echo) root(t *kernel.Task, conf *config.Config, exchanges chan<- exchange) int {
	failed := 0
	if _, err := t.Exec(e.server, nil); err != nil {
		t.Warningf("Exec of server: %v", err)
		return 1
	}
	for i := 0; i < e.clients; i++ {
		if _, err := t.Exec(func(ct *kernel.Task, _ []byte) int {
			return e.client(ct, i, conf.ConnectTimeout, exchanges)
		}, nil); err != nil {
			t.Warningf("Exec of client %d: %v", i, err)
			failed++
		}
	}
	for {
		pid, ret, err := t.WaitChild(kernel.NoPID)
		if err != nil {
			break
		}
		if ret != 0 {
			t.Warningf("Process %d exited with %d", pid, ret)
			failed++
		}
	}
	return failed
}

// server accepts one connection per client and echoes each on its own
// thread.
func (e *Echo) server(t *kernel.Task, _ []byte) int {
	lfd, err := syscalls.Socket(t, socket.Port(e.port))
	if err != nil {
		t.Warningf("Socket: %v", err)
		return 1
	}
	defer syscalls.Close(t, lfd)
	if err := syscalls.Listen(t, lfd); err != nil {
		t.Warningf("Listen on port %d: %v", e.port, err)
		return 1
	}

	var handlers []kernel.ThreadID
	for i := 0; i < e.clients; i++ {
		fd, err := syscalls.Accept(t, lfd)
		if err != nil {
			t.Warningf("Accept: %v", err)
			return 1
		}
		tid, err := t.CreateThread(func(ht *kernel.Task, _ []byte) int {
			return echoConn(ht, fd)
		}, nil)
		if err != nil {
			t.Warningf("CreateThread: %v", err)
			syscalls.Close(t, fd)
			return 1
		}
		handlers = append(handlers, tid)
	}

	failed := 0
	for _, tid := range handlers {
		if ret, err := t.ThreadJoin(tid); err != nil || ret != 0 {
			failed++
		}
	}
	return failed
}

// echoConn writes back everything read from fd until the peer closes it.
func echoConn(t *kernel.Task, fd kernel.FD) int {
	defer syscalls.Close(t, fd)
	buf := make([]byte, 512)
	for {
		n, err := syscalls.Read(t, fd, buf)
		if err != nil {
			t.Warningf("Read from fd %d: %v", fd, err)
			return 1
		}
		if n == 0 {
			return 0
		}
		if _, err := syscalls.Write(t, fd, buf[:n]); err != nil {
			t.Warningf("Write to fd %d: %v", fd, err)
			return 1
		}
	}
}

// client connects to the server, retrying while nobody listens on the port
// yet, and sends its messages one at a time.
func (e *Echo) client(t *kernel.Task, id int, timeout time.Duration, exchanges chan<- exchange) int {
	fd, err := syscalls.Socket(t, socket.NoPort)
	if err != nil {
		t.Warningf("Socket: %v", err)
		return 1
	}
	defer syscalls.Close(t, fd)

	op := func() error {
		err := syscalls.Connect(t, fd, socket.Port(e.port), timeout)
		if errors.Is(err, syserr.ErrConnectionRefused) {
			t.Debugf("Connect to port %d: %v, retrying", e.port, err)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		t.Warningf("Connect to port %d: %v", e.port, err)
		return 1
	}

	for m := 0; m < e.messages; m++ {
		msg := []byte(fmt.Sprintf("client %d message %d", id, m))
		if _, err := syscalls.Write(t, fd, msg); err != nil {
			t.Warningf("Write: %v", err)
			return 1
		}
		reply := make([]byte, 0, len(msg))
		buf := make([]byte, len(msg))
		for len(reply) < len(msg) {
			n, err := syscalls.Read(t, fd, buf[:len(msg)-len(reply)])
			if err != nil {
				t.Warningf("Read: %v", err)
				return 1
			}
			if n == 0 {
				t.Warningf("Server closed the connection after %d of %d bytes", len(reply), len(msg))
				return 1
			}
			reply = append(reply, buf[:n]...)
		}
		exchanges <- exchange{client: id, sent: msg, reply: reply}
	}
	return 0
}
