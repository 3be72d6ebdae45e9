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
	"time"

	"tinyos.dev/tinyos/pkg/cleanup"
	"tinyos.dev/tinyos/pkg/sentry/kernel"
	"tinyos.dev/tinyos/pkg/sentry/socket"
	"tinyos.dev/tinyos/pkg/syserr"
)

// Socket creates an unbound socket on port and returns its descriptor. Port
// socket.NoPort creates a socket that can only connect.
func Socket(t *kernel.Task, port socket.Port) (kernel.FD, error) {
	k := t.Kernel()
	s := k.Scheduler()
	s.Lock()
	defer s.Unlock()

	fdt := t.Process().FDTable()
	fds, files, err := fdt.Reserve(k.Files(), 1)
	if err != nil {
		return kernel.NoFile, err
	}
	cu := cleanup.Make(func() { fdt.Unreserve(k.Files(), fds, files) })
	defer cu.Clean()

	sock, err := k.Sockets().NewSocket(port)
	if err != nil {
		return kernel.NoFile, err
	}
	files[0].Bind(sock)
	cu.Release()
	return fds[0], nil
}

// Listen makes the socket at fd the listener of its port.
func Listen(t *kernel.Task, fd kernel.FD) error {
	k := t.Kernel()
	s := k.Scheduler()
	s.Lock()
	defer s.Unlock()

	sock, err := getSocket(t, fd)
	if err != nil {
		return err
	}
	return k.Sockets().Listen(sock)
}

// Accept waits for a connection on the listener at fd and returns the
// descriptor of the server side of the new connection.
//
// The descriptor is reserved before waiting, so a process out of
// descriptors fails immediately instead of refusing a client it already
// dequeued.
func Accept(t *kernel.Task, fd kernel.FD) (kernel.FD, error) {
	k := t.Kernel()
	s := k.Scheduler()
	s.Lock()
	defer s.Unlock()

	l, err := getSocket(t, fd)
	if err != nil {
		return kernel.NoFile, err
	}

	fdt := t.Process().FDTable()
	fds, files, err := fdt.Reserve(k.Files(), 1)
	if err != nil {
		return kernel.NoFile, err
	}
	cu := cleanup.Make(func() { fdt.Unreserve(k.Files(), fds, files) })
	defer cu.Clean()

	server, err := k.Sockets().Accept(l)
	if err != nil {
		return kernel.NoFile, err
	}
	if f, err := fdt.Get(fds[0]); err != nil || f != files[0] {
		// Another thread closed the reserved descriptor while we waited.
		server.Close()
		return kernel.NoFile, syserr.ErrBadFD
	}
	files[0].Bind(server)
	cu.Release()
	t.Debugf("Accepted %v on fd %d", server, fds[0])
	return fds[0], nil
}

// Connect connects the unbound socket at fd to the listener on port. A
// timeout of zero or less waits until the request is accepted or refused.
func Connect(t *kernel.Task, fd kernel.FD, port socket.Port, timeout time.Duration) error {
	k := t.Kernel()
	s := k.Scheduler()
	s.Lock()
	defer s.Unlock()

	sock, err := getSocket(t, fd)
	if err != nil {
		return err
	}
	return k.Sockets().Connect(sock, port, timeout)
}

// ShutDown closes one or both directions of the connection at fd.
func ShutDown(t *kernel.Task, fd kernel.FD, how socket.ShutdownMode) error {
	s := t.Kernel().Scheduler()
	s.Lock()
	defer s.Unlock()

	sock, err := getSocket(t, fd)
	if err != nil {
		return err
	}
	return sock.Shutdown(how)
}
