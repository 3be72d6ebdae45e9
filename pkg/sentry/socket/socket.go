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

// Package socket implements connection-oriented local sockets.
//
// A socket starts out unbound. Listen turns it into a listener that owns a
// port; Connect queues a request on a listener and Accept admits it, turning
// the connecting socket and a freshly created server socket into a pair of
// peers joined by two pipes, one per direction.
//
// All methods require the kernel lock (see package sched).
package socket

import (
	"fmt"
	"time"

	"tinyos.dev/tinyos/pkg/log"
	"tinyos.dev/tinyos/pkg/metric"
	"tinyos.dev/tinyos/pkg/sentry/kernel/pipe"
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
	"tinyos.dev/tinyos/pkg/syserr"
)

// Port is a socket port number.
type Port int

// NoPort is the port of a socket that is not bound to any port.
const NoPort Port = 0

// DefaultMaxPort is the default largest valid port.
const DefaultMaxPort Port = 1023

// ShutdownMode selects the direction(s) closed by Shutdown.
type ShutdownMode int

// Shutdown modes.
const (
	ShutdownRead ShutdownMode = iota + 1
	ShutdownWrite
	ShutdownBoth
)

// String implements fmt.Stringer.
func (m ShutdownMode) String() string {
	switch m {
	case ShutdownRead:
		return "read"
	case ShutdownWrite:
		return "write"
	case ShutdownBoth:
		return "both"
	default:
		return fmt.Sprintf("ShutdownMode(%d)", int(m))
	}
}

var (
	connections = metric.MustCreateNewUint64Metric("/socket/connections", "Connection attempts by outcome.",
		metric.NewField("result", "accepted", "refused", "timeout"))
	socketsLive = metric.MustCreateNewUint64Gauge("/socket/live", "Number of sockets not yet destroyed.")
)

// Namespace holds the port table shared by all sockets of a kernel.
type Namespace struct {
	s *sched.Scheduler

	// maxPort is the largest valid port.
	maxPort Port

	// pipeSize is the capacity of the pipes joining peers.
	pipeSize int

	// listeners maps each bound port to its listener.
	listeners map[Port]*Socket

	// nextID is the id of the next socket created.
	nextID uint64

	// warn logs connection failures without flooding the log.
	warn log.Logger
}

// NewNamespace returns an empty port table.
func NewNamespace(s *sched.Scheduler, maxPort Port, pipeSize int) *Namespace {
	return &Namespace{
		s:         s,
		maxPort:   maxPort,
		pipeSize:  pipeSize,
		listeners: make(map[Port]*Socket),
		nextID:    1,
		warn:      log.BasicRateLimitedLogger(time.Second),
	}
}

// MaxPort returns the largest valid port.
func (ns *Namespace) MaxPort() Port {
	return ns.maxPort
}

// Listener returns the socket listening on port, or nil.
func (ns *Namespace) Listener(port Port) *Socket {
	return ns.listeners[port]
}

// state is one of unboundState, *listenerState or *peerState.
type state interface {
	kind() string
}

type unboundState struct{}

func (unboundState) kind() string { return "unbound" }

// peerState is the state of a connected socket.
type peerState struct {
	// peer is the other end of the connection.
	peer *Socket

	// read carries data from peer to this socket; write carries data from
	// this socket to peer. Neither is shared with any other socket.
	read  *pipe.Reader
	write *pipe.Writer
}

func (*peerState) kind() string { return "peer" }

// Socket is a socket control block. It satisfies fs.FileOperations.
type Socket struct {
	ns *Namespace

	// id identifies the socket in logs.
	id uint64

	// port is the port given at creation, or NoPort.
	port Port

	// refs counts operations that still intend to use the socket, minus
	// one for its file. The socket is destroyed when refs drops below
	// zero.
	refs int

	// closed is set once the socket's file has been closed.
	closed bool

	// destroyed is set once refs has dropped below zero.
	destroyed bool

	state state
}

// NewSocket creates an unbound socket for port. port may be NoPort.
func (ns *Namespace) NewSocket(port Port) (*Socket, error) {
	if port < NoPort || port > ns.maxPort {
		return nil, syserr.ErrInvalidArgument
	}
	return ns.newSocket(port), nil
}

func (ns *Namespace) newSocket(port Port) *Socket {
	s := &Socket{
		ns:    ns,
		id:    ns.nextID,
		port:  port,
		state: unboundState{},
	}
	ns.nextID++
	socketsLive.Increment()
	return s
}

// String implements fmt.Stringer.
func (s *Socket) String() string {
	return fmt.Sprintf("socket %d (%s, port %d)", s.id, s.state.kind(), s.port)
}

// Port returns the socket's port.
func (s *Socket) Port() Port {
	return s.port
}

// Kind returns "unbound", "listener" or "peer".
func (s *Socket) Kind() string {
	return s.state.kind()
}

// Peer returns the other end of a connected socket, or nil.
func (s *Socket) Peer() *Socket {
	if ps, ok := s.state.(*peerState); ok {
		return ps.peer
	}
	return nil
}

// Destroyed returns true once no holder of the socket remains.
func (s *Socket) Destroyed() bool {
	return s.destroyed
}

func (s *Socket) incRef() {
	s.refs++
}

func (s *Socket) decRef() {
	s.refs--
	if s.refs >= 0 {
		return
	}
	if s.destroyed {
		panic(fmt.Sprintf("decRef on destroyed %v", s))
	}
	s.destroyed = true
	socketsLive.Decrement()
	if log.IsLogging(log.Debug) {
		log.Debugf("Destroyed %v", s)
	}
}

// Shutdown closes one or both directions of a connected socket.
func (s *Socket) Shutdown(how ShutdownMode) error {
	if s.closed {
		return syserr.ErrBadFD
	}
	ps, ok := s.state.(*peerState)
	if !ok {
		return syserr.ErrNotConnected
	}
	switch how {
	case ShutdownRead:
		ps.read.Close()
	case ShutdownWrite:
		ps.write.Close()
	case ShutdownBoth:
		ps.read.Close()
		ps.write.Close()
	default:
		return syserr.ErrInvalidArgument
	}
	return nil
}

// Read implements fs.FileOperations.Read.
func (s *Socket) Read(dst []byte) (int, error) {
	ps, ok := s.state.(*peerState)
	if !ok {
		return 0, syserr.ErrNotConnected
	}
	return ps.read.Read(dst)
}

// Write implements fs.FileOperations.Write.
func (s *Socket) Write(src []byte) (int, error) {
	ps, ok := s.state.(*peerState)
	if !ok {
		return 0, syserr.ErrNotConnected
	}
	return ps.write.Write(src)
}

// Close implements fs.FileOperations.Close. It is idempotent.
//
// Closing a peer closes both of its pipe ends. Closing a listener unbinds its
// port, refuses every queued request and wakes blocked acceptors; in-flight
// Accept and Connect calls keep the socket alive until they return.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	switch st := s.state.(type) {
	case *peerState:
		st.read.Close()
		st.write.Close()
	case *listenerState:
		s.ns.unbind(s, st)
	}
	s.decRef()
	return nil
}
