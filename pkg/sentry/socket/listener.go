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

package socket

import (
	"tinyos.dev/tinyos/pkg/ilist"
	"tinyos.dev/tinyos/pkg/log"
	"tinyos.dev/tinyos/pkg/sentry/kernel/pipe"
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
	"tinyos.dev/tinyos/pkg/syserr"
)

// listenerState is the state of a listening socket.
type listenerState struct {
	// queue holds pending connection requests, oldest first.
	queue ilist.List[*request]

	// reqAvailable is signalled when a request is queued or the listener
	// is closed.
	reqAvailable sched.CondVar
}

func (*listenerState) kind() string { return "listener" }

// Listen binds an unbound socket to its port and makes it a listener.
func (ns *Namespace) Listen(s *Socket) error {
	if s.closed {
		return syserr.ErrBadFD
	}
	if _, ok := s.state.(unboundState); !ok {
		return syserr.ErrInvalidEndpointState
	}
	if s.port == NoPort {
		return syserr.ErrInvalidArgument
	}
	if ns.listeners[s.port] != nil {
		return syserr.ErrPortInUse
	}
	s.state = &listenerState{}
	ns.listeners[s.port] = s
	log.Debugf("Listening on port %d: %v", s.port, s)
	return nil
}

// Accept waits for a connection request on listener l and admits it. It
// returns the server side of the new connection, bound to l's port.
//
// Accept fails with ErrConnectionAborted if l is closed while waiting.
func (ns *Namespace) Accept(l *Socket) (*Socket, error) {
	if l.closed {
		return nil, syserr.ErrBadFD
	}
	ls, ok := l.state.(*listenerState)
	if !ok {
		return nil, syserr.ErrInvalidEndpointState
	}
	if ns.listeners[l.port] != l {
		return nil, syserr.ErrConnectionAborted
	}

	l.incRef()
	defer l.decRef()

	var req *request
	for {
		for ls.queue.Empty() && ns.listeners[l.port] == l {
			ns.s.Wait(&ls.reqAvailable, sched.CauseIO)
		}
		if ns.listeners[l.port] != l {
			return nil, syserr.ErrConnectionAborted
		}
		req, _ = ls.queue.PopFront()
		req.queued = false
		if _, unbound := req.sock.state.(unboundState); unbound && !req.sock.closed {
			break
		}
		// The connecting socket went away while its request was queued.
		req.reject(ns.s)
	}

	server := ns.newSocket(l.port)
	client := req.sock
	r1, w1 := pipe.New(ns.s, ns.pipeSize)
	r2, w2 := pipe.New(ns.s, ns.pipeSize)
	server.state = &peerState{peer: client, read: r2, write: w1}
	client.state = &peerState{peer: server, read: r1, write: w2}

	req.admission = admitted
	ns.s.Signal(&req.connected)
	connections.Increment("accepted")
	log.Debugf("Accepted connection on port %d: %v <-> %v", l.port, server, client)
	return server, nil
}

// unbind removes listener l from the port table, refuses all of its queued
// requests and wakes its acceptors.
func (ns *Namespace) unbind(l *Socket, ls *listenerState) {
	if ns.listeners[l.port] == l {
		delete(ns.listeners, l.port)
	}
	for req, ok := ls.queue.PopFront(); ok; req, ok = ls.queue.PopFront() {
		req.queued = false
		req.reject(ns.s)
	}
	ns.s.Broadcast(&ls.reqAvailable)
	log.Debugf("Closed listener on port %d", l.port)
}
