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
	"time"

	"tinyos.dev/tinyos/pkg/ilist"
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
	"tinyos.dev/tinyos/pkg/syserr"
)

type admission int

const (
	pending admission = iota
	admitted
	rejected
)

// request is a pending connection request.
type request struct {
	ilist.Entry[*request]

	// sock is the connecting socket.
	sock *Socket

	admission admission

	// connected is signalled when the request is admitted or rejected.
	connected sched.CondVar

	// queued is true while the request is linked into a listener's queue.
	queued bool
}

func (r *request) reject(s *sched.Scheduler) {
	r.admission = rejected
	s.Signal(&r.connected)
}

// Connect connects unbound socket s to the listener on port. It waits until
// an Accept admits the request or timeout elapses; a timeout of zero or less
// waits indefinitely.
//
// Whatever the outcome, the request is no longer queued when Connect returns.
func (ns *Namespace) Connect(s *Socket, port Port, timeout time.Duration) error {
	if s.closed {
		return syserr.ErrBadFD
	}
	switch s.state.(type) {
	case unboundState:
	case *peerState:
		return syserr.ErrAlreadyConnected
	default:
		return syserr.ErrInvalidEndpointState
	}
	if port < 1 || port > ns.maxPort {
		return syserr.ErrInvalidArgument
	}
	l := ns.listeners[port]
	if l == nil {
		connections.Increment("refused")
		ns.warn.Warningf("Connect to port %d refused: no listener", port)
		return syserr.ErrConnectionRefused
	}
	ls := l.state.(*listenerState)

	l.incRef()
	defer l.decRef()
	s.incRef()
	defer s.decRef()

	req := &request{sock: s, queued: true}
	ls.queue.PushBack(req)
	ns.s.Signal(&ls.reqAvailable)

	clock := ns.s.Clock()
	deadline := clock.Now().Add(timeout)
	for req.admission == pending {
		if timeout <= 0 {
			ns.s.Wait(&req.connected, sched.CauseIO)
			continue
		}
		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 || !ns.s.TimedWait(&req.connected, sched.CauseIO, remaining) {
			break
		}
	}

	if req.queued {
		ls.queue.Remove(req)
		req.queued = false
	}

	switch req.admission {
	case admitted:
		return nil
	case rejected:
		connections.Increment("refused")
		return syserr.ErrConnectionRefused
	default:
		connections.Increment("timeout")
		ns.warn.Warningf("Connect to port %d timed out after %v", port, timeout)
		return syserr.ErrTimedOut
	}
}
