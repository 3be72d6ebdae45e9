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

package pipe

import (
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
	"tinyos.dev/tinyos/pkg/syserr"
)

// Reader is the read end of a pipe. It satisfies fs.FileOperations.
type Reader struct {
	p *Pipe
}

// Pipe returns the pipe r reads from.
func (r *Reader) Pipe() *Pipe {
	return r.p
}

// Read implements fs.FileOperations.Read.
//
// Read blocks while the pipe is empty and the writer is open. It returns as
// soon as at least one byte has been copied and the pipe is empty, and
// returns (0, nil) once the pipe is empty and the writer closed.
func (r *Reader) Read(dst []byte) (int, error) {
	p := r.p
	if p.reader != r {
		return 0, syserr.ErrBadFD
	}
	if len(dst) == 0 {
		return 0, nil
	}

	for p.size == 0 && p.writer != nil {
		p.s.Broadcast(&p.hasSpace)
		p.s.Wait(&p.hasData, sched.CausePipe)
		if p.reader != r {
			// Closed by another thread sharing the descriptor.
			return 0, syserr.ErrBadFD
		}
	}

	n := p.read(dst)
	p.s.Broadcast(&p.hasSpace)
	bytesRead.IncrementBy(uint64(n))
	return n, nil
}

// Write implements fs.FileOperations.Write.
func (r *Reader) Write([]byte) (int, error) {
	return 0, syserr.ErrBadFD
}

// Close implements fs.FileOperations.Close. It is idempotent.
func (r *Reader) Close() error {
	p := r.p
	if p.reader == r {
		p.reader = nil
		// Wake writers so they observe the closed reader, and readers
		// blocked on this end so they fail with ErrBadFD.
		p.s.Broadcast(&p.hasSpace)
		p.s.Broadcast(&p.hasData)
	}
	p.maybeRelease()
	return nil
}
