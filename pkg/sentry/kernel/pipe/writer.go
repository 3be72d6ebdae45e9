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

// Writer is the write end of a pipe. It satisfies fs.FileOperations.
type Writer struct {
	p *Pipe
}

// Pipe returns the pipe w writes to.
func (w *Writer) Pipe() *Pipe {
	return w.p
}

// Read implements fs.FileOperations.Read.
func (w *Writer) Read([]byte) (int, error) {
	return 0, syserr.ErrBadFD
}

// Write implements fs.FileOperations.Write.
//
// Write blocks while the pipe is full and the reader is open. If the reader
// closes part way through, Write returns the number of bytes queued so far
// without an error. Writing to a pipe whose reader is already closed fails
// with ErrBrokenPipe.
func (w *Writer) Write(src []byte) (int, error) {
	p := w.p
	if p.writer != w {
		return 0, syserr.ErrBadFD
	}
	if p.reader == nil {
		return 0, syserr.ErrBrokenPipe
	}

	n := 0
	for n < len(src) {
		for p.size == len(p.buf) && p.reader != nil && p.writer == w {
			p.s.Broadcast(&p.hasData)
			p.s.Wait(&p.hasSpace, sched.CausePipe)
		}
		if p.writer != w {
			// Closed by another thread sharing the descriptor.
			if n == 0 {
				return 0, syserr.ErrBadFD
			}
			break
		}
		if p.reader == nil {
			break
		}
		n += p.write(src[n:])
	}

	p.s.Broadcast(&p.hasData)
	bytesWritten.IncrementBy(uint64(n))
	return n, nil
}

// Close implements fs.FileOperations.Close. It is idempotent.
func (w *Writer) Close() error {
	p := w.p
	if p.writer == w {
		p.writer = nil
		// Wake readers so they observe end of data, and writers blocked on
		// this end so they stop.
		p.s.Broadcast(&p.hasData)
		p.s.Broadcast(&p.hasSpace)
	}
	p.maybeRelease()
	return nil
}
