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

// Package pipe provides an in-memory implementation of a unidirectional
// pipe.
//
// A pipe is a fixed-capacity ring of bytes shared by exactly one Reader and
// one Writer. Reads block while the pipe is empty and a writer remains;
// writes block while the pipe is full and a reader remains. Either end may be
// closed at any time; the pipe's buffer is released once both are.
//
// All methods require the kernel lock (see package sched).
package pipe

import (
	"fmt"

	"tinyos.dev/tinyos/pkg/log"
	"tinyos.dev/tinyos/pkg/metric"
	"tinyos.dev/tinyos/pkg/sentry/kernel/sched"
)

// DefaultPipeSize is the default capacity of a pipe in bytes.
const DefaultPipeSize = 8192

var (
	pipesCreated = metric.MustCreateNewUint64Metric("/pipe/created", "Number of pipes created.")
	pipesLive    = metric.MustCreateNewUint64Gauge("/pipe/live", "Number of pipes with at least one open end.")
	bytesWritten = metric.MustCreateNewUint64Metric("/pipe/bytes_written", "Bytes written into pipes.")
	bytesRead    = metric.MustCreateNewUint64Metric("/pipe/bytes_read", "Bytes read from pipes.")
)

// Pipe is the state shared by a Reader and a Writer.
type Pipe struct {
	s *sched.Scheduler

	// buf is the ring. Its length is a power of two. It is nil once the
	// pipe has been released.
	buf []byte

	// rpos and wpos are the read and write cursors into buf.
	rpos int
	wpos int

	// size is the number of bytes queued, 0 <= size <= len(buf).
	size int

	// hasData is signalled when bytes are queued or the writer closes.
	hasData sched.CondVar

	// hasSpace is signalled when bytes are consumed or the reader closes.
	hasSpace sched.CondVar

	// reader and writer are the ends of the pipe. A nil end is closed.
	reader *Reader
	writer *Writer

	// released is set by the close that observes both ends closed.
	released bool
}

// New creates a pipe of the given capacity and returns its two ends.
//
// capacity must be a power of two.
func New(s *sched.Scheduler, capacity int) (*Reader, *Writer) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("pipe capacity %d is not a power of two", capacity))
	}
	p := &Pipe{
		s:   s,
		buf: make([]byte, capacity),
	}
	p.reader = &Reader{p: p}
	p.writer = &Writer{p: p}
	pipesCreated.Increment()
	pipesLive.Increment()
	return p.reader, p.writer
}

// String implements fmt.Stringer.
func (p *Pipe) String() string {
	return fmt.Sprintf("pipe(size=%d/%d, reader=%t, writer=%t)", p.size, len(p.buf), p.reader != nil, p.writer != nil)
}

// Size returns the number of bytes queued in the pipe.
func (p *Pipe) Size() int {
	return p.size
}

// Capacity returns the capacity of the pipe, or 0 once it is released.
func (p *Pipe) Capacity() int {
	return len(p.buf)
}

// read copies queued bytes into dst. It never blocks.
func (p *Pipe) read(dst []byte) int {
	n := 0
	for n < len(dst) && p.size > 0 {
		chunk := min(len(dst)-n, p.size, len(p.buf)-p.rpos)
		copy(dst[n:n+chunk], p.buf[p.rpos:p.rpos+chunk])
		p.rpos = (p.rpos + chunk) & (len(p.buf) - 1)
		p.size -= chunk
		n += chunk
		p.s.Broadcast(&p.hasSpace)
	}
	return n
}

// write copies as much of src as fits into the pipe. It never blocks.
func (p *Pipe) write(src []byte) int {
	n := 0
	for n < len(src) && p.size < len(p.buf) {
		chunk := min(len(src)-n, len(p.buf)-p.size, len(p.buf)-p.wpos)
		copy(p.buf[p.wpos:p.wpos+chunk], src[n:n+chunk])
		p.wpos = (p.wpos + chunk) & (len(p.buf) - 1)
		p.size += chunk
		n += chunk
	}
	return n
}

// maybeRelease drops the buffer once both ends are closed. Only the first
// call that observes both ends closed has any effect.
func (p *Pipe) maybeRelease() {
	if p.reader != nil || p.writer != nil || p.released {
		return
	}
	p.released = true
	p.buf = nil
	p.size = 0
	pipesLive.Decrement()
	if log.IsLogging(log.Debug) {
		log.Debugf("Pipe released")
	}
}
