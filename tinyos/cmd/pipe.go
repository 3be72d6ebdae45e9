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
	"context"
	"flag"
	"time"

	"github.com/google/subcommands"
	"tinyos.dev/tinyos/pkg/sentry/kernel"
	"tinyos.dev/tinyos/pkg/sentry/syscalls"
	"tinyos.dev/tinyos/tinyos/cmd/util"
	"tinyos.dev/tinyos/tinyos/config"
)

// Pipe implements subcommands.Command for the "pipe" command.
type Pipe struct {
	bytes int
	chunk int
}

// Name implements subcommands.Command.Name.
func (*Pipe) Name() string {
	return "pipe"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Pipe) Synopsis() string {
	return "stream bytes from a producer thread to a consumer thread through a pipe"
}

// Usage implements subcommands.Command.Usage.
func (*Pipe) Usage() string {
	return "pipe [flags] - streams a byte pattern through a pipe and verifies it.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *Pipe) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.bytes, "bytes", 1<<20, "number of bytes to stream.")
	f.IntVar(&p.chunk, "chunk", 4096, "size of each read and write.")
}

// pattern returns the byte expected at offset off of the stream.
func pattern(off int) byte {
	return byte(off % 251)
}

// Execute implements subcommands.Command.Execute.
func (p *Pipe) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if p.bytes < 0 || p.chunk <= 0 {
		return util.Errorf("-bytes must not be negative and -chunk must be positive")
	}
	conf := args[0].(*config.Config)
	status := args[1].(*int)

	start := time.Now()
	ret, err := boot(ctx, conf, p.run)
	if err != nil {
		return util.Errorf("pipe failed: %v", err)
	}
	if ret == 0 {
		util.Infof("Streamed %d bytes in %d byte chunks in %v", p.bytes, p.chunk, time.Since(start))
	}
	*status = ret
	return subcommands.ExitSuccess
}

// run is the root process: the main thread consumes what a second thread
// produces. Threads share descriptors, so only the producer closes w.
func (p *Pipe) run(t *kernel.Task, _ []byte) int {
	r, w, err := syscalls.Pipe(t)
	if err != nil {
		t.Warningf("Pipe: %v", err)
		return 1
	}
	producer, err := t.CreateThread(func(pt *kernel.Task, _ []byte) int {
		defer syscalls.Close(pt, w)
		buf := make([]byte, p.chunk)
		for sent := 0; sent < p.bytes; {
			n := min(p.chunk, p.bytes-sent)
			for i := range buf[:n] {
				buf[i] = pattern(sent + i)
			}
			written, err := syscalls.Write(pt, w, buf[:n])
			if err != nil {
				pt.Warningf("Write after %d bytes: %v", sent, err)
				return 1
			}
			sent += written
		}
		return 0
	}, nil)
	if err != nil {
		t.Warningf("CreateThread: %v", err)
		return 1
	}

	buf := make([]byte, p.chunk)
	received := 0
	for {
		n, err := syscalls.Read(t, r, buf)
		if err != nil {
			t.Warningf("Read after %d bytes: %v", received, err)
			return 1
		}
		if n == 0 {
			break
		}
		for i, b := range buf[:n] {
			if want := pattern(received + i); b != want {
				t.Warningf("Byte %d: got %#x, wanted %#x", received+i, b, want)
				syscalls.Close(t, r)
				return 1
			}
		}
		received += n
	}
	syscalls.Close(t, r)

	ret, err := t.ThreadJoin(producer)
	if err != nil {
		t.Warningf("ThreadJoin(%v): %v", producer, err)
		return 1
	}
	if received != p.bytes {
		t.Warningf("Received %d bytes, wanted %d", received, p.bytes)
		return 1
	}
	return ret
}
