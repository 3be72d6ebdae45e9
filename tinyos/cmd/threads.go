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
	"errors"
	"flag"

	"github.com/google/subcommands"
	"tinyos.dev/tinyos/pkg/sentry/kernel"
	"tinyos.dev/tinyos/pkg/syserr"
	"tinyos.dev/tinyos/tinyos/cmd/util"
	"tinyos.dev/tinyos/tinyos/config"
)

// Threads implements subcommands.Command for the "threads" command.
type Threads struct {
	workers  int
	detached int
}

// Name implements subcommands.Command.Name.
func (*Threads) Name() string {
	return "threads"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Threads) Synopsis() string {
	return "create worker threads, detach some and join the rest"
}

// Usage implements subcommands.Command.Usage.
func (*Threads) Usage() string {
	return "threads [flags] - reports the exit value of every joined worker.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (th *Threads) SetFlags(f *flag.FlagSet) {
	f.IntVar(&th.workers, "workers", 8, "number of worker threads.")
	f.IntVar(&th.detached, "detached", 2, "number of workers to detach instead of joining.")
}

// Execute implements subcommands.Command.Execute.
func (th *Threads) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if th.workers < 0 || th.detached < 0 || th.detached > th.workers {
		return util.Errorf("-detached must be in [0, -workers]")
	}
	conf := args[0].(*config.Config)
	status := args[1].(*int)

	ret, err := boot(ctx, conf, th.run)
	if err != nil {
		return util.Errorf("threads failed: %v", err)
	}
	*status = ret
	return subcommands.ExitSuccess
}

// work returns the sum of the first n integers.
func work(_ *kernel.Task, args []byte) int {
	n := int(args[0])
	sum := 0
	for i := 1; i <= n; i++ {
		sum += i
	}
	return sum
}

func (th *Threads) run(t *kernel.Task, _ []byte) int {
	tids := make([]kernel.ThreadID, th.workers)
	for i := range tids {
		tid, err := t.CreateThread(work, []byte{byte(i)})
		if err != nil {
			t.Warningf("CreateThread: %v", err)
			return 1
		}
		tids[i] = tid
	}

	for i, tid := range tids {
		if i < th.detached {
			err := t.ThreadDetach(tid)
			if err == nil {
				util.Infof("Worker %d (thread %v): detached", i, tid)
				continue
			}
			// Too late to detach a worker that already finished; join it
			// like the others.
			if !errors.Is(err, syserr.ErrThreadExited) {
				t.Warningf("ThreadDetach(%v): %v", tid, err)
				return 1
			}
		}
		ret, err := t.ThreadJoin(tid)
		if err != nil {
			t.Warningf("ThreadJoin(%v): %v", tid, err)
			return 1
		}
		util.Infof("Worker %d (thread %v): exited with %d", i, tid, ret)
	}
	t.Debugf("Main thread %v done", t.ThreadSelf())
	return 0
}
