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

// Package cmd holds implementations of the tinyos commands.
//
// Every command boots a fresh kernel, runs a workload as its root process
// and stores the root process's exit value in the *int passed as the second
// argument to Execute.
package cmd

import (
	"context"
	"fmt"

	"tinyos.dev/tinyos/pkg/log"
	"tinyos.dev/tinyos/pkg/sentry/kernel"
	"tinyos.dev/tinyos/tinyos/config"
)

// boot starts a kernel configured by conf with entry as its root process and
// waits until every thread of every process has finished. It returns the exit
// value of the root process.
func boot(ctx context.Context, conf *config.Config, entry kernel.Entry) (int, error) {
	k, err := kernel.New(conf.KernelConfig())
	if err != nil {
		return 0, fmt.Errorf("creating kernel: %w", err)
	}
	if _, err := k.Boot(entry, nil); err != nil {
		return 0, fmt.Errorf("booting kernel: %w", err)
	}
	if err := k.Wait(ctx); err != nil {
		return 0, fmt.Errorf("waiting for kernel: %w", err)
	}

	procs := k.Processes()
	if log.IsLogging(log.Debug) {
		log.Debugf("%5s %5s %-7s %7s %4s", "PID", "PPID", "STATE", "THREADS", "EXIT")
		for _, p := range procs {
			log.Debugf("%5d %5d %-7v %7d %4d", p.PID, p.PPID, p.State, p.Threads, p.ExitCode)
		}
		log.Debugf("Files in use: %d", k.Files().InUse())
	}
	// The root process is never reaped and has the lowest PID.
	return procs[0].ExitCode, nil
}
