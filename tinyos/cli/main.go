// Copyright 2018 The gVisor Authors.
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

// Package cli is the main entrypoint for tinyos.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"tinyos.dev/tinyos/pkg/log"
	"tinyos.dev/tinyos/pkg/metric"
	"tinyos.dev/tinyos/tinyos/cmd"
	"tinyos.dev/tinyos/tinyos/cmd/util"
	"tinyos.dev/tinyos/tinyos/config"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	logFile := io.Writer(os.Stderr)
	if conf.LogFilename != "" {
		f, err := os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		util.ErrorLogger = f
		logFile = f
	}
	log.SetTarget(newEmitter(conf.LogFormat, logFile))
	switch {
	case conf.Debug:
		log.SetLevel(log.Debug)
	case conf.LogFilename == "":
		// Stderr is shared with command output; keep it quiet.
		log.SetLevel(log.Warning)
	}

	const delimString = `**************** tinyos ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %d CPUs, %s, PID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	var status int
	subcmdCode := subcommands.Execute(ctx, conf, &status)
	cancel()

	if conf.Metrics {
		if err := metric.WritePrometheus(os.Stdout); err != nil {
			util.Fatalf("error writing metrics: %v", err)
		}
	}
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %d", status)
		os.Exit(status)
	}
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	if subcmdCode == subcommands.ExitUsageError {
		os.Exit(2)
	}
	os.Exit(128)
}

// forEachCmd invokes the passed callback for each command supported by tinyos.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	const demoGroup = "workloads"
	cb(new(cmd.Echo), demoGroup)
	cb(new(cmd.Pipe), demoGroup)
	cb(new(cmd.Threads), demoGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Emitter: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	util.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}
