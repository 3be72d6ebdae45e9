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

// Package config provides basic infrastructure to set configuration settings
// for tinyos. Each setting that can be changed from the command line must
// have a corresponding flag name and field in Config.
package config

import (
	"fmt"
	"time"

	"tinyos.dev/tinyos/pkg/log"
	"tinyos.dev/tinyos/pkg/sentry/kernel"
	"tinyos.dev/tinyos/pkg/sentry/socket"
)

// Config holds configuration that is not part of a subcommand's own flags.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name and the TOML key.
//  3. Register a new flag in flags.go, with the same name and add a
//     description.
//  4. Add any necessary validation into validate().
type Config struct {
	// ConfigFile is a TOML file read before command line flags are applied.
	// Flags set explicitly on the command line override the file.
	ConfigFile string `flag:"config" toml:"-"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format. Valid values are "text" and "json".
	LogFormat string `flag:"log-format" toml:"log-format"`

	// Metrics dumps all metrics in Prometheus text format when the command
	// finishes.
	Metrics bool `flag:"metrics" toml:"metrics"`

	// PipeSize is the capacity in bytes of every pipe and of each direction
	// of a socket connection.
	PipeSize int `flag:"pipe-size" toml:"pipe-size"`

	// MaxPort is the largest socket port.
	MaxPort int `flag:"max-port" toml:"max-port"`

	// MaxFDs is the number of descriptors of each process.
	MaxFDs int `flag:"max-fds" toml:"max-fds"`

	// MaxFiles is the number of open files in the system.
	MaxFiles int `flag:"max-files" toml:"max-files"`

	// MaxProcs is the largest number of processes, zombies included.
	MaxProcs int `flag:"max-procs" toml:"max-procs"`

	// ConnectTimeout bounds each connection attempt made by commands that
	// connect sockets. Zero waits indefinitely.
	ConnectTimeout time.Duration `flag:"connect-timeout" toml:"connect-timeout"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.MaxPort > int(^uint16(0)) {
		return fmt.Errorf("max-port %d is not a valid port", c.MaxPort)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect-timeout %v must not be negative", c.ConnectTimeout)
	}
	kc := c.KernelConfig()
	return kc.Validate()
}

// KernelConfig returns the kernel configuration described by c.
func (c *Config) KernelConfig() kernel.Config {
	return kernel.Config{
		PipeSize: c.PipeSize,
		MaxPort:  socket.Port(c.MaxPort),
		MaxFDs:   c.MaxFDs,
		MaxFiles: c.MaxFiles,
		MaxProcs: c.MaxProcs,
	}
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config.ConfigFile: %q", c.ConfigFile)
	log.Infof("Config.Debug: %t", c.Debug)
	log.Infof("Config.LogFormat: %s", c.LogFormat)
	log.Infof("Config.PipeSize: %d", c.PipeSize)
	log.Infof("Config.MaxPort: %d", c.MaxPort)
	log.Infof("Config.MaxFDs: %d, MaxFiles: %d, MaxProcs: %d", c.MaxFDs, c.MaxFiles, c.MaxProcs)
	log.Infof("Config.ConnectTimeout: %v", c.ConnectTimeout)
}
