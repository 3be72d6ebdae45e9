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

// Package syscalls is the interface from user threads to the kernel.
//
// Every entry point takes the kernel lock, resolves descriptors in the
// calling process and calls into the pipe, socket and file layers. Blocking
// calls do not pin the file they operate on: closing the descriptor from
// another thread wakes them with an error.
package syscalls

import (
	"tinyos.dev/tinyos/pkg/sentry/fs"
	"tinyos.dev/tinyos/pkg/sentry/kernel"
	"tinyos.dev/tinyos/pkg/sentry/socket"
	"tinyos.dev/tinyos/pkg/syserr"
)

// getFile returns the file behind fd. The kernel lock must be held.
func getFile(t *kernel.Task, fd kernel.FD) (*fs.File, error) {
	return t.Process().FDTable().Get(fd)
}

// getSocket returns the socket behind fd. The kernel lock must be held.
func getSocket(t *kernel.Task, fd kernel.FD) (*socket.Socket, error) {
	file, err := getFile(t, fd)
	if err != nil {
		return nil, err
	}
	s, ok := file.FileOperations.(*socket.Socket)
	if !ok {
		return nil, syserr.ErrNotASocket
	}
	return s, nil
}
