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

package syscalls

import (
	"tinyos.dev/tinyos/pkg/sentry/kernel"
)

// Read reads up to len(dst) bytes from fd. It returns (0, nil) at end of
// stream.
func Read(t *kernel.Task, fd kernel.FD, dst []byte) (int, error) {
	s := t.Kernel().Scheduler()
	s.Lock()
	defer s.Unlock()

	file, err := getFile(t, fd)
	if err != nil {
		return 0, err
	}
	if len(dst) == 0 {
		return 0, nil
	}
	return file.Read(dst)
}

// Write writes src to fd. It returns the number of bytes written, which is
// short only if the other end went away during the write.
func Write(t *kernel.Task, fd kernel.FD, src []byte) (int, error) {
	s := t.Kernel().Scheduler()
	s.Lock()
	defer s.Unlock()

	file, err := getFile(t, fd)
	if err != nil {
		return 0, err
	}
	if len(src) == 0 {
		return 0, nil
	}
	return file.Write(src)
}

// Close releases fd. The stream object behind it is closed when no
// descriptor in any process refers to it anymore.
func Close(t *kernel.Task, fd kernel.FD) error {
	s := t.Kernel().Scheduler()
	s.Lock()
	defer s.Unlock()

	return t.Process().FDTable().Remove(fd)
}
