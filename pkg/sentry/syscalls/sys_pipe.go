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
	"tinyos.dev/tinyos/pkg/sentry/kernel/pipe"
)

// Pipe creates a pipe and returns its read and write descriptors.
func Pipe(t *kernel.Task) (kernel.FD, kernel.FD, error) {
	k := t.Kernel()
	s := k.Scheduler()
	s.Lock()
	defer s.Unlock()

	fdt := t.Process().FDTable()
	fds, files, err := fdt.Reserve(k.Files(), 2)
	if err != nil {
		return kernel.NoFile, kernel.NoFile, err
	}
	r, w := pipe.New(s, k.Config().PipeSize)
	files[0].Bind(r)
	files[1].Bind(w)
	t.Debugf("Created %v as fds %d, %d", r.Pipe(), fds[0], fds[1])
	return fds[0], fds[1], nil
}
