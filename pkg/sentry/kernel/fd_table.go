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

package kernel

import (
	"bytes"
	"fmt"

	"tinyos.dev/tinyos/pkg/sentry/fs"
	"tinyos.dev/tinyos/pkg/syserr"
)

// FD is a file descriptor.
type FD int32

// NoFile is the descriptor returned on failure.
const NoFile FD = -1

// FDTable maps the descriptors of a process to files.
//
// All methods require the kernel lock.
type FDTable struct {
	// files is indexed by FD; a nil entry is a free slot.
	files []*fs.File
}

// NewFDTable returns a table with size free slots.
func NewFDTable(size int) *FDTable {
	return &FDTable{files: make([]*fs.File, size)}
}

// Size returns the number of descriptor slots.
func (f *FDTable) Size() int {
	return len(f.files)
}

// String is a stringer for FDTable.
func (f *FDTable) String() string {
	var b bytes.Buffer
	for fd, file := range f.files {
		if file != nil {
			fmt.Fprintf(&b, "\tfd:%d => %v\n", fd, file)
		}
	}
	return b.String()
}

// Reserve allocates n descriptors, the lowest free ones, each referring to a
// newly reserved file of table with no stream object. Either all n are
// allocated or none is.
func (f *FDTable) Reserve(table *fs.Table, n int) ([]FD, []*fs.File, error) {
	fds := make([]FD, 0, n)
	for fd := range f.files {
		if len(fds) == n {
			break
		}
		if f.files[fd] == nil {
			fds = append(fds, FD(fd))
		}
	}
	if len(fds) < n {
		return nil, nil, syserr.ErrTooManyOpenFiles
	}
	files, err := table.Reserve(n)
	if err != nil {
		return nil, nil, err
	}
	for i, fd := range fds {
		f.files[fd] = files[i]
	}
	return fds, files, nil
}

// Unreserve undoes Reserve for files that were never bound to a stream
// object. Descriptors no longer referring to their reserved file are left
// alone.
func (f *FDTable) Unreserve(table *fs.Table, fds []FD, files []*fs.File) {
	var unreserved []*fs.File
	for i, fd := range fds {
		if f.files[fd] == files[i] {
			f.files[fd] = nil
			unreserved = append(unreserved, files[i])
		}
	}
	table.Unreserve(unreserved)
}

// Get returns the file for fd.
func (f *FDTable) Get(fd FD) (*fs.File, error) {
	if fd < 0 || int(fd) >= len(f.files) || f.files[fd] == nil {
		return nil, syserr.ErrBadFD
	}
	return f.files[fd], nil
}

// Remove frees fd and drops its reference on the file. The error of closing
// the file's stream object, if that was the last reference, is returned.
func (f *FDTable) Remove(fd FD) error {
	file, err := f.Get(fd)
	if err != nil {
		return err
	}
	f.files[fd] = nil
	return file.DecRef()
}

// Fork returns a table referring to the same files as f.
func (f *FDTable) Fork() *FDTable {
	clone := NewFDTable(len(f.files))
	for fd, file := range f.files {
		if file != nil && file.FileOperations != nil {
			file.IncRef()
			clone.files[fd] = file
		}
	}
	return clone
}

// CloseAll frees every descriptor.
func (f *FDTable) CloseAll() {
	for fd, file := range f.files {
		if file != nil {
			f.files[fd] = nil
			file.DecRef()
		}
	}
}
