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

// Package fs provides file control blocks: reference counted handles to the
// stream objects (pipe ends and sockets) that processes refer to through
// file descriptors.
//
// All methods require the kernel lock.
package fs

import (
	"fmt"

	"tinyos.dev/tinyos/pkg/log"
	"tinyos.dev/tinyos/pkg/metric"
	"tinyos.dev/tinyos/pkg/syserr"
)

var filesOpen = metric.MustCreateNewUint64Gauge("/fs/files_open", "Number of file control blocks in use.")

// FileOperations are operations on a stream object.
type FileOperations interface {
	// Read reads into dst and returns the number of bytes read. A return of
	// (0, nil) means end of stream.
	Read(dst []byte) (int, error)

	// Write writes src and returns the number of bytes written.
	Write(src []byte) (int, error)

	// Close is called when the last reference to the File is dropped.
	Close() error
}

// File is a file control block.
type File struct {
	table *Table

	// id identifies the File in logs.
	id uint64

	// refs is the number of descriptors (across all processes) referring to
	// this File. The File is released when it drops to zero.
	refs int64

	// FileOperations is the stream object behind this File. It is nil
	// between Reserve and Bind.
	FileOperations FileOperations
}

// String implements fmt.Stringer.
func (f *File) String() string {
	return fmt.Sprintf("file %d (refs=%d, ops=%T)", f.id, f.refs, f.FileOperations)
}

// Bind sets the stream object of a freshly reserved File.
func (f *File) Bind(ops FileOperations) {
	f.FileOperations = ops
}

// ReadRefs returns the current reference count.
func (f *File) ReadRefs() int64 {
	return f.refs
}

// IncRef takes a reference on f.
func (f *File) IncRef() {
	if f.refs <= 0 {
		panic(fmt.Sprintf("IncRef on released %v", f))
	}
	f.refs++
}

// DecRef drops a reference on f. Dropping the last reference closes the
// stream object and returns the control block to its table; the error of
// that close is returned.
func (f *File) DecRef() error {
	if f.refs <= 0 {
		panic(fmt.Sprintf("DecRef on released %v", f))
	}
	f.refs--
	if f.refs > 0 {
		return nil
	}
	var err error
	if f.FileOperations != nil {
		err = f.FileOperations.Close()
		if err != nil {
			log.Debugf("Closing %v: %v", f, err)
		}
	}
	f.FileOperations = nil
	f.table.release()
	return err
}

// Read reads from the stream object.
func (f *File) Read(dst []byte) (int, error) {
	if f.FileOperations == nil {
		return 0, syserr.ErrBadFD
	}
	return f.FileOperations.Read(dst)
}

// Write writes to the stream object.
func (f *File) Write(src []byte) (int, error) {
	if f.FileOperations == nil {
		return 0, syserr.ErrBadFD
	}
	return f.FileOperations.Write(src)
}
