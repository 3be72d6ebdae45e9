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

package fs

import (
	"tinyos.dev/tinyos/pkg/syserr"
)

// Table is the system-wide pool of file control blocks.
type Table struct {
	// max is the number of Files that may be in use at once.
	max int

	// used is the number of Files in use.
	used int

	// nextID is the id of the next File to be reserved.
	nextID uint64
}

// NewTable returns a Table holding at most max Files.
func NewTable(max int) *Table {
	return &Table{max: max, nextID: 1}
}

// InUse returns the number of Files in use.
func (t *Table) InUse() int {
	return t.used
}

// Reserve allocates n Files, each holding one reference and no stream
// object. Either all n Files are allocated or none is.
func (t *Table) Reserve(n int) ([]*File, error) {
	if n < 0 {
		return nil, syserr.ErrInvalidArgument
	}
	if t.used+n > t.max {
		return nil, syserr.ErrFileTableOverflow
	}
	files := make([]*File, n)
	for i := range files {
		files[i] = &File{table: t, id: t.nextID, refs: 1}
		t.nextID++
	}
	t.used += n
	filesOpen.IncrementBy(uint64(n))
	return files, nil
}

// Unreserve returns Files obtained from Reserve that were never bound to a
// stream object.
func (t *Table) Unreserve(files []*File) {
	for _, f := range files {
		if f.FileOperations != nil || f.refs != 1 {
			panic("Unreserve of a file in use: " + f.String())
		}
		f.refs = 0
		t.release()
	}
}

func (t *Table) release() {
	t.used--
	filesOpen.Decrement()
}
