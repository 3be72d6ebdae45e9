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

// Package syserr contains kernel-internal errors. Every kernel operation
// reports failure with one of the values declared here; the system call
// boundary translates them to an errno or to the -1 sentinel returned to
// user programs.
package syserr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Error represents an internal error.
type Error struct {
	// message is the human readable form of this Error.
	message string

	// errno is the host errno this Error is translated to.
	errno unix.Errno

	// base is the static Error this one was derived from by Wrap, if any.
	base *Error
}

// New creates a new Error and adds a translation for it.
//
// New must only be called at init.
func New(message string, errno unix.Errno) *Error {
	err := &Error{message: message, errno: errno}
	addHostTranslation(errno, err)
	return err
}

// NewDynamic creates a new error with a dynamic error message and an errno
// translation.
//
// NewDynamic should only be used sparingly and not be used for static error
// messages. Errors with static error messages should be declared with New as
// global variables.
func NewDynamic(message string, errno unix.Errno) *Error {
	return &Error{message: message, errno: errno}
}

// Error implements error.Error.
func (e *Error) Error() string {
	return e.message
}

// String implements fmt.Stringer.String.
func (e *Error) String() string {
	if e == nil {
		return "<nil>"
	}
	return e.message
}

// Errno returns the host errno e translates to.
func (e *Error) Errno() unix.Errno {
	return e.errno
}

// Is implements the interface used by errors.Is. An Error created by Wrap
// matches the Error it was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.base != nil && e.base == t)
}

// Wrap returns a dynamic error that keeps e's errno and prefixes its message
// with context.
func (e *Error) Wrap(format string, v ...any) *Error {
	base := e
	if e.base != nil {
		base = e.base
	}
	return &Error{
		message: fmt.Sprintf(format, v...) + ": " + e.message,
		errno:   e.errno,
		base:    base,
	}
}

// ToErrno translates any error returned by the kernel into an errno. nil
// translates to 0 and errors that are not *Error translate to EIO.
func ToErrno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var se *Error
	if errors.As(err, &se) {
		return se.errno
	}
	return unix.EIO
}

// Sentinel returns the value a tinyos system call returns for err: 0 on
// success and -1 on any failure.
func Sentinel(err error) int {
	if err == nil {
		return 0
	}
	return -1
}

// The following errors are shared by all kernel components.
var (
	ErrInvalidArgument   = New("invalid argument", unix.EINVAL)
	ErrBadFD             = New("bad file number", unix.EBADF)
	ErrTooManyOpenFiles  = New("too many open files", unix.EMFILE)
	ErrFileTableOverflow = New("file table overflow", unix.ENFILE)
	ErrBrokenPipe        = New("broken pipe", unix.EPIPE)
	ErrNoChild           = New("no child processes", unix.ECHILD)
	ErrNoThread          = New("no such thread", unix.ESRCH)
	ErrDeadlock          = New("resource deadlock would occur", unix.EDEADLK)
	ErrThreadDetached    = NewDynamic("thread is detached", unix.EINVAL)
	ErrThreadExited      = NewDynamic("thread has exited", unix.EINVAL)
	ErrNoProcess         = New("process table full", unix.EAGAIN)
)
