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

package syserr

import "golang.org/x/sys/unix"

// Errors returned by the socket layer.
var (
	ErrInvalidEndpointState = NewDynamic("endpoint is in invalid state", unix.EINVAL)
	ErrPortInUse            = New("port is in use", unix.EADDRINUSE)
	ErrNotConnected         = New("endpoint not connected", unix.ENOTCONN)
	ErrAlreadyConnected     = New("endpoint is already connected", unix.EISCONN)
	ErrConnectionRefused    = New("connection was refused", unix.ECONNREFUSED)
	ErrConnectionAborted    = New("connection aborted", unix.ECONNABORTED)
	ErrTimedOut             = New("connection timed out", unix.ETIMEDOUT)
	ErrNotASocket           = New("socket operation on non-socket", unix.ENOTSOCK)
)
