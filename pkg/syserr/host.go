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

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const maxErrno = 134

var hostTranslations [maxErrno]*Error

// FromHost translates a host errno to the corresponding Error.
//
// Errnos without a registered translation map to a dynamic Error carrying the
// host's message.
func FromHost(err unix.Errno) *Error {
	if int(err) < len(hostTranslations) && hostTranslations[err] != nil {
		return hostTranslations[err]
	}
	return NewDynamic(err.Error(), err)
}

func addHostTranslation(host unix.Errno, trans *Error) {
	if int(host) <= 0 || int(host) >= len(hostTranslations) {
		panic(fmt.Sprintf("invalid errno: %d", host))
	}
	if hostTranslations[host] != nil {
		panic(fmt.Sprintf("duplicate translation for host errno %q (%d)", host.Error(), host))
	}
	hostTranslations[host] = trans
}
