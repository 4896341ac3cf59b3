// Licensed to Specter under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Specter licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package worker

import "golang.org/x/sys/unix"

// CurrentTID returns the OS thread id of the calling thread. Only stable as
// a lookup key while the caller is locked to its OS thread.
func CurrentTID() int {
	return unix.Gettid()
}

// Current returns the Worker registered for the calling OS thread, if any.
func Current() (*Worker, bool) {
	return Get(CurrentTID())
}
