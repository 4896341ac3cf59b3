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

import (
	"net/netip"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specter-sim/specter/models"
)

func TestRegistry(t *testing.T) {
	w := Register(101, 3)
	defer Unregister(101)

	got, ok := Get(101)
	require.True(t, ok)
	assert.Same(t, w, got)
	assert.Equal(t, 3, got.ThreadID())

	_, ok = Get(102)
	assert.False(t, ok)

	Unregister(101)
	_, ok = Get(101)
	assert.False(t, ok)
}

func TestActiveHost(t *testing.T) {
	w := Register(103, 0)
	defer Unregister(103)

	_, ok := w.ActiveHostIdentity()
	assert.False(t, ok)

	h := models.NewHost(1, "srv", netip.AddrFrom4([4]byte{10, 0, 0, 1}))
	w.SetActiveHost(h)
	id, ok := w.ActiveHostIdentity()
	require.True(t, ok)
	assert.Equal(t, "srv~10.0.0.1", id)

	w.SetActiveHost(nil)
	_, ok = w.ActiveHostIdentity()
	assert.False(t, ok)
}

func TestSimTime(t *testing.T) {
	w := Register(104, 0)
	defer Unregister(104)

	_, ok := w.SimTime()
	assert.False(t, ok)

	w.SetSimTime(42 * time.Second)
	d, ok := w.SimTime()
	require.True(t, ok)
	assert.Equal(t, 42*time.Second, d)

	w.ClearSimTime()
	_, ok = w.SimTime()
	assert.False(t, ok)
}

func TestCurrentUsesOSThreadID(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid := CurrentTID()
	w := Register(tid, 7)
	defer Unregister(tid)

	got, ok := Current()
	require.True(t, ok)
	assert.Same(t, w, got)
}
