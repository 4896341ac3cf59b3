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

package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specter-sim/specter/models"
)

func TestThreadPerHostBindsOneHostPerThread(t *testing.T) {
	hosts := makeHosts(3)
	s := NewThreadPerHost("test", nil, hosts, nil)
	defer s.Join()

	collect := func() map[int]models.HostID {
		var mu sync.Mutex
		bound := map[int]models.HostID{}
		s.Scope(func(sc *SchedulerScope) {
			sc.RunWithHosts(func(threadIdx int, iter HostIter) {
				for h := iter.Next(); h != nil; h = iter.Next() {
					mu.Lock()
					bound[threadIdx] = h.ID()
					mu.Unlock()
				}
			})
		})
		return bound
	}

	first := collect()
	require.Len(t, first, 3)
	assert.Equal(t, models.HostID(0), first[0])
	assert.Equal(t, models.HostID(1), first[1])
	assert.Equal(t, models.HostID(2), first[2])

	// hosts never move between threads
	assert.Equal(t, first, collect())
}

func TestThreadPerHostHostSurvivesNonIteratingTask(t *testing.T) {
	hosts := makeHosts(2)
	s := NewThreadPerHost("test", nil, hosts, nil)
	defer s.Join()

	// a task that ignores its iterator must not lose the host
	s.Scope(func(sc *SchedulerScope) {
		sc.RunWithHosts(func(int, HostIter) {})
	})

	var mu sync.Mutex
	seen := 0
	s.Scope(func(sc *SchedulerScope) {
		sc.RunWithHosts(func(_ int, iter HostIter) {
			for h := iter.Next(); h != nil; h = iter.Next() {
				mu.Lock()
				seen++
				mu.Unlock()
			}
		})
	})
	assert.Equal(t, 2, seen)
}

func TestThreadPerHostMutationSticks(t *testing.T) {
	hosts := makeHosts(2)
	s := NewThreadPerHost("test", nil, hosts, nil)

	for round := 0; round < 3; round++ {
		s.Scope(func(sc *SchedulerScope) {
			sc.RunWithHosts(func(_ int, iter HostIter) {
				for h := iter.Next(); h != nil; h = iter.Next() {
					h.CountEvent()
				}
			})
		})
	}
	s.Join()

	for _, h := range hosts {
		assert.Equal(t, uint64(3), h.EventCount())
	}
}

func TestThreadPerHostRunSideEffect(t *testing.T) {
	s := NewThreadPerHost("test", nil, makeHosts(4), nil)
	defer s.Join()

	var mu sync.Mutex
	ran := map[int]bool{}
	s.Scope(func(sc *SchedulerScope) {
		sc.Run(func(threadIdx int) {
			mu.Lock()
			ran[threadIdx] = true
			mu.Unlock()
		})
	})
	assert.Len(t, ran, 4)
}

func TestThreadPerHostRunWithData(t *testing.T) {
	hosts := makeHosts(3)
	s := NewThreadPerHost("test", nil, hosts, nil)
	defer s.Join()

	data := make([]int, s.Parallelism())
	s.Scope(func(sc *SchedulerScope) {
		RunWithData(sc, data, func(_ int, iter HostIter, elem *int) {
			for h := iter.Next(); h != nil; h = iter.Next() {
				*elem++
			}
		})
	})
	total := 0
	for _, n := range data {
		total += n
	}
	assert.Equal(t, 3, total)
}

func TestThreadPerHostEmptyHostSet(t *testing.T) {
	s := NewThreadPerHost("test", nil, nil, nil)
	defer s.Join()

	s.Scope(func(sc *SchedulerScope) {
		sc.RunWithHosts(func(_ int, iter HostIter) {
			assert.Nil(t, iter.Next())
		})
	})
}
