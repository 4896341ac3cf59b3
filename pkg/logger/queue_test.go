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

package logger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordQueueFIFO(t *testing.T) {
	q := newRecordQueue()
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())

	for i := 0; i < 10; i++ {
		q.Push(Record{Message: fmt.Sprintf("msg-%d", i)})
	}
	assert.Equal(t, 10, q.Len())

	for i := 0; i < 10; i++ {
		rec, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), rec.Message)
	}
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

// per-producer order is preserved even with concurrent pushers
func TestRecordQueuePerProducerOrder(t *testing.T) {
	const producers = 8
	const perProducer = 1000

	q := newRecordQueue()
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Record{ThreadID: p, Line: i, HasThreadID: true})
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())

	lastSeen := map[int]int{}
	count := 0
	for {
		rec, ok := q.Pop()
		if !ok {
			break
		}
		count++
		if prev, seen := lastSeen[rec.ThreadID]; seen {
			assert.Greater(t, rec.Line, prev,
				"producer %d out of order", rec.ThreadID)
		}
		lastSeen[rec.ThreadID] = rec.Line
	}
	assert.Equal(t, producers*perProducer, count)
}
