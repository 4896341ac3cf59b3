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
	stdatomic "sync/atomic"

	"go.uber.org/atomic"
)

// recordQueue is an unbounded multi-producer single-consumer queue of log
// records (Vyukov intrusive list). Push is wait-free: one atomic swap on the
// tail plus one store to link the node. Pop must only run under the drain
// lock, which serializes the writer thread and the panic-path drain.
//
// Len is advisory: it may trail reality by records that have been swapped
// into the tail but not yet linked.
type recordQueue struct {
	head *queueNode
	tail stdatomic.Pointer[queueNode]
	len  atomic.Int64
}

type queueNode struct {
	next stdatomic.Pointer[queueNode]
	rec  Record
}

func newRecordQueue() *recordQueue {
	q := &recordQueue{}
	stub := &queueNode{}
	q.head = stub
	q.tail.Store(stub)
	return q
}

// Push enqueues a record. Safe to call from any thread.
func (q *recordQueue) Push(rec Record) {
	n := &queueNode{rec: rec}
	prev := q.tail.Swap(n)
	prev.next.Store(n)
	q.len.Inc()
}

// Pop dequeues the oldest record. Single consumer: callers must hold the
// drain lock.
func (q *recordQueue) Pop() (Record, bool) {
	next := q.head.next.Load()
	if next == nil {
		return Record{}, false
	}
	q.head = next
	rec := next.rec
	next.rec = Record{}
	q.len.Dec()
	return rec, true
}

// Len returns the advisory queue length.
func (q *recordQueue) Len() int {
	n := q.len.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
