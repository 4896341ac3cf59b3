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

// Package scheduler partitions simulated hosts across the worker threads
// of a bounded pool. Two interchangeable variants exist: thread-per-host
// binds each host permanently to one thread for cache locality and
// deterministic scheduling; thread-per-core keeps hosts in per-thread
// queues and lets idle threads steal from busier ones.
package scheduler

import (
	"fmt"

	"github.com/specter-sim/specter/internal/concurrent"
	"github.com/specter-sim/specter/internal/worker"
	"github.com/specter-sim/specter/models"
)

// HostIter iterates the hosts assigned to the calling worker thread. At
// most one host is in flight at a time: calling Next returns the previous
// host to the scheduler before yielding the next one. The caller may
// mutate the yielded host until the next call.
type HostIter interface {
	Next() *models.Host
}

// Scheduler is the facade shared by both partitioner variants.
type Scheduler interface {
	// Parallelism returns the number of logical processors P.
	Parallelism() int
	// Scope brackets one task dispatch. The calling thread blocks at the
	// end of the scope until the task has completed on every worker.
	Scope(f func(*SchedulerScope))
	// Join shuts the scheduler down, blocking until all worker threads
	// have terminated. Remaining hosts are collected and released.
	Join()
}

// scopeImpl is the variant-specific half of a SchedulerScope.
type scopeImpl interface {
	parallelism() int
	run(r *concurrent.TaskRunner, f func(threadIdx int))
	runWithHosts(r *concurrent.TaskRunner, f func(threadIdx int, iter HostIter))
	runWithDataIdx(r *concurrent.TaskRunner, f func(threadIdx int, iter HostIter, processorIdx int))
}

// SchedulerScope dispatches the scope's single task. Valid only inside the
// Scope call that produced it.
type SchedulerScope struct {
	runner *concurrent.TaskRunner
	impl   scopeImpl
}

// Run fans a side-effect closure out to every thread. No host access.
func (s *SchedulerScope) Run(f func(threadIdx int)) {
	s.impl.run(s.runner, f)
}

// RunWithHosts runs f on every thread with an iterator over that thread's
// hosts. Under ThreadPerCore the iterator must be drained: f must call
// Next until it returns nil, or the scope panics at the end of the task.
// ThreadPerHost does not check this; it restores the thread's host to its
// slot whether or not f iterated.
func (s *SchedulerScope) RunWithHosts(f func(threadIdx int, iter HostIter)) {
	s.impl.runWithHosts(s.runner, f)
}

// RunWithData is RunWithHosts plus a per-processor data element. data must
// hold at least Parallelism elements and be fully initialized before the
// call; no two workers touch the same index, so interior mutability on an
// element needs no further synchronization.
func RunWithData[T any](s *SchedulerScope, data []T, f func(threadIdx int, iter HostIter, elem *T)) {
	if len(data) < s.impl.parallelism() {
		panic(fmt.Sprintf("scheduler: data length %d below parallelism %d",
			len(data), s.impl.parallelism()))
	}
	s.impl.runWithDataIdx(s.runner, func(threadIdx int, iter HostIter, processorIdx int) {
		f(threadIdx, iter, &data[processorIdx])
	})
}

// markActive publishes h as the calling worker thread's active host, so
// log records produced while the task runs it carry its identity and
// simulated clock. A nil h clears the marking.
func markActive(h *models.Host) {
	w, ok := worker.Current()
	if !ok {
		return
	}
	w.SetActiveHost(h)
	if h != nil {
		w.SetSimTime(h.SimTime())
	}
}
