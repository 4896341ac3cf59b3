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
	"fmt"

	"github.com/zoobzio/metricz"
	"go.uber.org/atomic"

	"github.com/specter-sim/specter/internal/concurrent"
	"github.com/specter-sim/specter/internal/worker"
	"github.com/specter-sim/specter/models"
)

// HostSteals counts hosts a thread pulled from another thread's queue.
var HostSteals = metricz.Key("scheduler.host.steals.total")

// ThreadPerCore keeps hosts in per-thread bounded rings. Each thread pulls
// from its own "from" ring first, then steals from the others in circular
// order, and deposits finished hosts into its own "to" ring. After a
// host-running task the ring roles are swapped on entry to the next scope.
type ThreadPerCore struct {
	pool *concurrent.Pool

	from []*hostRing
	to   []*hostRing

	// tripped by RunWithHosts/RunWithData; consumed on the next Scope
	needsSwap bool

	totalHosts int
	// hosts deposited to "to" rings during the current cycle; checked
	// against totalHosts before a swap to catch conservation bugs
	deposited atomic.Int64

	registry *metricz.Registry
}

// NewThreadPerCore distributes hosts round-robin over numThreads worker
// threads pinned to cpuIDs.
func NewThreadPerCore(name string, cpuIDs []int, numThreads int, hosts []*models.Host, registry *metricz.Registry) *ThreadPerCore {
	if numThreads < 1 {
		numThreads = 1
	}
	if registry == nil {
		registry = metricz.New()
	}
	s := &ThreadPerCore{
		totalHosts: len(hosts),
		registry:   registry,
	}
	s.pool = concurrent.NewPool(name, cpuIDs, numThreads, registerHooks(), registry)

	s.from = make([]*hostRing, numThreads)
	s.to = make([]*hostRing, numThreads)
	for i := 0; i < numThreads; i++ {
		s.from[i] = newHostRing(len(hosts))
		s.to[i] = newHostRing(len(hosts))
	}
	for i, h := range hosts {
		s.from[i%numThreads].push(h)
	}
	return s
}

// registerHooks binds each pool worker thread into the worker registry.
func registerHooks() concurrent.ThreadHooks {
	return concurrent.ThreadHooks{
		OnStart: func(ctx concurrent.TaskContext) {
			worker.Register(worker.CurrentTID(), ctx.ThreadIdx)
		},
		OnStop: func(concurrent.TaskContext) {
			worker.Unregister(worker.CurrentTID())
		},
	}
}

// Parallelism implements Scheduler.
func (s *ThreadPerCore) Parallelism() int {
	return s.pool.NumProcessors()
}

// Scope implements Scheduler. If the previous scope ran hosts, the "from"
// and "to" rings are swapped here, restoring the invariant that tasks pull
// from freshly populated rings.
func (s *ThreadPerCore) Scope(f func(*SchedulerScope)) {
	if s.needsSwap {
		if got := s.deposited.Load(); got != int64(s.totalHosts) {
			panic(fmt.Sprintf("scheduler: %d hosts deposited after scope, want %d", got, s.totalHosts))
		}
		s.from, s.to = s.to, s.from
		s.deposited.Store(0)
		s.needsSwap = false
	}
	s.pool.Scope(func(r *concurrent.TaskRunner) {
		f(&SchedulerScope{runner: r, impl: s})
	})
}

// Join implements Scheduler.
func (s *ThreadPerCore) Join() {
	s.pool.Join()
	for _, rings := range [][]*hostRing{s.from, s.to} {
		for _, ring := range rings {
			for h := ring.pop(); h != nil; h = ring.pop() {
				_ = h // hosts hold no OS resources; dropping releases them
			}
		}
	}
}

func (s *ThreadPerCore) parallelism() int { return s.pool.NumProcessors() }

func (s *ThreadPerCore) run(r *concurrent.TaskRunner, f func(int)) {
	r.Run(func(ctx concurrent.TaskContext) {
		f(ctx.ThreadIdx)
	})
}

func (s *ThreadPerCore) runWithHosts(r *concurrent.TaskRunner, f func(int, HostIter)) {
	r.Run(func(ctx concurrent.TaskContext) {
		it := s.newIter(ctx.ThreadIdx)
		f(ctx.ThreadIdx, it)
		it.finish()
	})
	s.needsSwap = true
}

func (s *ThreadPerCore) runWithDataIdx(r *concurrent.TaskRunner, f func(int, HostIter, int)) {
	r.Run(func(ctx concurrent.TaskContext) {
		it := s.newIter(ctx.ThreadIdx)
		f(ctx.ThreadIdx, it, ctx.ProcessorIdx)
		it.finish()
	})
	s.needsSwap = true
}

func (s *ThreadPerCore) newIter(threadIdx int) *coreHostIter {
	return &coreHostIter{
		sched:     s,
		threadIdx: threadIdx,
		to:        s.to[threadIdx],
	}
}

// coreHostIter pulls hosts from this thread's "from" ring, then from
// subsequent rings in circular order for work stealing. Atomic ring
// dequeues plus the thread-local cursor guarantee that no host is held by
// two workers at once.
type coreHostIter struct {
	sched     *ThreadPerCore
	threadIdx int
	// ring offset of the cursor; kept so iteration resumes where it
	// left off
	offset  int
	current *models.Host
	to      *hostRing
}

// Next deposits the current host into this thread's "to" ring, then
// advances across the "from" rings until one yields a host or all are
// exhausted.
func (it *coreHostIter) Next() *models.Host {
	it.returnCurrent()

	n := len(it.sched.from)
	for it.offset < n {
		ring := it.sched.from[(it.threadIdx+it.offset)%n]
		if h := ring.pop(); h != nil {
			if it.offset > 0 {
				it.sched.registry.Counter(HostSteals).Inc()
			}
			it.current = h
			markActive(h)
			return h
		}
		it.offset++
	}
	return nil
}

func (it *coreHostIter) returnCurrent() {
	if it.current == nil {
		return
	}
	markActive(nil)
	it.to.push(it.current)
	it.current = nil
	it.sched.deposited.Inc()
}

// finish returns any in-flight host and verifies the task drained the
// iterator; partial iteration is a programming error.
func (it *coreHostIter) finish() {
	it.returnCurrent()
	if it.Next() != nil {
		panic("scheduler: task finished without draining its host iterator")
	}
}
