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

	"github.com/zoobzio/metricz"

	"github.com/specter-sim/specter/internal/concurrent"
	"github.com/specter-sim/specter/models"
)

// ThreadPerHost binds each host to its own worker thread for the life of
// the scheduler. The thread count equals the host count; hosts never move
// between threads, trading load balance for locality and determinism.
type ThreadPerHost struct {
	pool *concurrent.Pool

	// slots[i] is thread i's host cell. Populated between the initial
	// hand-off and the final collection; taken only while a task runs on
	// that thread, then restored. Each cell is touched only by its owning
	// worker thread.
	slots []*models.Host
}

// handoffCell carries a host into or out of a worker thread under a lock;
// used only during initial distribution and final collection.
type handoffCell struct {
	mu   sync.Mutex
	host *models.Host
}

func (c *handoffCell) put(h *models.Host) {
	c.mu.Lock()
	c.host = h
	c.mu.Unlock()
}

func (c *handoffCell) take() *models.Host {
	c.mu.Lock()
	h := c.host
	c.host = nil
	c.mu.Unlock()
	return h
}

// NewThreadPerHost spawns one worker thread per host, pins threads to
// cpuIDs, and moves each host into its thread's slot.
func NewThreadPerHost(name string, cpuIDs []int, hosts []*models.Host, registry *metricz.Registry) *ThreadPerHost {
	if registry == nil {
		registry = metricz.New()
	}
	s := &ThreadPerHost{
		slots: make([]*models.Host, len(hosts)),
	}
	s.pool = concurrent.NewPool(name, cpuIDs, len(hosts), registerHooks(), registry)

	handoff := make([]*handoffCell, len(hosts))
	for i, h := range hosts {
		handoff[i] = &handoffCell{host: h}
	}
	// each thread pulls its assigned host into its slot; with an empty
	// host set the pool still has one (idle) worker
	s.pool.Scope(func(r *concurrent.TaskRunner) {
		r.Run(func(ctx concurrent.TaskContext) {
			if ctx.ThreadIdx < len(handoff) {
				s.slots[ctx.ThreadIdx] = handoff[ctx.ThreadIdx].take()
			}
		})
	})
	return s
}

// Parallelism implements Scheduler.
func (s *ThreadPerHost) Parallelism() int {
	return s.pool.NumProcessors()
}

// Scope implements Scheduler.
func (s *ThreadPerHost) Scope(f func(*SchedulerScope)) {
	s.pool.Scope(func(r *concurrent.TaskRunner) {
		f(&SchedulerScope{runner: r, impl: s})
	})
}

// Join implements Scheduler: collects every host back out of its thread's
// slot, then shuts the pool down.
func (s *ThreadPerHost) Join() {
	collected := make([]*handoffCell, len(s.slots))
	for i := range collected {
		collected[i] = &handoffCell{}
	}
	s.pool.Scope(func(r *concurrent.TaskRunner) {
		r.Run(func(ctx concurrent.TaskContext) {
			if ctx.ThreadIdx >= len(collected) {
				return
			}
			h := s.slots[ctx.ThreadIdx]
			s.slots[ctx.ThreadIdx] = nil
			collected[ctx.ThreadIdx].put(h)
		})
	})
	s.pool.Join()
}

func (s *ThreadPerHost) parallelism() int { return s.pool.NumProcessors() }

func (s *ThreadPerHost) run(r *concurrent.TaskRunner, f func(int)) {
	r.Run(func(ctx concurrent.TaskContext) {
		f(ctx.ThreadIdx)
	})
}

func (s *ThreadPerHost) runWithHosts(r *concurrent.TaskRunner, f func(int, HostIter)) {
	r.Run(func(ctx concurrent.TaskContext) {
		it := &slotHostIter{pending: s.takeSlot(ctx.ThreadIdx)}
		f(ctx.ThreadIdx, it)
		s.restoreSlot(ctx.ThreadIdx, it.takeBack())
	})
}

func (s *ThreadPerHost) runWithDataIdx(r *concurrent.TaskRunner, f func(int, HostIter, int)) {
	r.Run(func(ctx concurrent.TaskContext) {
		it := &slotHostIter{pending: s.takeSlot(ctx.ThreadIdx)}
		f(ctx.ThreadIdx, it, ctx.ProcessorIdx)
		s.restoreSlot(ctx.ThreadIdx, it.takeBack())
	})
}

func (s *ThreadPerHost) takeSlot(threadIdx int) *models.Host {
	if threadIdx >= len(s.slots) {
		return nil
	}
	h := s.slots[threadIdx]
	s.slots[threadIdx] = nil
	return h
}

func (s *ThreadPerHost) restoreSlot(threadIdx int, h *models.Host) {
	if threadIdx < len(s.slots) {
		s.slots[threadIdx] = h
	}
}

// slotHostIter yields this thread's single host. The host is restored to
// the thread slot after the task whether or not the task iterated.
type slotHostIter struct {
	pending *models.Host // not yet yielded
	current *models.Host // yielded to the task
	done    *models.Host // iteration finished
}

func (it *slotHostIter) Next() *models.Host {
	if it.current != nil {
		markActive(nil)
		it.done = it.current
		it.current = nil
	}
	if it.pending != nil {
		it.current = it.pending
		it.pending = nil
		markActive(it.current)
		return it.current
	}
	return nil
}

func (it *slotHostIter) takeBack() *models.Host {
	if it.current != nil {
		markActive(nil)
	}
	switch {
	case it.current != nil:
		return it.current
	case it.done != nil:
		return it.done
	default:
		return it.pending
	}
}
