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

// Package concurrent provides the bounded thread pool the scheduler runs
// on: a fixed set of worker threads, each locked to its OS thread and
// optionally pinned to a CPU, executing exactly one task per worker per
// scope.
package concurrent

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/zoobzio/metricz"
	"go.uber.org/atomic"

	"github.com/specter-sim/specter/pkg/logger"
)

// Metric keys exposed on the pool's registry.
var (
	TasksExecuted = metricz.Key("concurrent.tasks.executed.total")
	TaskPanics    = metricz.Key("concurrent.tasks.panics.total")
)

// TaskContext identifies the worker a task invocation runs on.
type TaskContext struct {
	// ThreadIdx is the dense worker index, 0..N-1.
	ThreadIdx int
	// ProcessorIdx is the dense index of this worker's logical processor,
	// 0..P-1 across distinct CPU ids.
	ProcessorIdx int
	// CPUID is the pinned CPU, or -1 when the worker is unpinned.
	CPUID int
}

// TaskFunc runs once on every worker within a scope.
type TaskFunc func(TaskContext)

// ThreadHooks run on each worker thread as it starts and stops, after the
// thread is locked to its OS thread. The scheduler uses them to register
// worker-local state.
type ThreadHooks struct {
	OnStart func(TaskContext)
	OnStop  func(TaskContext)
}

// Pool is a fixed-size pool of worker threads. Workers block on their task
// channels between scopes; there is no spinning while idle.
type Pool struct {
	name          string
	workers       []*poolWorker
	numProcessors int
	hooks         ThreadHooks
	registry      *metricz.Registry
	joined        atomic.Bool
	wg            sync.WaitGroup

	logger *logger.Logger
}

type poolWorker struct {
	ctx   TaskContext
	tasks chan *scopeTask
}

// scopeTask is the per-scope broadcast payload: the task function, the
// collect barrier, and the panic sink.
type scopeTask struct {
	fn     TaskFunc
	wg     *sync.WaitGroup
	panics *panicSet
}

type panicSet struct {
	mu     sync.Mutex
	values []workerPanic
}

type workerPanic struct {
	threadIdx int
	value     any
}

func (s *panicSet) add(threadIdx int, value any) {
	s.mu.Lock()
	s.values = append(s.values, workerPanic{threadIdx: threadIdx, value: value})
	s.mu.Unlock()
}

// NewPool spawns logicalThreads worker threads. When cpuIDs is non-empty,
// worker i pins itself to cpuIDs[i % len(cpuIDs)]; ProcessorIdx is dense
// over the distinct CPU ids in first-appearance order. A pin failure is
// logged and the worker runs unpinned.
func NewPool(name string, cpuIDs []int, logicalThreads int, hooks ThreadHooks, registry *metricz.Registry) *Pool {
	if logicalThreads < 1 {
		logicalThreads = 1
	}
	if registry == nil {
		registry = metricz.New()
	}
	p := &Pool{
		name:     name,
		hooks:    hooks,
		registry: registry,
		logger:   logger.GetLogger("concurrent"),
	}

	processorOf := map[int]int{}
	for _, id := range cpuIDs {
		if _, ok := processorOf[id]; !ok {
			processorOf[id] = len(processorOf)
		}
	}
	if len(cpuIDs) > 0 {
		p.numProcessors = len(processorOf)
	} else {
		p.numProcessors = logicalThreads
	}

	p.workers = make([]*poolWorker, logicalThreads)
	for i := range p.workers {
		ctx := TaskContext{ThreadIdx: i, ProcessorIdx: i, CPUID: -1}
		if len(cpuIDs) > 0 {
			cpu := cpuIDs[i%len(cpuIDs)]
			ctx.CPUID = cpu
			ctx.ProcessorIdx = processorOf[cpu]
		}
		p.workers[i] = &poolWorker{
			ctx:   ctx,
			tasks: make(chan *scopeTask),
		}
	}
	p.wg.Add(len(p.workers))
	for _, w := range p.workers {
		go p.workerLoop(w)
	}
	return p
}

// NumThreads returns the worker thread count.
func (p *Pool) NumThreads() int { return len(p.workers) }

// NumProcessors returns the number of distinct logical processors.
func (p *Pool) NumProcessors() int { return p.numProcessors }

func (p *Pool) workerLoop(w *poolWorker) {
	defer p.wg.Done()

	// the worker owns its OS thread so that CPU affinity and thread-keyed
	// worker state stay valid for its whole life
	runtime.LockOSThread()

	if w.ctx.CPUID >= 0 {
		if err := pinToCPU(w.ctx.CPUID); err != nil {
			p.logger.Warn("pool %s: pinning thread %d to cpu %d failed, running unpinned: %v",
				p.name, w.ctx.ThreadIdx, w.ctx.CPUID, err)
		}
	}

	if p.hooks.OnStart != nil {
		p.hooks.OnStart(w.ctx)
	}
	if p.hooks.OnStop != nil {
		defer p.hooks.OnStop(w.ctx)
	}

	for task := range w.tasks {
		p.runTask(w, task)
	}
}

func (p *Pool) runTask(w *poolWorker, t *scopeTask) {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			// error-level records flush synchronously, so the panic and
			// everything queued before it reach the output before the
			// panic propagates
			p.logger.Error("panic when execute task on thread %d: %v\n%s",
				w.ctx.ThreadIdx, r, logger.Stack())
			p.registry.Counter(TaskPanics).Inc()
			t.panics.add(w.ctx.ThreadIdx, r)
		}
	}()
	p.registry.Counter(TasksExecuted).Inc()
	t.fn(w.ctx)
}

// TaskRunner dispatches the scope's single task. It is only valid inside
// the Scope call that produced it.
type TaskRunner struct {
	pool   *Pool
	ran    bool
	panics *panicSet
}

// Run broadcasts fn to every worker and blocks until the slowest worker
// has finished. It may be called at most once per scope.
func (r *TaskRunner) Run(fn TaskFunc) {
	if r.ran {
		panic("concurrent: Run called more than once in one scope")
	}
	r.ran = true

	var wg sync.WaitGroup
	wg.Add(len(r.pool.workers))
	t := &scopeTask{fn: fn, wg: &wg, panics: &panicSet{}}
	for _, w := range r.pool.workers {
		w.tasks <- t
	}
	wg.Wait()
	r.panics = t.panics
}

// Scope hands f a TaskRunner. It returns once the dispatched task (if any)
// has completed on every worker. Worker panics propagate here, as a panic,
// after the collect barrier.
func (p *Pool) Scope(f func(*TaskRunner)) {
	if p.joined.Load() {
		panic("concurrent: Scope on joined pool")
	}
	r := &TaskRunner{pool: p}
	f(r)
	if r.panics == nil || len(r.panics.values) == 0 {
		return
	}
	if len(r.panics.values) == 1 {
		panic(r.panics.values[0].value)
	}
	panic(fmt.Sprintf("concurrent: %d workers panicked, first (thread %d): %v",
		len(r.panics.values), r.panics.values[0].threadIdx, r.panics.values[0].value))
}

// Join requests shutdown and blocks until all workers terminate. Safe to
// call once; subsequent calls are no-ops.
func (p *Pool) Join() {
	if !p.joined.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		close(w.tasks)
	}
	p.wg.Wait()
}
