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

// Package simulation drives the round loop: it owns the host population,
// the scheduler, the syscall dispatcher, and the child-pid watcher, and
// advances simulated time one round per scheduler scope.
package simulation

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"

	"github.com/specter-sim/specter/config"
	"github.com/specter-sim/specter/internal/pidwatch"
	"github.com/specter-sim/specter/internal/scheduler"
	"github.com/specter-sim/specter/internal/syscalls"
	"github.com/specter-sim/specter/internal/worker"
	"github.com/specter-sim/specter/models"
	"github.com/specter-sim/specter/pkg/logger"
)

// RoundsCompleted counts finished simulation rounds.
var RoundsCompleted = metricz.Key("simulation.rounds.completed.total")

// roundStats accumulates per-processor work; each element is owned by one
// worker for the duration of a scope.
type roundStats struct {
	hostsRun int
	events   int
}

// Engine wires the simulator core together for one run.
type Engine struct {
	cfg      *config.Specter
	sched    scheduler.Scheduler
	syscall  *syscalls.Handler
	watcher  *pidwatch.Watcher
	hosts    []*models.Host
	byName   map[string]netip.Addr
	clock    clockz.Clock
	registry *metricz.Registry

	log *logger.Logger
}

// NewEngine builds the host population and the configured scheduler
// variant. The logger must be initialized before workers start producing.
func NewEngine(cfg *config.Specter, registry *metricz.Registry, clock clockz.Clock) (*Engine, error) {
	if clock == nil {
		clock = clockz.RealClock
	}
	if registry == nil {
		registry = metricz.New()
	}

	e := &Engine{
		cfg:      cfg,
		clock:    clock,
		registry: registry,
		byName:   map[string]netip.Addr{},
		log:      logger.GetLogger("simulation"),
	}

	e.hosts = make([]*models.Host, cfg.Simulation.Hosts)
	for i := range e.hosts {
		name := fmt.Sprintf("host%d", i)
		ip := netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i + 1)})
		e.hosts[i] = models.NewHost(models.HostID(i), name, ip)
		e.byName[name] = ip
	}

	switch cfg.Simulation.Scheduler {
	case config.SchedulerThreadPerCore:
		e.sched = scheduler.NewThreadPerCore(
			"specter-worker", cfg.Simulation.CPUSet, cfg.Simulation.Threads, e.hosts, registry)
	case config.SchedulerThreadPerHost:
		e.sched = scheduler.NewThreadPerHost(
			"specter-worker", cfg.Simulation.CPUSet, e.hosts, registry)
	default:
		return nil, fmt.Errorf("unknown scheduler variant: %q", cfg.Simulation.Scheduler)
	}

	e.syscall = syscalls.NewHandler(func(name string) (netip.Addr, bool) {
		ip, ok := e.byName[name]
		return ip, ok
	})

	watcher, err := pidwatch.New()
	if err != nil {
		e.sched.Join()
		return nil, err
	}
	e.watcher = watcher

	installEnrichment()
	return e, nil
}

// installEnrichment points the logger at the worker-local accessors.
func installEnrichment() {
	logger.SetEnrichment(logger.Enrichment{
		ThreadID: func() (int, bool) {
			w, ok := worker.Current()
			if !ok {
				return 0, false
			}
			return w.ThreadID(), true
		},
		SimTime: func() (time.Duration, bool) {
			w, ok := worker.Current()
			if !ok {
				return 0, false
			}
			return w.SimTime()
		},
		ActiveHost: func() (string, bool) {
			w, ok := worker.Current()
			if !ok {
				return "", false
			}
			return w.ActiveHostIdentity()
		},
	})
}

// SyscallHandler exposes the dispatcher for the process layer.
func (e *Engine) SyscallHandler() *syscalls.Handler { return e.syscall }

// Watcher exposes the child-pid watcher for the process layer.
func (e *Engine) Watcher() *pidwatch.Watcher { return e.watcher }

// Run executes the configured number of rounds, then joins the scheduler
// and stops the watcher.
func (e *Engine) Run() error {
	defer logger.FlushOnPanic()

	d := time.Duration(e.cfg.Simulation.RoundDuration)
	stats := make([]roundStats, e.sched.Parallelism())

	start := e.clock.Now()
	for round := 0; round < e.cfg.Simulation.Rounds; round++ {
		for i := range stats {
			stats[i] = roundStats{}
		}
		e.sched.Scope(func(s *scheduler.SchedulerScope) {
			scheduler.RunWithData(s, stats, func(threadIdx int, iter scheduler.HostIter, st *roundStats) {
				for h := iter.Next(); h != nil; h = iter.Next() {
					h.AdvanceRound(d)
					h.CountEvent()
					st.hostsRun++
					st.events++
					e.log.Trace("round %d ran on %s", round, h.Name())
				}
			})
		})
		e.registry.Counter(RoundsCompleted).Inc()

		ran, events := 0, 0
		for i := range stats {
			ran += stats[i].hostsRun
			events += stats[i].events
		}
		e.log.Debug("round %d complete: %d hosts, %d events over %d processors",
			round, ran, events, len(stats))
		if ran != len(e.hosts) {
			return fmt.Errorf("simulation: round %d ran %d hosts, want %d", round, ran, len(e.hosts))
		}
	}
	e.log.Info("simulation complete: %d rounds in %s", e.cfg.Simulation.Rounds, e.clock.Since(start))

	e.sched.Join()
	e.watcher.Close()
	logger.Flush()
	return nil
}
