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

// Package config defines the simulator's TOML + env configuration.
package config

import (
	"fmt"
	"time"

	"github.com/lindb/common/pkg/ltoml"
)

// Version is set at build time.
var Version = "unknown"

// SchedulerThreadPerCore and SchedulerThreadPerHost select the host
// partitioner variant.
const (
	SchedulerThreadPerCore = "thread-per-core"
	SchedulerThreadPerHost = "thread-per-host"
)

// Simulation is the scheduler/driver configuration.
type Simulation struct {
	Hosts         int            `env:"HOSTS" toml:"hosts"`
	Threads       int            `env:"THREADS" toml:"threads"`
	CPUSet        []int          `env:"CPU_SET" envSeparator:"," toml:"cpu-set"`
	Scheduler     string         `env:"SCHEDULER" toml:"scheduler"`
	Rounds        int            `env:"ROUNDS" toml:"rounds"`
	RoundDuration ltoml.Duration `env:"ROUND_DURATION" toml:"round-duration"`
}

// TOML returns Simulation's toml config string.
func (s *Simulation) TOML() string {
	return fmt.Sprintf(`
## Config for the simulation scheduler
[simulation]
## number of simulated hosts
## Default: %d
## Env: SPECTER_SIMULATION_HOSTS
hosts = %d
## number of worker threads
## Default: %d
## Env: SPECTER_SIMULATION_THREADS
threads = %d
## cpu ids worker threads are pinned to; empty runs unpinned
## Env: SPECTER_SIMULATION_CPU_SET
cpu-set = []
## host partitioner: "thread-per-core" or "thread-per-host"
## Default: %s
## Env: SPECTER_SIMULATION_SCHEDULER
scheduler = "%s"
## number of simulation rounds
## Default: %d
## Env: SPECTER_SIMULATION_ROUNDS
rounds = %d
## simulated time advanced per round
## Default: %s
## Env: SPECTER_SIMULATION_ROUND_DURATION
round-duration = "%s"`,
		s.Hosts, s.Hosts,
		s.Threads, s.Threads,
		s.Scheduler, s.Scheduler,
		s.Rounds, s.Rounds,
		s.RoundDuration.String(), s.RoundDuration.String(),
	)
}

// Logging is the logger configuration.
type Logging struct {
	Level     string `env:"LEVEL" toml:"level"`
	Buffering bool   `env:"BUFFERING" toml:"buffering"`
}

// TOML returns Logging's toml config string.
func (l *Logging) TOML() string {
	return fmt.Sprintf(`
## Config for the logger
[logging]
## lowest level that is recorded (trace/debug/info/warn/error)
## Default: %s
## Env: SPECTER_LOGGING_LEVEL
level = "%s"
## when false, every record asks the writer to flush immediately
## Default: %v
## Env: SPECTER_LOGGING_BUFFERING
buffering = %v`,
		l.Level, l.Level,
		l.Buffering, l.Buffering,
	)
}

// Specter is the root configuration.
type Specter struct {
	Simulation Simulation `envPrefix:"SPECTER_SIMULATION_" toml:"simulation"`
	Logging    Logging    `envPrefix:"SPECTER_LOGGING_" toml:"logging"`
}

// TOML returns the full default config document.
func (s *Specter) TOML() string {
	return s.Simulation.TOML() + "\n" + s.Logging.TOML() + "\n"
}

// NewDefaultSpecter returns the default configuration.
func NewDefaultSpecter() *Specter {
	return &Specter{
		Simulation: Simulation{
			Hosts:         16,
			Threads:       4,
			Scheduler:     SchedulerThreadPerCore,
			Rounds:        10,
			RoundDuration: ltoml.Duration(time.Second),
		},
		Logging: Logging{
			Level:     "info",
			Buffering: true,
		},
	}
}

// NewDefaultSpecterTOML returns the default config rendered as TOML.
func NewDefaultSpecterTOML() string {
	return NewDefaultSpecter().TOML()
}

// LoadAndSetSpecterConfig loads the config file (falling back to
// defaultPath) into cfg.
func LoadAndSetSpecterConfig(path, defaultPath string, cfg *Specter) error {
	*cfg = *NewDefaultSpecter()
	if err := ltoml.LoadConfig(path, defaultPath, cfg); err != nil {
		return fmt.Errorf("decode config file error: %s", err)
	}
	return nil
}
