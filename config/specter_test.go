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

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lindb/common/pkg/ltoml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultSpecter(t *testing.T) {
	cfg := NewDefaultSpecter()
	assert.Equal(t, 16, cfg.Simulation.Hosts)
	assert.Equal(t, 4, cfg.Simulation.Threads)
	assert.Equal(t, SchedulerThreadPerCore, cfg.Simulation.Scheduler)
	assert.Equal(t, ltoml.Duration(time.Second), cfg.Simulation.RoundDuration)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Buffering)
}

func TestDefaultTOMLDocument(t *testing.T) {
	doc := NewDefaultSpecterTOML()
	assert.Contains(t, doc, "[simulation]")
	assert.Contains(t, doc, "[logging]")
	assert.Contains(t, doc, `scheduler = "thread-per-core"`)
	assert.Contains(t, doc, `round-duration = "1s"`)
}

func TestLoadAndSetSpecterConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specter.toml")
	require.NoError(t, ltoml.WriteConfig(path, NewDefaultSpecterTOML()))

	cfg := Specter{}
	require.NoError(t, LoadAndSetSpecterConfig(path, path, &cfg))
	def := NewDefaultSpecter()
	assert.Equal(t, def.Simulation.Hosts, cfg.Simulation.Hosts)
	assert.Equal(t, def.Simulation.Threads, cfg.Simulation.Threads)
	assert.Equal(t, def.Simulation.Scheduler, cfg.Simulation.Scheduler)
	assert.Equal(t, def.Simulation.RoundDuration, cfg.Simulation.RoundDuration)
	assert.Empty(t, cfg.Simulation.CPUSet)
	assert.Equal(t, def.Logging, cfg.Logging)
}
