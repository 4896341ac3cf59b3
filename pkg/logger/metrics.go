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
	"github.com/zoobzio/metricz"

	"go.uber.org/atomic"
)

// Metric keys exposed on the logger's registry.
var (
	LinesWritten       = metricz.Key("logger.lines.written")
	QueueDepth         = metricz.Key("logger.queue.depth")
	SyncFlushTotal     = metricz.Key("logger.flush.sync.total")
	AsyncFlushTotal    = metricz.Key("logger.flush.async.total")
	TimeoutFlushTotal  = metricz.Key("logger.flush.timeout.total")
	RecordsProduced    = metricz.Key("logger.records.produced.total")
	RecordsPanicDrains = metricz.Key("logger.panic.drains.total")
)

type statistics struct {
	registry *metricz.Registry
	lines    atomic.Int64
}

func newStatistics(registry *metricz.Registry) *statistics {
	if registry == nil {
		registry = metricz.New()
	}
	return &statistics{registry: registry}
}

func (s *statistics) recordProduced(queueDepth int) {
	s.registry.Counter(RecordsProduced).Inc()
	s.registry.Gauge(QueueDepth).Set(float64(queueDepth))
}

func (s *statistics) linesWritten(n int) {
	total := s.lines.Add(int64(n))
	s.registry.Gauge(LinesWritten).Set(float64(total))
}

func (s *statistics) syncFlushes()    { s.registry.Counter(SyncFlushTotal).Inc() }
func (s *statistics) asyncFlushes()   { s.registry.Counter(AsyncFlushTotal).Inc() }
func (s *statistics) timeoutFlushes() { s.registry.Counter(TimeoutFlushTotal).Inc() }
func (s *statistics) panicDrains()    { s.registry.Counter(RecordsPanicDrains).Inc() }
