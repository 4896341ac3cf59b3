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
	"strings"
	"time"

	"go.uber.org/zap/buffer"

	"github.com/specter-sim/specter/pkg/timeutil"
)

// Record is one log entry. It is fully constructed on the producing thread
// (the message is formatted eagerly), moved into the record queue, and
// consumed exactly once by the drain that renders it.
type Record struct {
	Level   Level
	File    string // path as captured; narrowed to its basename at render time
	Line    int    // 0 when unknown
	Module  string
	Message string

	// wall-clock time elapsed since logger init
	WallTime time.Duration

	SimTime     time.Duration
	HasSimTime  bool
	ThreadID    int
	HasThreadID bool
	HostName    string // empty when no host is active
}

// bufPool supplies render buffers for drains.
var bufPool = buffer.NewPool()

// appendTo renders the record in the stable line format:
//
//	HH:MM:SS.uuuuuu [thread-<id>|n/a] HH:MM:SS.nnnnnnnnn|n/a [LEVEL] [host|n/a] [file|n/a:line|n/a] [module|n/a] message\n
//
// The wall-clock timestamp carries microseconds, the simulated-time
// timestamp nanoseconds. Log consumers grep this format; do not change it.
func (r *Record) appendTo(buf *buffer.Buffer) {
	wall := timeutil.TimePartsFromNanos(uint64(r.WallTime.Nanoseconds()))
	fmt.Fprintf(buf, "%02d:%02d:%02d.%06d", wall.Hours, wall.Mins, wall.Secs, wall.Nanos/1000)

	if r.HasThreadID {
		fmt.Fprintf(buf, " [thread-%d]", r.ThreadID)
	} else {
		buf.AppendString(" [n/a]")
	}

	if r.HasSimTime {
		sim := timeutil.TimePartsFromNanos(uint64(r.SimTime.Nanoseconds()))
		fmt.Fprintf(buf, " %02d:%02d:%02d.%09d", sim.Hours, sim.Mins, sim.Secs, sim.Nanos)
	} else {
		buf.AppendString(" n/a")
	}

	buf.AppendString(" [")
	buf.AppendString(r.Level.String())
	buf.AppendString("] [")
	if r.HostName != "" {
		buf.AppendString(r.HostName)
	} else {
		buf.AppendString("n/a")
	}
	buf.AppendString("] [")
	if r.File != "" {
		buf.AppendString(fileBasename(r.File))
	} else {
		buf.AppendString("n/a")
	}
	buf.AppendString(":")
	if r.Line > 0 {
		buf.AppendInt(int64(r.Line))
	} else {
		buf.AppendString("n/a")
	}
	buf.AppendString("] [")
	if r.Module != "" {
		buf.AppendString(r.Module)
	} else {
		buf.AppendString("n/a")
	}
	buf.AppendString("] ")
	buf.AppendString(r.Message)
	buf.AppendString("\n")
}

// fileBasename returns the substring after the last '/', or the whole path
// if it contains no slash.
func fileBasename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
