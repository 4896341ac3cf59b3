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

// Package logger is the simulator's asynchronous logger. Producing threads
// format records eagerly, push them through a lock-free queue, and a single
// writer goroutine drains them to stdout. Flushes are driven by queue depth,
// record level, an explicit command, or a periodic deadline.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

const (
	// asyncFlushQdLinesThreshold triggers an asynchronous flush when more
	// than this many lines are queued.
	asyncFlushQdLinesThreshold = 100_000

	// syncFlushQdLinesThreshold performs a *synchronous* flush when more
	// than this many lines are queued. If after reaching the async threshold lines
	// still come in faster than they can be flushed, the producer pauses
	// and lets the writer finish rather than letting the queue keep
	// growing.
	syncFlushQdLinesThreshold = 10 * asyncFlushQdLinesThreshold
)

// commandQueueSize bounds the command channel. Asynchronous flush requests
// are coalesced when the channel is full, so the bound never blocks a
// producer; synchronous requests always enqueue.
const commandQueueSize = 128

// ErrAlreadyInstalled is returned by Init when a global logger exists.
var ErrAlreadyInstalled = errors.New("logger: already installed")

// Enrichment supplies worker-local context attached to each record. The
// accessors run on the producing thread.
type Enrichment struct {
	// ThreadID returns the scheduler thread index of the calling thread.
	ThreadID func() (int, bool)
	// SimTime returns the current simulated timestamp, if any.
	SimTime func() (time.Duration, bool)
	// ActiveHost returns the identity ("name~ip") of the host currently
	// executing on the calling thread, if any.
	ActiveHost func() (string, bool)
}

// core owns the record queue, the command channel, and the writer.
type core struct {
	queue *recordQueue

	// master send endpoint; producing threads clone it into the sender
	// cache under commandsMu on their first send
	commandsMu sync.Mutex
	commands   chan command

	// tid -> *sendHandle
	senders sync.Map

	// when false, every record sends a (still asynchronous) flush command
	bufferingEnabled atomic.Bool

	level      atomic.Int32
	enrichment atomic.Value // Enrichment

	clock clockz.Clock
	start time.Time

	drainMu sync.Mutex
	sink    io.Writer

	stats *statistics
	wr    *writer
}

// sendHandle is one producing thread's cached command endpoint. The reply
// channel is reused across that thread's synchronous flushes.
type sendHandle struct {
	commands chan<- command
	reply    chan struct{}
}

func newCore(sink io.Writer, clock clockz.Clock, registry *metricz.Registry) *core {
	c := &core{
		queue:    newRecordQueue(),
		commands: make(chan command, commandQueueSize),
		clock:    clock,
		start:    clock.Now(),
		sink:     sink,
		stats:    newStatistics(registry),
	}
	c.level.Store(int32(InfoLevel))
	c.enrichment.Store(Enrichment{})
	c.wr = &writer{
		queue:    c.queue,
		commands: c.commands,
		sink:     sink,
		drainMu:  &c.drainMu,
		clock:    clock,
		stats:    c.stats,
		done:     make(chan struct{}),
	}
	go c.wr.loop()
	return c
}

// stop closes the command channel and waits for the writer's final drain.
func (c *core) stop() {
	close(c.commands)
	<-c.wr.done
}

func (c *core) minLevel() Level {
	return Level(c.level.Load())
}

func (c *core) setLevel(l Level) {
	c.level.Store(int32(l))
}

func (c *core) setEnrichment(e Enrichment) {
	c.enrichment.Store(e)
}

// log builds a record on the calling thread, enqueues it, and applies the
// flush policy. The caller lookup assumes the fixed call depth of the
// Logger facade methods.
func (c *core) log(level Level, module, format string, args []any) {
	if level < c.minLevel() {
		return
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	rec := Record{
		Level:    level,
		Module:   module,
		Message:  msg,
		WallTime: c.clock.Since(c.start),
	}
	if _, file, line, ok := runtime.Caller(3); ok {
		rec.File = file
		rec.Line = line
	}

	e := c.enrichment.Load().(Enrichment)
	if e.ThreadID != nil {
		if id, ok := e.ThreadID(); ok {
			rec.ThreadID = id
			rec.HasThreadID = true
		}
	}
	if e.SimTime != nil {
		if t, ok := e.SimTime(); ok {
			rec.SimTime = t
			rec.HasSimTime = true
		}
	}
	if e.ActiveHost != nil {
		if h, ok := e.ActiveHost(); ok {
			rec.HostName = h
		}
	}

	c.queue.Push(rec)
	queued := c.queue.Len()
	c.stats.recordProduced(queued)

	switch flushKindFor(level, queued, c.bufferingEnabled.Load()) {
	case flushSync:
		// likely about to crash one way or another, or at the hard queue
		// ceiling; block until the drain lands on the sink
		c.flushSync()
	case flushAsync:
		c.flushAsync()
	}
}

type flushKind int8

const (
	flushNone flushKind = iota
	flushAsync
	flushSync
)

// flushKindFor decides the producer-side flush policy for one record.
func flushKindFor(level Level, queued int, bufferingEnabled bool) flushKind {
	if level == ErrorLevel || queued > syncFlushQdLinesThreshold {
		return flushSync
	}
	if queued > asyncFlushQdLinesThreshold || !bufferingEnabled {
		return flushAsync
	}
	return flushNone
}

// sender returns the calling thread's cached send handle, cloning the
// master endpoint under a short lock on first use. Steady-state sends take
// no lock.
func (c *core) sender() *sendHandle {
	tid := unix.Gettid()
	if v, ok := c.senders.Load(tid); ok {
		return v.(*sendHandle)
	}
	c.commandsMu.Lock()
	h := &sendHandle{
		commands: c.commands,
		reply:    make(chan struct{}, 1),
	}
	c.commandsMu.Unlock()
	c.senders.Store(tid, h)
	return h
}

func (c *core) flushSync() {
	c.stats.syncFlushes()
	h := c.sender()
	h.commands <- command{reply: h.reply}
	<-h.reply
}

func (c *core) flushAsync() {
	c.stats.asyncFlushes()
	h := c.sender()
	select {
	case h.commands <- command{}:
	default:
		// the command queue is full, so a flush is already pending;
		// coalesce rather than block the producer
	}
}

func (c *core) setBufferingEnabled(enabled bool) {
	c.bufferingEnabled.Store(enabled)
}

// drainForPanic flushes queued records on the current thread, not via the
// writer: the writer may itself be panicking and the thread's cached send
// handle may be gone. Errors are swallowed to avoid a recursive panic.
func (c *core) drainForPanic() {
	c.stats.panicDrains()
	_, _ = drainRecords(c.queue, c.sink, &c.drainMu)
}

// ---- global logger ----

var global stdatomic.Pointer[core]

// Init installs the global logger and starts its writer goroutine. It
// returns ErrAlreadyInstalled if called twice; loggers live for the life
// of the process.
func Init(level Level, sink io.Writer, clock clockz.Clock, registry *metricz.Registry) error {
	if sink == nil {
		sink = os.Stdout
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	c := newCore(sink, clock, registry)
	c.setLevel(level)
	if !global.CompareAndSwap(nil, c) {
		c.stop()
		return ErrAlreadyInstalled
	}
	return nil
}

func std() *core {
	return global.Load()
}

// SetLevel adjusts the global level filter.
func SetLevel(l Level) {
	if c := std(); c != nil {
		c.setLevel(l)
	}
}

// SetEnrichment installs the worker-local accessors used to annotate
// records. Call before workers start producing.
func SetEnrichment(e Enrichment) {
	if c := std(); c != nil {
		c.setEnrichment(e)
	}
}

// SetBufferingEnabled toggles record buffering. When disabled, the writer
// is notified to write each record as soon as it's created; the calling
// thread still isn't blocked on the record actually being written.
func SetBufferingEnabled(enabled bool) {
	if c := std(); c != nil {
		c.setBufferingEnabled(enabled)
	}
}

// Flush synchronously drains the queue through the writer.
func Flush() {
	if c := std(); c != nil {
		c.flushSync()
	}
}

// DrainForPanic flushes queued records on the current thread, swallowing
// errors. Call from recover paths before re-panicking so that queued
// records reach the output before the process dies.
func DrainForPanic() {
	if c := std(); c != nil {
		c.drainForPanic()
	}
}

// FlushOnPanic is a deferred helper for goroutine tops: on panic it drains
// the queue on the current thread and then re-panics to the runtime's
// default handler.
func FlushOnPanic() {
	if r := recover(); r != nil {
		DrainForPanic()
		panic(r)
	}
}

// Stack returns the calling goroutine's formatted stack trace, for
// attaching to panic log records.
func Stack() string {
	buf := make([]byte, 16384)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Logger is a named logging facade.
type Logger struct {
	module string
}

// GetLogger returns a logger whose records carry the given module name.
func GetLogger(module string) *Logger {
	return &Logger{module: module}
}

func (l *Logger) Trace(format string, args ...any) { log(TraceLevel, l.module, format, args) }
func (l *Logger) Debug(format string, args ...any) { log(DebugLevel, l.module, format, args) }
func (l *Logger) Info(format string, args ...any)  { log(InfoLevel, l.module, format, args) }
func (l *Logger) Warn(format string, args ...any)  { log(WarnLevel, l.module, format, args) }
func (l *Logger) Error(format string, args ...any) { log(ErrorLevel, l.module, format, args) }

func log(level Level, module, format string, args []any) {
	if c := std(); c != nil {
		c.log(level, module, format, args)
	}
}
