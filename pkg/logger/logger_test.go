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
	"bytes"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

// syncBuffer is a sink safe for the writer goroutine plus test assertions.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Lines() []string {
	s := b.String()
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func newTestCore(t *testing.T) (*core, *syncBuffer, *clockz.FakeClock) {
	t.Helper()
	sink := &syncBuffer{}
	clock := clockz.NewFakeClock()
	c := newCore(sink, clock, nil)
	c.setLevel(TraceLevel)
	c.setBufferingEnabled(true)
	t.Cleanup(c.stop)
	return c, sink, clock
}

func TestFlushKindPolicy(t *testing.T) {
	cases := []struct {
		name      string
		level     Level
		queued    int
		buffering bool
		want      flushKind
	}{
		{"error is always synchronous", ErrorLevel, 0, true, flushSync},
		{"above hard ceiling is synchronous", InfoLevel, syncFlushQdLinesThreshold + 1, true, flushSync},
		{"above async threshold", InfoLevel, asyncFlushQdLinesThreshold + 1, true, flushAsync},
		{"buffering disabled", TraceLevel, 1, false, flushAsync},
		{"quiet steady state", InfoLevel, 50, true, flushNone},
		{"at async threshold exactly", InfoLevel, asyncFlushQdLinesThreshold, true, flushNone},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flushKindFor(tt.level, tt.queued, tt.buffering))
		})
	}
}

func TestSyncFlushDurability(t *testing.T) {
	c, sink, _ := newTestCore(t)

	for i := 0; i < 10; i++ {
		c.log(InfoLevel, "test", "record %d", []any{i})
	}
	assert.Empty(t, sink.String())

	c.flushSync()
	lines := sink.Lines()
	require.Len(t, lines, 10)
	for i, line := range lines {
		assert.Contains(t, line, "record "+string(rune('0'+i)))
	}
}

func TestErrorLevelFlushesSynchronously(t *testing.T) {
	c, sink, _ := newTestCore(t)

	c.log(ErrorLevel, "test", "boom", nil)
	// a synchronous flush blocks until the drain lands, so the line is
	// already in the sink
	assert.Contains(t, sink.String(), "[ERROR]")
	assert.Contains(t, sink.String(), "boom")
}

func TestBufferingDisabledTriggersAsyncFlush(t *testing.T) {
	c, sink, _ := newTestCore(t)
	c.setBufferingEnabled(false)

	c.log(InfoLevel, "test", "eager line", nil)
	assert.Eventually(t, func() bool {
		return strings.Contains(sink.String(), "eager line")
	}, 2*time.Second, time.Millisecond)
}

func TestLevelFilterDropsRecords(t *testing.T) {
	c, sink, _ := newTestCore(t)
	c.setLevel(WarnLevel)

	c.log(InfoLevel, "test", "dropped", nil)
	c.log(DebugLevel, "test", "dropped too", nil)
	assert.Equal(t, 0, c.queue.Len())

	c.log(WarnLevel, "test", "kept", nil)
	c.flushSync()
	lines := sink.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "kept")
}

func TestDrainExactN(t *testing.T) {
	c, sink, _ := newTestCore(t)

	for i := 0; i < 3; i++ {
		c.queue.Push(Record{Level: InfoLevel, Message: "first batch"})
	}
	n, err := drainRecords(c.queue, c.sink, &c.drainMu)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, sink.Lines(), 3)

	// records arriving after the length sample wait for the next drain
	for i := 0; i < 2; i++ {
		c.queue.Push(Record{Level: InfoLevel, Message: "second batch"})
	}
	n, err = drainRecords(c.queue, c.sink, &c.drainMu)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, sink.Lines(), 5)
}

func TestTimeoutFlush(t *testing.T) {
	c, sink, clock := newTestCore(t)

	c.log(InfoLevel, "test", "patient record", nil)
	assert.Empty(t, sink.String())

	// let the writer park on its deadline before firing it
	time.Sleep(10 * time.Millisecond)
	clock.Advance(minFlushFrequency)
	clock.BlockUntilReady()

	assert.Eventually(t, func() bool {
		return strings.Contains(sink.String(), "patient record")
	}, 2*time.Second, time.Millisecond)
}

func TestDrainForPanic(t *testing.T) {
	c, sink, _ := newTestCore(t)

	const queued = 200
	for i := 0; i < queued; i++ {
		c.log(DebugLevel, "test", "queued %d", []any{i})
	}
	assert.Empty(t, sink.String())

	// the panic path drains on the current thread, not via the writer
	c.drainForPanic()
	assert.Len(t, sink.Lines(), queued)
}

func TestWallClockUsesInitBase(t *testing.T) {
	sink := &syncBuffer{}
	clock := clockz.NewFakeClock()
	c := newCore(sink, clock, nil)
	c.setLevel(TraceLevel)
	c.setBufferingEnabled(true)
	defer c.stop()

	clock.Advance(1500 * time.Millisecond)
	c.log(InfoLevel, "test", "stamped", nil)
	c.flushSync()
	assert.True(t, strings.HasPrefix(sink.String(), "00:00:01.500000 "),
		"got %q", sink.String())
}

func TestEnrichmentAttachesWorkerContext(t *testing.T) {
	c, sink, _ := newTestCore(t)
	c.setEnrichment(Enrichment{
		ThreadID:   func() (int, bool) { return 7, true },
		SimTime:    func() (time.Duration, bool) { return 500 * time.Microsecond, true },
		ActiveHost: func() (string, bool) { return "srv~10.0.0.1", true },
	})

	c.log(InfoLevel, "m", "hi", nil)
	c.flushSync()
	line := sink.String()
	assert.Contains(t, line, "[thread-7]")
	assert.Contains(t, line, "00:00:00.000500000")
	assert.Contains(t, line, "[srv~10.0.0.1]")
	assert.Contains(t, line, "[m]")
}

func TestSenderCachedPerThread(t *testing.T) {
	c, _, _ := newTestCore(t)
	// the cache is keyed by OS thread id; stay on one thread for both calls
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	h1 := c.sender()
	h2 := c.sender()
	assert.Same(t, h1, h2)
}

func TestGlobalInit(t *testing.T) {
	sink := &syncBuffer{}
	require.NoError(t, Init(InfoLevel, sink, clockz.NewFakeClock(), nil))
	assert.ErrorIs(t, Init(InfoLevel, sink, nil, nil), ErrAlreadyInstalled)

	GetLogger("boot").Info("global line")
	Flush()
	line := sink.String()
	assert.Contains(t, line, "global line")
	assert.Contains(t, line, "[boot]")
	// the call site is recorded, narrowed to its basename
	assert.Contains(t, line, "[logger_test.go:")
}
