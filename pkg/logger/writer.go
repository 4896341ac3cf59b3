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
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// minFlushFrequency bounds how long a record can sit in the queue before
// the writer drains it without being asked.
const minFlushFrequency = 10 * time.Second

// command asks the writer to drain the queue. A nil reply makes the flush
// asynchronous; otherwise the writer notifies reply after the drain.
type command struct {
	reply chan<- struct{}
}

// writer drains the record queue to the sink. It owns the receive end of
// the command channel for its entire life; all other state it touches is
// shared only under the drain lock.
type writer struct {
	queue    *recordQueue
	commands <-chan command
	sink     io.Writer
	drainMu  *sync.Mutex
	clock    clockz.Clock
	stats    *statistics
	done     chan struct{}
}

// loop services flush commands, draining on each command and at least every
// minFlushFrequency. A closed command channel is the controlled shutdown
// path: the writer performs a final drain and exits. A failure to write the
// sink is fatal to the writer; stdout loss is unrecoverable.
func (w *writer) loop() {
	defer close(w.done)
	for {
		select {
		case cmd, ok := <-w.commands:
			if !ok {
				w.drain(nil)
				return
			}
			w.drain(cmd.reply)
		case <-w.clock.After(minFlushFrequency):
			w.stats.timeoutFlushes()
			w.drain(nil)
		}
	}
}

func (w *writer) drain(reply chan<- struct{}) {
	n, err := drainRecords(w.queue, w.sink, w.drainMu)
	if err != nil {
		panic(fmt.Sprintf("log writer: draining records: %v", err))
	}
	w.stats.linesWritten(n)
	if reply != nil {
		reply <- struct{}{}
	}
}

// drainRecords writes the records present in the queue when the drain
// begins, and no more. Records arriving during the drain wait for the next
// cycle, which bounds how long a synchronous flush caller can be delayed
// and keeps a fast producer from starving the drain lock.
func drainRecords(q *recordQueue, sink io.Writer, drainMu *sync.Mutex) (int, error) {
	toFlush := q.Len()

	drainMu.Lock()
	defer drainMu.Unlock()

	out := bufio.NewWriter(sink)
	written := 0
	for ; toFlush > 0; toFlush-- {
		rec, ok := q.Pop()
		if !ok {
			// an in-flight push was counted but not yet linked; it will be
			// picked up by the next drain
			break
		}
		buf := bufPool.Get()
		rec.appendTo(buf)
		_, err := out.Write(buf.Bytes())
		buf.Free()
		if err != nil {
			return written, err
		}
		written++
	}
	return written, out.Flush()
}
