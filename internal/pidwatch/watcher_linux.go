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

// Package pidwatch monitors child processes and runs registered callbacks
// when one exits. Process death is detected as EOF on a pipe whose write
// end the child inherits. A dedicated thread multiplexes pid death and
// command delivery through one epoll instance; all state mutation happens
// on that thread, with callers submitting closures and waiting for
// acknowledgement.
package pidwatch

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/specter-sim/specter/pkg/logger"
)

// WatchHandle identifies one registered callback.
type WatchHandle uint64

// Callback runs on the watcher thread when the watched pid dies.
type Callback func(pid int)

type pidData struct {
	// callbacks to run when the process exits
	callbacks map[WatchHandle]Callback
	// fd that becomes readable (EOF) when the process exits; -1 after it
	// has been seen and closed
	fd int
	// the entry is removed once unregistered and callbacks is empty
	unregistered bool
}

// watcherState is owned exclusively by the watcher thread.
type watcherState struct {
	nextHandle WatchHandle
	pids       map[int]*pidData
	epollFD    int
	cancelled  bool
}

// Watcher is the public handle. Commands are closures executed on the
// watcher thread, ordered by an eventfd wakeup and acknowledged through a
// per-command reply channel.
type Watcher struct {
	commands   chan func(*watcherState)
	notifyFD   int
	threadDone chan struct{}

	logger *logger.Logger
}

// New starts the watcher thread.
func New() (*Watcher, error) {
	notifyFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("pidwatch: eventfd: %w", err)
	}
	w := &Watcher{
		commands:   make(chan func(*watcherState), 16),
		notifyFD:   notifyFD,
		threadDone: make(chan struct{}),
		logger:     logger.GetLogger("pidwatch"),
	}
	go w.threadLoop()
	return w, nil
}

// runCommand executes cmd on the watcher thread and blocks until done. A
// panic raised by cmd is re-raised on the calling thread so it cannot take
// the watcher down.
func (w *Watcher) runCommand(cmd func(*watcherState)) {
	done := make(chan any, 1)
	w.commands <- func(s *watcherState) {
		defer func() { done <- recover() }()
		cmd(s)
	}
	var one [8]byte
	putUint64LE(one[:], 1)
	if _, err := unix.Write(w.notifyFD, one[:]); err != nil && err != unix.EAGAIN {
		panic(fmt.Sprintf("pidwatch: notify write: %v", err))
	}
	if r := <-done; r != nil {
		panic(r)
	}
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// RegisterPid watches pid for death via eofFD, the read end of a pipe
// whose write end the child holds. The watcher owns eofFD afterwards.
func (w *Watcher) RegisterPid(pid, eofFD int) {
	w.runCommand(func(s *watcherState) {
		if _, exists := s.pids[pid]; exists {
			panic(fmt.Sprintf("pidwatch: pid %d registered twice", pid))
		}
		s.pids[pid] = &pidData{
			callbacks: map[WatchHandle]Callback{},
			fd:        eofFD,
		}
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(pid)}
		if err := unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_ADD, eofFD, &ev); err != nil {
			panic(fmt.Sprintf("pidwatch: epoll add pid %d: %v", pid, err))
		}
	})
}

// UnregisterPid stops watching pid. Pending callbacks keep the entry alive
// until they run or are unregistered themselves.
func (w *Watcher) UnregisterPid(pid int) {
	w.runCommand(func(s *watcherState) {
		d, ok := s.pids[pid]
		if !ok {
			return
		}
		d.unregistered = true
		maybeRemovePid(s, pid)
	})
}

// RegisterCallback runs cb on the watcher thread when pid dies. If the
// pid's death has already been observed, cb runs immediately.
func (w *Watcher) RegisterCallback(pid int, cb Callback) WatchHandle {
	var handle WatchHandle
	w.runCommand(func(s *watcherState) {
		d, ok := s.pids[pid]
		if !ok {
			panic(fmt.Sprintf("pidwatch: callback registered for unknown pid %d", pid))
		}
		if d.fd < 0 {
			// already dead
			cb(pid)
			return
		}
		s.nextHandle++
		handle = s.nextHandle
		d.callbacks[handle] = cb
	})
	return handle
}

// UnregisterCallback removes a callback registration.
func (w *Watcher) UnregisterCallback(pid int, handle WatchHandle) {
	w.runCommand(func(s *watcherState) {
		d, ok := s.pids[pid]
		if !ok {
			return
		}
		delete(d.callbacks, handle)
		maybeRemovePid(s, pid)
	})
}

// Close stops the watcher thread and releases its fds.
func (w *Watcher) Close() {
	w.runCommand(func(s *watcherState) {
		s.cancelled = true
	})
	<-w.threadDone
}

func unwatchPid(s *watcherState, pid int) {
	d, ok := s.pids[pid]
	if !ok || d.fd < 0 {
		return
	}
	if err := unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_DEL, d.fd, nil); err != nil {
		panic(fmt.Sprintf("pidwatch: epoll del pid %d: %v", pid, err))
	}
	_ = unix.Close(d.fd)
	d.fd = -1
}

func maybeRemovePid(s *watcherState, pid int) {
	d, ok := s.pids[pid]
	if !ok {
		return
	}
	if d.unregistered && len(d.callbacks) == 0 {
		unwatchPid(s, pid)
		delete(s.pids, pid)
	}
}

func (w *Watcher) threadLoop() {
	defer close(w.threadDone)

	epollFD, err := unix.EpollCreate1(0)
	if err != nil {
		panic(fmt.Sprintf("pidwatch: epoll_create1: %v", err))
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: 0}
	if err := unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, w.notifyFD, &ev); err != nil {
		panic(fmt.Sprintf("pidwatch: epoll add notifier: %v", err))
	}

	s := &watcherState{
		nextHandle: 0,
		pids:       map[int]*pidData{},
		epollFD:    epollFD,
	}
	defer func() {
		_ = unix.Close(epollFD)
		_ = unix.Close(w.notifyFD)
		for pid := range s.pids {
			d := s.pids[pid]
			if d.fd >= 0 {
				_ = unix.Close(d.fd)
			}
		}
	}()

	var events [10]unix.EpollEvent
	for !s.cancelled {
		n, err := unix.EpollWait(epollFD, events[:], -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			panic(fmt.Sprintf("pidwatch: epoll_wait: %v", err))
		}

		// run callbacks for any processes that exited; the event data
		// carries the pid, 0 marks the command notifier
		for _, ev := range events[:n] {
			pid := int(ev.Fd)
			if pid == 0 {
				continue
			}
			unwatchPid(s, pid)
			d := s.pids[pid]
			if d == nil {
				continue
			}
			w.logger.Trace("pid %d exited, running %d callbacks", pid, len(d.callbacks))
			for handle, cb := range d.callbacks {
				delete(d.callbacks, handle)
				cb(pid)
			}
			maybeRemovePid(s, pid)
		}

		// run all queued commands
	drainCommands:
		for {
			select {
			case cmd := <-w.commands:
				cmd(s)
			default:
				break drainCommands
			}
		}

		// reading an eventfd returns an 8 byte counter; do so to clear
		// its readiness
		var buf [8]byte
		if _, err := unix.Read(w.notifyFD, buf[:]); err != nil && err != unix.EAGAIN {
			panic(fmt.Sprintf("pidwatch: notifier read: %v", err))
		}
	}
}
