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

// Package worker tracks per-worker-thread simulation state. Scheduler
// workers are locked to their OS threads, so the OS thread id is a stable
// key for worker-local lookups from code that has no worker reference,
// notably the logger's record enrichment.
package worker

import (
	"sync"
	"time"

	"github.com/specter-sim/specter/models"
)

// Worker holds the simulation state of one scheduler worker thread. All
// mutation happens on the owning thread; other threads only read through
// the package accessors.
type Worker struct {
	threadID int

	mu         sync.RWMutex
	activeHost *models.Host
	simTime    time.Duration
	hasSimTime bool
}

// workers maps OS thread id -> *Worker. Read-mostly: writes happen at
// worker registration and per-host hand-off, reads on every log call.
var workers sync.Map

// Register binds a Worker to the OS thread id tid. When tid is the calling
// thread's id, the caller must be locked to its OS thread for the lifetime
// of the registration.
func Register(tid, threadID int) *Worker {
	w := &Worker{threadID: threadID}
	workers.Store(tid, w)
	return w
}

// Unregister removes the worker registration of OS thread id tid.
func Unregister(tid int) {
	workers.Delete(tid)
}

// Get returns the Worker registered for the given OS thread, if any.
func Get(tid int) (*Worker, bool) {
	v, ok := workers.Load(tid)
	if !ok {
		return nil, false
	}
	return v.(*Worker), true
}

// ThreadID returns the dense scheduler thread index of this worker.
func (w *Worker) ThreadID() int { return w.threadID }

// SetActiveHost marks the host currently borrowed by this worker's task,
// or clears it when nil.
func (w *Worker) SetActiveHost(h *models.Host) {
	w.mu.Lock()
	w.activeHost = h
	w.mu.Unlock()
}

// ActiveHostIdentity returns the identity string of the host currently
// running on this worker, if any.
func (w *Worker) ActiveHostIdentity() (string, bool) {
	w.mu.RLock()
	h := w.activeHost
	w.mu.RUnlock()
	if h == nil {
		return "", false
	}
	return h.Identity(), true
}

// SetSimTime updates the simulated timestamp reported for this worker.
func (w *Worker) SetSimTime(t time.Duration) {
	w.mu.Lock()
	w.simTime = t
	w.hasSimTime = true
	w.mu.Unlock()
}

// ClearSimTime removes the simulated timestamp, e.g. between rounds.
func (w *Worker) ClearSimTime() {
	w.mu.Lock()
	w.hasSimTime = false
	w.mu.Unlock()
}

// SimTime returns the worker's current simulated timestamp, if set.
func (w *Worker) SimTime() (time.Duration, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.simTime, w.hasSimTime
}
