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

package models

import (
	"fmt"
	"net/netip"
	"time"
)

// HostID identifies a simulated host within one simulation.
type HostID uint32

// Host represents one simulated network node. A host is owned exclusively:
// at any instant it resides in exactly one scheduler queue, one worker slot,
// or is borrowed by the task currently running on the owning worker thread.
// It is never shared between threads, so none of its state is synchronized.
type Host struct {
	id   HostID
	name string
	ip   netip.Addr

	// simulated clock for this host, advanced by the round loop
	simTime time.Duration
	// number of rounds this host has been scheduled for
	rounds uint64
	// number of simulated events this host has processed
	eventCount uint64
}

// NewHost creates a simulated host with the given identity.
func NewHost(id HostID, name string, ip netip.Addr) *Host {
	return &Host{
		id:   id,
		name: name,
		ip:   ip,
	}
}

// ID returns the host's identifier.
func (h *Host) ID() HostID { return h.id }

// Name returns the host's configured hostname.
func (h *Host) Name() string { return h.name }

// IP returns the host's default address.
func (h *Host) IP() netip.Addr { return h.ip }

// Identity returns the host identity string attached to log records.
func (h *Host) Identity() string {
	return fmt.Sprintf("%s~%s", h.name, h.ip)
}

// SimTime returns the host's current simulated clock.
func (h *Host) SimTime() time.Duration { return h.simTime }

// Rounds returns how many scheduler rounds this host has run.
func (h *Host) Rounds() uint64 { return h.rounds }

// EventCount returns how many simulated events this host has processed.
func (h *Host) EventCount() uint64 { return h.eventCount }

// AdvanceRound moves the host's simulated clock forward by the round
// duration. Must only be called by the thread currently holding the host.
func (h *Host) AdvanceRound(d time.Duration) {
	h.simTime += d
	h.rounds++
}

// CountEvent records one processed simulated event.
func (h *Host) CountEvent() {
	h.eventCount++
}
