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

package scheduler

import (
	"fmt"

	"code.hybscloud.com/lfq"

	"github.com/specter-sim/specter/models"
)

// hostQueue is the slice of the lfq MPMC queue surface the scheduler uses.
// MPMC rather than SPSC because work stealing makes every thread a
// potential consumer of every "from" ring.
type hostQueue interface {
	Enqueue(h **models.Host) error
	Dequeue() (*models.Host, error)
}

// hostRing is a bounded lock-free ring of hosts. Every ring is sized to
// hold the full host population, so a push can only fail on a host
// conservation bug.
type hostRing struct {
	q hostQueue
}

func newHostRing(capacity int) *hostRing {
	// lfq panics below its minimum capacity of 2; an empty host set still
	// gets valid, permanently empty rings
	if capacity < 2 {
		capacity = 2
	}
	return &hostRing{q: lfq.NewMPMC[*models.Host](capacity)}
}

func (r *hostRing) push(h *models.Host) {
	if err := r.q.Enqueue(&h); err != nil {
		panic(fmt.Sprintf("scheduler: host ring rejected push: %v", err))
	}
}

// pop returns the oldest host, or nil when the ring is empty.
func (r *hostRing) pop() *models.Host {
	h, err := r.q.Dequeue()
	if err != nil {
		return nil
	}
	return h
}
