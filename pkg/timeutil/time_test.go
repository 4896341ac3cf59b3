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

package timeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimePartsFromNanos(t *testing.T) {
	assert.Equal(t,
		TimeParts{Hours: 1, Mins: 1, Secs: 1, Nanos: 1},
		TimePartsFromNanos(1+(3600+60+1)*1_000_000_000))
	assert.Equal(t, TimeParts{}, TimePartsFromNanos(0))
	assert.Equal(t,
		TimeParts{Hours: 0, Mins: 0, Secs: 59, Nanos: 999_999_999},
		TimePartsFromNanos(60*1_000_000_000-1))
	assert.Equal(t,
		TimeParts{Hours: 25, Mins: 0, Secs: 0, Nanos: 0},
		TimePartsFromNanos(25*3600*1_000_000_000))
}

func TestTimePartsRoundTrip(t *testing.T) {
	cases := []uint64{
		0, 1, 999_999_999, 1_000_000_000, 59_999_999_999,
		60_000_000_000, 3_599_999_999_999, 3_600_000_000_000,
		86_400_000_000_000, 123_456_789_123_456_789,
	}
	for _, n := range cases {
		p := TimePartsFromNanos(n)
		recomposed := uint64(p.Hours)*3600_000_000_000 +
			uint64(p.Mins)*60_000_000_000 +
			p.Secs*1_000_000_000 +
			p.Nanos
		assert.Equal(t, n, recomposed, "nanos %d", n)
		assert.Less(t, p.Mins, uint32(60))
		assert.Less(t, p.Secs, uint64(60))
		assert.Less(t, p.Nanos, uint64(1_000_000_000))
	}
}

func TestTimePartsFormat(t *testing.T) {
	p := TimePartsFromNanos(1_500_000_000)
	assert.Equal(t, "00:00:01.500000", p.FormatMicros())
	assert.Equal(t, "00:00:01.500000000", p.FormatNanos())

	p = TimePartsFromNanos(500_000)
	assert.Equal(t, "00:00:00.000500000", p.FormatNanos())
}
