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

import "fmt"

// TimeParts is a duration decomposed for log timestamps.
type TimeParts struct {
	Hours uint32
	Mins  uint32
	Secs  uint64
	Nanos uint64
}

// TimePartsFromNanos decomposes a total nanosecond count.
//
// The decomposition is integer based: total nanoseconds -> whole seconds ->
// whole minutes -> whole hours; the minute and second parts have the larger
// units subtracted out, so Mins and Secs are always in [0, 59] and
// Nanos in [0, 1e9).
func TimePartsFromNanos(totalNanos uint64) TimeParts {
	wholeSecs := totalNanos / 1_000_000_000
	wholeMins := uint32(wholeSecs / 60)
	wholeHours := wholeMins / 60

	minsPart := wholeMins - wholeHours*60
	secsPart := wholeSecs - uint64(wholeMins)*60
	nanosPart := totalNanos - wholeSecs*1_000_000_000

	return TimeParts{
		Hours: wholeHours,
		Mins:  minsPart,
		Secs:  secsPart,
		Nanos: nanosPart,
	}
}

// FormatMicros renders the parts with microsecond precision
// (HH:MM:SS.uuuuuu), the form used for wall-clock timestamps.
func (p TimeParts) FormatMicros() string {
	return fmt.Sprintf("%02d:%02d:%02d.%06d", p.Hours, p.Mins, p.Secs, p.Nanos/1000)
}

// FormatNanos renders the parts with nanosecond precision
// (HH:MM:SS.nnnnnnnnn), the form used for simulated-time timestamps.
func (p TimeParts) FormatNanos() string {
	return fmt.Sprintf("%02d:%02d:%02d.%09d", p.Hours, p.Mins, p.Secs, p.Nanos)
}
