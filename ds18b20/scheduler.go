// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import "time"

// ConversionTimeout is how long a broadcast conversion is assumed to take:
// 750ms for a 12-bit conversion plus margin.
const ConversionTimeout = 800 * time.Millisecond

// scheduler tracks the single conversion in flight on the bus.
//
// Times come from time.Now and carry a monotonic reading, so Sub is immune to
// wall clock steps and there is no counter wraparound to deal with.
type scheduler struct {
	started time.Time
	pending bool
}

// arm records the start of a conversion.
func (s *scheduler) arm() {
	s.started = now()
	s.pending = true
}

// poll reports whether the conversion is still running. It clears itself
// exactly once, on the first call at or after the deadline.
func (s *scheduler) poll() bool {
	if s.pending && now().Sub(s.started) >= ConversionTimeout {
		s.pending = false
	}
	return s.pending
}

// remaining returns the time left before the deadline, 0 when idle.
func (s *scheduler) remaining() time.Duration {
	if !s.pending {
		return 0
	}
	r := ConversionTimeout - now().Sub(s.started)
	if r < 0 {
		return 0
	}
	return r
}

var now = time.Now
