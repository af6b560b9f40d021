// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import "testing"

func TestScratchpad_Check(t *testing.T) {
	good := mkSpad(0x91, 0x01, 0x4b, 0x46, 0x7f, 0xff, 0x0f, 0x10)
	if c := good.Check(); c != OK {
		t.Fatal(c)
	}
	var empty Scratchpad
	if c := empty.Check(); c != EmptyData {
		t.Fatalf("all zeros must be EmptyData, got %s", c)
	}
	for i := 0; i < 8; i++ {
		for bit := 0; bit < 8; bit++ {
			s := good
			s[i] ^= 1 << bit
			if c := s.Check(); c != BadCRC {
				t.Fatalf("flip of byte %d bit %d: got %s", i, bit, c)
			}
		}
	}
}

func TestScratchpad_Resolution(t *testing.T) {
	data := []struct {
		config byte
		want   int
	}{
		{0x1F, 9},
		{0x3F, 10},
		{0x5F, 11},
		{0x7F, 12},
		{0x00, 0},
		{0xFF, 0},
	}
	for _, line := range data {
		s := Scratchpad{configuration: line.config}
		if got := s.Resolution(); got != line.want {
			t.Errorf("%#x: expected %d, got %d", line.config, line.want, got)
		}
	}
}

func TestScratchpad_Alarms(t *testing.T) {
	s := Scratchpad{highAlarm: 0x4b, lowAlarm: 0xf6}
	if h, l := s.Alarms(); h != 75 || l != -10 {
		t.Fatal(h, l)
	}
}
