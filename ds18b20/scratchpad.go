// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"periph.io/x/conn/v3/onewire"
)

// Scratchpad is the 9 byte working memory of a sensor.
type Scratchpad [9]byte

// Scratchpad locations.
const (
	tempLSB       = 0
	tempMSB       = 1
	highAlarm     = 2
	lowAlarm      = 3
	configuration = 4
	countRemain   = 6
	countPerC     = 7
	scratchpadCRC = 8
)

// Configuration register values for each resolution.
const (
	config9Bit  = 0x1F
	config10Bit = 0x3F
	config11Bit = 0x5F
	config12Bit = 0x7F
)

// Check validates the integrity of a scratchpad read back from a device.
//
// An all-zero scratchpad is EmptyData rather than BadCRC: the CRC8 of zeros
// is zero, and a device that was present yet never converted reads like that.
func (s *Scratchpad) Check() Code {
	if *s == (Scratchpad{}) {
		return EmptyData
	}
	if onewire.CalcCRC(s[:scratchpadCRC]) != s[scratchpadCRC] {
		return BadCRC
	}
	return OK
}

// Resolution returns the conversion resolution in bits encoded in the
// configuration register, or 0 if the register holds something else.
func (s *Scratchpad) Resolution() int {
	switch s[configuration] {
	case config9Bit:
		return 9
	case config10Bit:
		return 10
	case config11Bit:
		return 11
	case config12Bit:
		return 12
	}
	return 0
}

// Alarms returns the high and low alarm trigger registers, in whole degrees.
func (s *Scratchpad) Alarms() (high, low int8) {
	return int8(s[highAlarm]), int8(s[lowAlarm])
}

// ReadScratchpad performs the select/read transaction with one device and
// validates the 9 bytes it returns.
//
// The bus is reset twice: a missing presence pulse before the read is
// NoDevices, after the read it is Offline (the device went away mid read).
func (d *Dev) ReadScratchpad(a Address) (Scratchpad, error) {
	spad, err := d.readScratchpad(a)
	if err == nil {
		d.rep.ok()
	}
	return spad, err
}

func (d *Dev) readScratchpad(a Address) (Scratchpad, error) {
	var spad Scratchpad
	if err := d.reset(&a, NoDevices); err != nil {
		return spad, err
	}
	if err := d.selectROM(a); err != nil {
		return spad, d.rep.fail(BusFault, &a, err)
	}
	if err := d.bus.Write(cmdReadScratch, onewire.WeakPullup); err != nil {
		return spad, d.rep.fail(BusFault, &a, err)
	}
	for i := range spad {
		b, err := d.bus.Read()
		if err != nil {
			return spad, d.rep.fail(BusFault, &a, err)
		}
		spad[i] = b
	}
	if err := d.reset(&a, Offline); err != nil {
		return spad, err
	}
	if c := spad.Check(); c != OK {
		return spad, d.rep.fail(c, &a, nil)
	}
	return spad, nil
}
