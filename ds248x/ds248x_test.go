// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/onewire"
)

const addr = 0x18

// initOps is the initialization of a DS2483 with DefaultOpts.
var initOps = []i2ctest.IO{
	{Addr: addr, W: []byte{cmdReset}},
	{Addr: addr, W: []byte{cmdSetReadPtr, regStatus}, R: []byte{0x18}},
	{Addr: addr, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x01}},
	{Addr: addr, W: []byte{cmdSetReadPtr, regPCR}},
	{Addr: addr, W: []byte{cmdAdjPort, 0x06, 0x26, 0x46, 0x66, 0x86}},
}

func TestNew(t *testing.T) {
	bus := &i2ctest.Playback{Ops: initOps}
	d, err := New(bus, addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Model() != DS2483 {
		t.Fatalf("expected DS2483, got %s", d.Model())
	}
	if ch, err := d.Channel(); ch != 0 || err != nil {
		t.Fatal(ch, err)
	}
	if err := d.SelectChannel(3); err != nil {
		t.Fatal("single channel models ignore channel selection")
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_fail(t *testing.T) {
	if d, err := New(&i2ctest.Playback{}, 0x42, nil); d != nil || err == nil {
		t.Fatal("invalid address")
	}
	opts := DefaultOpts
	opts.Channel = 8
	if d, err := New(&i2ctest.Playback{}, addr, &opts); d != nil || err == nil {
		t.Fatal("invalid channel")
	}
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: addr, W: []byte{cmdReset}},
			{Addr: addr, W: []byte{cmdSetReadPtr, regStatus}, R: []byte{0x00}},
		},
	}
	if d, err := New(bus, addr, nil); d != nil || err == nil {
		t.Fatal("invalid status register")
	}
}

// TestPrimitives runs a reset/write/read sequence the way ds18b20 drives the
// bus.
func TestPrimitives(t *testing.T) {
	ops := append([]i2ctest.IO{}, initOps...)
	ops = append(ops,
		// Reset, presence detected.
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{statusPPD}},
		// Write 0xcc.
		i2ctest.IO{Addr: addr, W: []byte{cmd1WWrite, 0xcc}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		// Write 0x44 followed by a strong pull-up.
		i2ctest.IO{Addr: addr, W: []byte{cmdWriteConfig, 0xa5}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WWrite, 0x44}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		// Read a byte.
		i2ctest.IO{Addr: addr, W: []byte{cmd1WRead}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmdSetReadPtr, regRDR}, R: []byte{0x5a}},
		// Reset, nobody home.
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		// Reset, shorted bus.
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{statusSD}},
	)
	bus := &i2ctest.Playback{Ops: ops}
	d, err := New(bus, addr, &DefaultOpts)
	if err != nil {
		t.Fatal(err)
	}

	if present, err := d.Reset(); !present || err != nil {
		t.Fatalf("expected presence, got %v %v", present, err)
	}
	if err := d.Write(0xcc, onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	if err := d.Write(0x44, onewire.StrongPullup); err != nil {
		t.Fatal(err)
	}
	if b, err := d.Read(); b != 0x5a || err != nil {
		t.Fatalf("expected 0x5a, got %#x %v", b, err)
	}
	if present, err := d.Reset(); present || err != nil {
		t.Fatalf("expected no presence, got %v %v", present, err)
	}
	_, err = d.Reset()
	if s, ok := err.(onewire.ShortedBusError); !ok || !s.IsShorted() {
		t.Fatalf("expected a shorted bus error, got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

// TestTx runs a Skip ROM + Read Scratchpad style transaction.
func TestTx(t *testing.T) {
	ops := append([]i2ctest.IO{}, initOps...)
	ops = append(ops,
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{statusPPD}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WWrite, 0xcc}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WWrite, 0xbe}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WRead}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmdSetReadPtr, regRDR}, R: []byte{0x50}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WRead}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmdSetReadPtr, regRDR}, R: []byte{0x05}},
		// No presence on the second transaction.
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
	)
	bus := &i2ctest.Playback{Ops: ops}
	d, err := New(bus, addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := make([]byte, 2)
	if err := d.Tx([]byte{0xcc, 0xbe}, r, onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0x50 || r[1] != 0x05 {
		t.Fatalf("read %#v", r)
	}
	err = d.Tx([]byte{0xcc}, nil, onewire.WeakPullup)
	if b, ok := err.(onewire.BusError); !ok || !b.BusError() {
		t.Fatalf("expected a bus error, got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

// TestRecover checks that an I²C error fails only the call it happened in.
func TestRecover(t *testing.T) {
	ops := append([]i2ctest.IO{}, initOps...)
	ops = append(ops,
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{statusPPD}},
	)
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}
	d, err := New(bus, addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	// The bridge is expected to see a bus reset; the write is refused.
	if err := d.Write(0xcc, onewire.WeakPullup); err == nil {
		t.Fatal("expected the I²C error")
	}
	if present, err := d.Reset(); !present || err != nil {
		t.Fatalf("expected the next call to succeed, got %v %v", present, err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func init() {
	sleep = func(time.Duration) {}
}
