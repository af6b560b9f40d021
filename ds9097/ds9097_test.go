// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds9097

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tarm/serial"
	"periph.io/x/conn/v3/onewire"
)

// fakePort emulates the loopback of a UART on a 1-wire bus.
type fakePort struct {
	baud     int
	bauds    []int
	presence byte   // echo of the reset pulse
	bits     []bool // values devices put on successive read slots
	written  []byte
	echo     []byte
	closed   bool
}

func (f *fakePort) Write(p []byte) (int, error) {
	for _, b := range p {
		f.written = append(f.written, b)
		switch {
		case f.baud == resetBaud:
			f.echo = append(f.echo, f.presence)
		case b == slotOne && len(f.bits) != 0:
			e := byte(0xfe)
			if f.bits[0] {
				e = 0xff
			}
			f.bits = f.bits[1:]
			f.echo = append(f.echo, e)
		default:
			f.echo = append(f.echo, b)
		}
	}
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	if len(f.echo) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.echo)
	f.echo = f.echo[n:]
	return n, nil
}

func (f *fakePort) SetBaud(baud int) error {
	f.baud = baud
	f.bauds = append(f.bauds, baud)
	return nil
}

func (f *fakePort) Flush() error {
	f.echo = nil
	return nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func newFake() (*fakePort, *Dev) {
	p := &fakePort{baud: dataBaud, presence: 0xe0}
	return p, New(p, "fake")
}

func TestReset(t *testing.T) {
	p, d := newFake()
	if present, err := d.Reset(); !present || err != nil {
		t.Fatalf("expected presence, got %v %v", present, err)
	}
	if diff := cmp.Diff([]int{resetBaud, dataBaud}, p.bauds); diff != "" {
		t.Fatalf("bauds (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{resetPulse}, p.written); diff != "" {
		t.Fatalf("written (-want +got):\n%s", diff)
	}

	p.presence = resetPulse
	if present, err := d.Reset(); present || err != nil {
		t.Fatalf("expected no presence, got %v %v", present, err)
	}

	p.presence = 0
	_, err := d.Reset()
	if s, ok := err.(onewire.ShortedBusError); !ok || !s.IsShorted() {
		t.Fatalf("expected a shorted bus, got %v", err)
	}
}

func TestWrite(t *testing.T) {
	p, d := newFake()
	if err := d.Write(0xa5, onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xff, 0x00, 0xff, 0x00, 0x00, 0xff, 0x00, 0xff}
	if diff := cmp.Diff(want, p.written); diff != "" {
		t.Fatalf("slots (-want +got):\n%s", diff)
	}
}

func TestRead(t *testing.T) {
	p, d := newFake()
	// 0x5a, least significant bit first.
	p.bits = []bool{false, true, false, true, true, false, true, false}
	b, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if b != 0x5a {
		t.Fatalf("expected 0x5a, got %#x", b)
	}
}

func TestRead_noEcho(t *testing.T) {
	d := New(&silentPort{}, "silent")
	if _, err := d.Read(); err == nil {
		t.Fatal("expected an error without echo")
	}
}

// silentPort never echoes anything, like a port with nothing plugged in.
type silentPort struct{ fakePort }

func (s *silentPort) Write(p []byte) (int, error) { return len(p), nil }
func (s *silentPort) Read(p []byte) (int, error)  { return 0, nil }

func TestSearchTriplet(t *testing.T) {
	data := []struct {
		name      string
		bits      []bool
		direction byte
		want      onewire.TripletResult
		slot      byte
	}{
		{"all zero", []bool{false, true}, 1, onewire.TripletResult{GotZero: true, Taken: 0}, slotZero},
		{"all one", []bool{true, false}, 0, onewire.TripletResult{GotOne: true, Taken: 1}, slotOne},
		{"conflict 0", []bool{false, false}, 0, onewire.TripletResult{GotZero: true, GotOne: true, Taken: 0}, slotZero},
		{"conflict 1", []bool{false, false}, 1, onewire.TripletResult{GotZero: true, GotOne: true, Taken: 1}, slotOne},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			p, d := newFake()
			p.bits = line.bits
			tr, err := d.SearchTriplet(line.direction)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(line.want, tr); diff != "" {
				t.Fatalf("result (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]byte{slotOne, slotOne, line.slot}, p.written); diff != "" {
				t.Fatalf("slots (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTx(t *testing.T) {
	p, d := newFake()
	// The four 1 bits of 0xcc echo unchanged, then 0x50 is read back.
	p.bits = []bool{true, true, true, true, false, false, false, false, true, false, true, false}
	r := make([]byte, 1)
	if err := d.Tx([]byte{0xcc}, r, onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0x50 {
		t.Fatalf("expected 0x50, got %#x", r[0])
	}
	if len(p.written) != 1+8+8 {
		t.Fatalf("expected reset and 16 slots, got %d", len(p.written))
	}

	p.presence = resetPulse
	err := d.Tx([]byte{0xcc}, nil, onewire.WeakPullup)
	if b, ok := err.(onewire.BusError); !ok || !b.BusError() {
		t.Fatalf("expected a bus error, got %v", err)
	}
}

func TestString(t *testing.T) {
	p, d := newFake()
	if s := d.String(); s != "DS9097{fake}" {
		t.Fatal(s)
	}
	if err := d.Close(); err != nil || !p.closed {
		t.Fatal("port not closed")
	}
}

// rawFake is one opened handle of a serial device.
type rawFake struct {
	baud   int
	closed bool
}

func (r *rawFake) Read(p []byte) (int, error)  { return 0, io.EOF }
func (r *rawFake) Write(p []byte) (int, error) { return len(p), nil }
func (r *rawFake) Flush() error                { return nil }

func (r *rawFake) Close() error {
	if r.closed {
		return errors.New("closed twice")
	}
	r.closed = true
	return nil
}

func TestSerialPort_reopenFails(t *testing.T) {
	var opened []*rawFake
	var tries []int
	failNext := false
	s := newSerialPort("fake")
	s.openPort = func(c *serial.Config) (rawPort, error) {
		tries = append(tries, c.Baud)
		if failNext {
			failNext = false
			return nil, errors.New("device busy")
		}
		r := &rawFake{baud: c.Baud}
		opened = append(opened, r)
		return r, nil
	}
	if err := s.open(); err != nil {
		t.Fatal(err)
	}

	failNext = true
	if err := s.SetBaud(resetBaud); err == nil {
		t.Fatal("expected the open error")
	}
	if s.cfg.Baud != dataBaud {
		t.Fatalf("speed changed to %d despite the failure", s.cfg.Baud)
	}
	if !opened[0].closed {
		t.Fatal("old handle still open")
	}

	// The next use reopens the port at the last good speed.
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBaud(resetBaud); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{dataBaud, resetBaud, dataBaud, resetBaud}, tries); diff != "" {
		t.Fatalf("opens (-want +got):\n%s", diff)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	for i, r := range opened {
		if !r.closed {
			t.Fatalf("handle %d at %d baud leaked", i, r.baud)
		}
	}
}
