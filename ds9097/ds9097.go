// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds9097

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
)

const (
	resetBaud = 9600   // a 0xf0 byte at this speed is a reset pulse
	dataBaud  = 115200 // one byte per 1-wire time slot

	resetPulse = 0xf0
	slotOne    = 0xff // write 1, or read
	slotZero   = 0x00 // write 0

	readTimeout = 500 * time.Millisecond
)

// Port is the serial line the adapter hangs off.
type Port interface {
	io.ReadWriteCloser
	// SetBaud changes the line speed.
	SetBaud(baud int) error
	// Flush discards unread input.
	Flush() error
}

// Open opens the serial device name, e.g. "/dev/ttyUSB0", and returns the
// adapter behind it.
func Open(name string) (*Dev, error) {
	p := newSerialPort(name)
	if err := p.open(); err != nil {
		return nil, fmt.Errorf("ds9097: %s: %v", name, err)
	}
	return New(p, name), nil
}

// New returns an adapter using an already opened port.
func New(p Port, name string) *Dev {
	return &Dev{port: p, name: name}
}

// Dev is a passive DS9097 style 1-wire adapter: the bus is driven by the
// UART's TX line and sensed on RX, one UART byte per time slot.
//
// It implements onewire.Bus as well as the per-byte primitives used by the
// ds18b20 driver. There is no strong pull-up, so parasite powered devices are
// not supported; a requested onewire.StrongPullup is served by the weak one.
type Dev struct {
	mu   sync.Mutex
	port Port
	name string
}

func (d *Dev) String() string {
	return "DS9097{" + d.name + "}"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Close closes the serial port.
func (d *Dev) Close() error {
	return d.port.Close()
}

// Reset issues a reset pulse and reports whether any device answered.
func (d *Dev) Reset() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

// Write sends one byte, least significant bit first.
func (d *Dev) Write(b byte, power onewire.Pullup) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeByte(b)
}

// Read reads one byte, least significant bit first.
func (d *Dev) Read() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readByte()
}

// Tx implements onewire.Bus.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if present, err := d.reset(); err != nil {
		return err
	} else if !present {
		return busError("ds9097: no device present")
	}
	for _, b := range w {
		if err := d.writeByte(b); err != nil {
			return err
		}
	}
	for i := range r {
		b, err := d.readByte()
		if err != nil {
			return err
		}
		r[i] = b
	}
	return nil
}

// Search implements onewire.Bus.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	return onewire.Search(d, alarmOnly)
}

// SearchTriplet reads a ROM bit and its complement and writes the direction
// taken. It is used by Search.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var tr onewire.TripletResult
	echo, err := d.touch([]byte{slotOne, slotOne})
	if err != nil {
		return tr, err
	}
	// A device with a 0 pulls the first read low, one with a 1 the second.
	tr.GotZero = echo[0] != slotOne
	tr.GotOne = echo[1] != slotOne
	switch {
	case tr.GotZero && tr.GotOne:
		tr.Taken = direction & 1
	case tr.GotZero:
		tr.Taken = 0
	default:
		tr.Taken = 1
	}
	slot := byte(slotZero)
	if tr.Taken != 0 {
		slot = slotOne
	}
	_, err = d.touch([]byte{slot})
	return tr, err
}

// reset sends the reset pulse at low speed. Devices answering with their
// presence pulse corrupt the echoed 0xf0; an echo of 0 means the line is held
// low.
func (d *Dev) reset() (bool, error) {
	if err := d.port.Flush(); err != nil {
		return false, err
	}
	if err := d.port.SetBaud(resetBaud); err != nil {
		return false, err
	}
	echo, err := d.touch([]byte{resetPulse})
	if err != nil {
		return false, err
	}
	if err := d.port.SetBaud(dataBaud); err != nil {
		return false, err
	}
	switch echo[0] {
	case resetPulse:
		return false, nil
	case 0:
		return false, shortedBusError("ds9097: bus has a short")
	default:
		return true, nil
	}
}

func (d *Dev) writeByte(b byte) error {
	var slots [8]byte
	for i := range slots {
		if b&(1<<uint(i)) != 0 {
			slots[i] = slotOne
		}
	}
	_, err := d.touch(slots[:])
	return err
}

func (d *Dev) readByte() (byte, error) {
	slots := [8]byte{slotOne, slotOne, slotOne, slotOne, slotOne, slotOne, slotOne, slotOne}
	echo, err := d.touch(slots[:])
	if err != nil {
		return 0, err
	}
	var b byte
	for i, e := range echo {
		if e == slotOne {
			b |= 1 << uint(i)
		}
	}
	return b, nil
}

// touch sends time slots and returns what was sensed on the line for each.
func (d *Dev) touch(slots []byte) ([]byte, error) {
	if _, err := d.port.Write(slots); err != nil {
		return nil, fmt.Errorf("ds9097: write: %v", err)
	}
	echo := make([]byte, len(slots))
	for n := 0; n < len(echo); {
		m, err := d.port.Read(echo[n:])
		if err != nil {
			return nil, fmt.Errorf("ds9097: read: %v", err)
		}
		// The port returns nothing once its read timeout expires.
		if m == 0 {
			return nil, errors.New("ds9097: no echo, is the adapter connected?")
		}
		n += m
	}
	return echo, nil
}

// rawPort is what tarm/serial hands out.
type rawPort interface {
	io.ReadWriteCloser
	Flush() error
}

func openSerial(c *serial.Config) (rawPort, error) {
	return serial.OpenPort(c)
}

// serialPort reopens the tarm/serial port to change its speed.
//
// p is nil while the port is closed. Any use reopens it at cfg.Baud, the last
// speed that was opened successfully, so a failed speed change only fails the
// call it happened in.
type serialPort struct {
	cfg      serial.Config
	p        rawPort
	openPort func(c *serial.Config) (rawPort, error)
}

func newSerialPort(name string) *serialPort {
	return &serialPort{
		cfg:      serial.Config{Name: name, Baud: dataBaud, ReadTimeout: readTimeout},
		openPort: openSerial,
	}
}

func (s *serialPort) open() error {
	if s.p != nil {
		return nil
	}
	p, err := s.openPort(&s.cfg)
	if err != nil {
		return err
	}
	s.p = p
	return nil
}

func (s *serialPort) Read(b []byte) (int, error) {
	if err := s.open(); err != nil {
		return 0, err
	}
	return s.p.Read(b)
}

func (s *serialPort) Write(b []byte) (int, error) {
	if err := s.open(); err != nil {
		return 0, err
	}
	return s.p.Write(b)
}

func (s *serialPort) Flush() error {
	if err := s.open(); err != nil {
		return err
	}
	return s.p.Flush()
}

// SetBaud closes the port and opens it again at baud. The configuration only
// changes once the new port is open.
func (s *serialPort) SetBaud(baud int) error {
	if s.p != nil && s.cfg.Baud == baud {
		return nil
	}
	if err := s.Close(); err != nil {
		return err
	}
	c := s.cfg
	c.Baud = baud
	p, err := s.openPort(&c)
	if err != nil {
		return err
	}
	s.p, s.cfg = p, c
	return nil
}

// Close closes the port. Closing a closed port does nothing.
func (s *serialPort) Close() error {
	if s.p == nil {
		return nil
	}
	p := s.p
	s.p = nil
	return p.Close()
}

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var _ conn.Resource = &Dev{}
var _ onewire.BusSearcher = &Dev{}
