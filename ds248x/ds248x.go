// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/onewire"
)

// PupOhm controls the strength of the passive pull-up resistor
// on the 1-wire data line. The default value is 1000Ω.
type PupOhm uint8

const (
	// R500Ω passive pull-up resistor.
	R500Ω PupOhm = 4
	// R1000Ω passive pull-up resistor.
	R1000Ω PupOhm = 6
)

// Model is the flavor of ds248x detected at initialization.
type Model uint8

const (
	DS2482x100 Model = iota // single channel
	DS2482x800              // eight channels
	DS2483                  // single channel, adjustable timings
)

func (m Model) String() string {
	switch m {
	case DS2482x100:
		return "DS2482-100"
	case DS2482x800:
		return "DS2482-800"
	case DS2483:
		return "DS2483"
	default:
		return "Undefined"
	}
}

// Opts contains options to pass to the constructor.
type Opts struct {
	PassivePullup bool // false:use active pull-up, true: disable active pullup

	// Channel is the 1-wire channel used on a DS2482-800, 0..7. It is ignored
	// by single channel models.
	Channel int

	// The following options are only available on the ds2483 (not ds2482-100).
	// The actual value used is the closest possible value (rounded up or down).
	ResetLow       time.Duration // reset low time, range 440μs..740μs
	PresenceDetect time.Duration // presence detect sample time, range 58μs..76μs
	Write0Low      time.Duration // write zero low time, range 52μs..70μs
	Write0Recovery time.Duration // write zero recovery time, range 2750ns..25250ns
	PullupRes      PupOhm        // passive pull-up resistance, R500Ω or R1000Ω
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	PassivePullup:  false,
	ResetLow:       560 * time.Microsecond,
	PresenceDetect: 68 * time.Microsecond,
	Write0Low:      64 * time.Microsecond,
	Write0Recovery: 5250 * time.Nanosecond,
	PullupRes:      R1000Ω,
}

// New returns a device object that communicates over I²C to the DS2482/DS2483
// controller.
//
// This device object implements onewire.Bus and can be used to access devices
// on the bus. It also implements the per-byte primitives (Reset, Write, Read)
// used by the ds18b20 driver.
//
// Valid I²C addresses are 0x18, 0x19, 0x20 and 0x21. If opts is nil,
// DefaultOpts is used.
func New(i i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	switch addr {
	case 0x18, 0x19, 0x20, 0x21:
	default:
		return nil, errors.New("ds248x: given address not supported by device")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Channel < 0 || opts.Channel >= len(channelCodes) {
		return nil, errors.New("ds248x: channel must be in range 0..7")
	}
	d := &Dev{i2c: &i2c.Dev{Bus: i, Addr: addr}}
	if err := d.makeDev(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to a ds248x device and it implements the onewire.Bus
// interface.
//
// An I²C error aborts the rest of the call it happened in; every exported
// bus primitive starts with a clean slate, so a transient error only fails
// that call.
//
// Errors on the 1-wire bus itself implement the onewire.BusError interface.
type Dev struct {
	sync.Mutex               // lock for the bus while a transaction is in progress
	i2c        conn.Conn     // i2c device handle for the ds248x
	model      Model         // detected chip
	confReg    byte          // value written to configuration register
	tReset     time.Duration // time to perform a 1-wire reset
	tSlot      time.Duration // time to perform a 1-bit 1-wire read/write
	err        error         // first I²C error of the call in progress
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.model, d.i2c)
}

// Model returns the detected chip.
func (d *Dev) Model() Model {
	return d.model
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Tx performs a bus transaction, sending and receiving bytes, and ending by
// pulling the bus high either weakly or strongly depending on the value of
// power.
//
// A strong pull-up is typically required to power temperature conversion or
// EEPROM writes.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	d.Lock()
	defer d.Unlock()
	d.err = nil

	// Issue 1-wire bus reset.
	if present, err := d.reset(); err != nil {
		return err
	} else if !present {
		return busError("ds248x: no device present")
	}

	// The strong pull-up goes with the very last byte of the transaction.
	for i, b := range w {
		d.writeByte(b, power == onewire.StrongPullup && i == len(w)-1 && len(r) == 0)
	}
	for i := range r {
		r[i] = d.readByte(power == onewire.StrongPullup && i == len(r)-1)
	}

	return d.err
}

// Reset issues a reset on the 1-wire bus and reports whether any device
// answered with a presence pulse.
//
// Reset, Write and Read let a driver run a transaction one step at a time,
// e.g. to tell a device that vanished mid transaction from an empty bus.
func (d *Dev) Reset() (bool, error) {
	d.Lock()
	defer d.Unlock()
	d.err = nil
	return d.reset()
}

// Write sends one byte on the 1-wire bus. With onewire.StrongPullup the
// bus is strongly pulled high once the byte is out.
func (d *Dev) Write(b byte, power onewire.Pullup) error {
	d.Lock()
	defer d.Unlock()
	d.err = nil
	d.writeByte(b, power == onewire.StrongPullup)
	return d.err
}

// Read reads one byte from the 1-wire bus.
func (d *Dev) Read() (byte, error) {
	d.Lock()
	defer d.Unlock()
	d.err = nil
	b := d.readByte(false)
	return b, d.err
}

// Search performs a "search" cycle on the 1-wire bus and returns the addresses
// of all devices on the bus if alarmOnly is false and of all devices in alarm
// state if alarmOnly is true.
//
// If an error occurs during the search the already-discovered devices are
// returned with the error.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	return onewire.Search(d, alarmOnly)
}

// SelectChannel switches a DS2482-800 to one of its eight 1-wire channels.
// It does nothing on other models.
//
// The application keeps track of which device hangs off which channel.
func (d *Dev) SelectChannel(ch int) error {
	if d.model != DS2482x800 {
		return nil
	}
	if ch < 0 || ch >= len(channelCodes) {
		return fmt.Errorf("ds2482-800: invalid channel %d", ch)
	}
	d.Lock()
	defer d.Unlock()
	if err := d.i2c.Tx([]byte{cmdChannelSelect, channelCodes[ch].w}, nil); err != nil {
		return fmt.Errorf("ds2482-800: error while selecting channel: %s", err)
	}
	return nil
}

// Channel returns the channel selected on a DS2482-800, always 0 on other
// models.
func (d *Dev) Channel() (int, error) {
	if d.model != DS2482x800 {
		return 0, nil
	}
	d.Lock()
	defer d.Unlock()
	var csr [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, csr[:]); err != nil {
		return 0, fmt.Errorf("ds2482-800: error while reading channel: %s", err)
	}
	for ch, c := range channelCodes {
		if c.r == csr[0] {
			return ch, nil
		}
	}
	return 0, fmt.Errorf("ds2482-800: unexpected channel selection register %#x", csr[0])
}

// SearchTriplet runs one triplet command: it reads a ROM bit and its
// complement, then writes the direction taken, which is direction when both
// values are present.
//
// SearchTriplet is the step used by Search; call Search instead.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	d.Lock()
	defer d.Unlock()
	d.err = nil
	var dir byte
	if direction != 0 {
		dir = 0x80
	}
	d.i2cTx([]byte{cmd1WTriplet, dir}, nil)
	// Wait and read status register, concoct result from there.
	status := d.waitIdle(0 * d.tSlot) // in theory 3*tSlot but it's actually overlapped
	tr := onewire.TripletResult{
		GotZero: status&statusSBR == 0,
		GotOne:  status&statusTSB == 0,
		Taken:   status >> 7,
	}
	return tr, d.err
}

// reset issues a reset signal on the 1-wire bus and returns true if any device
// responded with a presence pulse.
func (d *Dev) reset() (bool, error) {
	d.i2cTx([]byte{cmd1WReset}, nil)
	status := d.waitIdle(d.tReset)
	if d.err != nil {
		return false, d.err
	}
	// Detect bus short and turn into 1-wire error
	if status&statusSD != 0 {
		return false, shortedBusError("onewire/ds248x: bus has a short")
	}
	return status&statusPPD != 0, nil
}

// strongPullup arms the strong pull-up for the next 1-wire byte. The ds248x
// clears it by itself on the next reset.
func (d *Dev) strongPullup() {
	d.i2cTx([]byte{cmdWriteConfig, d.confReg&0xbf | 0x4}, nil)
}

// writeByte sends b and waits for it to be clocked out.
func (d *Dev) writeByte(b byte, pull bool) {
	if pull {
		d.strongPullup()
	}
	d.i2cTx([]byte{cmd1WWrite, b}, nil)
	d.waitIdle(7 * d.tSlot)
}

// readByte clocks in one byte and fetches it from the read data register.
func (d *Dev) readByte(pull bool) byte {
	if pull {
		d.strongPullup()
	}
	var b [1]byte
	d.i2cTx([]byte{cmd1WRead}, nil)
	d.waitIdle(7 * d.tSlot)
	d.i2cTx([]byte{cmdSetReadPtr, regRDR}, b[:])
	return b[0]
}

// i2cTx runs one I²C transaction unless one already failed during the current
// call. The failure is kept in d.err.
func (d *Dev) i2cTx(w, r []byte) {
	if d.err == nil {
		d.err = d.i2c.Tx(w, r)
	}
}

// waitIdle sleeps for delay, then polls the status register every delay/10
// until the 1-wire busy bit clears, and returns the last status read.
//
// The ds248x must finish any cycle within idleTimeout. Not doing so is a
// fault of the bridge, not of the 1-wire bus. 0 is returned once d.err is set.
func (d *Dev) waitIdle(delay time.Duration) byte {
	if d.err != nil {
		return 0
	}
	deadline := time.Now().Add(idleTimeout)
	sleep(delay)
	var status [1]byte
	for {
		d.i2cTx(nil, status[:])
		if d.err != nil {
			return 0
		}
		if status[0]&status1WB == 0 {
			return status[0]
		}
		if time.Now().After(deadline) {
			d.err = errors.New("ds248x: timeout waiting for bus cycle to finish")
			return 0
		}
		sleep(delay / 10)
	}
}

// makeDev resets the bridge, checks it answers, writes the configuration and
// identifies the model, applying the model specific options.
func (d *Dev) makeDev(opts *Opts) error {
	d.tReset = 2 * opts.ResetLow
	d.tSlot = opts.Write0Low + opts.Write0Recovery
	if err := d.probe(); err != nil {
		return err
	}
	if err := d.configure(opts.PassivePullup); err != nil {
		return err
	}
	switch d.model = d.identify(); d.model {
	case DS2483:
		return d.adjustPort(opts)
	case DS2482x800:
		if err := d.i2c.Tx([]byte{cmdChannelSelect, channelCodes[opts.Channel].w}, nil); err != nil {
			return fmt.Errorf("ds248x: selecting channel %d: %v", opts.Channel, err)
		}
	}
	return nil
}

// probe resets the bridge; its status register then reads 0x18.
func (d *Dev) probe() error {
	if err := d.i2c.Tx([]byte{cmdReset}, nil); err != nil {
		return fmt.Errorf("ds248x: reset: %v", err)
	}
	var status [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regStatus}, status[:]); err != nil {
		return fmt.Errorf("ds248x: reading status: %v", err)
	}
	if status[0] != statusAfterReset {
		return fmt.Errorf("ds248x: status %#x after reset, expected %#x", status[0], statusAfterReset)
	}
	return nil
}

// configure writes the configuration register, which takes the bridge out of
// its reset state. Only the low nibble is read back.
func (d *Dev) configure(passive bool) error {
	d.confReg = confActivePullup
	if passive {
		d.confReg = confPassivePullup
	}
	var got [1]byte
	if err := d.i2c.Tx([]byte{cmdWriteConfig, d.confReg}, got[:]); err != nil {
		return fmt.Errorf("ds248x: writing configuration: %v", err)
	}
	if got[0] != d.confReg&0x0f {
		return fmt.Errorf("ds248x: configuration %#x read back as %#x", d.confReg, got[0])
	}
	return nil
}

// identify tells the models apart by the registers they accept a read pointer
// to: only the DS2483 has a port configuration register and only the
// DS2482-800 a channel selection register.
func (d *Dev) identify() Model {
	if d.i2c.Tx([]byte{cmdSetReadPtr, regPCR}, nil) == nil {
		return DS2483
	}
	if d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, nil) == nil {
		return DS2482x800
	}
	return DS2482x100
}

// adjustPort programs the DS2483 1-wire timings and passive pull-up, each
// value rounded to the closest step the chip supports.
func (d *Dev) adjustPort(opts *Opts) error {
	us := func(t time.Duration) time.Duration { return t / time.Microsecond }
	w := []byte{cmdAdjPort,
		0x00 | byte((us(opts.ResetLow)-430)/20&0x0f),
		0x20 | byte((us(opts.PresenceDetect)-55)/2&0x0f),
		0x40 | byte((us(opts.Write0Low)-51)/2&0x0f),
		0x60 | byte(((opts.Write0Recovery-1250)/2500+5)&0x0f),
		0x80 | byte(opts.PullupRes&0x0f),
	}
	if err := d.i2c.Tx(w, nil); err != nil {
		return fmt.Errorf("ds248x: adjusting port: %v", err)
	}
	return nil
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

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ onewire.BusSearcher = &Dev{}

const (
	cmdReset         = 0xf0 // reset ds248x
	cmdSetReadPtr    = 0xe1 // set the read pointer
	cmdWriteConfig   = 0xd2 // write the device configuration
	cmdAdjPort       = 0xc3 // adjust 1-wire port (ds2483)
	cmdChannelSelect = 0xc3 // channel select (ds2482-800)
	cmd1WReset       = 0xb4 // reset the 1-wire bus
	cmd1WWrite       = 0xa5 // perform a byte write on the 1-wire bus
	cmd1WRead        = 0x96 // perform a byte read on the 1-wire bus
	cmd1WTriplet     = 0x78 // perform a triplet operation (2 bit reads, a bit write)

	regStatus = 0xf0 // read ptr for status register
	regRDR    = 0xe1 // read ptr for read-data register
	regPCR    = 0xb4 // read ptr for port configuration register
	regCSR    = 0xd2 // read ptr for channel selection register

	status1WB = 0x01 // 1-wire busy
	statusPPD = 0x02 // presence pulse detected
	statusSD  = 0x04 // short detected
	statusSBR = 0x20 // single bit result
	statusTSB = 0x40 // triplet second bit

	statusAfterReset = 0x18 // RST and LL set

	// Standard speed, no strong pull-up, no power down. The high nibble is
	// the complement of the low one.
	confActivePullup  = 0xe1
	confPassivePullup = 0xf0

	idleTimeout = 3 * time.Millisecond
)

// channelCodes are the ds2482-800 channel selection codes, as written and as
// read back.
var channelCodes = [8]struct{ w, r byte }{
	{0xf0, 0xb8},
	{0xe1, 0xb1},
	{0xd2, 0xaa},
	{0xc3, 0xa3},
	{0xb4, 0x9c},
	{0xa5, 0x95},
	{0x96, 0x8e},
	{0x87, 0x87},
}
