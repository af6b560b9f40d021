// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"

	"github.com/charmbracelet/log"
)

// Code is a fault reported by Dev.
//
// Every fault is recoverable: temperatures are re-sampled on every cycle so a
// dropped reading heals by itself on the next one.
//
// Code implements error so it can be matched with errors.Is against the
// *Error values returned by Dev.
type Code int

const (
	OK Code = iota
	// NoDevices means no presence pulse followed a bus reset.
	NoDevices
	// Offline means the device answered the read but was gone on the
	// following reset.
	Offline
	// EmptyData means the scratchpad read back as all zeros; the device never
	// performed a conversion.
	EmptyData
	// BadAddr means the ROM code failed its CRC8 or could not be parsed.
	BadAddr
	// BadCRC means the scratchpad failed its CRC8.
	BadCRC
	// BadConfig means the configuration register holds no known resolution.
	BadConfig
	// Pending means a conversion is still in flight.
	Pending
	// BusFault means the bus master itself failed; the wrapped error has the
	// details.
	BusFault
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case NoDevices:
		return "NO_DEVICES"
	case Offline:
		return "OFFLINE"
	case EmptyData:
		return "EMPTY_DATA"
	case BadAddr:
		return "BAD_ADDR"
	case BadCRC:
		return "BAD_CRC"
	case BadConfig:
		return "BAD_CONFIG"
	case Pending:
		return "PENDING"
	case BusFault:
		return "BUS_FAULT"
	default:
		return "UNKNOWN"
	}
}

func (c Code) Error() string {
	return "ds18b20: " + c.String()
}

// Error is the error returned by Dev operations.
type Error struct {
	Code Code
	// Addr is the device involved, if any.
	Addr *Address
	// Err is the transport error behind a BusFault.
	Err error
}

func (e *Error) Error() string {
	s := e.Code.Error()
	if e.Addr != nil {
		s += " addr=" + e.Addr.String()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns both the Code and the underlying transport error.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Err}
}

// BusError implements onewire.BusError.
func (e *Error) BusError() bool {
	return e.Code != BadAddr && e.Code != Pending
}

// CodeOf returns the Code carried by err, OK for nil and BusFault for any
// error that did not originate from this package.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return BusFault
}

// reporter keeps the sticky last-error state and emits one diagnostic per
// fault.
type reporter struct {
	log  *log.Logger
	last Code
}

func (r *reporter) ok() {
	r.last = OK
}

func (r *reporter) fail(c Code, addr *Address, err error) error {
	r.last = c
	kv := []interface{}{"code", c.String()}
	if addr != nil {
		kv = append(kv, "addr", addr.String())
	}
	if err != nil {
		kv = append(kv, "err", err)
	}
	r.log.Error("tsense error", kv...)
	return &Error{Code: c, Addr: addr, Err: err}
}
