// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"periph.io/x/conn/v3/onewire"
)

// Address is the 64-bit ROM code of a device, in the order the bytes travel
// on the wire:
//
//	byte 0      family code
//	bytes 1..6  48-bit serial number
//	byte 7      CRC8 of bytes 0..6
//
// The textual form is 16 uppercase hex digits in the same order, e.g.
// "289608A19D230B89".
type Address [8]byte

// ParseAddress decodes 16 hex digits into an Address.
//
// It does not check the CRC; use Valid before talking to the device.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != 2*len(a) {
		return a, BadAddr
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, BadAddr
	}
	return a, nil
}

// FromOneWire converts a periph onewire.Address, which stores the family code
// in its least significant byte.
func FromOneWire(o onewire.Address) Address {
	var a Address
	binary.LittleEndian.PutUint64(a[:], uint64(o))
	return a
}

// OneWire returns the address in periph's representation.
func (a Address) OneWire() onewire.Address {
	return onewire.Address(binary.LittleEndian.Uint64(a[:]))
}

// Family returns the family code.
func (a Address) Family() Family {
	return Family(a[0])
}

// Valid reports whether the trailing CRC8 matches the first 7 bytes.
func (a Address) Valid() bool {
	return onewire.CalcCRC(a[:7]) == a[7]
}

func (a Address) String() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}
