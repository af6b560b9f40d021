// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"strconv"

	"periph.io/x/conn/v3/physic"
)

// Family code of the specific device type
type Family byte

const (
	DS18S20  Family = 0x10 // also DS1820
	DS18B20  Family = 0x28 // also MAX31820
	DS1822   Family = 0x22
	DS1825   Family = 0x3B
	DS28EA00 Family = 0x42
)

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS18B20:
		return "DS18B20"
	case DS1822:
		return "DS1822"
	case DS1825:
		return "DS1825"
	case DS28EA00:
		return "DS28EA00"
	default:
		return "unknown"
	}
}

// Supported reports whether f is a temperature sensor this package decodes.
func (f Family) Supported() bool {
	switch f {
	case DS18S20, DS18B20, DS1822, DS1825, DS28EA00:
		return true
	}
	return false
}

// decoder returns the conversion used for the family. Unknown families get
// the 12-bit layout, which is what every device but the DS18S20 uses.
func (f Family) decoder() decodeFunc {
	if f == DS18S20 {
		return decodeLegacy
	}
	return decodeNative
}

// Fixed is a temperature in degrees Celsius scaled by 2⁻⁷.
//
// This leaves two bits of headroom below the 1/16°C native resolution, which
// the DS18S20 extended-resolution correction uses.
type Fixed int16

// Celsius returns f in degrees Celsius.
func (f Fixed) Celsius() float64 {
	return float64(f) * 0.0078125
}

// Temperature converts f to a physic.Temperature. The conversion is exact:
// 2⁻⁷ K is 7812500 nK.
func (f Fixed) Temperature() physic.Temperature {
	return physic.Temperature(f)*7812500*physic.NanoKelvin + physic.ZeroCelsius
}

func (f Fixed) String() string {
	return strconv.FormatFloat(f.Celsius(), 'f', -1, 64) + "°C"
}

type decodeFunc func(s *Scratchpad) Fixed

// decodeNative places the 12-bit two's complement register, in 1/16°C, into
// the 2⁻⁷ fixed point. Bits above the sign are shifted out.
func decodeNative(s *Scratchpad) Fixed {
	return Fixed(int16(uint16(s[tempMSB])<<11 | uint16(s[tempLSB])<<3))
}

// decodeLegacy handles the DS18S20, whose register only holds half degrees.
// The extended resolution is recovered from the count registers (datasheet
// p.6):
//
//	T = TEMP_READ - 0.25 + (COUNT_PER_C - COUNT_REMAIN) / COUNT_PER_C
func decodeLegacy(s *Scratchpad) Fixed {
	raw := decodeNative(s)
	perC := int(s[countPerC])
	if perC == 0 {
		return raw
	}
	// Drop the half degree bit and rescale whole degrees to 2⁻⁷.
	t := int16((uint16(raw)&0xfff0)<<3) - 32
	t += int16(((perC - int(s[countRemain])) << 7) / perC)
	return Fixed(t)
}
