// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds9097 drives a 1-wire bus through a serial port, as done by the
// DS9097 family of passive adapters and by a bare UART with TX and RX tied
// together through a diode.
//
// A reset is a 0xf0 byte at 9600 baud; each 1-wire time slot is then one byte
// at 115200 baud, 0xff to write a 1 or to read, 0x00 to write a 0.
package ds9097
