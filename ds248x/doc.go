// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds248x controls a Maxim DS2482-100, DS2482-800 or DS2483 1-wire
// interface chip over I²C.
//
// Besides onewire.Bus it exposes the individual bus primitives, reset with
// presence detection, byte write and byte read, so drivers can react to each
// step of a transaction.
//
// Datasheets
//
// https://www.maximintegrated.com/en/products/interface/controllers-expanders/DS2482-100.html
//
// https://www.maximintegrated.com/en/products/interface/controllers-expanders/DS2482-800.html
//
// https://www.maximintegrated.com/en/products/interface/controllers-expanders/DS2483.html
package ds248x
