// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 reads Dallas Semi / Maxim DS18B20, DS18S20, DS1822, DS1825
// and DS28EA00 temperature sensors sharing one 1-wire bus without ever
// blocking the caller.
//
// A 12-bit conversion takes up to 750ms. Instead of converting and waiting per
// sensor, Dev broadcasts a single conversion to every sensor on the bus and
// lets the caller poll for the shared deadline while it does other work:
//
//	for range ticker.C {
//		if !dev.Pending() {
//			for _, s := range sensors {
//				t, err := s.LastTemp() // the conversion that just completed
//				...
//			}
//			dev.Measure() // start the next one
//		}
//		// other time critical work
//	}
//
// Dev.Poll wraps exactly that. Sensor addresses are printed by Dev.Init, which
// also starts the first conversion.
//
// Every failure is returned immediately and never retried: the next cycle is
// the retry. Dev.LastError keeps the fault of the last operation.
//
// Parasite powered sensors, alarm programming and changing the resolution are
// not supported.
//
// Datasheets
//
// https://datasheets.maximintegrated.com/en/ds/DS18B20.pdf
//
// https://datasheets.maximintegrated.com/en/ds/DS18S20.pdf
package ds18b20
