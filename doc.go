// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tsense is a container for the packages of a non-blocking DS18x20
// temperature acquisition stack.
//
// ds18b20 is the sensor driver. It runs over any 1-wire master implementing
// ds18b20.Bus: ds248x for the I²C DS2482/DS2483 bridges, ds9097 for a serial
// port. heatstrip, mqttpub and influxsink consume the readings, and cmd/tsense wires
// everything together.
package tsense
