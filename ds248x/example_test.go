// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x_test

import (
	"fmt"
	"log"

	"github.com/GermanBionicSystems/tsense/ds248x"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// Use i2creg I²C bus registry to find the first available I²C bus.
	b, err := i2creg.Open("")
	if err != nil {
		log.Fatalf("failed to open I²C: %v", err)
	}
	defer b.Close()

	opts := ds248x.DefaultOpts
	opts.Channel = 2 // DS2482-800 only
	d, err := ds248x.New(b, 0x18, &opts)
	if err != nil {
		log.Fatalf("failed to open %s: %v", b, err)
	}
	addrs, err := d.Search(false)
	if err != nil {
		log.Fatal(err)
	}
	for _, a := range addrs {
		fmt.Printf("%#016x\n", a)
	}
}
