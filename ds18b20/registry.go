// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import "fmt"

// KnownSensors lists the labelled sensors of the reference installation, in
// label order. NewRegistry(KnownSensors...) numbers them from 1.
var KnownSensors = []string{
	"289608A19D230B89",
	"28D38090C3230657",
	"283A0FE0C0230941",
	"2866130A9E230B2E",
	"286081DBC0230915",
}

// Label identifies a known sensor in diagnostics.
type Label struct {
	Ordinal int    // 1-based position in the configuration list
	Name    string // optional human name
}

func (l Label) String() string {
	if l.Name == "" {
		return fmt.Sprintf("#%d", l.Ordinal)
	}
	return fmt.Sprintf("#%d %s", l.Ordinal, l.Name)
}

// Registry maps known addresses to their labels. It is read-only once built.
//
// A miss is not a fault: other devices may legitimately share the bus.
type Registry map[Address]Label

// NewRegistry builds a registry from hex addresses, numbering them in order
// starting at 1. An address listed twice is refused since it would leave a
// hole in the numbering.
func NewRegistry(addrs ...string) (Registry, error) {
	r := make(Registry, len(addrs))
	for i, s := range addrs {
		a, err := ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("ds18b20: registry entry %d %q: %w", i+1, s, err)
		}
		if l, ok := r[a]; ok {
			return nil, fmt.Errorf("ds18b20: registry entry %d %q duplicates entry %d", i+1, s, l.Ordinal)
		}
		r[a] = Label{Ordinal: i + 1}
	}
	return r, nil
}

// Add names a and returns its label. A new address gets the ordinal after
// the highest in use.
func (r Registry) Add(a Address, name string) Label {
	l, ok := r[a]
	if !ok {
		for _, o := range r {
			if o.Ordinal > l.Ordinal {
				l.Ordinal = o.Ordinal
			}
		}
		l.Ordinal++
	}
	l.Name = name
	r[a] = l
	return l
}

// Lookup returns the label of a, if known.
func (r Registry) Lookup(a Address) (Label, bool) {
	l, ok := r[a]
	return l, ok
}
