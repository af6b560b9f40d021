// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// Bus is a 1-wire bus master driven one primitive at a time.
//
// Unlike onewire.Bus, which bundles reset, write and read in a single Tx, Bus
// lets the driver see the presence pulse of each reset. ds248x.Dev and
// ds9097.Dev implement both.
type Bus interface {
	String() string
	// Reset issues a bus reset and reports whether any device answered with a
	// presence pulse.
	Reset() (bool, error)
	// Write sends one byte. With onewire.StrongPullup the bus is held high
	// after the byte.
	Write(b byte, power onewire.Pullup) error
	// Read clocks in one byte.
	Read() (byte, error)
	// Search enumerates the devices on the bus.
	Search(alarmOnly bool) ([]onewire.Address, error)
}

// Opts contains options to pass to the constructor.
type Opts struct {
	// Registry labels known sensors in diagnostics. May be nil.
	Registry Registry
	// Logger receives diagnostics. Defaults to log.Default() with a
	// "ds18b20" prefix.
	Logger *log.Logger
}

// New returns a driver owning the bus b.
//
// Dev is not safe for concurrent use: the bus has no locking of its own and
// a transaction must never interleave with another. One loop owns the Dev and
// polls it, see Poll.
func New(b Bus, opts *Opts) *Dev {
	d := &Dev{bus: b}
	if opts != nil {
		d.registry = opts.Registry
		d.log = opts.Logger
	}
	if d.log == nil {
		d.log = log.Default().WithPrefix("ds18b20")
	}
	d.rep.log = d.log
	return d
}

// Dev is a handle to the DS18x20 temperature sensors sharing one 1-wire bus.
type Dev struct {
	bus      Bus
	registry Registry
	log      *log.Logger
	sched    scheduler
	rep      reporter
}

// SensorInfo describes a sensor found by Init.
type SensorInfo struct {
	Addr       Address
	Label      Label // zero if not Known
	Known      bool
	Resolution int // 9..12, 0 if it could not be read
}

func (d *Dev) String() string {
	return "DS18x20{" + d.bus.String() + "}"
}

// Halt implements conn.Resource.
//
// A conversion in flight cannot be cancelled; the hardware always completes
// it.
func (d *Dev) Halt() error {
	return nil
}

// Init enumerates the bus, validates and reports every sensor found, then
// starts the first conversion.
//
// Devices with a corrupted ROM code are BadAddr. Devices of another family
// only produce a warning since other 1-wire devices may share the bus.
// The first fault encountered is returned along with everything found.
func (d *Dev) Init() ([]SensorInfo, error) {
	d.log.Info("init", "bus", d.bus.String())
	d.rep.ok()

	var fault error
	found, err := d.bus.Search(false)
	if err != nil {
		// Keep whatever was discovered before the failure.
		fault = d.rep.fail(BusFault, nil, err)
	}

	var infos []SensorInfo
	enum := d.log.WithPrefix(subPrefix(d.log, "enumerate"))
	for _, o := range found {
		a := FromOneWire(o)
		if !a.Valid() {
			if err := d.rep.fail(BadAddr, &a, nil); fault == nil {
				fault = err
			}
			continue
		}
		if !a.Family().Supported() {
			enum.Warn("invalid family", "addr", a.String(), "family", byte(a.Family()))
			continue
		}
		info := SensorInfo{Addr: a}
		info.Label, info.Known = d.registry.Lookup(a)
		if !info.Known {
			enum.Warn("could not find known sensor", "addr", a.String())
		}
		info.Resolution, err = d.resolution(a)
		if err != nil && fault == nil {
			fault = err
		}
		enum.Info("sensor", "known", info.Label.Ordinal, "res", info.Resolution, "addr", a.String())
		infos = append(infos, info)
	}

	if fault == nil && len(infos) == 0 {
		fault = d.rep.fail(NoDevices, nil, nil)
	}
	if err := d.Measure(); fault == nil {
		fault = err
	}
	d.rep.last = CodeOf(fault)
	return infos, fault
}

// subPrefix derives the prefix of nested diagnostics from the one of l.
func subPrefix(l *log.Logger, name string) string {
	if p := l.GetPrefix(); p != "" {
		return p + "/" + name
	}
	return name
}

// resolution reads the configuration register of a. The DS18S20 has none
// and always converts to 9 bits extended to 12 by the count registers.
func (d *Dev) resolution(a Address) (int, error) {
	if a.Family() == DS18S20 {
		return 12, nil
	}
	spad, err := d.readScratchpad(a)
	if err != nil {
		return 0, err
	}
	if r := spad.Resolution(); r != 0 {
		return r, nil
	}
	return 0, d.rep.fail(BadConfig, &a, nil)
}

// Measure starts a conversion on every device of the bus at once.
//
// It returns Pending without touching the deadline while a conversion is in
// flight; restarting would only push the deadline back.
func (d *Dev) Measure() error {
	if d.sched.poll() {
		return d.rep.fail(Pending, nil, nil)
	}
	if err := d.reset(nil, NoDevices); err != nil {
		return err
	}
	// Skip ROM addresses every device; the weak pull-up means no parasite
	// power.
	if err := d.bus.Write(cmdSkipROM, onewire.WeakPullup); err != nil {
		return d.rep.fail(BusFault, nil, err)
	}
	if err := d.bus.Write(cmdConvertT, onewire.WeakPullup); err != nil {
		return d.rep.fail(BusFault, nil, err)
	}
	d.sched.arm()
	d.rep.ok()
	return nil
}

// Pending reports whether a conversion is in flight. It never blocks and is
// meant to be called once per loop iteration.
//
// It returns false exactly once per conversion at the first call at or after
// ConversionTimeout, and keeps returning false until Measure is called.
func (d *Dev) Pending() bool {
	return d.sched.poll()
}

// Remaining returns the time left before the conversion in flight is done, 0
// if none is.
func (d *Dev) Remaining() time.Duration {
	return d.sched.remaining()
}

// LastError returns the fault of the last operation, OK if it succeeded.
func (d *Dev) LastError() Code {
	return d.rep.last
}

// Open validates addr and returns a handle to read the sensor at it. The
// decoding of the sensor family is chosen once here.
//
// A malformed or corrupted address is rejected before any bus transaction.
func (d *Dev) Open(addr string) (*Sensor, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, d.rep.fail(BadAddr, nil, errors.New("cannot parse "+addr))
	}
	if !a.Valid() {
		return nil, d.rep.fail(BadAddr, &a, nil)
	}
	s := &Sensor{dev: d, addr: a, decode: a.Family().decoder()}
	s.label, s.known = d.registry.Lookup(a)
	d.rep.ok()
	return s, nil
}

// Temperature is a shorthand for Open followed by LastTemp.
func (d *Dev) Temperature(addr string) (Fixed, error) {
	s, err := d.Open(addr)
	if err != nil {
		return 0, err
	}
	return s.LastTemp()
}

// Sample is the outcome of reading one sensor in Poll.
type Sample struct {
	Sensor *Sensor
	Temp   Fixed
	Err    error
}

// Poll runs one iteration of the acquisition cycle.
//
// While a conversion is pending it does nothing and returns done == false.
// Otherwise it reads every sensor, which yields the conversion that just
// completed, and starts the next one. err is the outcome of that restart.
func (d *Dev) Poll(sensors []*Sensor) (samples []Sample, done bool, err error) {
	if d.Pending() {
		return nil, false, nil
	}
	samples = make([]Sample, 0, len(sensors))
	for _, s := range sensors {
		t, err := s.LastTemp()
		samples = append(samples, Sample{Sensor: s, Temp: t, Err: err})
	}
	return samples, true, d.Measure()
}

// reset resets the bus and reports absent if nothing answers.
func (d *Dev) reset(a *Address, absent Code) error {
	present, err := d.bus.Reset()
	if err != nil {
		return d.rep.fail(BusFault, a, err)
	}
	if !present {
		return d.rep.fail(absent, a, nil)
	}
	return nil
}

// selectROM addresses a single device for the command that follows.
func (d *Dev) selectROM(a Address) error {
	if err := d.bus.Write(cmdMatchROM, onewire.WeakPullup); err != nil {
		return err
	}
	for _, b := range a {
		if err := d.bus.Write(b, onewire.WeakPullup); err != nil {
			return err
		}
	}
	return nil
}

// Sensor is one temperature sensor on the bus of a Dev.
type Sensor struct {
	dev    *Dev
	addr   Address
	decode decodeFunc
	label  Label
	known  bool
}

// Addr returns the ROM code of the sensor.
func (s *Sensor) Addr() Address {
	return s.addr
}

// Label returns the registry label of the sensor, if it has one.
func (s *Sensor) Label() (Label, bool) {
	return s.label, s.known
}

func (s *Sensor) String() string {
	return s.addr.Family().String() + "{" + s.addr.String() + "}"
}

// LastTemp reads the result of the last conversion.
//
// It fails with Pending while a conversion is in flight since the scratchpad
// may hold a stale value.
func (s *Sensor) LastTemp() (Fixed, error) {
	d := s.dev
	if d.sched.poll() {
		return 0, d.rep.fail(Pending, &s.addr, nil)
	}
	spad, err := d.readScratchpad(s.addr)
	if err != nil {
		return 0, err
	}
	d.rep.ok()
	return s.decode(&spad), nil
}

// Halt implements conn.Resource.
func (s *Sensor) Halt() error {
	return nil
}

// Sense implements physic.SenseEnv.
//
// It does not start a conversion; it returns the last one, see Dev.Measure.
func (s *Sensor) Sense(e *physic.Env) error {
	t, err := s.LastTemp()
	if err != nil {
		return err
	}
	e.Temperature = t.Temperature()
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// Sensors share the conversion scheduled by their Dev, which must be polled
// from the loop owning it. Use Dev.Poll instead.
func (s *Sensor) SenseContinuous(time.Duration) (<-chan physic.Env, error) {
	return nil, errors.New("ds18b20: conversions are driven by Dev.Poll")
}

// Precision implements physic.SenseEnv.
func (s *Sensor) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 16
}

const (
	cmdMatchROM    = 0x55 // address a single device
	cmdSkipROM     = 0xcc // address every device
	cmdConvertT    = 0x44 // start a temperature conversion
	cmdReadScratch = 0xbe // read the scratchpad
)

var _ conn.Resource = &Dev{}
var _ conn.Resource = &Sensor{}
var _ physic.SenseEnv = &Sensor{}
