// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/GermanBionicSystems/tsense/ds18b20"
	"github.com/pkg/errors"
)

// Config is the content of the JSON configuration file.
type Config struct {
	Bus BusConfig `json:"bus"`
	// Sensors to read, in display order. When empty, every sensor found on
	// the bus is read.
	Sensors []SensorConfig `json:"sensors"`
	// Interval between two polls of the driver. It bounds how late a reading
	// can be, not how often sensors convert.
	Interval  Duration         `json:"interval"`
	MQTT      *MQTTConfig      `json:"mqtt,omitempty"`
	Influx    *InfluxConfig    `json:"influx,omitempty"`
	HeatStrip *HeatStripConfig `json:"heatstrip,omitempty"`
}

// BusConfig selects the 1-wire master.
type BusConfig struct {
	// Driver is "ds248x" or "ds9097".
	Driver string `json:"driver"`
	// I2C bus name for ds248x, "" for the first one.
	I2C string `json:"i2c"`
	// Addr of the ds248x on the I²C bus.
	Addr uint16 `json:"addr"`
	// Channel of a DS2482-800.
	Channel int `json:"channel"`
	// Port is the serial device of a ds9097.
	Port string `json:"port"`
}

// SensorConfig names one sensor.
type SensorConfig struct {
	Addr string `json:"addr"`
	Name string `json:"name"`
}

// MQTTConfig enables publishing readings.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Prefix   string `json:"prefix"`
}

// InfluxConfig enables storing readings in InfluxDB 2.
type InfluxConfig struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	Org         string `json:"org"`
	Bucket      string `json:"bucket"`
	Measurement string `json:"measurement"`
}

// HeatStripConfig enables the terminal heat strip.
type HeatStripConfig struct {
	Cold float64 `json:"cold"`
	Hot  float64 `json:"hot"`
}

// Duration is a time.Duration written as "250ms" in JSON.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func defaultConfig() Config {
	return Config{
		Bus:      BusConfig{Driver: "ds248x", Addr: 0x18},
		Interval: Duration(100 * time.Millisecond),
	}
}

// loadConfig reads path over the defaults and validates the result.
func loadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading config file %s", path)
	}
	c := defaultConfig()
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrapf(err, "failed unmarshalling json config %s", path)
	}
	if err := c.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch c.Bus.Driver {
	case "ds248x":
		if c.Bus.Channel < 0 || c.Bus.Channel > 7 {
			return errors.Errorf("channel %d out of range 0..7", c.Bus.Channel)
		}
	case "ds9097":
		if c.Bus.Port == "" {
			return errors.New("ds9097 needs a serial port")
		}
	default:
		return errors.Errorf("unknown bus driver %q", c.Bus.Driver)
	}
	if c.Interval <= 0 {
		return errors.Errorf("interval %s must be positive", time.Duration(c.Interval))
	}
	for i, s := range c.Sensors {
		if _, err := ds18b20.ParseAddress(s.Addr); err != nil {
			return errors.Wrapf(err, "sensor %d", i+1)
		}
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		return errors.New("mqtt needs a broker")
	}
	if c.Influx != nil && (c.Influx.URL == "" || c.Influx.Bucket == "") {
		return errors.New("influx needs an url and a bucket")
	}
	return nil
}

// registry numbers the configured sensors in order and names them. Without
// configured sensors, the built-in ds18b20.KnownSensors are used.
func (c *Config) registry() (ds18b20.Registry, error) {
	if len(c.Sensors) == 0 {
		return ds18b20.NewRegistry(ds18b20.KnownSensors...)
	}
	addrs := make([]string, 0, len(c.Sensors))
	for _, s := range c.Sensors {
		addrs = append(addrs, s.Addr)
	}
	r, err := ds18b20.NewRegistry(addrs...)
	if err != nil {
		return nil, err
	}
	for _, s := range c.Sensors {
		if s.Name != "" {
			a, _ := ds18b20.ParseAddress(s.Addr)
			r.Add(a, s.Name)
		}
	}
	return r, nil
}
