// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// tsense reads DS18x20 temperature sensors on a 1-wire bus and logs every
// reading. Readings can also be shown on the terminal, published over MQTT
// and stored in InfluxDB.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/GermanBionicSystems/tsense/ds18b20"
	"github.com/GermanBionicSystems/tsense/ds248x"
	"github.com/GermanBionicSystems/tsense/ds9097"
	"github.com/GermanBionicSystems/tsense/heatstrip"
	"github.com/GermanBionicSystems/tsense/influxsink"
	"github.com/GermanBionicSystems/tsense/mqttpub"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// bus is a 1-wire master the command can close.
type bus interface {
	ds18b20.Bus
	Close() error
}

// i2cMaster owns the I²C bus under a ds248x.
type i2cMaster struct {
	*ds248x.Dev
	closer interface{ Close() error }
}

func (m *i2cMaster) Close() error {
	return m.closer.Close()
}

func openBus(c *BusConfig) (bus, error) {
	switch c.Driver {
	case "ds9097":
		d, err := ds9097.Open(c.Port)
		if err != nil {
			return nil, errors.Wrap(err, "failed opening serial adapter")
		}
		return d, nil
	default:
		i, err := i2creg.Open(c.I2C)
		if err != nil {
			return nil, errors.Wrapf(err, "failed opening I²C bus %q", c.I2C)
		}
		opts := ds248x.DefaultOpts
		opts.Channel = c.Channel
		d, err := ds248x.New(i, c.Addr, &opts)
		if err != nil {
			i.Close()
			return nil, errors.Wrapf(err, "failed opening ds248x at %#x", c.Addr)
		}
		return &i2cMaster{Dev: d, closer: i}, nil
	}
}

// openSensors opens the configured sensors or, when none are, every sensor
// Init found.
func openSensors(dev *ds18b20.Dev, c *Config, found []ds18b20.SensorInfo) []*ds18b20.Sensor {
	var addrs []string
	for _, s := range c.Sensors {
		addrs = append(addrs, s.Addr)
	}
	if len(addrs) == 0 {
		for _, info := range found {
			addrs = append(addrs, info.Addr.String())
		}
	}
	var sensors []*ds18b20.Sensor
	for _, a := range addrs {
		// Failures are logged by the driver.
		if s, err := dev.Open(a); err == nil {
			sensors = append(sensors, s)
		}
	}
	return sensors
}

func mainImpl() error {
	config := flag.String("config", "tsense.json", "path of the configuration file")
	interval := flag.Duration("interval", 0, "poll interval, overrides the configuration")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	lvl, err := log.ParseLevel(*level)
	if err != nil {
		return errors.Wrap(err, "invalid -log-level")
	}
	log.SetLevel(lvl)

	c, err := loadConfig(*config)
	if err != nil {
		return err
	}
	if *interval > 0 {
		c.Interval = Duration(*interval)
	}
	reg, err := c.registry()
	if err != nil {
		return err
	}

	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "failed initializing host drivers")
	}
	b, err := openBus(&c.Bus)
	if err != nil {
		return err
	}
	defer b.Close()

	dev := ds18b20.New(b, &ds18b20.Opts{Registry: reg})
	found, err := dev.Init()
	if err != nil {
		// Keep going: faulty sensors are retried every cycle.
		log.Warn("init incomplete", "err", err)
	}
	sensors := openSensors(dev, c, found)
	if len(sensors) == 0 {
		return errors.New("no sensor to read")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var strip *heatstrip.Dev
	if c.HeatStrip != nil {
		if strip, err = heatstrip.New(len(sensors), &heatstrip.Opts{Cold: c.HeatStrip.Cold, Hot: c.HeatStrip.Hot}); err != nil {
			return err
		}
		defer strip.Halt()
	}
	var pub *mqttpub.Client
	if c.MQTT != nil {
		opts := mqttpub.DefaultOpts
		opts.Broker = c.MQTT.Broker
		if c.MQTT.ClientID != "" {
			opts.ClientID = c.MQTT.ClientID
		}
		if c.MQTT.Prefix != "" {
			opts.Prefix = c.MQTT.Prefix
		}
		if pub, err = mqttpub.Connect(ctx, &opts); err != nil {
			return errors.Wrap(err, "failed connecting to MQTT broker")
		}
		defer pub.Close(context.Background())
	}

	var sink *influxsink.Sink
	if c.Influx != nil {
		if sink, err = influxsink.New(&influxsink.Opts{
			URL:         c.Influx.URL,
			Token:       c.Influx.Token,
			Org:         c.Influx.Org,
			Bucket:      c.Influx.Bucket,
			Measurement: c.Influx.Measurement,
		}); err != nil {
			return err
		}
		defer sink.Close()
	}

	t := time.NewTicker(time.Duration(c.Interval))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		samples, done, _ := dev.Poll(sensors)
		if !done {
			continue
		}
		for _, s := range samples {
			if s.Err == nil {
				log.Info("reading", "sensor", s.Sensor.String(), "temp", s.Temp.String())
			}
		}
		if strip != nil {
			if err := strip.Update(samples); err != nil {
				return err
			}
		}
		if pub != nil {
			// Failures are logged and the next cycle publishes again.
			_ = pub.PublishAll(ctx, samples)
		}
		if sink != nil {
			if err := sink.Write(ctx, samples, time.Now()); err != nil {
				log.Error("store", "err", err)
			}
		}
	}
}

func main() {
	if err := mainImpl(); err != nil {
		log.Error("tsense", "err", err)
		os.Exit(1)
	}
}
