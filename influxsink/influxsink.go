// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package influxsink stores temperature readings in InfluxDB 2.
//
// Each successful sample becomes one point with the sensor address, and label
// when known, as tags and the temperature in °C as the "celsius" field.
// Failed samples are not written.
package influxsink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/tsense/ds18b20"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Opts contains options to pass to New.
type Opts struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// Measurement defaults to "temperature".
	Measurement string
}

// pointWriter is the part of api.WriteAPIBlocking used here.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink writes samples to a bucket.
type Sink struct {
	w           pointWriter
	close       func()
	measurement string
}

// New returns a sink writing to opts.Bucket. No connection is made until the
// first write.
func New(opts *Opts) (*Sink, error) {
	if opts.URL == "" || opts.Bucket == "" {
		return nil, errors.New("influxsink: url and bucket are required")
	}
	c := influxdb2.NewClient(opts.URL, opts.Token)
	s := newSink(c.WriteAPIBlocking(opts.Org, opts.Bucket), opts.Measurement)
	s.close = c.Close
	return s, nil
}

func newSink(w pointWriter, measurement string) *Sink {
	if measurement == "" {
		measurement = "temperature"
	}
	return &Sink{w: w, close: func() {}, measurement: measurement}
}

func (s *Sink) String() string {
	return "InfluxSink{" + s.measurement + "}"
}

// Point converts a sample taken at ts. It returns nil for a failed sample or
// one without a sensor.
func Point(measurement string, smp ds18b20.Sample, ts time.Time) *write.Point {
	if smp.Err != nil || smp.Sensor == nil {
		return nil
	}
	tags := map[string]string{"addr": smp.Sensor.Addr().String()}
	if l, ok := smp.Sensor.Label(); ok {
		tags["label"] = l.String()
	}
	fields := map[string]interface{}{"celsius": smp.Temp.Celsius()}
	return influxdb2.NewPoint(measurement, tags, fields, ts)
}

// Write stores every successful sample of one cycle in a single batch.
func (s *Sink) Write(ctx context.Context, samples []ds18b20.Sample, ts time.Time) error {
	points := make([]*write.Point, 0, len(samples))
	for _, smp := range samples {
		if p := Point(s.measurement, smp, ts); p != nil {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.w.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influxsink: %v", err)
	}
	return nil
}

// Close flushes and releases the client.
func (s *Sink) Close() error {
	s.close()
	return nil
}
