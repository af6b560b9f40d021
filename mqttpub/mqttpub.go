// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mqttpub publishes temperature readings to an MQTT broker.
//
// Each sample is sent as a JSON Reading to <prefix>/<address> with QoS 1.
// The connection is kept up and reestablished by autopaho.
package mqttpub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/GermanBionicSystems/tsense/ds18b20"
	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// Opts contains options to pass to Connect.
type Opts struct {
	// Broker is the server URL, e.g. "mqtt://localhost:1883".
	Broker   string
	ClientID string
	// Prefix of every topic. Defaults to "tsense".
	Prefix string
	// Logger defaults to log.Default() with a "mqtt" prefix.
	Logger *log.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ClientID: "tsense",
	Prefix:   "tsense",
}

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 4 * time.Second
	keepAlive      = 20 // s
	sessionExpiry  = 60 // s
)

// Reading is the payload of one sample.
type Reading struct {
	Addr  string `json:"addr"`
	Label string `json:"label,omitempty"`
	// Celsius is omitted when the sensor could not be read.
	Celsius *float64 `json:"celsius,omitempty"`
	// Error is the fault code name, e.g. "BAD_CRC".
	Error string `json:"error,omitempty"`
}

// NewReading converts a sample to its payload.
func NewReading(s ds18b20.Sample) Reading {
	var r Reading
	if s.Sensor != nil {
		r.Addr = s.Sensor.Addr().String()
		if l, ok := s.Sensor.Label(); ok {
			r.Label = l.String()
		}
	}
	if s.Err != nil {
		r.Error = ds18b20.CodeOf(s.Err).String()
	} else {
		c := s.Temp.Celsius()
		r.Celsius = &c
	}
	return r
}

// Topic returns the topic readings of a are published to.
func Topic(prefix string, a ds18b20.Address) string {
	return prefix + "/" + a.String()
}

// publisher is the part of autopaho.ConnectionManager used here.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Disconnect(ctx context.Context) error
}

// Client publishes samples.
type Client struct {
	conn   publisher
	prefix string
	log    *log.Logger
}

// Connect connects to the broker and waits for the first connection up to
// a few seconds. Reconnection afterward happens in the background.
func Connect(ctx context.Context, opts *Opts) (*Client, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	u, err := url.Parse(opts.Broker)
	if err != nil {
		return nil, fmt.Errorf("mqttpub: broker %q: %v", opts.Broker, err)
	}
	c := newClient(nil, opts)
	cfg := autopaho.ClientConfig{
		ServerUrls:            []*url.URL{u},
		KeepAlive:             keepAlive,
		SessionExpiryInterval: sessionExpiry,
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			c.log.Info("connected", "broker", u.String())
		},
		OnConnectError: func(err error) {
			c.log.Error("connection failed", "err", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: opts.ClientID,
			OnClientError: func(err error) {
				c.log.Error("client error", "err", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.log.Warn("disconnected by broker", "reason", d.ReasonCode)
			},
		},
	}
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mqttpub: %v", err)
	}
	wait, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(wait); err != nil {
		return nil, fmt.Errorf("mqttpub: %s: %v", u, err)
	}
	c.conn = cm
	return c, nil
}

func newClient(conn publisher, opts *Opts) *Client {
	c := &Client{conn: conn, prefix: opts.Prefix, log: opts.Logger}
	if c.prefix == "" {
		c.prefix = DefaultOpts.Prefix
	}
	if c.log == nil {
		c.log = log.Default().WithPrefix("mqtt")
	}
	return c
}

// Publish sends one sample. Samples without a sensor are refused.
func (c *Client) Publish(ctx context.Context, s ds18b20.Sample) error {
	if s.Sensor == nil {
		return errors.New("mqttpub: sample has no sensor")
	}
	payload, err := json.Marshal(NewReading(s))
	if err != nil {
		return fmt.Errorf("mqttpub: %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	topic := Topic(c.prefix, s.Sensor.Addr())
	if _, err := c.conn.Publish(ctx, &paho.Publish{Topic: topic, QoS: 1, Payload: payload}); err != nil {
		return fmt.Errorf("mqttpub: %s: %v", topic, err)
	}
	c.log.Debug("published", "topic", topic, "payload", string(payload))
	return nil
}

// PublishAll sends every sample, continuing past failures. It returns the
// first error.
func (c *Client) PublishAll(ctx context.Context, samples []ds18b20.Sample) error {
	var first error
	for _, s := range samples {
		if err := c.Publish(ctx, s); err != nil {
			c.log.Error("publish", "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Close disconnects from the broker.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Disconnect(ctx)
}
