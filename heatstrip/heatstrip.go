// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package heatstrip shows the temperatures of a set of sensors as a strip of
// colored cells on an ANSI terminal, one cell per sensor, from blue when cold
// to red when hot.
//
// Cells of sensors that failed to read are shown in grey. The strip is
// followed by a legend with the label and value of each cell.
package heatstrip

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/GermanBionicSystems/tsense/ds18b20"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// Opts represents the options available for this display.
type Opts struct {
	// W defaults to a colorable stdout.
	W io.Writer
	// Cold and Hot are the temperatures in °C shown in full blue and full
	// red. They default to DefaultCold and DefaultHot.
	Cold, Hot float64
	Palette   *ansi256.Palette
}

// Defaults for Opts.Cold and Opts.Hot.
const (
	DefaultCold = 15.
	DefaultHot  = 30.
)

// Fault is the color of a cell whose sensor could not be read.
var Fault = color.NRGBA{0x40, 0x40, 0x40, 255}

// Dev is a strip of n cells printed on a single line, rewritten in place on
// each refresh.
type Dev struct {
	w         io.Writer
	cold, hot float64
	palette   ansi256.Palette

	pixels []byte
	legend []string
	buf    bytes.Buffer
}

// New returns a strip of n cells.
func New(n int, opts *Opts) (*Dev, error) {
	d := &Dev{cold: DefaultCold, hot: DefaultHot, palette: *ansi256.Default, pixels: make([]byte, 3*n)}
	if opts != nil {
		d.w = opts.W
		if opts.Cold != 0 || opts.Hot != 0 {
			d.cold, d.hot = opts.Cold, opts.Hot
		}
		if opts.Palette != nil {
			d.palette = *opts.Palette
		}
	}
	if d.hot <= d.cold {
		return nil, fmt.Errorf("heatstrip: hot %g must be above cold %g", d.hot, d.cold)
	}
	if d.w == nil {
		d.w = colorable.NewColorableStdout()
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("HeatStrip{%d}", len(d.pixels)/3)
}

// Halt implements conn.Resource.
//
// It resets the terminal attributes and ends the line.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Color maps t linearly from blue at Cold to red at Hot, clamped.
func (d *Dev) Color(t ds18b20.Fixed) color.NRGBA {
	f := (t.Celsius() - d.cold) / (d.hot - d.cold)
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	r := byte(255*f + 0.5)
	return color.NRGBA{r, 0, 255 - r, 255}
}

// Update paints one cell per sample, in order, and refreshes the line. The
// strip grows or shrinks to the number of samples.
func (d *Dev) Update(samples []ds18b20.Sample) error {
	if n := 3 * len(samples); n != len(d.pixels) {
		d.pixels = make([]byte, n)
	}
	d.legend = d.legend[:0]
	for i, s := range samples {
		c := Fault
		v := "ERR"
		if s.Err == nil {
			c = d.Color(s.Temp)
			v = s.Temp.String()
		}
		d.pixels[3*i], d.pixels[3*i+1], d.pixels[3*i+2] = c.R, c.G, c.B
		d.legend = append(d.legend, name(i, s.Sensor)+" "+v)
	}
	_, err := d.refresh()
	return err
}

// Write accepts a stream of raw RGB pixels and writes it to the console.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels)%3 != 0 {
		return 0, errors.New("heatstrip: invalid RGB stream length")
	}
	copy(d.pixels, pixels)
	return d.refresh()
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: len(d.pixels) / 3, Y: 1}}
}

// Draw implements display.Drawer.
//
// Only the first row of src is used.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	srcR := src.Bounds()
	srcR.Min = srcR.Min.Add(sp)
	if dX := r.Dx(); dX < srcR.Dx() {
		srcR.Max.X = srcR.Min.X + dX
	}
	delta := r.Min.X - srcR.Min.X
	for sX := srcR.Min.X; sX < srcR.Max.X; sX++ {
		c := color.NRGBAModel.Convert(src.At(sX, srcR.Min.Y)).(color.NRGBA)
		i := 3 * (sX + delta)
		d.pixels[i], d.pixels[i+1], d.pixels[i+2] = c.R, c.G, c.B
	}
	_, err := d.refresh()
	return err
}

func (d *Dev) refresh() (int, error) {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := 0; i < len(d.pixels)/3; i++ {
		c := color.NRGBA{d.pixels[3*i], d.pixels[3*i+1], d.pixels[3*i+2], 255}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, _ = d.buf.WriteString(strings.Join(d.legend, "  "))
	_, err := d.buf.WriteTo(d.w)
	return len(d.pixels), err
}

// name is the registry label of s, its address if unknown.
func name(i int, s *ds18b20.Sensor) string {
	if s == nil {
		return fmt.Sprintf("[%d]", i)
	}
	if l, ok := s.Label(); ok {
		return l.String()
	}
	return s.Addr().String()
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
