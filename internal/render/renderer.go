// Package render draws a canonical waveform as the two-lead strip-chart submitted for
// classification. Output is deterministic for a given waveform and onset.
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/fogleman/gg"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/model"
)

// Style describes the strip-chart geometry. Widths are in points and scaled by DPI.
type Style struct {
	TraceColor     string
	MarkerColor    string
	Width          int
	Height         int
	DPI            float64
	MarginLeft     float64
	MarginRight    float64
	MarginTop      float64
	MarginBottom   float64
	PanelGap       float64
	XPadding       float64
	YMin           float64
	YMax           float64
	Channel2Offset float64
	TraceWidth     float64
	MarkerWidth    float64
	MarkerAlpha    float64
}

// DefaultStyle is a 16x5 inch figure at 100 DPI: black background, phosphor-green
// traces and a red onset marker.
func DefaultStyle() Style {
	return Style{
		Width:          1600,
		Height:         500,
		DPI:            100,
		MarginLeft:     0.125,
		MarginRight:    0.9,
		MarginTop:      0.88,
		MarginBottom:   0.11,
		PanelGap:       0.05,
		XPadding:       0.05,
		YMin:           -2000,
		YMax:           3000,
		Channel2Offset: -800,
		TraceColor:     "#00ff41",
		TraceWidth:     1.1,
		MarkerColor:    "#ff0000",
		MarkerWidth:    3,
		MarkerAlpha:    0.9,
	}
}

// Image is a rendered PNG strip-chart.
type Image struct {
	PNG    []byte
	Width  int
	Height int
}

// DataURI returns the image as a base64 data URI for multimodal requests.
func (i *Image) DataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(i.PNG)
}

// Renderer draws strip-charts with a fixed style.
type Renderer struct {
	style Style
}

// NewRenderer creates a renderer using style.
func NewRenderer(style Style) *Renderer {
	return &Renderer{style: style}
}

// NewDefaultRenderer creates a renderer using DefaultStyle.
func NewDefaultRenderer() *Renderer {
	return NewRenderer(DefaultStyle())
}

// panel is the pixel rectangle of one lead.
type panel struct {
	x, y, w, h float64
}

// Render draws w with lead I on top and lead II below. The onset marker is drawn on
// both panels when onset falls inside the recording.
// An onset outside the recording is left unmarked and the time axis is not widened
// to reach it, so onsets derived from a time-of-day timestamp usually render without a marker.
func (r *Renderer) Render(w model.Waveform, onset int) (*Image, error) {
	if err := validate(w); err != nil {
		return nil, &common.RenderError{Err: err}
	}

	s := r.style
	dc := gg.NewContext(s.Width, s.Height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	panels := r.layout()
	tMax := float64(w.Rows-1) / model.SampleRate
	pad := tMax * s.XPadding
	xMin, xMax := -pad, tMax+pad

	offsets := []float64{0, s.Channel2Offset}
	for ch, p := range panels {
		r.drawTrace(dc, p, w, ch, offsets[ch], xMin, xMax)
	}

	if onset >= 0 && onset < w.Rows {
		t := float64(onset) / model.SampleRate
		for _, p := range panels {
			r.drawMarker(dc, p, t, xMin, xMax)
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, &common.RenderError{Err: fmt.Errorf("failed to encode png: %w", err)}
	}

	return &Image{
		PNG:    buf.Bytes(),
		Width:  s.Width,
		Height: s.Height,
	}, nil
}

// layout splits the plotting area into two panels separated by PanelGap, expressed as a
// fraction of the panel height.
func (r *Renderer) layout() []panel {
	s := r.style
	width, height := float64(s.Width), float64(s.Height)

	left := s.MarginLeft * width
	right := s.MarginRight * width
	top := (1 - s.MarginTop) * height
	bottom := (1 - s.MarginBottom) * height

	panelH := (bottom - top) / (2 + s.PanelGap)
	gap := panelH * s.PanelGap

	return []panel{
		{x: left, y: top, w: right - left, h: panelH},
		{x: left, y: top + panelH + gap, w: right - left, h: panelH},
	}
}

func (r *Renderer) drawTrace(dc *gg.Context, p panel, w model.Waveform, ch int, offset, xMin, xMax float64) {
	s := r.style

	dc.Push()
	defer dc.Pop()

	dc.DrawRectangle(p.x, p.y, p.w, p.h)
	dc.Clip()

	for i := 0; i < w.Rows; i++ {
		t := float64(i) / model.SampleRate
		x := p.x + (t-xMin)/(xMax-xMin)*p.w
		y := p.y + (s.YMax-(float64(w.At(i, ch))+offset))/(s.YMax-s.YMin)*p.h
		if i == 0 {
			dc.MoveTo(x, y)
			continue
		}
		dc.LineTo(x, y)
	}

	dc.SetHexColor(s.TraceColor)
	dc.SetLineWidth(r.points(s.TraceWidth))
	dc.Stroke()
}

func (r *Renderer) drawMarker(dc *gg.Context, p panel, t, xMin, xMax float64) {
	s := r.style
	x := p.x + (t-xMin)/(xMax-xMin)*p.w

	red, green, blue := hexRGB(s.MarkerColor)
	dc.SetRGBA(red, green, blue, s.MarkerAlpha)
	dc.SetLineWidth(r.points(s.MarkerWidth))
	dc.DrawLine(x, p.y, x, p.y+p.h)
	dc.Stroke()
}

func (r *Renderer) points(pt float64) float64 {
	return pt * r.style.DPI / 72
}

func validate(w model.Waveform) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.Cols != model.NumChannels {
		return fmt.Errorf("expected %d channels, got %d", model.NumChannels, w.Cols)
	}
	if w.Rows < 2 {
		return errors.New("need at least two samples to draw a trace")
	}
	for i, v := range w.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite sample at row %d", i/w.Cols)
		}
	}
	return nil
}

// hexRGB parses #rrggbb into unit floats. Malformed input yields black.
func hexRGB(hex string) (float64, float64, float64) {
	var red, green, blue int
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &red, &green, &blue); err != nil {
		return 0, 0, 0
	}
	return float64(red) / 255, float64(green) / 255, float64(blue) / 255
}
