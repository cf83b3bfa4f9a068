package model

import "fmt"

// Recording geometry shared by ingestion and rendering.
const (
	SampleRate      = 200
	SamplesPerChunk = 6000
	ChunksPerEvent  = 3
	TotalSamples    = SamplesPerChunk * ChunksPerEvent
	NumChannels     = 2
)

// Waveform is a row-major multi-channel recording. Rows are samples, columns are channels.
type Waveform struct {
	Data []float32
	Rows int
	Cols int
}

// NewWaveform allocates a zeroed waveform of the given shape.
func NewWaveform(rows, cols int) Waveform {
	return Waveform{
		Data: make([]float32, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

// At returns the value of channel col at sample row.
func (w Waveform) At(row, col int) float32 {
	return w.Data[row*w.Cols+col]
}

// Set stores v at sample row, channel col.
func (w Waveform) Set(row, col int, v float32) {
	w.Data[row*w.Cols+col] = v
}

// Channel copies one channel out of the waveform.
func (w Waveform) Channel(col int) []float32 {
	out := make([]float32, w.Rows)
	for i := range out {
		out[i] = w.At(i, col)
	}
	return out
}

// Shape returns the (rows, cols) pair.
func (w Waveform) Shape() (int, int) {
	return w.Rows, w.Cols
}

// Validate checks that the backing slice matches the declared shape.
func (w Waveform) Validate() error {
	if w.Rows < 0 || w.Cols < 0 {
		return fmt.Errorf("negative shape (%d, %d)", w.Rows, w.Cols)
	}
	if len(w.Data) != w.Rows*w.Cols {
		return fmt.Errorf("data length %d does not match shape (%d, %d)", len(w.Data), w.Rows, w.Cols)
	}
	return nil
}

// Duration returns the recording length in seconds at SampleRate.
func (w Waveform) Duration() float64 {
	return float64(w.Rows) / SampleRate
}

// Downsample keeps every factor-th sample. The serving layer uses factor 4 (200 Hz to 50 Hz).
func (w Waveform) Downsample(factor int) Waveform {
	if factor <= 1 {
		return w
	}
	rows := (w.Rows + factor - 1) / factor
	out := NewWaveform(rows, w.Cols)
	for i := 0; i < rows; i++ {
		copy(out.Data[i*w.Cols:(i+1)*w.Cols], w.Data[i*factor*w.Cols:(i*factor+1)*w.Cols])
	}
	return out
}
