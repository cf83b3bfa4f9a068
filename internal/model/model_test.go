package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in    string
		want  Label
		known bool
	}{
		{in: "AFIB", want: LabelAFib, known: true},
		{in: "  vtach\n", want: LabelVTach, known: true},
		{in: "Pause", want: LabelPause, known: true},
		{in: "unknown", want: LabelUnknown, known: true},
		{in: "AFIB.", want: Label("AFIB."), known: false},
		{in: "atrial fibrillation", want: Label("ATRIAL FIBRILLATION"), known: false},
		{in: "", want: Label(""), known: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLabel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, ok)
		})
	}
}

func TestLabelsOrder(t *testing.T) {
	assert.Equal(t, []Label{"AFIB", "VTACH", "PAUSE", "SVT", "NORMAL", "PVC", "UNKNOWN"}, Labels)
	assert.Equal(t, string(LabelUnknown), UnknownLabel)
}

func TestWaveform_Accessors(t *testing.T) {
	w := NewWaveform(3, 2)
	w.Set(0, 0, 1)
	w.Set(1, 1, -4)
	w.Set(2, 0, 7)

	rows, cols := w.Shape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, float32(-4), w.At(1, 1))
	assert.Equal(t, []float32{1, 0, 7}, w.Channel(0))
	assert.Equal(t, []float32{0, -4, 0}, w.Channel(1))
	assert.NoError(t, w.Validate())
}

func TestWaveform_Validate(t *testing.T) {
	assert.Error(t, Waveform{Rows: 2, Cols: 2, Data: make([]float32, 3)}.Validate())
	assert.Error(t, Waveform{Rows: -1, Cols: 2}.Validate())
	assert.NoError(t, Waveform{}.Validate())
}

func TestWaveform_Duration(t *testing.T) {
	w := NewWaveform(TotalSamples, NumChannels)
	assert.InDelta(t, 90.0, w.Duration(), 1e-9)
}

func TestWaveform_Downsample(t *testing.T) {
	w := NewWaveform(10, 2)
	for i := 0; i < 10; i++ {
		w.Set(i, 0, float32(i))
		w.Set(i, 1, float32(-i))
	}

	d := w.Downsample(4)

	require.Equal(t, 3, d.Rows)
	assert.Equal(t, 2, d.Cols)
	assert.Equal(t, []float32{0, 4, 8}, d.Channel(0))
	assert.Equal(t, []float32{0, -4, -8}, d.Channel(1))

	assert.Equal(t, w, w.Downsample(1))

	full := NewWaveform(TotalSamples, NumChannels).Downsample(4)
	assert.Equal(t, TotalSamples/4, full.Rows)
}

func TestReportRow_Agrees(t *testing.T) {
	assert.True(t, ReportRow{GroundTruth: "AFIB", Predicted: "AFIB"}.Agrees())
	assert.False(t, ReportRow{GroundTruth: "AFIB", Predicted: "PVC"}.Agrees())
}
