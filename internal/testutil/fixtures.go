package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/Veraticus/trifetch/internal/model"
)

// DefaultChunkNames are written in reverse so directory order never matches temporal order by accident.
var DefaultChunkNames = []string{"seg_01.txt", "seg_02.txt", "seg_03.txt"}

// EventFixture describes one raw event folder.
type EventFixture struct {
	// Metadata is marshaled into event_<ID>.json. Nil writes a default valid document.
	Metadata map[string]any
	ID       string
	// ChunkNames defaults to DefaultChunkNames.
	ChunkNames []string
	// ChunkRows defaults to SamplesPerChunk for every chunk.
	ChunkRows []int
	// Cols defaults to NumChannels.
	Cols int
	Seed int64
}

// DefaultMetadata returns a valid metadata document with an explicit onset.
func DefaultMetadata(patientID, label string, onset int) map[string]any {
	return map[string]any{
		"EventIndex":       onset,
		"EventOccuredTime": "2024-01-01 00:00:30.500",
		"Event_Name":       label,
		"IsRejected":       "0",
		"Patient_IR_ID":    patientID,
	}
}

// WriteEvent creates the raw folder for fx under root and returns the folder path and the
// waveform its chunks concatenate to (in chunk-name order).
func WriteEvent(t *testing.T, root string, fx EventFixture) (string, model.Waveform) {
	t.Helper()

	names := fx.ChunkNames
	if names == nil {
		names = DefaultChunkNames
	}
	cols := fx.Cols
	if cols == 0 {
		cols = model.NumChannels
	}
	rows := fx.ChunkRows
	if rows == nil {
		rows = make([]int, len(names))
		for i := range rows {
			rows[i] = model.SamplesPerChunk
		}
	}
	if len(rows) != len(names) {
		t.Fatalf("fixture %s: %d chunk names but %d row counts", fx.ID, len(names), len(rows))
	}

	dir := filepath.Join(root, fx.ID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatalf("failed to create fixture dir: %v", err)
	}

	faker := gofakeit.New(fx.Seed)
	chunks := make([][]float32, len(names))
	total := 0
	for i := range names {
		chunks[i] = make([]float32, rows[i]*cols)
		for j := range chunks[i] {
			chunks[i][j] = float32(faker.IntRange(-1500, 2500))
		}
		total += rows[i]
	}

	for i := len(names) - 1; i >= 0; i-- {
		writeChunk(t, filepath.Join(dir, names[i]), chunks[i], cols)
	}

	meta := fx.Metadata
	if meta == nil {
		meta = DefaultMetadata("P-"+fx.ID, "AFIB", 4000)
	}
	doc, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("failed to marshal fixture metadata: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "event_"+fx.ID+".json"), doc, 0600); err != nil {
		t.Fatalf("failed to write fixture metadata: %v", err)
	}

	expected := model.Waveform{Rows: total, Cols: cols, Data: make([]float32, 0, total*cols)}
	for _, c := range chunks {
		expected.Data = append(expected.Data, c...)
	}
	return dir, expected
}

func writeChunk(t *testing.T, path string, data []float32, cols int) {
	t.Helper()

	var b strings.Builder
	for i := 0; i < len(data); i += cols {
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", int(data[i+c]))
		}
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		t.Fatalf("failed to write chunk %s: %v", path, err)
	}
}
