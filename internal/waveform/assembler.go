// Package waveform assembles raw chunk files into canonical waveforms and persists them
// as NumPy .npy artifacts.
package waveform

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/model"
)

// ChunkPattern matches raw chunk files inside an event folder.
const ChunkPattern = "*.txt"

// ArtifactExt is the file extension of canonical waveform artifacts.
const ArtifactExt = ".npy"

// Assembler loads an event's three chunk files and writes the canonical artifact.
type Assembler struct {
	logger      *slog.Logger
	artifactDir string
}

// NewAssembler creates an assembler writing artifacts under artifactDir.
func NewAssembler(artifactDir string, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		artifactDir: artifactDir,
		logger:      logger,
	}
}

// ArtifactPath returns where the artifact for eventID is written.
func (a *Assembler) ArtifactPath(eventID string) string {
	return filepath.Join(a.artifactDir, eventID+ArtifactExt)
}

// Build assembles the chunks in dir and persists them as the artifact for eventID.
// It returns the artifact path.
func (a *Assembler) Build(ctx context.Context, dir, eventID string) (string, error) {
	w, err := a.Assemble(ctx, dir)
	if err != nil {
		return "", err
	}

	path := a.ArtifactPath(eventID)
	if err := WriteArtifact(path, w); err != nil {
		return "", &common.ArtifactError{Path: path, Err: err}
	}
	return path, nil
}

// Assemble concatenates the chunk files in dir, in lexicographic file-name order,
// into one (TotalSamples, NumChannels) waveform.
func (a *Assembler) Assemble(ctx context.Context, dir string) (model.Waveform, error) {
	files, err := filepath.Glob(filepath.Join(dir, ChunkPattern))
	if err != nil {
		return model.Waveform{}, fmt.Errorf("invalid chunk pattern: %w", err)
	}
	// File-name order is temporal order.
	sort.Strings(files)

	if len(files) != model.ChunksPerEvent {
		return model.Waveform{}, &common.ChunkCountError{
			Dir:      dir,
			Expected: model.ChunksPerEvent,
			Found:    len(files),
		}
	}

	chunks := make([]model.Waveform, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return model.Waveform{}, err
		}

		chunk, err := readChunk(file)
		if err != nil {
			return model.Waveform{}, err
		}
		if chunk.Rows != model.SamplesPerChunk {
			a.logger.Warn("chunk has unexpected sample count",
				"file", filepath.Base(file),
				"samples", chunk.Rows,
				"expected", model.SamplesPerChunk)
		}
		chunks = append(chunks, chunk)
	}

	full, err := concat(dir, chunks)
	if err != nil {
		return model.Waveform{}, err
	}

	if full.Rows != model.TotalSamples || full.Cols != model.NumChannels {
		return model.Waveform{}, &common.ShapeError{
			Source:       dir,
			ExpectedRows: model.TotalSamples,
			ExpectedCols: model.NumChannels,
			Rows:         full.Rows,
			Cols:         full.Cols,
		}
	}
	return full, nil
}

// readChunk parses one comma-delimited integer table.
func readChunk(path string) (model.Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Waveform{}, fmt.Errorf("failed to open chunk: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	var (
		data []float32
		rows int
		cols = -1
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := rows + 1
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return model.Waveform{}, &common.ChunkParseError{File: filepath.Base(path), Line: line, Err: err}
		}

		if cols == -1 {
			cols = len(record)
		} else if len(record) != cols {
			return model.Waveform{}, &common.ShapeError{
				Source:       filepath.Base(path),
				ExpectedRows: model.SamplesPerChunk,
				ExpectedCols: cols,
				Rows:         rows + 1,
				Cols:         len(record),
			}
		}

		for i, cell := range record {
			v, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 16)
			if err != nil {
				line, _ := r.FieldPos(i)
				return model.Waveform{}, &common.ChunkParseError{File: filepath.Base(path), Line: line, Err: err}
			}
			data = append(data, float32(v))
		}
		rows++
	}

	if cols == -1 {
		cols = 0
	}
	return model.Waveform{Data: data, Rows: rows, Cols: cols}, nil
}

// concat stacks chunks vertically. All chunks must share a column count.
func concat(source string, chunks []model.Waveform) (model.Waveform, error) {
	if len(chunks) == 0 {
		return model.Waveform{}, nil
	}

	cols := chunks[0].Cols
	rows := 0
	for _, c := range chunks {
		if c.Cols != cols {
			return model.Waveform{}, &common.ShapeError{
				Source:       source,
				ExpectedRows: model.TotalSamples,
				ExpectedCols: cols,
				Rows:         c.Rows,
				Cols:         c.Cols,
			}
		}
		rows += c.Rows
	}

	out := model.Waveform{Data: make([]float32, 0, rows*cols), Rows: rows, Cols: cols}
	for _, c := range chunks {
		out.Data = append(out.Data, c.Data...)
	}
	return out, nil
}
