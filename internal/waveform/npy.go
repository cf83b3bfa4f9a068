package waveform

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Veraticus/trifetch/internal/model"
)

var npyMagic = []byte("\x93NUMPY")

var (
	// ErrNotNPY is returned when a file does not start with the .npy magic string.
	ErrNotNPY = errors.New("not a .npy file")
	// ErrUnsupportedNPY is returned for dtypes or layouts the reader does not handle.
	ErrUnsupportedNPY = errors.New("unsupported .npy layout")
)

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']+)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// Loader reads artifacts from disk. It implements service.WaveformLoader.
type Loader struct{}

// Load reads the artifact at path.
func (Loader) Load(path string) (model.Waveform, error) {
	return ReadArtifact(path)
}

// WriteArtifact persists w as a little-endian float32 .npy file.
// The file is written next to its destination and renamed into place.
func WriteArtifact(path string, w model.Waveform) error {
	if err := w.Validate(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Encode(tmp, w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// ReadArtifact loads a .npy artifact.
func ReadArtifact(path string) (model.Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Waveform{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(bufio.NewReader(f))
}

// Encode writes w in .npy format version 1.0.
func Encode(out io.Writer, w model.Waveform) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", w.Rows, w.Cols)
	// magic + version + header length + header + newline, padded to 64 bytes
	preamble := len(npyMagic) + 2 + 2
	total := preamble + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += strings.Repeat(" ", 64-rem)
	}
	header += "\n"

	bw := bufio.NewWriter(out)
	if _, err := bw.Write(npyMagic); err != nil {
		return err
	}
	if _, err := bw.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := bw.WriteString(header); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, w.Data); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return bw.Flush()
}

// Decode reads a .npy stream holding a C-ordered '<f4' or '<f8' array of rank 1 or 2.
func Decode(r io.Reader) (model.Waveform, error) {
	magic := make([]byte, len(npyMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return model.Waveform{}, fmt.Errorf("failed to read magic: %w", err)
	}
	if !bytes.Equal(magic, npyMagic) {
		return model.Waveform{}, ErrNotNPY
	}

	version := make([]byte, 2)
	if _, err := io.ReadFull(r, version); err != nil {
		return model.Waveform{}, fmt.Errorf("failed to read version: %w", err)
	}

	var headerLen int
	switch version[0] {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return model.Waveform{}, fmt.Errorf("failed to read header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return model.Waveform{}, fmt.Errorf("failed to read header length: %w", err)
		}
		headerLen = int(n)
	default:
		return model.Waveform{}, fmt.Errorf("%w: version %d.%d", ErrUnsupportedNPY, version[0], version[1])
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return model.Waveform{}, fmt.Errorf("failed to read header: %w", err)
	}

	descr, rows, cols, err := parseHeader(string(header))
	if err != nil {
		return model.Waveform{}, err
	}

	w := model.NewWaveform(rows, cols)
	switch descr {
	case "<f4":
		if err := binary.Read(r, binary.LittleEndian, w.Data); err != nil {
			return model.Waveform{}, fmt.Errorf("failed to read samples: %w", err)
		}
	case "<f8":
		buf := make([]float64, rows*cols)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return model.Waveform{}, fmt.Errorf("failed to read samples: %w", err)
		}
		for i, v := range buf {
			w.Data[i] = float32(v)
		}
	default:
		return model.Waveform{}, fmt.Errorf("%w: dtype %s", ErrUnsupportedNPY, descr)
	}
	return w, nil
}

func parseHeader(header string) (string, int, int, error) {
	m := descrRe.FindStringSubmatch(header)
	if m == nil {
		return "", 0, 0, fmt.Errorf("%w: missing descr", ErrUnsupportedNPY)
	}
	descr := m[1]

	if f := fortranRe.FindStringSubmatch(header); f == nil || f[1] != "False" {
		return "", 0, 0, fmt.Errorf("%w: fortran order", ErrUnsupportedNPY)
	}

	s := shapeRe.FindStringSubmatch(header)
	if s == nil {
		return "", 0, 0, fmt.Errorf("%w: missing shape", ErrUnsupportedNPY)
	}

	var dims []int
	for _, part := range strings.Split(s[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return "", 0, 0, fmt.Errorf("%w: shape %q", ErrUnsupportedNPY, s[1])
		}
		dims = append(dims, n)
	}

	switch len(dims) {
	case 1:
		return descr, dims[0], 1, nil
	case 2:
		return descr, dims[0], dims[1], nil
	default:
		return "", 0, 0, fmt.Errorf("%w: rank %d", ErrUnsupportedNPY, len(dims))
	}
}
