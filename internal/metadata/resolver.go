// Package metadata parses per-event metadata documents and resolves the onset sample index.
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/model"
)

// Metadata document field names.
const (
	FieldEventIndex   = "EventIndex"
	FieldOccurredTime = "EventOccuredTime"
	FieldEventName    = "Event_Name"
	FieldIsRejected   = "IsRejected"
	FieldPatientID    = "Patient_IR_ID"
)

// nullMarker is the literal some exporters write instead of a JSON null.
const nullMarker = "null"

var (
	errNoOnset       = errors.New("neither EventIndex nor EventOccuredTime is usable")
	errBadTimestamp  = errors.New("timestamp must look like '<date> HH:MM:SS[.fff]'")
	errUnsupportedJS = errors.New("unsupported value type")
)

// ResolveFile reads and resolves the metadata document at path.
func ResolveFile(path string) (model.EventMetadata, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return model.EventMetadata{}, &common.MetadataParseError{Err: err}
	}
	return Resolve(doc)
}

// Resolve parses a metadata document. Only onset resolution and malformed values are fatal;
// absent descriptive fields take their defaults.
func Resolve(doc []byte) (model.EventMetadata, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return model.EventMetadata{}, &common.MetadataParseError{Err: err}
	}

	meta := model.EventMetadata{
		Label: model.UnknownLabel,
	}

	explicit, err := explicitOnset(fields[FieldEventIndex])
	if err != nil {
		return model.EventMetadata{}, &common.MetadataParseError{Field: FieldEventIndex, Err: err}
	}
	meta.ExplicitOnset = explicit

	if ts, ok := fields[FieldOccurredTime].(string); ok {
		meta.OnsetTime = ts
	}

	switch {
	case explicit != nil:
		meta.StartSample = *explicit
	case fields[FieldOccurredTime] != nil:
		ts, ok := fields[FieldOccurredTime].(string)
		if !ok {
			return model.EventMetadata{}, &common.MetadataParseError{Field: FieldOccurredTime, Err: errUnsupportedJS}
		}
		start, err := OnsetFromTimestamp(ts)
		if err != nil {
			return model.EventMetadata{}, &common.MetadataParseError{Field: FieldOccurredTime, Err: err}
		}
		meta.StartSample = start
	default:
		return model.EventMetadata{}, &common.MetadataParseError{Err: errNoOnset}
	}

	if name := stringValue(fields[FieldEventName]); name != "" {
		meta.Label = name
	}
	meta.PatientID = stringValue(fields[FieldPatientID])

	rejected, err := boolValue(fields[FieldIsRejected])
	if err != nil {
		return model.EventMetadata{}, &common.MetadataParseError{Field: FieldIsRejected, Err: err}
	}
	meta.IsRejected = rejected

	return meta, nil
}

// explicitOnset returns nil when the field is absent, empty or the null marker.
func explicitOnset(v any) (*int, error) {
	var n int
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" || s == nullMarker {
			return nil, nil
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		n = parsed
	case json.Number:
		if i, err := val.Int64(); err == nil {
			n = int(i)
			break
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		n = int(f)
	default:
		return nil, fmt.Errorf("%w: %T", errUnsupportedJS, v)
	}
	return &n, nil
}

// OnsetFromTimestamp converts the time-of-day part of "<date> HH:MM:SS[.fff]" to a sample
// index at model.SampleRate. The date part is ignored.
func OnsetFromTimestamp(ts string) (int, error) {
	parts := strings.Fields(ts)
	if len(parts) < 2 {
		return 0, errBadTimestamp
	}

	hms := strings.Split(parts[1], ":")
	if len(hms) != 3 {
		return 0, errBadTimestamp
	}

	h, err := strconv.Atoi(hms[0])
	if err != nil {
		return 0, fmt.Errorf("hours: %w", err)
	}
	m, err := strconv.Atoi(hms[1])
	if err != nil {
		return 0, fmt.Errorf("minutes: %w", err)
	}
	s, err := strconv.ParseFloat(hms[2], 64)
	if err != nil {
		return 0, fmt.Errorf("seconds: %w", err)
	}
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, errBadTimestamp
	}

	elapsed := float64(h*3600+m*60) + s
	return int(math.Floor(elapsed * model.SampleRate)), nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func boolValue(v any) (bool, error) {
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return false, err
		}
		return f != 0, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return false, nil
		}
		if i, err := strconv.Atoi(s); err == nil {
			return i != 0, nil
		}
		return strconv.ParseBool(s)
	default:
		return false, fmt.Errorf("%w: %T", errUnsupportedJS, v)
	}
}
