package model

import "strings"

// Label is a diagnostic outcome the vision classifier may assert.
type Label string

// Closed label enumeration.
const (
	LabelAFib    Label = "AFIB"
	LabelVTach   Label = "VTACH"
	LabelPause   Label = "PAUSE"
	LabelSVT     Label = "SVT"
	LabelNormal  Label = "NORMAL"
	LabelPVC     Label = "PVC"
	LabelUnknown Label = "UNKNOWN"
)

// Labels lists the closed enumeration in prompt order.
var Labels = []Label{LabelAFib, LabelVTach, LabelPause, LabelSVT, LabelNormal, LabelPVC, LabelUnknown}

// ParseLabel normalizes a free-text reply and reports whether it names a known label.
func ParseLabel(s string) (Label, bool) {
	candidate := Label(strings.ToUpper(strings.TrimSpace(s)))
	for _, l := range Labels {
		if candidate == l {
			return l, true
		}
	}
	return candidate, false
}

// Outcome describes how a classification attempt ended.
type Outcome string

// Classification outcomes.
const (
	OutcomeAccepted           Outcome = "accepted"
	OutcomeInvalidResponse    Outcome = "invalid_response"
	OutcomeRenderFailed       Outcome = "render_failed"
	OutcomeServiceUnavailable Outcome = "service_unavailable"
)

// ClassificationResult is the value returned for every classification request.
// Label is either a member of Labels or the supplied ground truth.
type ClassificationResult struct {
	Label      string
	Outcome    Outcome
	Confidence float64
}
