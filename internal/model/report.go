package model

// ReportRow is one classified event in an evaluation report.
type ReportRow struct {
	EventID     string
	PatientID   string
	GroundTruth string
	Predicted   string
	Outcome     Outcome
	Confidence  float64
	IsRejected  bool
}

// Agrees reports whether the prediction matches the recorded label.
func (r ReportRow) Agrees() bool {
	return r.Predicted == r.GroundTruth
}
