package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/trifetch/internal/model"
	"github.com/Veraticus/trifetch/internal/service"
)

func testRows() []model.ReportRow {
	return []model.ReportRow{
		{EventID: "E2", PatientID: "P1", GroundTruth: "AFIB", Predicted: "NORMAL", Outcome: model.OutcomeAccepted, Confidence: 0.99},
		{EventID: "E1", PatientID: "P1", GroundTruth: "AFIB", Predicted: "AFIB", Outcome: model.OutcomeAccepted, Confidence: 0.85},
		{EventID: "E3", PatientID: "P2", GroundTruth: "PAUSE", Predicted: "PAUSE", Outcome: model.OutcomeServiceUnavailable, Confidence: 0.70, IsRejected: true},
	}
}

// fakeSheetsAPI records requests made through the Sheets client.
type fakeSheetsAPI struct {
	written  [][]any
	requests []string
	mu       sync.Mutex
	failGet  bool
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && f.failGet:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
	case r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`{"spreadsheetId":"existing"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/v4/spreadsheets":
		_, _ = w.Write([]byte(`{"spreadsheetId":"created","spreadsheetUrl":"https://example.test/created"}`))
	case r.Method == http.MethodPut:
		var vr sheets.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.written = append(f.written, vr.Values...)
		_, _ = w.Write([]byte(`{}`))
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

func newTestWriter(t *testing.T, api *fakeSheetsAPI, config Config) *Writer {
	t.Helper()

	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(),
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	return NewWriterWithService(srv, config, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
}

func TestWriter_PrepareReportData(t *testing.T) {
	rows := testRows()
	summary := service.NewReportSummary(rows, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	w := NewWriterWithService(nil, DefaultConfig(), nil)

	values := w.prepareReportData(rows, summary)

	assert.Equal(t, "ECG Classification Report", values[0][0])
	assert.Equal(t, "Mar 1, 2024 12:00 UTC", values[0][1])
	assert.Equal(t, []any{"Total Events", 3}, values[3])
	assert.Equal(t, []any{"Model Answers Accepted", 2}, values[4])
	assert.Equal(t, []any{"Agreement Rate", "50.0%"}, values[5])

	// Outcomes by count, then name.
	assert.Equal(t, []any{"accepted", 2}, values[9])
	assert.Equal(t, []any{"service_unavailable", 1}, values[10])

	assert.Equal(t, []any{"AFIB", 2, 2, 1}, values[14])
	assert.Equal(t, []any{"PAUSE", 1, 0, 0}, values[15])

	details := values[len(values)-3:]
	assert.Equal(t, []any{"E1", "P1", "AFIB", "AFIB", "accepted", "0.85", false}, details[0])
	assert.Equal(t, []any{"E2", "P1", "AFIB", "NORMAL", "accepted", "0.99", false}, details[1])
	assert.Equal(t, []any{"E3", "P2", "PAUSE", "PAUSE", "service_unavailable", "0.70", true}, details[2])

	// The caller's slice is not reordered.
	assert.Equal(t, "E2", rows[0].EventID)
}

func TestWriter_WriteCreatesSpreadsheet(t *testing.T) {
	api := &fakeSheetsAPI{}
	config := DefaultConfig()
	config.BatchSize = 10
	config.RetryAttempts = 1
	w := newTestWriter(t, api, config)

	rows := testRows()
	err := w.Write(context.Background(), rows, service.NewReportSummary(rows, time.Now()))
	require.NoError(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()

	require.NotEmpty(t, api.requests)
	assert.Equal(t, "POST /v4/spreadsheets", api.requests[0])
	assert.Contains(t, api.requests[1], "/v4/spreadsheets/created/values/")
	assert.Contains(t, api.requests[len(api.requests)-1], ":batchUpdate")

	puts := 0
	for _, r := range api.requests {
		if strings.HasPrefix(r, http.MethodPut) {
			puts++
		}
	}
	// 23 rows in batches of 10.
	assert.Equal(t, 3, puts)
	assert.Len(t, api.written, 23)
	assert.Equal(t, "ECG Classification Report", api.written[0][0])
}

func TestWriter_WriteExistingSpreadsheet(t *testing.T) {
	api := &fakeSheetsAPI{}
	config := DefaultConfig()
	config.SpreadsheetID = "existing"
	config.RetryAttempts = 1
	config.EnableFormatting = false
	w := newTestWriter(t, api, config)

	err := w.Write(context.Background(), testRows(), nil)
	require.NoError(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()

	assert.Equal(t, "GET /v4/spreadsheets/existing", api.requests[0])
	for _, r := range api.requests {
		assert.NotContains(t, r, ":batchUpdate")
	}
}

func TestWriter_WriteInaccessibleSpreadsheet(t *testing.T) {
	api := &fakeSheetsAPI{failGet: true}
	config := DefaultConfig()
	config.SpreadsheetID = "missing"
	w := newTestWriter(t, api, config)

	err := w.Write(context.Background(), testRows(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to access spreadsheet missing")
}

func TestMockWriter(t *testing.T) {
	mock := NewMockWriter()
	rows := testRows()
	summary := service.NewReportSummary(rows, time.Now())

	_, ok := mock.Last()
	assert.False(t, ok)

	require.NoError(t, mock.Write(context.Background(), rows, summary))
	last, ok := mock.Last()
	require.True(t, ok)
	assert.Equal(t, rows, last.Rows)
	assert.Same(t, summary, last.Summary)

	boom := errors.New("boom")
	mock.FailWith(boom)
	assert.ErrorIs(t, mock.Write(context.Background(), rows, summary), boom)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.NoError(t, calls[0].Err)
	assert.ErrorIs(t, calls[1].Err, boom)
}
