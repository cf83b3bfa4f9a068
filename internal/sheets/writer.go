package sheets

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/model"
	"github.com/Veraticus/trifetch/internal/service"
)

// SheetTitle is the title of the sheet created in new spreadsheets.
const SheetTitle = "Classifications"

// Event detail table geometry.
const (
	detailColumns    = 7
	confidenceColumn = 5
)

// Writer implements the ReportWriter interface for Google Sheets.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return NewWriterWithService(srv, config, logger), nil
}

// NewWriterWithService creates a writer around an existing Sheets service.
func NewWriterWithService(srv *sheets.Service, config Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	return &Writer{
		config:  config,
		service: srv,
		logger:  logger,
	}
}

// Write implements the ReportWriter interface.
func (w *Writer) Write(ctx context.Context, rows []model.ReportRow, summary *service.ReportSummary) error {
	if summary == nil {
		summary = service.NewReportSummary(rows, time.Now())
	}

	w.logger.Info("starting report generation",
		"events", len(rows),
		"generated_at", summary.GeneratedAt.Format(time.RFC3339))

	spreadsheetID, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	if clearErr := w.clearSheet(ctx, spreadsheetID); clearErr != nil {
		return fmt.Errorf("failed to clear sheet: %w", clearErr)
	}

	values := w.prepareReportData(rows, summary)

	retryOpts := service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	err = common.WithRetry(ctx, func() error {
		return w.writeData(ctx, spreadsheetID, values)
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return w.applyFormatting(ctx, spreadsheetID, len(values))
		}, retryOpts)
		if err != nil {
			// Formatting is cosmetic.
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("report generation completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", len(values))

	return nil
}

// createSheetsService creates a Google Sheets API service from a service account key
// or an OAuth2 refresh token.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var ts oauth2.TokenSource
	switch config.Auth() {
	case AuthServiceAccount:
		key, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		jwt, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		ts = jwt.TokenSource(ctx)
	case AuthOAuth:
		oc := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}
		ts = oc.TokenSource(ctx, &oauth2.Token{RefreshToken: config.RefreshToken, TokenType: "Bearer"})
	default:
		return nil, ErrNoCredentials
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// getOrCreateSpreadsheet gets an existing spreadsheet or creates a new one.
func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, error) {
	if id := w.config.SpreadsheetID; id != "" {
		if _, err := w.service.Spreadsheets.Get(id).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("unable to access spreadsheet %s: %w", id, err)
		}
		return id, nil
	}

	title := cmp.Or(w.config.SpreadsheetName, DefaultSpreadsheetName)
	created, err := w.service.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title, TimeZone: w.config.TimeZone},
		Sheets:     []*sheets.Sheet{{Properties: &sheets.SheetProperties{Title: SheetTitle}}},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet %q: %w", title, err)
	}

	w.logger.Info("created spreadsheet", "id", created.SpreadsheetId, "title", title, "url", created.SpreadsheetUrl)
	return created.SpreadsheetId, nil
}

// clearSheet clears all data from the sheet.
func (w *Writer) clearSheet(ctx context.Context, spreadsheetID string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, "A:Z", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// prepareReportData lays out the summary, the outcome and label breakdowns and one row
// per classified event.
func (w *Writer) prepareReportData(rows []model.ReportRow, summary *service.ReportSummary) [][]any {
	estimatedRows := 16 + len(summary.ByOutcome) + len(summary.ByLabel) + len(rows)
	values := make([][]any, 0, estimatedRows)

	generated := summary.GeneratedAt
	if loc, err := time.LoadLocation(w.config.TimeZone); err == nil && w.config.TimeZone != "" {
		generated = generated.In(loc)
	}

	values = append(values,
		[]any{"ECG Classification Report", generated.Format("Jan 2, 2006 15:04 MST")},
		[]any{},
		[]any{"Summary"},
		[]any{"Total Events", summary.Total},
		[]any{"Model Answers Accepted", summary.Accepted},
		[]any{"Agreement Rate", fmt.Sprintf("%.1f%%", summary.AgreementRate()*100)},
		[]any{},
		[]any{"Outcome Breakdown"},
		[]any{"Outcome", "Count"},
	)

	outcomes := make([]model.Outcome, 0, len(summary.ByOutcome))
	for outcome := range summary.ByOutcome {
		outcomes = append(outcomes, outcome)
	}
	sort.Slice(outcomes, func(i, j int) bool {
		ci, cj := summary.ByOutcome[outcomes[i]], summary.ByOutcome[outcomes[j]]
		if ci != cj {
			return ci > cj
		}
		return outcomes[i] < outcomes[j]
	})
	for _, outcome := range outcomes {
		values = append(values, []any{string(outcome), summary.ByOutcome[outcome]})
	}

	values = append(values,
		[]any{},
		[]any{"Label Breakdown"},
		[]any{"Ground Truth", "Events", "Accepted", "Agreed"},
	)

	labels := make([]string, 0, len(summary.ByLabel))
	for label := range summary.ByLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		ls := summary.ByLabel[label]
		values = append(values, []any{label, ls.Count, ls.Accepted, ls.Agreed})
	}

	values = append(values,
		[]any{},
		[]any{},
		[]any{"Event Details"},
		[]any{
			"Event ID",
			"Patient",
			"Ground Truth",
			"Predicted",
			"Outcome",
			"Confidence",
			"Rejected",
		})

	sorted := make([]model.ReportRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EventID < sorted[j].EventID
	})

	for _, row := range sorted {
		values = append(values, []any{
			row.EventID,
			row.PatientID,
			row.GroundTruth,
			row.Predicted,
			string(row.Outcome),
			fmt.Sprintf("%.2f", row.Confidence),
			row.IsRejected,
		})
	}

	return values
}

// writeData writes the data to the spreadsheet in batches.
func (w *Writer) writeData(ctx context.Context, spreadsheetID string, values [][]any) error {
	for start := 0; start < len(values); start += w.config.BatchSize {
		batch := values[start:min(start+w.config.BatchSize, len(values))]
		row := start + 1

		call := w.service.Spreadsheets.Values.Update(spreadsheetID, fmt.Sprintf("A%d", row), &sheets.ValueRange{Values: batch})
		if _, err := call.ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", row, err)
		}
		w.logger.Debug("wrote batch", "start_row", row, "rows", len(batch))
	}
	return nil
}

// formatRange applies format to the cells in [r0,r1) x [c0,c1) of the first sheet.
func formatRange(r0, r1, c0, c1 int64, format *sheets.CellFormat, fields string) *sheets.Request {
	return &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
		Range: &sheets.GridRange{
			StartRowIndex:    r0,
			EndRowIndex:      r1,
			StartColumnIndex: c0,
			EndColumnIndex:   c1,
		},
		Cell:   &sheets.CellData{UserEnteredFormat: format},
		Fields: "userEnteredFormat." + fields,
	}}
}

// applyFormatting bolds the title and the label column, fixes the confidence
// number format, sizes the detail columns and freezes the title rows.
func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, totalRows int) error {
	last := int64(totalRows)
	requests := []*sheets.Request{
		formatRange(0, 1, 0, 2, &sheets.CellFormat{TextFormat: &sheets.TextFormat{Bold: true, FontSize: 16}}, "textFormat"),
		formatRange(2, last, 0, 1, &sheets.CellFormat{TextFormat: &sheets.TextFormat{Bold: true}}, "textFormat"),
		formatRange(0, last, confidenceColumn, confidenceColumn+1,
			&sheets.CellFormat{NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: "0.00"}}, "numberFormat"),
		{AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
			Dimensions: &sheets.DimensionRange{Dimension: "COLUMNS", EndIndex: detailColumns},
		}},
		{UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{GridProperties: &sheets.GridProperties{FrozenRowCount: 2}},
			Fields:     "gridProperties.frozenRowCount",
		}},
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	return err
}
