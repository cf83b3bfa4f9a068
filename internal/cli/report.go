package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/trifetch/internal/model"
	"github.com/Veraticus/trifetch/internal/service"
)

// RenderIngestRun summarizes an ingestion run, listing failures grouped by kind.
func RenderIngestRun(run *model.IngestRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Run:"), run.ID)
	fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Started:"), run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Duration:"), run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "%s %d\n", BoldStyle.Render("Discovered:"), run.Discovered)
	fmt.Fprintf(&b, "%s\n", SuccessStyle.Render(fmt.Sprintf("%s %d catalogued", SuccessIcon, run.Succeeded)))

	if run.Failed == 0 {
		return RenderBox(FolderIcon+" Ingestion Summary", strings.TrimRight(b.String(), "\n"))
	}

	fmt.Fprintf(&b, "%s\n", ErrorStyle.Render(fmt.Sprintf("%s %d skipped", ErrorIcon, run.Failed)))

	byKind := make(map[string][]string)
	for _, f := range run.Failures {
		byKind[f.Kind] = append(byKind[f.Kind], f.EventID)
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	for _, k := range kinds {
		ids := byKind[k]
		sort.Strings(ids)
		fmt.Fprintf(&b, "  %s %s\n",
			WarningStyle.Render(fmt.Sprintf("%-16s %3d", k, len(ids))),
			SubtleStyle.Render(truncateList(ids, 5)))
	}

	return RenderBox(FolderIcon+" Ingestion Summary", strings.TrimRight(b.String(), "\n"))
}

// RenderClassification formats a single classification result.
func RenderClassification(event model.CanonicalEvent, result model.ClassificationResult) string {
	status := OutcomeStyle(result.Outcome).Render(string(result.Outcome))

	agree := ErrorStyle.Render(ErrorIcon + " disagrees")
	if result.Label == event.EventName {
		agree = SuccessStyle.Render(SuccessIcon + " agrees")
	}

	lines := []string{
		fmt.Sprintf("%s %s", BoldStyle.Render("Event:"), event.EventID),
		fmt.Sprintf("%s %s", BoldStyle.Render("Patient:"), event.PatientID),
		fmt.Sprintf("%s %s", BoldStyle.Render("Recorded:"), event.EventName),
		fmt.Sprintf("%s %s %s", BoldStyle.Render("Predicted:"), result.Label, agree),
		fmt.Sprintf("%s %.2f", BoldStyle.Render("Confidence:"), result.Confidence),
		fmt.Sprintf("%s %s", BoldStyle.Render("Outcome:"), status),
	}
	return RenderBox(HeartIcon+" Classification", strings.Join(lines, "\n"))
}

// reportColumns are the headers and widths of the report table. Widths include
// the cell's right padding.
var reportColumns = []struct {
	title string
	width int
}{
	{"EVENT", 26},
	{"PATIENT", 18},
	{"RECORDED", 12},
	{"PREDICTED", 12},
	{"CONF", 6},
	{"OUTCOME", 21},
}

// fitCell truncates s so it renders on one line in a column of the given width.
func fitCell(s string, width int) string {
	room := width - TableCellStyle.GetHorizontalPadding()
	runes := []rune(s)
	if room <= 0 || len(runes) <= room {
		return s
	}
	return string(runes[:room-1]) + "…"
}

// RenderReport renders the aggregate summary followed by a table of rows.
// A positive limit caps the number of table rows shown.
func RenderReport(rows []model.ReportRow, summary *service.ReportSummary, limit int) string {
	var b strings.Builder

	b.WriteString(FormatTitle("Classification Report"))
	b.WriteString("\n")

	header := make([]string, len(reportColumns))
	for i, c := range reportColumns {
		header[i] = TableCellStyle.Width(c.width).Render(c.title)
	}
	b.WriteString(TableHeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, header...)))
	b.WriteString("\n")

	shown := rows
	if limit > 0 && len(rows) > limit {
		shown = rows[:limit]
	}
	for _, row := range shown {
		predicted := fitCell(row.Predicted, reportColumns[3].width)
		switch {
		case row.Outcome != model.OutcomeAccepted:
			predicted = SubtleStyle.Render(predicted)
		case row.Agrees():
			predicted = SuccessStyle.Render(predicted)
		default:
			predicted = ErrorStyle.Render(predicted)
		}

		cells := []string{
			fitCell(row.EventID, reportColumns[0].width),
			fitCell(row.PatientID, reportColumns[1].width),
			fitCell(row.GroundTruth, reportColumns[2].width),
			predicted,
			fmt.Sprintf("%.2f", row.Confidence),
			fitCell(string(row.Outcome), reportColumns[5].width),
		}
		rendered := make([]string, len(cells))
		for i, cell := range cells {
			rendered[i] = TableCellStyle.Width(reportColumns[i].width).Render(cell)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
		b.WriteString("\n")
	}
	if len(shown) < len(rows) {
		b.WriteString(SubtleStyle.Render(fmt.Sprintf("... %d more", len(rows)-len(shown))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(RenderReportSummary(summary))
	return b.String()
}

// RenderReportSummary renders the agreement rate and outcome counts.
func RenderReportSummary(summary *service.ReportSummary) string {
	lines := []string{
		fmt.Sprintf("%s %d", BoldStyle.Render("Events:"), summary.Total),
		fmt.Sprintf("%s %d", BoldStyle.Render("Accepted answers:"), summary.Accepted),
		fmt.Sprintf("%s %.1f%% (%d/%d)", BoldStyle.Render("Agreement:"),
			summary.AgreementRate()*100, summary.Agreed, summary.Accepted),
	}

	outcomes := make([]string, 0, len(summary.ByOutcome))
	for o := range summary.ByOutcome {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		lines = append(lines, fmt.Sprintf("  %-20s %d", o, summary.ByOutcome[model.Outcome(o)]))
	}

	return RenderBox(ChartIcon+" Summary", strings.Join(lines, "\n"))
}

func truncateList(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(items[:n], ", "), len(items)-n)
}
