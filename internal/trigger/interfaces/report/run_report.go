package report

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	trigger "daq-trigger/internal/trigger/domain"
)

const (
	// ContentTypePDF is the media type of BuildRunPDF output.
	ContentTypePDF = "application/pdf"
	// ContentTypeXLSX is the media type of BuildRunXLSX output.
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var errNilRun = errors.New("run report: nil run")

type row struct {
	label string
	value any
}

type livetimeRow struct {
	state    string
	duration time.Duration
	fraction float64
}

func summaryRows(run *trigger.RunSummary) []row {
	stopped := "-"
	if !run.StoppedAt.IsZero() {
		stopped = run.StoppedAt.UTC().Format(time.RFC3339)
	}
	return []row{
		{"Run", uint64(run.RunNumber)},
		{"Status", run.Status},
		{"Started", run.StartedAt.UTC().Format(time.RFC3339)},
		{"Stopped", stopped},
		{"Candidates received", run.CandidatesReceived},
		{"Decisions sent", run.DecisionsSent},
		{"Send failures", run.DecisionsFailed},
		{"Inhibited (busy)", run.DecisionsInhibited},
		{"Suppressed (paused)", run.DecisionsPaused},
		{"Total considered", run.DecisionsTotal},
		{"Last trigger number", uint64(run.LastTriggerNumber)},
	}
}

func livetimeRows(run *trigger.RunSummary) []livetimeRow {
	total := run.LiveTime + run.PausedTime + run.DeadTime
	fraction := func(d time.Duration) float64 {
		if total <= 0 {
			return 0
		}
		return float64(d) / float64(total)
	}
	return []livetimeRow{
		{"live", run.LiveTime, fraction(run.LiveTime)},
		{"paused", run.PausedTime, fraction(run.PausedTime)},
		{"dead", run.DeadTime, fraction(run.DeadTime)},
		{"deadtime", run.Deadtime(), fraction(run.Deadtime())},
	}
}

// BuildRunPDF renders a one-page summary of a run.
func BuildRunPDF(run *trigger.RunSummary) ([]byte, error) {
	if run == nil {
		return nil, errNilRun
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, fmt.Sprintf("Trigger Run %d", run.RunNumber))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, r := range summaryRows(run) {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %v", r.label, r.value))
		pdf.Ln(5)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "State", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Duration (s)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Fraction", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, r := range livetimeRows(run) {
		pdf.CellFormat(40, 6, r.state, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.3f", r.duration.Seconds()), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f%%", r.fraction*100), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRunXLSX renders a workbook with a summary and a livetime sheet.
func BuildRunXLSX(run *trigger.RunSummary) ([]byte, error) {
	if run == nil {
		return nil, errNilRun
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	livetimeSheet := "livetime"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(livetimeSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", fmt.Sprintf("Trigger Run %d", run.RunNumber))
	for i, r := range summaryRows(run) {
		line := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", line), r.label)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", line), r.value)
	}

	_ = f.SetCellValue(livetimeSheet, "A1", "State")
	_ = f.SetCellValue(livetimeSheet, "B1", "Duration (s)")
	_ = f.SetCellValue(livetimeSheet, "C1", "Fraction")
	for i, r := range livetimeRows(run) {
		line := i + 2
		_ = f.SetCellValue(livetimeSheet, fmt.Sprintf("A%d", line), r.state)
		_ = f.SetCellValue(livetimeSheet, fmt.Sprintf("B%d", line), r.duration.Seconds())
		_ = f.SetCellValue(livetimeSheet, fmt.Sprintf("C%d", line), r.fraction)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
