package hotspots

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	// VulnerabilitiesSheet lists one hotspot per row.
	VulnerabilitiesSheet = "Vulnerabilities"
	// SummarySheet holds the severity, status and category tables and the severity chart.
	SummarySheet = "Security Summary"
)

var vulnerabilityColumns = []string{"Rule", "Severity", "Component", "Line", "Description", "Status", "Category"}

type workbookStyles struct {
	header, cell, altRow int
}

func newWorkbookStyles(f *excelize.File) (workbookStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}

	var s workbookStyles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Family: "Calibri", Size: 11, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    border,
	}); err != nil {
		return s, err
	}
	if s.cell, err = f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Family: "Calibri", Size: 10},
		Border: border,
	}); err != nil {
		return s, err
	}
	s.altRow, err = f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Family: "Calibri", Size: 10},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"F2F2F2"}, Pattern: 1},
		Border: border,
	})
	return s, err
}

// WriteXLSX renders the report as a workbook with a vulnerability sheet and a summary sheet.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", VulnerabilitiesSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	styles, err := newWorkbookStyles(f)
	if err != nil {
		return fmt.Errorf("failed to create styles: %w", err)
	}

	if err := r.writeVulnerabilities(f, styles); err != nil {
		return err
	}
	if err := r.writeSummary(f, styles); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (r *Report) writeVulnerabilities(f *excelize.File, styles workbookStyles) error {
	header := make([]interface{}, len(vulnerabilityColumns))
	widths := make([]int, len(vulnerabilityColumns))
	for i, name := range vulnerabilityColumns {
		header[i] = name
		widths[i] = len(name)
	}
	if err := writeRow(f, VulnerabilitiesSheet, 1, header, styles.header); err != nil {
		return err
	}

	for i, v := range r.Vulnerabilities {
		row := []interface{}{v.Rule, v.Severity, v.Component, v.Line, v.Description, v.Status, v.Category}
		for c, value := range row {
			widths[c] = max(widths[c], len(fmt.Sprint(value)))
		}
		style := styles.cell
		if (i+1)%2 == 0 {
			style = styles.altRow
		}
		if err := writeRow(f, VulnerabilitiesSheet, i+2, row, style); err != nil {
			return err
		}
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(VulnerabilitiesSheet, col, col, float64(width+4)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) writeSummary(f *excelize.File, styles workbookStyles) error {
	row := 1
	severityRows := 0
	for _, table := range []struct {
		title  string
		counts map[string]int
	}{
		{"Severity", r.SeverityCounts},
		{"Status", r.StatusCounts},
		{"Category", r.CategoryCounts},
	} {
		if err := writeRow(f, SummarySheet, row, []interface{}{table.title, "Count"}, styles.header); err != nil {
			return err
		}
		sorted := Sorted(table.counts)
		for i, c := range sorted {
			if err := writeRow(f, SummarySheet, row+1+i, []interface{}{c.Label, c.Count}, styles.cell); err != nil {
				return err
			}
		}
		if table.title == "Severity" {
			severityRows = len(sorted)
		}
		row += len(sorted) + 3
	}

	if err := f.SetColWidth(SummarySheet, "A", "A", 25); err != nil {
		return err
	}
	if err := f.SetColWidth(SummarySheet, "B", "B", 10); err != nil {
		return err
	}

	if severityRows == 0 {
		return nil
	}
	last := strconv.Itoa(severityRows + 1)
	sheetRef := "'" + SummarySheet + "'!"
	if err := f.AddChart(SummarySheet, "E2", &excelize.Chart{
		Type: excelize.Pie,
		Series: []excelize.ChartSeries{{
			Name:       "Severity Distribution",
			Categories: sheetRef + "$A$2:$A$" + last,
			Values:     sheetRef + "$B$2:$B$" + last,
		}},
		Title: []excelize.RichTextRun{{
			Text: "Vulnerability Severity Distribution",
			Font: &excelize.Font{Family: "Calibri", Size: 11, Bold: true},
		}},
		PlotArea: excelize.ChartPlotArea{
			ShowCatName:     true,
			ShowPercent:     true,
			ShowLeaderLines: true,
		},
		Legend: excelize.ChartLegend{Position: "right"},
	}); err != nil {
		return fmt.Errorf("failed to add severity chart: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}, style int) error {
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, first, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return f.SetCellStyle(sheet, first, last, style)
}
