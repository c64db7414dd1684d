// Package report renders a finished simulation's energy bilan as a
// spreadsheet and a one-page PDF summary, the way a building energy study
// hands its results to a reader who never opens Go: a workbook for
// further analysis, a PDF for a quick look. The spreadsheet writer mirrors
// aeputil's tealeg/xlsx usage (which reads cells out of a workbook) run in
// reverse, building a workbook cell by cell instead of scanning one.
package report

import (
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/tealeg/xlsx"

	"github.com/voxeltherm/thermovox/sim"
)

// WriteXLSX writes a two-sheet workbook: "Bilan" (time, total energy,
// drift percent) and "Zones" (per-zone cumulative energy at the time the
// report is generated).
func WriteXLSX(b *sim.Bilan, path string) error {
	f := xlsx.NewFile()

	bilanSheet, err := f.AddSheet("Bilan")
	if err != nil {
		return fmt.Errorf("report: adding Bilan sheet: %w", err)
	}
	header := bilanSheet.AddRow()
	for _, h := range []string{"t (s)", "energy (J)", "drift (%)"} {
		header.AddCell().SetString(h)
	}
	ts, energy, driftPc := b.History()
	for i := range ts {
		row := bilanSheet.AddRow()
		row.AddCell().SetFloat(ts[i])
		row.AddCell().SetFloat(energy[i])
		row.AddCell().SetFloat(driftPc[i])
	}

	zoneSheet, err := f.AddSheet("Zones")
	if err != nil {
		return fmt.Errorf("report: adding Zones sheet: %w", err)
	}
	zoneHeader := zoneSheet.AddRow()
	for _, h := range []string{"zone id", "cumulative energy (J)"} {
		zoneHeader.AddCell().SetString(h)
	}
	for _, id := range b.ZoneIDs() {
		row := zoneSheet.AddRow()
		row.AddCell().SetString(strconv.Itoa(int(id)))
		row.AddCell().SetFloat(b.ZoneEnergy(id))
	}

	return f.Save(path)
}

// WritePDF renders a single-page summary: final drift, drift statistics,
// and a per-zone energy table. It is deliberately plain (no embedded
// plots) — the PNG time series produced by the plotsink collaborator is
// meant to be attached alongside this page, not duplicated inside it.
func WritePDF(b *sim.Bilan, path string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Energy bilan report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	mean, stddev := b.DriftStats()
	last := b.LastDrift()
	max := b.MaxDrift()

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Final drift: %.4f %%", last), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Max drift: %.4f %%", max), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Mean drift: %.4f %%", mean), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Drift std. dev.: %.4f %%", stddev), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Grade: %s", b.Grade()), "", 1, "", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Per-zone cumulative energy", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	for _, id := range b.ZoneIDs() {
		pdf.CellFormat(0, 7, fmt.Sprintf("zone %d: %.2f J", id, b.ZoneEnergy(id)), "", 1, "", false, 0, "")
	}

	return pdf.OutputFileAndClose(path)
}
