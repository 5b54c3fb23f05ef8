package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"

	"github.com/istm-portal/backend/model"
)

// Stats aggregates live submissions for the back-office dashboard.
type Stats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"byStatus"`
	ByFiliere  map[string]int `json:"byFiliere"`
	ByForm     map[string]int `json:"byForm"`
	LastUpdate time.Time      `json:"lastUpdate"`
}

// ComputeStats recounts everything from the submissions themselves; no
// stored counter is trusted.
func ComputeStats(forms []model.Form, subs []model.Submission, now time.Time) Stats {
	stats := Stats{
		ByStatus:   map[string]int{},
		ByFiliere:  map[string]int{},
		ByForm:     map[string]int{},
		LastUpdate: now,
	}

	titles := map[string]string{}
	for _, f := range forms {
		titles[f.ID] = f.Title
	}

	for _, sub := range subs {
		stats.Total++
		stats.ByStatus[string(sub.Status)]++
		if sub.FiliereName != "" {
			stats.ByFiliere[sub.FiliereName]++
		}
		title := titles[sub.FormID]
		if title == "" {
			title = sub.FormID
		}
		stats.ByForm[title]++
	}
	return stats
}

// StatsPDFFileName names the dashboard export after its date.
func StatsPDFFileName(date time.Time) string {
	return "Tableau_Bord_Inscriptions_" + date.Format("2006-01-02") + ".pdf"
}

// WriteStatsPDF renders the aggregate dashboard: totals, then per-status,
// per-filière and per-form breakdown tables.
func WriteStatsPDF(w io.Writer, stats Stats, opts Options) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	writeHeader(pdf, tr, opts.LogoPath)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr("Tableau de bord des inscriptions"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Généré le "+stats.LastUpdate.Format("02/01/2006 15:04")), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("Total des inscriptions : %d", stats.Total)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	writeBreakdown(pdf, tr, "Par statut", stats.ByStatus)
	writeBreakdown(pdf, tr, "Par filière", stats.ByFiliere)
	writeBreakdown(pdf, tr, "Par formulaire", stats.ByForm)

	return errors.Wrap(pdf.Output(w), "pdf.stats.output")
}

func writeBreakdown(pdf *gofpdf.Fpdf, tr func(string) string, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(0, 7, tr(title), "", 1, "L", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, k := range keys {
		pdf.CellFormat(120, 6, tr(k), "B", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("%d", counts[k]), "B", 1, "R", false, 0, "")
	}
	pdf.Ln(3)
}
