// Package export renders submissions into the documents handed to
// candidates and administrators: CSV extracts and PDF attestations.
package export

import (
	"encoding/csv"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/istm-portal/backend/model"
)

var reFileName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// sanitizeFileName keeps generated names safe on every filesystem.
func sanitizeFileName(s string) string {
	s = strings.TrimSpace(s)
	s = reFileName.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// CSVFileName names the extract after the form and the export date.
func CSVFileName(form *model.Form, date time.Time) string {
	return "inscription_" + sanitizeFileName(form.Title) + "_" + date.Format("2006-01-02") + ".csv"
}

// csvHeader builds the column list: matricule first, then the form's
// fields in display order, then the filière choices and workflow columns.
func csvHeader(form *model.Form) []string {
	header := []string{"Matricule"}
	for _, f := range form.SortedFields() {
		header = append(header, f.Label)
	}
	return append(header,
		"Filière", "Mention", "Filière 2", "Mention 2",
		"Statut", "Date de soumission",
	)
}

// WriteCSV renders one row per submission. Field columns follow the form's
// field order; quoting is left to encoding/csv so values round-trip
// unchanged. File-type answers export as their stored reference.
func WriteCSV(w io.Writer, form *model.Form, subs []model.Submission) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader(form)); err != nil {
		return errors.Wrap(err, "csv.header")
	}

	fields := form.SortedFields()
	for _, sub := range subs {
		record := []string{sub.Matricule}
		for _, f := range fields {
			record = append(record, sub.Answer(f.ID))
		}
		record = append(record,
			sub.FiliereName, sub.Mention, sub.FiliereName2, sub.Mention2,
			string(sub.Status), sub.SubmittedAt.UTC().Format(time.RFC3339),
		)
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "csv.record")
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "csv.flush")
}
