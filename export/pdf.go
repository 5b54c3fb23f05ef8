package export

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/istm-portal/backend/matricule"
	"github.com/istm-portal/backend/model"
)

// Options carries the rendering assets. A missing logo never fails the
// export; the header falls back to plain text.
type Options struct {
	LogoPath string
}

// RegistrationPDFFileName names the attestation after the candidate.
func RegistrationPDFFileName(form *model.Form, sub *model.Submission) string {
	nom := sanitizeFileName(sub.Nom)
	postnom := sanitizeFileName(postnom(form, sub))
	name := "Inscription_" + sub.Matricule
	if nom != "" {
		name += "_" + nom
	}
	if postnom != "" {
		name += "_" + postnom
	}
	return name + ".pdf"
}

func postnom(form *model.Form, sub *model.Submission) string {
	if v := sub.AnswerByLabel(form, "postnom"); v != "" {
		return v
	}
	return sub.AnswerByLabel(form, "post-nom")
}

// section groups answers under one heading of the attestation.
type section struct {
	title  string
	fields []model.Field
}

var sectionKeywords = map[string][]string{
	"Informations personnelles": {"nom", "prenom", "naissance", "sexe", "genre", "nationalite", "etat civil", "lieu"},
	"Coordonnées":               {"email", "tel", "phone", "adresse", "ville", "commune", "avenue", "quartier", "province"},
	"Diplôme et études":         {"diplome", "ecole", "section", "option", "pourcentage", "annee", "etude"},
}

var sectionOrder = []string{
	"Informations personnelles", "Coordonnées", "Diplôme et études", "Autres informations",
}

// groupFields splits the form's fields into the attestation's sections by
// matching label keywords, keeping field order inside each section.
func groupFields(form *model.Form) []section {
	byTitle := map[string]*section{}
	for _, title := range sectionOrder {
		byTitle[title] = &section{title: title}
	}

next:
	for _, f := range form.SortedFields() {
		label := normalizeForMatch(f.Label)
		for _, title := range sectionOrder[:3] {
			for _, kw := range sectionKeywords[title] {
				if strings.Contains(label, kw) {
					byTitle[title].fields = append(byTitle[title].fields, f)
					continue next
				}
			}
		}
		byTitle["Autres informations"].fields = append(byTitle["Autres informations"].fields, f)
	}

	sections := []section{}
	for _, title := range sectionOrder {
		if len(byTitle[title].fields) > 0 {
			sections = append(sections, *byTitle[title])
		}
	}
	return sections
}

var matchReplacer = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"à", "a", "â", "a", "î", "i", "ï", "i",
	"ô", "o", "û", "u", "ù", "u", "ç", "c",
)

func normalizeForMatch(s string) string {
	return matchReplacer.Replace(strings.ToLower(s))
}

// WriteRegistrationPDF renders the candidate's attestation: header with
// logo, grouped answer sections, both filière choices and a QR footer
// encoding prefix-matricule-date. Missing optional answers are skipped.
func WriteRegistrationPDF(w io.Writer, form *model.Form, sub *model.Submission, opts Options) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(true, 25)
	pdf.AddPage()

	writeHeader(pdf, tr, opts.LogoPath)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr("Fiche d'inscription"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, tr(form.Title), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 7, tr("Matricule : "+sub.Matricule), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for _, sec := range groupFields(form) {
		rows := [][2]string{}
		for _, f := range sec.fields {
			value := sub.Answer(f.ID)
			if value == "" && !f.Required {
				continue
			}
			rows = append(rows, [2]string{f.Label, value})
		}
		if len(rows) == 0 {
			continue
		}

		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(0, 8, tr(sec.title), "", 1, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, row := range rows {
			pdf.CellFormat(70, 7, tr(row[0]), "", 0, "L", false, 0, "")
			pdf.MultiCell(0, 7, tr(row[1]), "", "L", false)
		}
		pdf.Ln(2)
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(0, 8, tr("Choix de filière"), "", 1, "L", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(70, 7, tr("Filière"), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, tr(sub.FiliereName+" - "+sub.Mention), "", 1, "L", false, 0, "")
	if sub.FiliereName2 != "" {
		pdf.CellFormat(70, 7, tr("Filière (2e choix)"), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, tr(sub.FiliereName2+" - "+sub.Mention2), "", 1, "L", false, 0, "")
	}

	writeQRFooter(pdf, tr, sub)

	return errors.Wrap(pdf.Output(w), "pdf.output")
}

func writeHeader(pdf *gofpdf.Fpdf, tr func(string) string, logoPath string) {
	if logoPath != "" {
		if _, err := os.Stat(logoPath); err == nil {
			pdf.ImageOptions(logoPath, 10, 8, 22, 0, false,
				gofpdf.ImageOptions{ReadDpi: true}, 0, "")
			pdf.Ln(18)
			return
		}
	}
	// no logo asset: plain text header instead of failing the export
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, tr("Institut Supérieur des Techniques Médicales"), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func writeQRFooter(pdf *gofpdf.Fpdf, tr func(string) string, sub *model.Submission) {
	payload := matricule.QRPayload(sub.Matricule, sub.SubmittedAt)

	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		// degraded footer, never a failed export
		pdf.SetY(-30)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 5, tr(payload), "", 1, "C", false, 0, "")
		return
	}

	pdf.RegisterImageOptionsReader("qr-"+sub.Matricule,
		gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	pdf.SetY(-40)
	pdf.ImageOptions("qr-"+sub.Matricule, 95, pdf.GetY(), 20, 20, false,
		gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	pdf.SetY(-18)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 5, tr(payload), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, tr("Document généré le "+time.Now().Format("02/01/2006")), "", 1, "C", false, 0, "")
}
