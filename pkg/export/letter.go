package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Letter describes the content of an admission decision letter.
type Letter struct {
	SchoolName    string
	Signatory     string
	ApplicantName string
	GradeApplied  int
	AcademicYear  string
	Decision      string
	StudentUID    string
	Notes         string
	DecidedAt     time.Time
}

// LetterRenderer produces PDF decision letters for admission applications.
type LetterRenderer struct{}

// NewLetterRenderer constructs a letter renderer.
func NewLetterRenderer() *LetterRenderer {
	return &LetterRenderer{}
}

// Render creates the PDF document for the given letter.
func (r *LetterRenderer) Render(letter Letter) ([]byte, error) {
	if letter.ApplicantName == "" {
		return nil, fmt.Errorf("letter requires an applicant name")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(letter.SchoolName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Admission Office", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "ADMISSION DECISION NOTICE", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 11)
	body := fmt.Sprintf("Dear %s,", letter.ApplicantName)
	pdf.MultiCell(0, 6, body, "", "L", false)
	pdf.Ln(2)

	var paragraph string
	switch letter.Decision {
	case "APPROVED":
		paragraph = fmt.Sprintf(
			"We are pleased to inform you that your application for grade %d, academic year %s, has been APPROVED. "+
				"Your student identification number is %s. Please keep it safe; you will need it for enrollment and first login.",
			letter.GradeApplied, letter.AcademicYear, letter.StudentUID)
	case "REJECTED":
		paragraph = fmt.Sprintf(
			"We regret to inform you that your application for grade %d, academic year %s, has not been accepted.",
			letter.GradeApplied, letter.AcademicYear)
	default:
		return nil, fmt.Errorf("letter requires a terminal decision, got %q", letter.Decision)
	}
	pdf.MultiCell(0, 6, paragraph, "", "L", false)
	pdf.Ln(2)

	if letter.Notes != "" {
		pdf.MultiCell(0, 6, "Notes: "+letter.Notes, "", "L", false)
		pdf.Ln(2)
	}

	if !letter.DecidedAt.IsZero() {
		pdf.CellFormat(0, 6, "Decided on "+letter.DecidedAt.Format("2 January 2006"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(14)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, letter.Signatory, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, letter.SchoolName, "", 1, "L", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render letter: %w", err)
	}
	return buf.Bytes(), nil
}
