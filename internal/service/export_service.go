package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/export"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type exportApplicationStore interface {
	FindByID(ctx context.Context, id int64) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type letterRenderer interface {
	Render(letter export.Letter) ([]byte, error)
}

// LetterConfig describes the letterhead printed on decision letters.
type LetterConfig struct {
	Enabled    bool
	SchoolName string
	Signatory  string
}

// ExportService renders admission datasets as CSV and decision letters as PDF.
type ExportService struct {
	repo    exportApplicationStore
	csv     csvRenderer
	letters letterRenderer
	logger  *zap.Logger
	cfg     LetterConfig
}

// NewExportService constructs an ExportService.
func NewExportService(repo exportApplicationStore, cfg LetterConfig, logger *zap.Logger, csv csvRenderer, letters letterRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if letters == nil {
		letters = export.NewLetterRenderer()
	}
	return &ExportService{repo: repo, csv: csv, letters: letters, logger: logger, cfg: cfg}
}

var applicationCSVHeaders = []string{
	"id", "full_name", "birth_date", "gender", "grade_applied", "academic_year",
	"email", "phone", "guardian_name", "guardian_phone", "status", "student_uid",
	"submitted_at", "decided_at",
}

// ApplicationsCSV exports the applications matching the filter. Pagination in
// the filter is ignored; the full matching set is written.
func (s *ExportService) ApplicationsCSV(ctx context.Context, filter models.ApplicationFilter) ([]byte, string, error) {
	filter.Page = 1
	filter.PageSize = exportPageSize

	dataset := export.Dataset{Headers: applicationCSVHeaders}
	for {
		apps, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
		}
		for i := range apps {
			dataset.Rows = append(dataset.Rows, applicationCSVRow(&apps[i]))
		}
		if len(dataset.Rows) >= total || len(apps) == 0 {
			break
		}
		filter.Page++
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}

	filename := fmt.Sprintf("admissions_%s.csv", time.Now().UTC().Format("20060102_150405"))
	s.logger.Info("applications exported",
		zap.Int("rows", len(dataset.Rows)),
		zap.String("filename", filename))
	return payload, filename, nil
}

const exportPageSize = 500

func applicationCSVRow(app *models.Application) map[string]string {
	row := map[string]string{
		"id":             strconv.FormatInt(app.ID, 10),
		"full_name":      app.FullName,
		"birth_date":     app.BirthDate.Format("2006-01-02"),
		"gender":         app.Gender,
		"grade_applied":  strconv.Itoa(app.GradeApplied),
		"academic_year":  app.AcademicYear,
		"email":          app.Email,
		"phone":          app.Phone,
		"guardian_name":  app.GuardianName,
		"guardian_phone": app.GuardianPhone,
		"status":         string(app.Status),
		"submitted_at":   app.CreatedAt.Format(time.RFC3339),
	}
	if app.StudentUID != nil {
		row["student_uid"] = *app.StudentUID
	}
	if app.DecidedAt != nil {
		row["decided_at"] = app.DecidedAt.Format(time.RFC3339)
	}
	return row
}

// DecisionLetter renders the PDF letter for a decided application.
func (s *ExportService) DecisionLetter(ctx context.Context, applicationID int64) ([]byte, string, error) {
	if !s.cfg.Enabled {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "decision letters are disabled")
	}

	app, err := s.repo.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	if !app.Status.Terminal() {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "application has no decision yet")
	}

	letter := export.Letter{
		SchoolName:    s.cfg.SchoolName,
		Signatory:     s.cfg.Signatory,
		ApplicantName: app.FullName,
		GradeApplied:  app.GradeApplied,
		AcademicYear:  app.AcademicYear,
		Decision:      string(app.Status),
	}
	if app.StudentUID != nil {
		letter.StudentUID = *app.StudentUID
	}
	if app.DecisionNotes != nil {
		letter.Notes = *app.DecisionNotes
	}
	if app.DecidedAt != nil {
		letter.DecidedAt = *app.DecidedAt
	}

	payload, err := s.letters.Render(letter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render letter")
	}

	filename := fmt.Sprintf("decision_%d.pdf", app.ID)
	return payload, filename, nil
}
