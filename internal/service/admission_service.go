package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id int64) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	UpdateReview(ctx context.Context, params repository.ReviewParams) error
	UpdateReject(ctx context.Context, params repository.RejectParams) error
	FinalizeApproval(ctx context.Context, params repository.ApprovalParams) (int64, error)
}

type uidAllocator interface {
	Allocate(ctx context.Context, prefix string) (string, error)
	Preview(ctx context.Context, prefix string) (string, error)
}

type documentLister interface {
	ListByApplication(ctx context.Context, applicationID int64) ([]models.Document, error)
}

type auditSink interface {
	Record(log *models.AuditLog)
}

// AdmissionService is the lifecycle engine for admission applications. Every
// state change passes through models.ValidateTransition, and the current
// state is re-checked at the storage layer so a racing actor loses cleanly
// with a Conflict instead of double-deciding.
type AdmissionService struct {
	repo      applicationStore
	uids      uidAllocator
	docs      documentLister
	audit     auditSink
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdmissionService constructs the admission service.
func NewAdmissionService(repo applicationStore, uids uidAllocator, docs documentLister, audit auditSink, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{repo: repo, uids: uids, docs: docs, audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// Submit registers a public admission application in state PENDING.
func (s *AdmissionService) Submit(ctx context.Context, req dto.SubmitApplicationRequest, ip, userAgent string) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	if _, err := yearSuffix(req.AcademicYear); err != nil {
		return nil, err
	}

	app := &models.Application{
		FullName:      strings.TrimSpace(req.FullName),
		BirthDate:     req.BirthDate,
		Gender:        req.Gender,
		GradeApplied:  req.GradeApplied,
		AcademicYear:  req.AcademicYear,
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:         req.Phone,
		Address:       req.Address,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
	}
	if req.PreferredSection != "" {
		section := strings.ToUpper(req.PreferredSection)
		app.PreferredSection = &section
	}
	if req.PreviousSchool != "" {
		app.PreviousSchool = &req.PreviousSchool
	}

	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	s.metrics.ObserveTransition(string(models.ApplicationStatusPending))
	payload, _ := json.Marshal(map[string]interface{}{"grade": app.GradeApplied, "academic_year": app.AcademicYear})
	s.emitAudit(&models.AuditLog{
		Action:     models.AuditActionApplicationSubmit,
		Resource:   "applications",
		ResourceID: resourceID(app.ID),
		NewValues:  payload,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})
	return app, nil
}

// List returns applications and pagination metadata.
func (s *AdmissionService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, *models.Pagination, error) {
	applications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return applications, pagination, nil
}

// Get returns a single application.
func (s *AdmissionService) Get(ctx context.Context, id int64) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

// Review moves an application between the reviewable states. Only admins and
// admission staff may review, and never an already-decided application.
func (s *AdmissionService) Review(ctx context.Context, id int64, actor *models.JWTClaims, req dto.ReviewApplicationRequest) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleAdmissionStaff {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins and admission staff may review applications")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if err := models.ValidateTransition(app.Status, req.TargetStatus); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	params := repository.ReviewParams{
		ID:           app.ID,
		FromStatus:   app.Status,
		TargetStatus: req.TargetStatus,
		ReviewerID:   actor.UserID,
		Notes:        optionalString(req.Notes),
		ReviewedAt:   now,
	}
	if err := s.repo.UpdateReview(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified by another actor")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
	}

	prior := app.Status
	app.Status = req.TargetStatus
	app.ReviewedBy = &actor.UserID
	app.ReviewNotes = params.Notes
	app.ReviewedAt = &now

	s.metrics.ObserveTransition(string(req.TargetStatus))
	oldPayload, _ := json.Marshal(map[string]interface{}{"status": prior})
	newPayload, _ := json.Marshal(map[string]interface{}{"status": req.TargetStatus})
	s.emitAudit(&models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionApplicationReview,
		Resource:   "applications",
		ResourceID: resourceID(app.ID),
		OldValues:  oldPayload,
		NewValues:  newPayload,
	})
	return app, nil
}

// Reject terminates a non-terminal application. Admin only; a reason is
// mandatory and preserved verbatim.
func (s *AdmissionService) Reject(ctx context.Context, id int64, actor *models.JWTClaims, req dto.RejectApplicationRequest) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may reject applications")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}

	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if err := models.ValidateTransition(app.Status, models.ApplicationStatusRejected); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	params := repository.RejectParams{
		ID:         app.ID,
		FromStatus: app.Status,
		ActorID:    actor.UserID,
		Reason:     strings.TrimSpace(req.Reason),
		DecidedAt:  now,
	}
	if err := s.repo.UpdateReject(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified by another actor")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject application")
	}

	prior := app.Status
	app.Status = models.ApplicationStatusRejected
	app.DecidedBy = &actor.UserID
	app.DecisionNotes = &params.Reason
	app.DecidedAt = &now

	s.metrics.ObserveTransition(string(models.ApplicationStatusRejected))
	oldPayload, _ := json.Marshal(map[string]interface{}{"status": prior})
	newPayload, _ := json.Marshal(map[string]interface{}{"status": models.ApplicationStatusRejected, "reason": params.Reason})
	s.emitAudit(&models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionApplicationReject,
		Resource:   "applications",
		ResourceID: resourceID(app.ID),
		OldValues:  oldPayload,
		NewValues:  newPayload,
	})
	return app, nil
}

// Approve is the compound approval operation: mint a student UID, provision
// the account with a one-time password, finalise the application, and
// re-point its documents, the last three atomically. The state is verified
// before allocation so an illegal approve never consumes a sequence number;
// a gap from a later storage failure is accepted, a duplicate never is.
func (s *AdmissionService) Approve(ctx context.Context, id int64, actor *models.JWTClaims, req dto.ApproveApplicationRequest) (*dto.ApprovalResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may approve applications")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "section assignment is required")
	}

	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if err := models.ValidateTransition(app.Status, models.ApplicationStatusApproved); err != nil {
		return nil, err
	}

	prefix, err := ClassPrefix(app.AcademicYear, app.GradeApplied, req.Section)
	if err != nil {
		return nil, err
	}
	studentUID, err := s.uids.Allocate(ctx, prefix)
	if err != nil {
		return nil, err
	}

	oneTimePassword, err := generateOneTimePassword()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate password")
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(oneTimePassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	params := repository.ApprovalParams{
		ApplicationID: app.ID,
		StudentUID:    studentUID,
		PasswordHash:  string(passwordHash),
		FullName:      app.FullName,
		Email:         app.Email,
		Phone:         app.Phone,
		ApproverID:    actor.UserID,
		Notes:         optionalString(req.Notes),
		DecidedAt:     now,
	}
	userID, err := s.repo.FinalizeApproval(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application was decided by another actor")
		}
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrAllocation, fmt.Sprintf("uid %s already in use", studentUID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize approval")
	}

	s.metrics.ObserveTransition(string(models.ApplicationStatusApproved))
	s.metrics.ObserveAllocation(string(UIDTypeStudent))
	newPayload, _ := json.Marshal(map[string]interface{}{"status": models.ApplicationStatusApproved, "student_uid": studentUID, "account_id": userID})
	s.emitAudit(&models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionApplicationApprove,
		Resource:   "applications",
		ResourceID: resourceID(app.ID),
		NewValues:  newPayload,
	})

	s.logger.Info("application approved",
		zap.Int64("application_id", app.ID),
		zap.String("student_uid", studentUID),
		zap.Int64("account_id", userID))

	return &dto.ApprovalResult{
		ApplicationID:   app.ID,
		StudentUID:      studentUID,
		OneTimePassword: oneTimePassword,
		AccountID:       userID,
	}, nil
}

// PreviewNextUID shows the student UID the next approval in the
// application's namespace would mint. It never advances the counter and is
// allowed to go stale if a concurrent approval lands first.
func (s *AdmissionService) PreviewNextUID(ctx context.Context, id int64, section string) (*dto.UIDPreview, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	prefix, err := ClassPrefix(app.AcademicYear, app.GradeApplied, section)
	if err != nil {
		return nil, err
	}
	uid, err := s.uids.Preview(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return &dto.UIDPreview{Prefix: prefix, UID: uid}, nil
}

// Documents lists the files attached to an application. After approval the
// set is empty: the files were re-pointed to the student account and are
// served through the account's document listing instead.
func (s *AdmissionService) Documents(ctx context.Context, id int64) ([]models.Document, error) {
	if s.docs == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "documents are not available")
	}
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	docs, err := s.docs.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

func (s *AdmissionService) emitAudit(log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	if log.IPAddress == "" {
		log.IPAddress = "system"
	}
	if log.UserAgent == "" {
		log.UserAgent = "admission-service"
	}
	s.audit.Record(log)
}

func resourceID(id int64) *string {
	value := fmt.Sprintf("%d", id)
	return &value
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func generateOneTimePassword() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
