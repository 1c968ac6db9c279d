package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type mockApplicationStore struct {
	applications map[int64]*models.Application
	nextID       int64
	finalizeErr  error
	createdUsers int64
	staleStatus  *models.ApplicationStatus
}

func (m *mockApplicationStore) Create(ctx context.Context, app *models.Application) error {
	if m.applications == nil {
		m.applications = make(map[int64]*models.Application)
	}
	m.nextID++
	app.ID = m.nextID
	app.Status = models.ApplicationStatusPending
	app.CreatedAt = time.Now().UTC()
	stored := *app
	m.applications[app.ID] = &stored
	return nil
}

func (m *mockApplicationStore) FindByID(ctx context.Context, id int64) (*models.Application, error) {
	app, ok := m.applications[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *app
	if m.staleStatus != nil {
		copied.Status = *m.staleStatus
		m.staleStatus = nil
	}
	return &copied, nil
}

func (m *mockApplicationStore) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	var result []models.Application
	for _, app := range m.applications {
		result = append(result, *app)
	}
	return result, len(result), nil
}

func (m *mockApplicationStore) UpdateReview(ctx context.Context, params repository.ReviewParams) error {
	app, ok := m.applications[params.ID]
	if !ok || app.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	app.Status = params.TargetStatus
	app.ReviewedBy = &params.ReviewerID
	app.ReviewNotes = params.Notes
	app.ReviewedAt = &params.ReviewedAt
	return nil
}

func (m *mockApplicationStore) UpdateReject(ctx context.Context, params repository.RejectParams) error {
	app, ok := m.applications[params.ID]
	if !ok || app.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	app.Status = models.ApplicationStatusRejected
	app.DecidedBy = &params.ActorID
	app.DecisionNotes = &params.Reason
	app.DecidedAt = &params.DecidedAt
	return nil
}

func (m *mockApplicationStore) FinalizeApproval(ctx context.Context, params repository.ApprovalParams) (int64, error) {
	if m.finalizeErr != nil {
		return 0, m.finalizeErr
	}
	app, ok := m.applications[params.ApplicationID]
	if !ok || app.Status != models.ApplicationStatusReadyForApproval {
		return 0, sql.ErrNoRows
	}
	m.createdUsers++
	app.Status = models.ApplicationStatusApproved
	app.StudentUID = &params.StudentUID
	app.DecidedBy = &params.ApproverID
	app.DecidedAt = &params.DecidedAt
	return m.createdUsers, nil
}

type mockAllocator struct {
	seq           map[string]int64
	allocateCalls int
}

func (m *mockAllocator) Allocate(ctx context.Context, prefix string) (string, error) {
	if m.seq == nil {
		m.seq = make(map[string]int64)
	}
	m.allocateCalls++
	m.seq[prefix]++
	return formatUID(prefix, m.seq[prefix]), nil
}

func (m *mockAllocator) Preview(ctx context.Context, prefix string) (string, error) {
	return formatUID(prefix, m.seq[prefix]+1), nil
}

type mockAuditSink struct {
	records []*models.AuditLog
}

func (m *mockAuditSink) Record(log *models.AuditLog) {
	m.records = append(m.records, log)
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: 1, UID: "ADM001", Role: models.RoleAdmin, FullName: "Admin"}
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: 2, UID: "ADS001", Role: models.RoleAdmissionStaff, FullName: "Staff"}
}

func submitRequest() dto.SubmitApplicationRequest {
	return dto.SubmitApplicationRequest{
		FullName:      "Siti Rahma",
		BirthDate:     time.Date(2012, 4, 1, 0, 0, 0, 0, time.UTC),
		Gender:        "F",
		GradeApplied:  3,
		AcademicYear:  "2025-2026",
		Email:         "Siti@Example.com",
		Phone:         "0812000111",
		Address:       "Jl. Merdeka 1",
		GuardianName:  "Budi Rahma",
		GuardianPhone: "0812000112",
	}
}

func newAdmissionFixture() (*AdmissionService, *mockApplicationStore, *mockAllocator, *mockAuditSink) {
	store := &mockApplicationStore{}
	allocator := &mockAllocator{}
	audit := &mockAuditSink{}
	svc := NewAdmissionService(store, allocator, nil, audit, nil, validator.New(), zap.NewNop())
	return svc, store, allocator, audit
}

func seedApplication(store *mockApplicationStore, status models.ApplicationStatus) *models.Application {
	if store.applications == nil {
		store.applications = make(map[int64]*models.Application)
	}
	store.nextID++
	app := &models.Application{
		ID:           store.nextID,
		FullName:     "Siti Rahma",
		Gender:       "F",
		GradeApplied: 3,
		AcademicYear: "2025-2026",
		Email:        "siti@example.com",
		Phone:        "0812000111",
		Status:       status,
	}
	store.applications[app.ID] = app
	return app
}

func TestSubmitCreatesPending(t *testing.T) {
	svc, store, _, audit := newAdmissionFixture()

	app, err := svc.Submit(context.Background(), submitRequest(), "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Equal(t, "siti@example.com", app.Email)
	assert.Len(t, store.applications, 1)
	require.Len(t, audit.records, 1)
	assert.Equal(t, models.AuditActionApplicationSubmit, audit.records[0].Action)
}

func TestSubmitRejectsBadPayload(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()

	req := submitRequest()
	req.Gender = "X"
	_, err := svc.Submit(context.Background(), req, "", "")
	assert.Error(t, err)

	req = submitRequest()
	req.AcademicYear = "twenty-five"
	_, err = svc.Submit(context.Background(), req, "", "")
	assert.Error(t, err)
	assert.Empty(t, store.applications)
}

func TestReviewTransitions(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusPending)

	updated, err := svc.Review(context.Background(), app.ID, staffClaims(), dto.ReviewApplicationRequest{TargetStatus: models.ApplicationStatusReviewing})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusReviewing, updated.Status)

	updated, err = svc.Review(context.Background(), app.ID, staffClaims(), dto.ReviewApplicationRequest{TargetStatus: models.ApplicationStatusReadyForApproval, Notes: "documents complete"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusReadyForApproval, updated.Status)
	require.NotNil(t, updated.ReviewNotes)
	assert.Equal(t, "documents complete", *updated.ReviewNotes)
}

func TestReviewRoleGate(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusPending)

	teacher := &models.JWTClaims{UserID: 9, UID: "TCH001", Role: models.RoleTeacher}
	_, err := svc.Review(context.Background(), app.ID, teacher, dto.ReviewApplicationRequest{TargetStatus: models.ApplicationStatusReviewing})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)

	_, err = svc.Review(context.Background(), app.ID, nil, dto.ReviewApplicationRequest{TargetStatus: models.ApplicationStatusReviewing})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, appErrors.FromError(err).Status)
}

func TestReviewTerminalApplication(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusRejected)

	_, err := svc.Review(context.Background(), app.ID, adminClaims(), dto.ReviewApplicationRequest{TargetStatus: models.ApplicationStatusReviewing})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestReviewConcurrentConflict(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusPending)

	// Another actor rejects between the read and the guarded update: the
	// service sees PENDING but storage already holds REJECTED.
	store.applications[app.ID].Status = models.ApplicationStatusRejected
	stale := models.ApplicationStatusPending
	store.staleStatus = &stale

	_, err := svc.Review(context.Background(), app.ID, staffClaims(), dto.ReviewApplicationRequest{TargetStatus: models.ApplicationStatusReviewing})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, appErrors.FromError(err).Status)
}

func TestRejectRequiresAdmin(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusPending)

	_, err := svc.Reject(context.Background(), app.ID, staffClaims(), dto.RejectApplicationRequest{Reason: "incomplete"})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
}

func TestRejectRequiresReason(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusPending)

	_, err := svc.Reject(context.Background(), app.ID, adminClaims(), dto.RejectApplicationRequest{})
	assert.Error(t, err)

	_, err = svc.Reject(context.Background(), app.ID, adminClaims(), dto.RejectApplicationRequest{Reason: "   "})
	assert.Error(t, err)
}

func TestRejectFromAnyNonTerminalState(t *testing.T) {
	for _, status := range []models.ApplicationStatus{
		models.ApplicationStatusPending,
		models.ApplicationStatusReviewing,
		models.ApplicationStatusReadyForApproval,
	} {
		svc, store, _, audit := newAdmissionFixture()
		app := seedApplication(store, status)

		updated, err := svc.Reject(context.Background(), app.ID, adminClaims(), dto.RejectApplicationRequest{Reason: "quota full"})
		require.NoError(t, err, "status %s", status)
		assert.Equal(t, models.ApplicationStatusRejected, updated.Status)
		require.NotNil(t, updated.DecisionNotes)
		assert.Equal(t, "quota full", *updated.DecisionNotes)
		require.Len(t, audit.records, 1)
		assert.Equal(t, models.AuditActionApplicationReject, audit.records[0].Action)
	}
}

func TestRejectTerminalApplication(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusApproved)

	_, err := svc.Reject(context.Background(), app.ID, adminClaims(), dto.RejectApplicationRequest{Reason: "mistake"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestApproveProvisionsAccount(t *testing.T) {
	svc, store, allocator, audit := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusReadyForApproval)

	result, err := svc.Approve(context.Background(), app.ID, adminClaims(), dto.ApproveApplicationRequest{Section: "B"})
	require.NoError(t, err)
	assert.Equal(t, "25G3B001", result.StudentUID)
	assert.NotEmpty(t, result.OneTimePassword)
	assert.Equal(t, int64(1), result.AccountID)

	stored := store.applications[app.ID]
	assert.Equal(t, models.ApplicationStatusApproved, stored.Status)
	require.NotNil(t, stored.StudentUID)
	assert.Equal(t, "25G3B001", *stored.StudentUID)

	assert.Equal(t, 1, allocator.allocateCalls)
	require.Len(t, audit.records, 1)
	assert.Equal(t, models.AuditActionApplicationApprove, audit.records[0].Action)
}

func TestApproveSequencePerSection(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()

	first := seedApplication(store, models.ApplicationStatusReadyForApproval)
	second := seedApplication(store, models.ApplicationStatusReadyForApproval)
	third := seedApplication(store, models.ApplicationStatusReadyForApproval)

	resultA, err := svc.Approve(context.Background(), first.ID, adminClaims(), dto.ApproveApplicationRequest{Section: "A"})
	require.NoError(t, err)
	resultB, err := svc.Approve(context.Background(), second.ID, adminClaims(), dto.ApproveApplicationRequest{Section: "B"})
	require.NoError(t, err)
	resultA2, err := svc.Approve(context.Background(), third.ID, adminClaims(), dto.ApproveApplicationRequest{Section: "A"})
	require.NoError(t, err)

	assert.Equal(t, "25G3A001", resultA.StudentUID)
	assert.Equal(t, "25G3B001", resultB.StudentUID)
	assert.Equal(t, "25G3A002", resultA2.StudentUID)
}

func TestApproveRequiresReadyState(t *testing.T) {
	for _, status := range []models.ApplicationStatus{
		models.ApplicationStatusPending,
		models.ApplicationStatusReviewing,
		models.ApplicationStatusApproved,
		models.ApplicationStatusRejected,
	} {
		svc, store, allocator, _ := newAdmissionFixture()
		app := seedApplication(store, status)

		_, err := svc.Approve(context.Background(), app.ID, adminClaims(), dto.ApproveApplicationRequest{Section: "A"})
		require.Error(t, err, "status %s", status)
		assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
		// An illegal approve must never consume a sequence number.
		assert.Zero(t, allocator.allocateCalls, "status %s", status)
	}
}

func TestApproveRequiresAdmin(t *testing.T) {
	svc, store, allocator, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusReadyForApproval)

	_, err := svc.Approve(context.Background(), app.ID, staffClaims(), dto.ApproveApplicationRequest{Section: "A"})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
	assert.Zero(t, allocator.allocateCalls)
}

func TestApproveConflictLeavesGap(t *testing.T) {
	svc, store, allocator, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusReadyForApproval)
	store.finalizeErr = sql.ErrNoRows

	_, err := svc.Approve(context.Background(), app.ID, adminClaims(), dto.ApproveApplicationRequest{Section: "B"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, appErrors.FromError(err).Status)

	// The consumed number is gone; the next approval simply gets the next one.
	store.finalizeErr = nil
	result, err := svc.Approve(context.Background(), app.ID, adminClaims(), dto.ApproveApplicationRequest{Section: "B"})
	require.NoError(t, err)
	assert.Equal(t, "25G3B002", result.StudentUID)
	assert.Equal(t, 2, allocator.allocateCalls)
}

func TestApproveDuplicateUID(t *testing.T) {
	svc, store, _, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusReadyForApproval)
	store.finalizeErr = &pq.Error{Code: "23505"}

	_, err := svc.Approve(context.Background(), app.ID, adminClaims(), dto.ApproveApplicationRequest{Section: "B"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAllocation.Code, appErrors.FromError(err).Code)
}

func TestPreviewNextUID(t *testing.T) {
	svc, store, allocator, _ := newAdmissionFixture()
	app := seedApplication(store, models.ApplicationStatusReviewing)

	preview, err := svc.PreviewNextUID(context.Background(), app.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, "25G3B", preview.Prefix)
	assert.Equal(t, "25G3B001", preview.UID)
	assert.Zero(t, allocator.allocateCalls)

	again, err := svc.PreviewNextUID(context.Background(), app.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, preview.UID, again.UID)
}

func TestGetNotFound(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()

	_, err := svc.Get(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

type mockDocumentLister struct {
	byApplication map[int64][]models.Document
	byOwner       map[int64][]models.Document
}

func (m *mockDocumentLister) ListByApplication(ctx context.Context, applicationID int64) ([]models.Document, error) {
	return m.byApplication[applicationID], nil
}

func (m *mockDocumentLister) ListByOwner(ctx context.Context, ownerID int64) ([]models.Document, error) {
	return m.byOwner[ownerID], nil
}

func TestApplicationDocuments(t *testing.T) {
	store := &mockApplicationStore{}
	app := seedApplication(store, models.ApplicationStatusReviewing)
	appID := app.ID
	docs := &mockDocumentLister{byApplication: map[int64][]models.Document{
		appID: {{ID: 1, ApplicationID: &appID, FileName: "birth_certificate.pdf"}},
	}}
	svc := NewAdmissionService(store, &mockAllocator{}, docs, nil, nil, validator.New(), zap.NewNop())

	listed, err := svc.Documents(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "birth_certificate.pdf", listed[0].FileName)

	_, err = svc.Documents(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestApplicationDocumentsEmptyAfterApproval(t *testing.T) {
	store := &mockApplicationStore{}
	app := seedApplication(store, models.ApplicationStatusApproved)
	docs := &mockDocumentLister{}
	svc := NewAdmissionService(store, &mockAllocator{}, docs, nil, nil, validator.New(), zap.NewNop())

	listed, err := svc.Documents(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
