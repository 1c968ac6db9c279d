package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/middleware"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	"github.com/noah-isme/sma-admission-api/internal/service"
)

type applicationStoreMock struct {
	applications map[int64]*models.Application
	nextID       int64
}

func (m *applicationStoreMock) Create(ctx context.Context, app *models.Application) error {
	if m.applications == nil {
		m.applications = make(map[int64]*models.Application)
	}
	m.nextID++
	app.ID = m.nextID
	app.Status = models.ApplicationStatusPending
	stored := *app
	m.applications[app.ID] = &stored
	return nil
}

func (m *applicationStoreMock) FindByID(ctx context.Context, id int64) (*models.Application, error) {
	app, ok := m.applications[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *app
	return &copied, nil
}

func (m *applicationStoreMock) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	var result []models.Application
	for _, app := range m.applications {
		result = append(result, *app)
	}
	return result, len(result), nil
}

func (m *applicationStoreMock) UpdateReview(ctx context.Context, params repository.ReviewParams) error {
	app, ok := m.applications[params.ID]
	if !ok || app.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	app.Status = params.TargetStatus
	return nil
}

func (m *applicationStoreMock) UpdateReject(ctx context.Context, params repository.RejectParams) error {
	app, ok := m.applications[params.ID]
	if !ok || app.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	app.Status = models.ApplicationStatusRejected
	return nil
}

func (m *applicationStoreMock) FinalizeApproval(ctx context.Context, params repository.ApprovalParams) (int64, error) {
	app, ok := m.applications[params.ApplicationID]
	if !ok || app.Status != models.ApplicationStatusReadyForApproval {
		return 0, sql.ErrNoRows
	}
	app.Status = models.ApplicationStatusApproved
	app.StudentUID = &params.StudentUID
	return 1, nil
}

type allocatorMock struct {
	seq map[string]int64
}

func (m *allocatorMock) Allocate(ctx context.Context, prefix string) (string, error) {
	if m.seq == nil {
		m.seq = make(map[string]int64)
	}
	m.seq[prefix]++
	return prefix + "001", nil
}

func (m *allocatorMock) Preview(ctx context.Context, prefix string) (string, error) {
	return prefix + "001", nil
}

func newAdmissionHandler(store *applicationStoreMock) *AdmissionHandler {
	svc := service.NewAdmissionService(store, &allocatorMock{}, nil, nil, nil, nil, zap.NewNop())
	return NewAdmissionHandler(svc, nil)
}

func testContext(t *testing.T, method, path string, payload interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestAdmissionHandlerSubmit(t *testing.T) {
	store := &applicationStoreMock{}
	handler := newAdmissionHandler(store)

	c, w := testContext(t, http.MethodPost, "/admissions", dto.SubmitApplicationRequest{
		FullName:      "Siti Rahma",
		BirthDate:     time.Date(2012, 4, 1, 0, 0, 0, 0, time.UTC),
		Gender:        "F",
		GradeApplied:  3,
		AcademicYear:  "2025-2026",
		Email:         "siti@example.com",
		Phone:         "0812",
		Address:       "Jl. Merdeka 1",
		GuardianName:  "Budi",
		GuardianPhone: "0813",
	})
	handler.Submit(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, store.applications, 1)
}

func TestAdmissionHandlerSubmitInvalidBody(t *testing.T) {
	handler := newAdmissionHandler(&applicationStoreMock{})

	c, w := testContext(t, http.MethodPost, "/admissions", nil)
	c.Request.Body = http.NoBody
	handler.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmissionHandlerGetInvalidID(t *testing.T) {
	handler := newAdmissionHandler(&applicationStoreMock{})

	c, w := testContext(t, http.MethodGet, "/admissions/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmissionHandlerGetNotFound(t *testing.T) {
	handler := newAdmissionHandler(&applicationStoreMock{})

	c, w := testContext(t, http.MethodGet, "/admissions/42", nil)
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmissionHandlerApproveForbiddenRole(t *testing.T) {
	store := &applicationStoreMock{}
	_ = store.Create(context.Background(), &models.Application{FullName: "Siti", AcademicYear: "2025", GradeApplied: 3})
	store.applications[1].Status = models.ApplicationStatusReadyForApproval
	handler := newAdmissionHandler(store)

	c, w := testContext(t, http.MethodPost, "/admissions/1/approve", dto.ApproveApplicationRequest{Section: "B"})
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 2, Role: models.RoleAdmissionStaff})
	handler.Approve(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmissionHandlerApprove(t *testing.T) {
	store := &applicationStoreMock{}
	_ = store.Create(context.Background(), &models.Application{FullName: "Siti", AcademicYear: "2025", GradeApplied: 3, Email: "siti@example.com"})
	store.applications[1].Status = models.ApplicationStatusReadyForApproval
	handler := newAdmissionHandler(store)

	c, w := testContext(t, http.MethodPost, "/admissions/1/approve", dto.ApproveApplicationRequest{Section: "B"})
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin})
	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ApplicationStatusApproved, store.applications[1].Status)
}
