package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type userStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id int64) error
}

type roleAllocator interface {
	AllocateRole(ctx context.Context, role models.UserRole) (string, error)
}

type ownedDocumentLister interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Document, error)
}

// AccountService manages staff accounts. Student accounts are created
// exclusively by the approval flow, never here.
type AccountService struct {
	repo      userStore
	uids      roleAllocator
	docs      ownedDocumentLister
	audit     auditSink
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAccountService constructs the account service.
func NewAccountService(repo userStore, uids roleAllocator, docs ownedDocumentLister, audit auditSink, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AccountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{repo: repo, uids: uids, docs: docs, audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// Create provisions a staff account with a role-scoped UID.
func (s *AccountService) Create(ctx context.Context, req dto.CreateUserRequest, actorID int64) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	if req.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student accounts are created through approval")
	}

	uid, err := s.uids.AllocateRole(ctx, req.Role)
	if err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user := &models.User{
		UID:                uid,
		Email:              &email,
		PasswordHash:       string(passwordHash),
		FullName:           req.FullName,
		Role:               req.Role,
		Active:             true,
		MustChangePassword: true,
		Phone:              req.Phone,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or uid already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.metrics.ObserveAllocation(string(UIDTypeStaff))
	newPayload, _ := json.Marshal(map[string]interface{}{"uid": user.UID, "role": user.Role})
	s.emitAudit(&models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserCreate,
		Resource:   "users",
		ResourceID: &user.UID,
		NewValues:  newPayload,
	})
	return user, nil
}

// List returns accounts and pagination metadata.
func (s *AccountService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
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
	return users, pagination, nil
}

// Get returns an account by id.
func (s *AccountService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Update modifies mutable account attributes. Role and UID never change.
func (s *AccountService) Update(ctx context.Context, id int64, req dto.UpdateUserRequest, actorID int64) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"full_name": user.FullName, "active": user.Active})

	user.FullName = req.FullName
	user.Phone = req.Phone
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"full_name": user.FullName, "active": user.Active})
	s.emitAudit(&models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserUpdate,
		Resource:   "users",
		ResourceID: &user.UID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
	})
	return user, nil
}

// Deactivate marks an account inactive; its UID stays reserved.
func (s *AccountService) Deactivate(ctx context.Context, id int64, actorID int64) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}

	s.emitAudit(&models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserDeactivate,
		Resource:   "users",
		ResourceID: &user.UID,
	})
	return nil
}

// Documents lists the files owned by an account, including those carried
// over from an approved admission application.
func (s *AccountService) Documents(ctx context.Context, id int64) ([]models.Document, error) {
	if s.docs == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "documents are not available")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	docs, err := s.docs.ListByOwner(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

func (s *AccountService) emitAudit(log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	if log.IPAddress == "" {
		log.IPAddress = "system"
	}
	if log.UserAgent == "" {
		log.UserAgent = "account-service"
	}
	s.audit.Record(log)
}
