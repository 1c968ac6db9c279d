package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const applicationColumns = `id, full_name, birth_date, gender, grade_applied, preferred_section, academic_year,
        email, phone, address, guardian_name, guardian_phone, previous_school,
        status, reviewed_by, review_notes, reviewed_at, decided_by, decision_notes, decided_at, student_uid,
        created_at, updated_at`

// ApplicationRepository manages persistence for admission applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs an ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new application in state PENDING and assigns its id.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	app.Status = models.ApplicationStatusPending
	const query = `INSERT INTO applications (full_name, birth_date, gender, grade_applied, preferred_section, academic_year,
        email, phone, address, guardian_name, guardian_phone, previous_school, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING id`
	if err := r.db.GetContext(ctx, &app.ID, query,
		app.FullName, app.BirthDate, app.Gender, app.GradeApplied, app.PreferredSection, app.AcademicYear,
		app.Email, app.Phone, app.Address, app.GuardianName, app.GuardianPhone, app.PreviousSchool,
		app.Status, app.CreatedAt, app.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// FindByID fetches an application by id.
func (r *ApplicationRepository) FindByID(ctx context.Context, id int64) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications matching the provided filters.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.GradeApplied > 0 {
		conditions = append(conditions, fmt.Sprintf("grade_applied = $%d", len(args)+1))
		args = append(args, filter.GradeApplied)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	whereClause := strings.Join(conditions, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":  "full_name",
		"status":     "status",
		"created_at": "created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM applications WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		applicationColumns, whereClause, column, order, size, offset)

	var applications []models.Application
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM applications WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return applications, total, nil
}

// ReviewParams carries a review transition.
type ReviewParams struct {
	ID           int64
	FromStatus   models.ApplicationStatus
	TargetStatus models.ApplicationStatus
	ReviewerID   int64
	Notes        *string
	ReviewedAt   time.Time
}

// UpdateReview applies a review transition guarded by the expected current
// state. A concurrent actor moving the application first surfaces as
// sql.ErrNoRows.
func (r *ApplicationRepository) UpdateReview(ctx context.Context, params ReviewParams) error {
	const query = `UPDATE applications
        SET status = $1, reviewed_by = $2, review_notes = $3, reviewed_at = $4, updated_at = $4
        WHERE id = $5 AND status = $6`
	result, err := r.db.ExecContext(ctx, query,
		params.TargetStatus, params.ReviewerID, params.Notes, params.ReviewedAt, params.ID, params.FromStatus)
	if err != nil {
		return fmt.Errorf("review application: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("review application rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RejectParams carries a reject transition.
type RejectParams struct {
	ID         int64
	FromStatus models.ApplicationStatus
	ActorID    int64
	Reason     string
	DecidedAt  time.Time
}

// UpdateReject finalises an application as REJECTED, guarded by the expected
// current state.
func (r *ApplicationRepository) UpdateReject(ctx context.Context, params RejectParams) error {
	const query = `UPDATE applications
        SET status = $1, decided_by = $2, decision_notes = $3, decided_at = $4, updated_at = $4
        WHERE id = $5 AND status = $6`
	result, err := r.db.ExecContext(ctx, query,
		models.ApplicationStatusRejected, params.ActorID, params.Reason, params.DecidedAt, params.ID, params.FromStatus)
	if err != nil {
		return fmt.Errorf("reject application: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject application rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApprovalParams carries everything the approval transaction needs.
type ApprovalParams struct {
	ApplicationID int64
	StudentUID    string
	PasswordHash  string
	FullName      string
	Email         string
	Phone         string
	ApproverID    int64
	Notes         *string
	DecidedAt     time.Time
}

// FinalizeApproval commits the compound approval in one transaction: insert
// the student account, mark the application APPROVED, and re-point attached
// documents to the new account. The application update is guarded by the
// READY_FOR_APPROVAL state; losing that race rolls everything back and
// surfaces sql.ErrNoRows, so an account never exists without its matching
// approved application.
func (r *ApplicationRepository) FinalizeApproval(ctx context.Context, params ApprovalParams) (userID int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin approval transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertUser = `INSERT INTO users (uid, email, password_hash, full_name, role, active, must_change_password, phone, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, true, true, $6, $7, $7)
        RETURNING id`
	if err = tx.GetContext(ctx, &userID, insertUser,
		params.StudentUID, params.Email, params.PasswordHash, params.FullName, models.RoleStudent, params.Phone, params.DecidedAt); err != nil {
		return 0, fmt.Errorf("insert student account: %w", err)
	}

	const updateApplication = `UPDATE applications
        SET status = $1, decided_by = $2, decision_notes = $3, decided_at = $4, student_uid = $5, updated_at = $4
        WHERE id = $6 AND status = $7`
	var result sql.Result
	result, err = tx.ExecContext(ctx, updateApplication,
		models.ApplicationStatusApproved, params.ApproverID, params.Notes, params.DecidedAt,
		params.StudentUID, params.ApplicationID, models.ApplicationStatusReadyForApproval)
	if err != nil {
		return 0, fmt.Errorf("approve application: %w", err)
	}
	var affected int64
	affected, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("approve application rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return 0, err
	}

	const reassignDocuments = `UPDATE documents SET owner_id = $1, application_id = NULL WHERE application_id = $2`
	if _, err = tx.ExecContext(ctx, reassignDocuments, userID, params.ApplicationID); err != nil {
		return 0, fmt.Errorf("reassign documents: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit approval: %w", err)
	}
	return userID, nil
}
