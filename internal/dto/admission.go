package dto

import (
	"time"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// SubmitApplicationRequest is the public submission payload.
type SubmitApplicationRequest struct {
	FullName         string    `json:"full_name" validate:"required"`
	BirthDate        time.Time `json:"birth_date" validate:"required"`
	Gender           string    `json:"gender" validate:"required,oneof=M F"`
	GradeApplied     int       `json:"grade_applied" validate:"required,min=1,max=12"`
	PreferredSection string    `json:"preferred_section" validate:"omitempty,len=1,alpha"`
	AcademicYear     string    `json:"academic_year" validate:"required"`
	Email            string    `json:"email" validate:"required,email"`
	Phone            string    `json:"phone" validate:"required"`
	Address          string    `json:"address"`
	GuardianName     string    `json:"guardian_name" validate:"required"`
	GuardianPhone    string    `json:"guardian_phone" validate:"required"`
	PreviousSchool   string    `json:"previous_school"`
}

// ReviewApplicationRequest moves an application between review states.
type ReviewApplicationRequest struct {
	TargetStatus models.ApplicationStatus `json:"target_status" validate:"required,oneof=PENDING REVIEWING READY_FOR_APPROVAL"`
	Notes        string                   `json:"notes"`
}

// ApproveApplicationRequest finalises an application into a student account.
type ApproveApplicationRequest struct {
	Section string `json:"section" validate:"required,len=1,alpha"`
	Notes   string `json:"notes"`
}

// RejectApplicationRequest terminates an application. Reason is mandatory.
type RejectApplicationRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ApprovalResult is returned once to the approving admin. The one-time
// password is never persisted in clear text.
type ApprovalResult struct {
	ApplicationID   int64  `json:"application_id"`
	StudentUID      string `json:"student_uid"`
	OneTimePassword string `json:"one_time_password"`
	AccountID       int64  `json:"account_id"`
}

// UIDPreview shows the identifier the next approval in a namespace would
// receive. The value is not reserved and may drift under concurrency.
type UIDPreview struct {
	Prefix string `json:"prefix"`
	UID    string `json:"uid"`
}

// CreateUserRequest represents payload for creating staff accounts.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN ADMISSION_STAFF TEACHER STAFF"`
	Phone    string          `json:"phone"`
	Password string          `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest payload for updating accounts.
type UpdateUserRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Phone    string `json:"phone"`
	Active   *bool  `json:"active"`
}
