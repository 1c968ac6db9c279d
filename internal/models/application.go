package models

import (
	"fmt"
	"time"

	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

// ApplicationStatus captures the closed set of admission lifecycle states.
type ApplicationStatus string

const (
	ApplicationStatusPending          ApplicationStatus = "PENDING"
	ApplicationStatusReviewing        ApplicationStatus = "REVIEWING"
	ApplicationStatusReadyForApproval ApplicationStatus = "READY_FOR_APPROVAL"
	ApplicationStatusApproved         ApplicationStatus = "APPROVED"
	ApplicationStatusRejected         ApplicationStatus = "REJECTED"
)

// Valid reports whether the status is a known lifecycle state.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusReviewing, ApplicationStatusReadyForApproval,
		ApplicationStatusApproved, ApplicationStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is legal from the status.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected
}

// reviewTargets are the states a review action may move an application into.
var reviewTargets = map[ApplicationStatus]struct{}{
	ApplicationStatusPending:          {},
	ApplicationStatusReviewing:        {},
	ApplicationStatusReadyForApproval: {},
}

// ValidateTransition is the single authority on lifecycle legality. Every
// mutating entry point consults it before touching the record.
func ValidateTransition(from, to ApplicationStatus) error {
	if !from.Valid() || !to.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("unknown application state in transition %s -> %s", from, to))
	}
	if from.Terminal() {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("application already %s", from))
	}

	switch to {
	case ApplicationStatusRejected:
		// any non-terminal state may be rejected
		return nil
	case ApplicationStatusApproved:
		if from != ApplicationStatusReadyForApproval {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot approve application in state %s", from))
		}
		return nil
	default:
		if from != ApplicationStatusPending && from != ApplicationStatusReviewing {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot review application in state %s", from))
		}
		if _, ok := reviewTargets[to]; !ok {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("%s is not a review target", to))
		}
		return nil
	}
}

// Application represents one admission request. Subject data is immutable
// after submission; only workflow metadata changes through transitions.
type Application struct {
	ID               int64             `db:"id" json:"id"`
	FullName         string            `db:"full_name" json:"full_name"`
	BirthDate        time.Time         `db:"birth_date" json:"birth_date"`
	Gender           string            `db:"gender" json:"gender"`
	GradeApplied     int               `db:"grade_applied" json:"grade_applied"`
	PreferredSection *string           `db:"preferred_section" json:"preferred_section,omitempty"`
	AcademicYear     string            `db:"academic_year" json:"academic_year"`
	Email            string            `db:"email" json:"email"`
	Phone            string            `db:"phone" json:"phone"`
	Address          string            `db:"address" json:"address"`
	GuardianName     string            `db:"guardian_name" json:"guardian_name"`
	GuardianPhone    string            `db:"guardian_phone" json:"guardian_phone"`
	PreviousSchool   *string           `db:"previous_school" json:"previous_school,omitempty"`
	Status           ApplicationStatus `db:"status" json:"status"`
	ReviewedBy       *int64            `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNotes      *string           `db:"review_notes" json:"review_notes,omitempty"`
	ReviewedAt       *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	DecidedBy        *int64            `db:"decided_by" json:"decided_by,omitempty"`
	DecisionNotes    *string           `db:"decision_notes" json:"decision_notes,omitempty"`
	DecidedAt        *time.Time        `db:"decided_at" json:"decided_at,omitempty"`
	StudentUID       *string           `db:"student_uid" json:"student_uid,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	Status       []ApplicationStatus
	AcademicYear string
	GradeApplied int
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
