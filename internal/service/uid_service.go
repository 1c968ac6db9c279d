package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type sequenceStore interface {
	IncrementAndGet(ctx context.Context, prefix string) (int64, error)
	Peek(ctx context.Context, prefix string) (int64, error)
}

// Role prefixes for staff UIDs.
const (
	prefixAdmin          = "ADM"
	prefixAdmissionStaff = "ADS"
	prefixTeacher        = "TCH"
	prefixStaff          = "STF"
)

var rolePrefixes = map[models.UserRole]string{
	models.RoleAdmin:          prefixAdmin,
	models.RoleAdmissionStaff: prefixAdmissionStaff,
	models.RoleTeacher:        prefixTeacher,
	models.RoleStaff:          prefixStaff,
}

var prefixRoles = map[string]models.UserRole{
	prefixAdmin:          models.RoleAdmin,
	prefixAdmissionStaff: models.RoleAdmissionStaff,
	prefixTeacher:        models.RoleTeacher,
	prefixStaff:          models.RoleStaff,
}

var (
	staffUIDPattern   = regexp.MustCompile(`^(ADM|ADS|TCH|STF)(\d{3,})$`)
	studentUIDPattern = regexp.MustCompile(`^(\d{2})G(\d{1,2})([A-Z])(\d{3,})$`)
	sectionPattern    = regexp.MustCompile(`^[A-Za-z]$`)
)

// UIDType discriminates the two UID grammars.
type UIDType string

const (
	UIDTypeStaff   UIDType = "staff"
	UIDTypeStudent UIDType = "student"
)

// DecodedUID holds the fields recovered from a well-formed UID.
type DecodedUID struct {
	Type     UIDType         `json:"type"`
	Role     models.UserRole `json:"role,omitempty"`
	Year     string          `json:"year,omitempty"`
	Grade    int             `json:"grade,omitempty"`
	Section  string          `json:"section,omitempty"`
	Sequence int64           `json:"sequence"`
}

// UIDService mints and parses human-readable unique identifiers. Uniqueness
// is delegated to the sequence store's atomic increment; the service only
// builds prefixes and formats values.
type UIDService struct {
	seq    sequenceStore
	logger *zap.Logger
}

// NewUIDService constructs the UID allocator.
func NewUIDService(seq sequenceStore, logger *zap.Logger) *UIDService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UIDService{seq: seq, logger: logger}
}

// RolePrefix returns the fixed three-letter prefix for a staff role.
func RolePrefix(role models.UserRole) (string, error) {
	prefix, ok := rolePrefixes[role]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("role %s has no UID prefix", role))
	}
	return prefix, nil
}

// ClassPrefix builds the {yy}G{grade}{SECTION} namespace for student UIDs.
// AcademicYear may be "2025" or "2025-2026"; the suffix comes from the
// leading year. A changed section simply opens a fresh namespace.
func ClassPrefix(academicYear string, grade int, section string) (string, error) {
	yearSuffix, err := yearSuffix(academicYear)
	if err != nil {
		return "", err
	}
	if grade < 1 || grade > 12 {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade %d out of range", grade))
	}
	if !sectionPattern.MatchString(section) {
		return "", appErrors.Clone(appErrors.ErrValidation, "section must be a single letter")
	}
	return fmt.Sprintf("%sG%d%s", yearSuffix, grade, strings.ToUpper(section)), nil
}

func yearSuffix(academicYear string) (string, error) {
	year := strings.TrimSpace(academicYear)
	if idx := strings.IndexAny(year, "-/"); idx >= 0 {
		year = year[:idx]
	}
	if len(year) != 4 {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("academic year %q is not a 4-digit year", academicYear))
	}
	if _, err := strconv.Atoi(year); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("academic year %q is not numeric", academicYear))
	}
	return year[2:], nil
}

// Allocate consumes the next counter value for the prefix and formats the
// final UID. The sequence is zero-padded to a minimum of three digits and
// widens naturally beyond 999.
func (s *UIDService) Allocate(ctx context.Context, prefix string) (string, error) {
	value, err := s.seq.IncrementAndGet(ctx, prefix)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrAllocation.Code, appErrors.ErrAllocation.Status, "failed to allocate identifier")
	}
	uid := formatUID(prefix, value)
	s.logger.Debug("allocated uid", zap.String("prefix", prefix), zap.String("uid", uid))
	return uid, nil
}

// Preview computes the UID the next allocation in the namespace would
// produce without consuming it. The value may drift if another approval
// commits first; callers must treat it as informational.
func (s *UIDService) Preview(ctx context.Context, prefix string) (string, error) {
	value, err := s.seq.Peek(ctx, prefix)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrAllocation.Code, appErrors.ErrAllocation.Status, "failed to preview identifier")
	}
	return formatUID(prefix, value+1), nil
}

// AllocateRole mints the next UID in a staff role namespace.
func (s *UIDService) AllocateRole(ctx context.Context, role models.UserRole) (string, error) {
	prefix, err := RolePrefix(role)
	if err != nil {
		return "", err
	}
	return s.Allocate(ctx, prefix)
}

// AllocateClass mints the next student UID for the year/grade/section.
func (s *UIDService) AllocateClass(ctx context.Context, academicYear string, grade int, section string) (string, error) {
	prefix, err := ClassPrefix(academicYear, grade, section)
	if err != nil {
		return "", err
	}
	return s.Allocate(ctx, prefix)
}

// Decode parses a UID against the two recognised grammars. Anything that is
// not a complete match of either is reported as not recognised; there are no
// partial matches.
func Decode(uid string) (*DecodedUID, error) {
	if m := staffUIDPattern.FindStringSubmatch(uid); m != nil {
		sequence, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("uid %q is not recognized", uid))
		}
		return &DecodedUID{Type: UIDTypeStaff, Role: prefixRoles[m[1]], Sequence: sequence}, nil
	}
	if m := studentUIDPattern.FindStringSubmatch(uid); m != nil {
		grade, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("uid %q is not recognized", uid))
		}
		sequence, err := strconv.ParseInt(m[4], 10, 64)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("uid %q is not recognized", uid))
		}
		return &DecodedUID{Type: UIDTypeStudent, Year: m[1], Grade: grade, Section: m[3], Sequence: sequence}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("uid %q is not recognized", uid))
}

func formatUID(prefix string, value int64) string {
	return fmt.Sprintf("%s%03d", prefix, value)
}
