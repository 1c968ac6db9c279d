package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		from, to ApplicationStatus
		ok       bool
	}{
		{ApplicationStatusPending, ApplicationStatusReviewing, true},
		{ApplicationStatusPending, ApplicationStatusReadyForApproval, true},
		{ApplicationStatusPending, ApplicationStatusRejected, true},
		{ApplicationStatusPending, ApplicationStatusApproved, false},
		{ApplicationStatusReviewing, ApplicationStatusPending, true},
		{ApplicationStatusReviewing, ApplicationStatusReadyForApproval, true},
		{ApplicationStatusReviewing, ApplicationStatusRejected, true},
		{ApplicationStatusReviewing, ApplicationStatusApproved, false},
		{ApplicationStatusReadyForApproval, ApplicationStatusApproved, true},
		{ApplicationStatusReadyForApproval, ApplicationStatusRejected, true},
		{ApplicationStatusReadyForApproval, ApplicationStatusReviewing, false},
		{ApplicationStatusApproved, ApplicationStatusRejected, false},
		{ApplicationStatusApproved, ApplicationStatusReviewing, false},
		{ApplicationStatusRejected, ApplicationStatusApproved, false},
		{ApplicationStatusRejected, ApplicationStatusPending, false},
		{ApplicationStatus("UNKNOWN"), ApplicationStatusPending, false},
		{ApplicationStatusPending, ApplicationStatus("UNKNOWN"), false},
	}

	for _, tc := range cases {
		err := ValidateTransition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			assert.Error(t, err, "%s -> %s", tc.from, tc.to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, ApplicationStatusApproved.Terminal())
	assert.True(t, ApplicationStatusRejected.Terminal())
	assert.False(t, ApplicationStatusPending.Terminal())
	assert.False(t, ApplicationStatusReviewing.Terminal())
	assert.False(t, ApplicationStatusReadyForApproval.Terminal())
}
