package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Status     string  `json:"status" validate:"omitempty,appointment_status"`
	Pointer    *string `json:"reason" validate:"omitempty,appointment_status"`
	GroupBy    string  `form:"groupBy" validate:"omitempty,group_by"`
	TimeFilter string  `form:"timeFilter" validate:"omitempty,time_filter"`
	BranchID   int64   `json:"branchId" validate:"required,gt=0"`
}

func newValidate(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	require.NoError(t, Register(v))
	return v
}

func TestCustomTags(t *testing.T) {
	v := newValidate(t)
	confirmed := "Confirmed"

	assert.NoError(t, v.Struct(sample{Status: "pending", Pointer: &confirmed, GroupBy: "branch", TimeFilter: "lastMonth", BranchID: 1}))
	assert.NoError(t, v.Struct(sample{BranchID: 1}))

	bad := "archived"
	assert.Error(t, v.Struct(sample{Status: "archived", BranchID: 1}))
	assert.Error(t, v.Struct(sample{Pointer: &bad, BranchID: 1}))
	assert.Error(t, v.Struct(sample{GroupBy: "department", BranchID: 1}))
	assert.Error(t, v.Struct(sample{TimeFilter: "nextYear", BranchID: 1}))
}

func TestMessageUsesTagNames(t *testing.T) {
	v := newValidate(t)

	err := v.Struct(sample{Status: "archived", GroupBy: "x"})
	require.Error(t, err)

	msg := Message(err)
	assert.Contains(t, msg, "status must be one of pending, confirmed, completed, cancelled")
	assert.Contains(t, msg, "groupBy must be either doctor or branch")
	assert.Contains(t, msg, "branchId is required")
}

func TestMessagePassesOtherErrors(t *testing.T) {
	assert.Equal(t, "unexpected EOF", Message(errors.New("unexpected EOF")))
}
