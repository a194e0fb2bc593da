package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", "therapy-scheduler")
	therapistID := int64(9)

	token, err := svc.GenerateAccessToken(model.Caller{
		UserID:      4,
		Email:       "ann@example.com",
		Role:        model.RoleTherapist,
		TherapistID: &therapistID,
	}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	caller := claims.Caller()
	assert.Equal(t, int64(4), caller.UserID)
	assert.Equal(t, model.RoleTherapist, caller.Role)
	require.NotNil(t, caller.TherapistID)
	assert.Equal(t, int64(9), *caller.TherapistID)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("one", "").GenerateAccessToken(model.Caller{UserID: 1, Role: model.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = NewJWTService("two", "").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewJWTService("secret", "")
	token, err := svc.GenerateAccessToken(model.Caller{UserID: 1, Role: model.RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	svc := NewJWTService("secret", "")
	token, err := svc.GenerateAccessToken(model.Caller{UserID: 1, Role: "janitor"}, time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
