package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestIssueAndVerify(t *testing.T) {
	m := NewTokenManager(secret, time.Hour)
	token, err := m.Issue(42)
	require.NoError(t, err)

	userID, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestVerifyExpired(t *testing.T) {
	m := NewTokenManager(secret, time.Hour)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }
	token, err := m.Issue(42)
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = m.Verify(token)
	assert.Equal(t, "auth.unauthorized", apperr.KeyOf(err))
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestVerifyRejectsForgedAndMalformed(t *testing.T) {
	m := NewTokenManager(secret, time.Hour)
	other := NewTokenManager(strings.Repeat("x", 32), time.Hour)
	forged, err := other.Issue(42)
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-jwt", forged} {
		_, err := m.Verify(token)
		assert.True(t, apperr.IsKind(err, apperr.KindAuth), token)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "42"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(unsigned)
	assert.Error(t, err)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("", "correct horse"))
}

func TestNewResetToken(t *testing.T) {
	a, err := NewResetToken()
	require.NoError(t, err)
	b, err := NewResetToken()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestIdentityAndOwnership(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: 7, Plan: models.PlanPro})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, models.PlanPro, id.Plan)

	assert.NoError(t, RequireOwner(id, 7, "jobs.notFound"))
	err := RequireOwner(id, 8, "jobs.notFound")
	assert.Equal(t, "jobs.notFound", apperr.KeyOf(err))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
