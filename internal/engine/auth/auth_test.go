package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internfunnel/internal/apperr"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newService(clock *fakeClock) Service {
	return Service{Username: "admin", Password: "s3cret", Secret: "test-secret", Now: clock.Now}
}

func TestLoginIssuesAdminToken(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	svc := newService(clock)

	token, exp, err := svc.Login("admin", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(24*time.Hour), exp)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)

	clock.t = clock.t.Add(24*time.Hour + time.Second)
	_, err = svc.Verify(token)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newService(&fakeClock{t: time.Now()})
	_, _, err := svc.Login("admin", "wrong")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, _, err = svc.Login("root", "s3cret")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, _, err = svc.Login("admin", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestBcryptHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	svc := Service{Username: "admin", PasswordHash: hash, Secret: "x"}
	assert.NoError(t, svc.CheckCredentials("admin", "hunter2"))
	assert.Error(t, svc.CheckCredentials("admin", "hunter3"))
}

func TestUnconfigured(t *testing.T) {
	err := Service{}.CheckCredentials("admin", "pw")
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
	_, _, err = Service{}.Issue("admin")
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newService(clock)

	other := Service{Username: "admin", Password: "s3cret", Secret: "other-secret", Now: clock.Now}
	token, _, err := other.Issue("admin")
	require.NoError(t, err)
	_, err = svc.Verify(token)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	claims := Claims{Username: "admin", Role: "viewer", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.Verify(signed)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = svc.Verify("not-a-token")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
