package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newService(t *testing.T) *hmacTokenService {
	t.Helper()
	svc, err := NewTokenService(config.AuthConfig{ServiceTokenSecret: testSecret})
	require.NoError(t, err)
	return svc.(*hmacTokenService)
}

func TestNewTokenServiceRejectsShortSecret(t *testing.T) {
	_, err := NewTokenService(config.AuthConfig{ServiceTokenSecret: "too-short"})
	assert.Error(t, err)
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newService(t)

	token, err := svc.GenerateToken(context.Background(), "cron-trigger", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "cron-trigger", claims.Service)
}

func TestValidateExpiredToken(t *testing.T) {
	svc := newService(t)

	issued := time.Now().Add(-24 * time.Hour)
	svc.timeFunc = func() time.Time { return issued }
	token, err := svc.GenerateToken(context.Background(), "cron-trigger", time.Minute)
	require.NoError(t, err)

	svc.timeFunc = time.Now
	_, err = svc.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRejectsTampering(t *testing.T) {
	svc := newService(t)

	token, err := svc.GenerateToken(context.Background(), "cron-trigger", time.Hour)
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewTokenService(config.AuthConfig{
			ServiceTokenSecret: "ffffffffffffffffffffffffffffffff",
		})
		require.NoError(t, err)
		_, err = other.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateToken(context.Background(), "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := svc.ValidateToken(context.Background(), "")
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}
