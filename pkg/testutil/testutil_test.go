package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muraguri00/zalora-luxury/internal/middleware"
)

func TestSignTokenVerifies(t *testing.T) {
	secret := []byte("test-secret")
	token, err := SignToken(secret, "user-1", time.Minute)
	require.NoError(t, err)

	id, err := middleware.JWTVerifier{Secret: secret}.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "user-1@example.com", id.Email)

	expired, err := SignToken(secret, "user-1", -time.Minute)
	require.NoError(t, err)
	_, err = middleware.JWTVerifier{Secret: secret}.Verify(context.Background(), expired)
	assert.Error(t, err)
}

func TestPrincipals(t *testing.T) {
	assert.True(t, Admin("a").IsAdmin())
	assert.True(t, Store("s").IsStore())
	assert.Equal(t, "s", Store("s").StoreIdentity())
	assert.False(t, Customer("c").IsStore())
}
