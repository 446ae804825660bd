package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, userID string, expiresAt time.Time) string {
	t.Helper()

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, store.Save(ctx, Session{UserID: "u1", Token: "tok", ExpiresAt: exp}))

	sess, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "tok", sess.Token)
	assert.True(t, exp.Equal(sess.ExpiresAt))

	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionFromToken(t *testing.T) {
	token := signToken(t, "u1", time.Now().Add(time.Hour))

	sess, err := SessionFromToken(token, nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, token, sess.Token)

	_, err = SessionFromToken(token, []byte("other-secret"))
	assert.Error(t, err)

	_, err = SessionFromToken("not-a-token", nil)
	assert.Error(t, err)
}

func TestProvider_CurrentUser(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	provider := NewProvider(store, testSecret)

	user, err := provider.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user, "no session means unauthenticated")

	token := signToken(t, "u1", time.Now().Add(time.Hour))
	sess, err := SessionFromToken(token, testSecret)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess))

	user, err = provider.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, token, user.Token)
}

func TestProvider_ExpiredSession(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Save(ctx, Session{UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(-time.Minute)}))

	user, err := NewProvider(store, nil).CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}
