package auth

import (
	"context"
	"testing"
	"time"

	"kart-reconciler/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_IssueVerify(t *testing.T) {
	m := NewTokenManager("secret", "kart")

	tests := []struct {
		name  string
		user  string
		admin bool
	}{
		{name: "Customer", user: "alice", admin: false},
		{name: "Admin", user: "root", admin: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := m.Issue(tt.user, tt.admin, time.Hour)
			require.NoError(t, err)

			identity, err := m.Verify(token)
			require.NoError(t, err)
			assert.Equal(t, tt.user, identity.UserID)
			assert.Equal(t, tt.admin, identity.Admin)
		})
	}
}

func TestTokenManager_Issue_EmptyUser(t *testing.T) {
	_, err := NewTokenManager("secret", "kart").Issue(" ", false, time.Hour)
	assert.Error(t, err)
}

func TestTokenManager_Verify_Rejects(t *testing.T) {
	m := NewTokenManager("secret", "kart")

	expired, err := m.Issue("alice", false, -time.Minute)
	require.NoError(t, err)

	otherSecret, err := NewTokenManager("other", "kart").Issue("alice", false, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewTokenManager("secret", "elsewhere").Issue("alice", false, time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "kart"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "kart",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "kart",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"expired":      expired,
		"other secret": otherSecret,
		"other issuer": otherIssuer,
		"no expiry":    noExpiry,
		"no subject":   noSubject,
		"alg none":     unsigned,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			identity, err := m.Verify(token)
			assert.Nil(t, identity)
			assert.ErrorIs(t, err, model.ErrUnauthenticated)
		})
	}
}

func TestCurrentIdentity(t *testing.T) {
	_, err := CurrentIdentity(context.Background())
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	_, err = CurrentIdentity(WithIdentity(context.Background(), &model.Identity{}))
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	ctx := WithIdentity(context.Background(), &model.Identity{UserID: "alice"})
	identity, err := CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
}
