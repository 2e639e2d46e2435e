package auth

import (
	"errors"
	"strings"
	"time"

	"kart-reconciler/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin grants read access to every user's orders.
const RoleAdmin = "admin"

// Claims are the JWT claims carried by identity tokens.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 identity tokens.
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenManager creates a TokenManager for secret and issuer.
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue creates a signed token for userID valid for ttl.
func (m *TokenManager) Issue(userID string, admin bool, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}

	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if admin {
		claims.Role = RoleAdmin
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses tokenString and returns the identity it proves.
// Any failure is reported as model.ErrUnauthenticated.
func (m *TokenManager) Verify(tokenString string) (*model.Identity, error) {
	if tokenString == "" {
		return nil, model.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, model.ErrUnauthenticated.WithCause("invalid identity token", err)
	}

	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, model.ErrUnauthenticated.WithMessage("identity token has no subject")
	}

	return &model.Identity{
		UserID: claims.Subject,
		Admin:  claims.Role == RoleAdmin,
	}, nil
}
