package auth

import (
	"context"

	"kart-reconciler/internal/model"
)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// CurrentIdentity returns the verified caller stored in ctx, or
// model.ErrUnauthenticated when the request carries none.
func CurrentIdentity(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityKey{}).(*model.Identity)
	if !ok || identity == nil || identity.UserID == "" {
		return nil, model.ErrUnauthenticated
	}
	return identity, nil
}
