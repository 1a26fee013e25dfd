package middleware

import (
	"context"

	"github.com/lgulliver/jarhub/pkg/types"
)

// Authenticator resolves a bearer token to the calling actor
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*types.Actor, error)
}
