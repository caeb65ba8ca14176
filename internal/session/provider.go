package session

import (
	"context"
	"errors"

	"github.com/pavelanni/qtadmin/internal/model"
)

// ErrSignInCancelled is returned when the provider yields no identity.
var ErrSignInCancelled = errors.New("sign-in was cancelled")

// StaticProvider hands out an identity obtained out of band, for example
// from flags after the user completed the provider's flow in a browser.
type StaticProvider model.Identity

// SignIn returns the identity, or ErrSignInCancelled if it is incomplete.
func (p StaticProvider) SignIn(ctx context.Context) (model.Identity, error) {
	if err := ctx.Err(); err != nil {
		return model.Identity{}, err
	}
	if p.UID == "" || p.Email == "" {
		return model.Identity{}, ErrSignInCancelled
	}
	return model.Identity(p), nil
}
