package devserver

import (
	"context"
	"errors"
)

var ErrGoogleCredential = errors.New("google credential rejected")

// GoogleVerifier turns an opaque Google ID credential into a user id known
// to the store.
type GoogleVerifier interface {
	Verify(ctx context.Context, credential string) (userID string, err error)
}

// staticGoogle accepts the credentials listed in the seed.
type staticGoogle struct {
	store *Store
}

func (g staticGoogle) Verify(_ context.Context, credential string) (string, error) {
	g.store.mu.RLock()
	defer g.store.mu.RUnlock()

	id, ok := g.store.google[credential]
	if !ok || credential == "" {
		return "", ErrGoogleCredential
	}
	return id, nil
}
