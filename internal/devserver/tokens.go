package devserver

import (
	"errors"
	"fmt"
	"time"

	"memberconsole/internal/middleware"
	"memberconsole/internal/model"
	"memberconsole/internal/util"

	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = middleware.ErrTokenExpired
	ErrTokenReused  = errors.New("refresh token was already used")
)

// Tokens issued from one login share a family. Presenting a spent refresh
// token revokes the whole family.
type accessToken struct {
	userID    string
	family    string
	expiresAt time.Time
}

type refreshToken struct {
	userID    string
	family    string
	expiresAt time.Time
	usedAt    util.Optional[time.Time]
}

// IssueTokens starts a new token family for userID.
func (s *Store) IssueTokens(userID string) (model.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return model.TokenPair{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return s.issueLocked(userID, uuid.NewString())
}

func (s *Store) issueLocked(userID, family string) (model.TokenPair, error) {
	at, err := util.OpaqueToken("at")
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("generate access token: %w", err)
	}
	rt, err := util.OpaqueToken("rt")
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	s.access[at] = &accessToken{userID: userID, family: family, expiresAt: now.Add(s.accessTTL)}
	s.refresh[rt] = &refreshToken{userID: userID, family: family, expiresAt: now.Add(s.refreshTTL)}
	return model.TokenPair{AccessToken: at, RefreshToken: rt}, nil
}

// ResolveAccess returns the principal an access token was issued to.
func (s *Store) ResolveAccess(token string) (model.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.access[token]
	if !ok {
		return model.Principal{}, ErrTokenInvalid
	}
	if !s.now().Before(at.expiresAt) {
		return model.Principal{}, ErrTokenExpired
	}
	// Inactive accounts still resolve; authorization refuses them.
	acc, ok := s.users[at.userID]
	if !ok {
		return model.Principal{}, ErrTokenInvalid
	}
	return acc.Principal, nil
}

// Rotate spends a refresh token and issues the next pair of its family.
func (s *Store) Rotate(token string) (model.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refresh[token]
	if !ok {
		return model.TokenPair{}, ErrTokenInvalid
	}
	if usedAt, spent := rt.usedAt.Get(); spent {
		s.revokeFamilyLocked(rt.family)
		return model.TokenPair{}, fmt.Errorf("%w (first used %s)", ErrTokenReused, usedAt.Format(time.RFC3339))
	}
	now := s.now()
	if !now.Before(rt.expiresAt) {
		return model.TokenPair{}, ErrTokenExpired
	}
	if acc, ok := s.users[rt.userID]; !ok || !acc.Active {
		return model.TokenPair{}, ErrTokenInvalid
	}

	rt.usedAt = util.Some(now)
	return s.issueLocked(rt.userID, rt.family)
}

// Revoke ends the family of the given refresh or access token. Unknown
// tokens are ignored.
func (s *Store) Revoke(refresh, access string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rt, ok := s.refresh[refresh]; ok {
		s.revokeFamilyLocked(rt.family)
	}
	if at, ok := s.access[access]; ok {
		s.revokeFamilyLocked(at.family)
	}
}

// ExpireAccess marks an access token as expired without revoking its
// family, so the holder can still renew.
func (s *Store) ExpireAccess(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.access[token]
	if ok {
		at.expiresAt = s.now()
	}
	return ok
}

func (s *Store) revokeFamilyLocked(family string) {
	for k, at := range s.access {
		if at.family == family {
			delete(s.access, k)
		}
	}
	for k, rt := range s.refresh {
		if rt.family == family {
			delete(s.refresh, k)
		}
	}
}

// PurgeExpired drops expired tokens. Spent refresh tokens are kept until
// they expire so reuse is still detected.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, at := range s.access {
		if !now.Before(at.expiresAt) {
			delete(s.access, k)
			n++
		}
	}
	for k, rt := range s.refresh {
		if !now.Before(rt.expiresAt) {
			delete(s.refresh, k)
			n++
		}
	}
	return n
}
