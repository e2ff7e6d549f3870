// Package credential holds the console's single session value: the
// access/refresh token pair and the principal it belongs to.
package credential

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"memberconsole/internal/model"
)

// Fixed backend keys. A missing key on load means "not authenticated".
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyPrincipal    = "principal"
)

// Snapshot is a consistent copy of the session value.
type Snapshot struct {
	Tokens     model.TokenPair
	Principal  *model.Principal
	Generation uint64
}

// Store owns the token pair and cached principal. The in-memory value is
// authoritative; the backend only makes it survive a restart. Backend
// failures are logged and never returned.
type Store struct {
	mu      sync.RWMutex
	tokens  model.TokenPair
	user    *model.Principal
	gen     uint64
	backend Backend
	prefix  string
	log     *slog.Logger
}

type Option func(*Store)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func NewStore(backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{backend: backend, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "credential")
	return s
}

// SetTokens replaces both tokens at once, keeping the principal.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = model.TokenPair{AccessToken: access, RefreshToken: refresh}
	s.gen++
	s.persistTokens(ctx)
}

// SetSession applies a login: tokens and principal together.
func (s *Store) SetSession(ctx context.Context, pair model.TokenPair, p model.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = pair
	s.user = &p
	s.gen++
	s.persistTokens(ctx)
	s.persistPrincipal(ctx)
}

// SetSessionIfCurrent applies a login that started at generation gen. It
// returns false, changing nothing, when the store was cleared or another
// session was set in the meantime.
func (s *Store) SetSessionIfCurrent(ctx context.Context, gen uint64, pair model.TokenPair, p model.Principal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return false
	}
	s.tokens = pair
	s.user = &p
	s.gen++
	s.persistTokens(ctx)
	s.persistPrincipal(ctx)
	return true
}

// SetPrincipal replaces the cached principal without touching the tokens.
func (s *Store) SetPrincipal(ctx context.Context, p model.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = &p
	s.persistPrincipal(ctx)
}

// SetTokensIfCurrent commits a renewal made against generation gen. It is a
// no-op, returning false, when the session has been cleared or replaced
// since, so a late renewal cannot resurrect a logged-out session.
func (s *Store) SetTokensIfCurrent(ctx context.Context, gen uint64, pair model.TokenPair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.tokens.Empty() {
		return false
	}
	s.tokens = pair
	s.gen++
	s.persistTokens(ctx)
	return true
}

func (s *Store) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken, s.tokens.AccessToken != ""
}

func (s *Store) RefreshToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.RefreshToken, s.tokens.RefreshToken != ""
}

// Principal returns a copy of the cached principal, or nil.
func (s *Store) Principal() *model.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	p := *s.user
	return &p
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Tokens: s.tokens, Generation: s.gen}
	if s.user != nil {
		p := *s.user
		snap.Principal = &p
	}
	return snap
}

// Clear removes both tokens and the principal. It always advances the
// generation, so commits started before the clear are dropped even when
// there was nothing to remove.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.tokens.Empty() && s.user == nil {
		return
	}
	s.tokens = model.TokenPair{}
	s.user = nil
	s.remove(ctx, KeyAccessToken, KeyRefreshToken, KeyPrincipal)
}

// ClearIfCurrent clears the session only if it is still generation gen.
func (s *Store) ClearIfCurrent(ctx context.Context, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return false
	}
	s.tokens = model.TokenPair{}
	s.user = nil
	s.gen++
	s.remove(ctx, KeyAccessToken, KeyRefreshToken, KeyPrincipal)
	return true
}

// Load restores the session from the backend. If any of the three keys is
// missing or unreadable, the leftovers are removed and the store stays
// unauthenticated. It reports whether a session was restored.
func (s *Store) Load(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	access := s.get(ctx, KeyAccessToken)
	refresh := s.get(ctx, KeyRefreshToken)
	raw := s.get(ctx, KeyPrincipal)

	var p model.Principal
	ok := len(access) > 0 && len(refresh) > 0 && len(raw) > 0
	if ok {
		if err := json.Unmarshal(raw, &p); err != nil {
			s.log.WarnContext(ctx, "Discarding unreadable stored principal", "error", err)
			ok = false
		}
	}
	if !ok {
		s.tokens = model.TokenPair{}
		s.user = nil
		s.gen++
		s.remove(ctx, KeyAccessToken, KeyRefreshToken, KeyPrincipal)
		return false
	}

	s.tokens = model.TokenPair{AccessToken: string(access), RefreshToken: string(refresh)}
	s.user = &p
	s.gen++
	return true
}

func (s *Store) persistTokens(ctx context.Context) {
	s.set(ctx, KeyAccessToken, []byte(s.tokens.AccessToken))
	s.set(ctx, KeyRefreshToken, []byte(s.tokens.RefreshToken))
}

func (s *Store) persistPrincipal(ctx context.Context) {
	if s.user == nil {
		s.remove(ctx, KeyPrincipal)
		return
	}
	data, err := json.Marshal(s.user)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to encode principal", "error", err)
		return
	}
	s.set(ctx, KeyPrincipal, data)
}

func (s *Store) get(ctx context.Context, key string) []byte {
	val, err := s.backend.Get(s.prefix + key)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to read credential", "key", key, "error", err)
		return nil
	}
	return val
}

func (s *Store) set(ctx context.Context, key string, val []byte) {
	if len(val) == 0 {
		s.remove(ctx, key)
		return
	}
	if err := s.backend.Set(s.prefix+key, val, 0); err != nil {
		s.log.WarnContext(ctx, "Failed to persist credential", "key", key, "error", err)
	}
}

func (s *Store) remove(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.backend.Delete(s.prefix + key); err != nil {
			s.log.WarnContext(ctx, "Failed to delete credential", "key", key, "error", err)
		}
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
