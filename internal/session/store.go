// Package session holds the authenticated principal of the console, the
// derived role flags and the last authentication error. Tokens and principal
// live together in a credential.Store and are only ever set together.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"memberconsole/internal/api"
	"memberconsole/internal/audit"
	"memberconsole/internal/credential"
	"memberconsole/internal/gateway"
	"memberconsole/internal/model"
	"memberconsole/internal/monitoring"
	"memberconsole/internal/permission"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrSessionExpired      = errors.New("session expired, sign in again")
	ErrInconsistentSession = errors.New("principal and tokens must be set together")
	ErrNotAdmin            = errors.New("account has no console access")
	ErrInactiveAccount     = errors.New("account is inactive")
	ErrChapterChanged      = errors.New("chapter changed during session")
	ErrLoginSuperseded     = errors.New("session changed while signing in")
)

// AuthAPI is the slice of the backend the session needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (api.LoginResponse, error)
	LoginWithGoogle(ctx context.Context, credential string) (api.LoginResponse, error)
	Logout(ctx context.Context, pair model.TokenPair) error
	Me(ctx context.Context) (model.Principal, error)
	MeWithToken(ctx context.Context, accessToken string) (model.Principal, error)
}

// TerminationHandler is called after a session ended without the user asking,
// typically to send the UI back to the sign-in screen.
type TerminationHandler func(ctx context.Context, cause error)

type Store struct {
	creds *credential.Store
	auth  AuthAPI

	mu       sync.RWMutex
	lastErr  error
	handlers []TerminationHandler

	auditor *audit.Auditor
	tel     monitoring.Telemetry
	log     *slog.Logger
}

type Option func(*Store)

func WithAuditor(a *audit.Auditor) Option {
	return func(s *Store) { s.auditor = a }
}

func WithTelemetry(t monitoring.Telemetry) Option {
	return func(s *Store) { s.tel = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func New(creds *credential.Store, auth AuthAPI, opts ...Option) *Store {
	s := &Store{
		creds: creds,
		auth:  auth,
		tel:   monitoring.Noop(),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "session")
	return s
}

// OnTerminated registers fn to run on every forced termination.
func (s *Store) OnTerminated(fn TerminationHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// Establish sets principal and tokens together and clears the last error.
func (s *Store) Establish(ctx context.Context, pair model.TokenPair, p model.Principal) error {
	if err := checkSession(pair, p); err != nil {
		return err
	}

	s.creds.SetSession(ctx, pair, p)
	s.setErr(nil)
	return nil
}

func checkSession(pair model.TokenPair, p model.Principal) error {
	if !pair.Complete() {
		return fmt.Errorf("%w: incomplete token pair", ErrInconsistentSession)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInconsistentSession, err)
	}
	return nil
}

// Login signs in with email and password, then loads the full principal.
// A Logout or another login that lands first wins; this one then returns
// ErrLoginSuperseded.
func (s *Store) Login(ctx context.Context, email, password string) error {
	gen := s.creds.Snapshot().Generation
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return s.failAt(ctx, gen, classify(err))
	}
	return s.complete(ctx, gen, resp, "password")
}

// LoginWithGoogle exchanges a Google ID credential for a session.
func (s *Store) LoginWithGoogle(ctx context.Context, credential string) error {
	gen := s.creds.Snapshot().Generation
	resp, err := s.auth.LoginWithGoogle(ctx, credential)
	if err != nil {
		return s.failAt(ctx, gen, classify(err))
	}
	return s.complete(ctx, gen, resp, "google")
}

func (s *Store) complete(ctx context.Context, gen uint64, resp api.LoginResponse, method string) error {
	if !resp.Tokens.Complete() {
		return s.failAt(ctx, gen, fmt.Errorf("%w: login returned no tokens", ErrInconsistentSession))
	}

	// The login body alone is not enough for role gating.
	p, err := s.auth.MeWithToken(ctx, resp.Tokens.AccessToken)
	if err != nil {
		return s.failAt(ctx, gen, classify(err))
	}
	if !p.Role.Admin() {
		return s.failAt(ctx, gen, fmt.Errorf("%w: role %s", ErrNotAdmin, p.Role))
	}
	if !p.Active {
		return s.failAt(ctx, gen, ErrInactiveAccount)
	}
	if err := checkSession(resp.Tokens, p); err != nil {
		return s.failAt(ctx, gen, err)
	}
	if !s.creds.SetSessionIfCurrent(ctx, gen, resp.Tokens, p) {
		s.log.InfoContext(ctx, "Discarding login that finished after the session changed", "user_id", p.ID)
		if err := s.auth.Logout(ctx, resp.Tokens); err != nil {
			s.log.WarnContext(ctx, "Revoking discarded login failed", "error", err)
		}
		return ErrLoginSuperseded
	}
	s.setErr(nil)

	s.log.InfoContext(ctx, "Signed in", "user_id", p.ID, "role", p.Role.String(), "method", method)
	s.auditor.Record(ctx, audit.Event{
		Type:      audit.EventSessionLogin,
		ActorID:   p.ID,
		ChapterID: p.ChapterID,
		Data:      map[string]any{"method": method},
	})
	return nil
}

// failAt records err as the last auth error and ends the session the login
// started from. A session set since then is left alone.
func (s *Store) failAt(ctx context.Context, gen uint64, err error) error {
	if s.creds.ClearIfCurrent(ctx, gen) {
		s.setErr(err)
	}
	return err
}

func classify(err error) error {
	if errors.Is(err, gateway.ErrUnauthorized) {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return err
}

// Logout clears the local session and then revokes it remotely. The remote
// call is best effort; its failure is only logged. Logging out twice is a
// no-op.
func (s *Store) Logout(ctx context.Context) {
	snap := s.creds.Snapshot()
	s.creds.Clear(ctx)
	s.setErr(nil)

	if snap.Tokens.Empty() && snap.Principal == nil {
		return
	}

	actor := ""
	if snap.Principal != nil {
		actor = snap.Principal.ID
	}
	s.auditor.Record(ctx, audit.Event{Type: audit.EventSessionLogout, ActorID: actor})
	s.tel.RecordSessionTermination(ctx, "logout")

	if err := s.auth.Logout(ctx, snap.Tokens); err != nil {
		s.log.WarnContext(ctx, "Remote logout failed", "error", err)
	}
}

// Terminate ends the session after an unrecoverable authentication failure.
func (s *Store) Terminate(ctx context.Context, cause error) {
	snap := s.creds.Snapshot()
	s.creds.Clear(ctx)
	s.terminated(ctx, snap, cause)
}

// Ended is the gateway's termination hook. The gateway has already cleared
// the credentials; ended is the session it cleared.
func (s *Store) Ended(ctx context.Context, ended credential.Snapshot, cause error) {
	s.terminated(ctx, ended, cause)
}

func (s *Store) terminated(ctx context.Context, ended credential.Snapshot, cause error) {
	s.setErr(ErrSessionExpired)

	actor := ""
	if ended.Principal != nil {
		actor = ended.Principal.ID
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	s.log.WarnContext(ctx, "Session terminated", "user_id", actor, "cause", reason)
	s.auditor.Record(ctx, audit.Event{Type: audit.EventSessionTerminated, ActorID: actor, Reason: reason})
	s.tel.RecordSessionTermination(ctx, "expired")

	s.mu.RLock()
	handlers := append([]TerminationHandler(nil), s.handlers...)
	s.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, cause)
	}
}

// ClearError forgets the last auth error.
func (s *Store) ClearError() {
	s.setErr(nil)
}

// RefreshPrincipal re-reads the current user from the backend.
func (s *Store) RefreshPrincipal(ctx context.Context) (model.Principal, error) {
	current := s.creds.Principal()
	if current == nil {
		return model.Principal{}, ErrSessionExpired
	}

	p, err := s.auth.Me(ctx)
	if err != nil {
		return model.Principal{}, err
	}
	if current.Role.ChapterScoped() && p.ChapterID != current.ChapterID {
		s.Terminate(ctx, fmt.Errorf("%w: %s to %s", ErrChapterChanged, current.ChapterID, p.ChapterID))
		return model.Principal{}, ErrChapterChanged
	}
	if err := p.Validate(); err != nil {
		return model.Principal{}, fmt.Errorf("%w: %w", ErrInconsistentSession, err)
	}

	s.creds.SetPrincipal(ctx, p)
	return p, nil
}

// Restore loads a persisted session, reporting whether one was found.
func (s *Store) Restore(ctx context.Context) bool {
	if !s.creds.Load(ctx) {
		return false
	}
	p := s.creds.Principal()
	if p == nil || p.Validate() != nil || !p.Role.Admin() {
		s.log.WarnContext(ctx, "Discarding persisted session with an unusable principal")
		s.creds.Clear(ctx)
		return false
	}
	return true
}

func (s *Store) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// IsAuthenticated is true iff both an access token and a principal are held.
func (s *Store) IsAuthenticated() bool {
	snap := s.creds.Snapshot()
	return snap.Principal != nil && snap.Tokens.AccessToken != ""
}

// Principal returns a copy of the signed-in principal, or nil.
func (s *Store) Principal() *model.Principal {
	snap := s.creds.Snapshot()
	if snap.Principal == nil || snap.Tokens.AccessToken == "" {
		return nil
	}
	return snap.Principal
}

func (s *Store) IsSuperAdmin() bool {
	p := s.Principal()
	return p != nil && p.Role == model.RoleSuperAdmin
}

func (s *Store) IsChapterAdmin() bool {
	p := s.Principal()
	return p != nil && p.Role == model.RoleChapterAdmin
}

func (s *Store) UserChapterID() string {
	if p := s.Principal(); p != nil {
		return p.ChapterID
	}
	return ""
}

// Can reports whether the signed-in principal's role grants perm.
func (s *Store) Can(perm model.Permission) bool {
	p := s.Principal()
	return p != nil && permission.HasPermission(p.Role, perm)
}

// Allows evaluates a guard against the signed-in principal.
func (s *Store) Allows(g permission.Guard) bool {
	return g.Allows(s.Principal())
}
