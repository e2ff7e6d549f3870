package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"memberconsole/internal/credential"
	"memberconsole/internal/logger"
	"memberconsole/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var principal = model.Principal{ID: "u-1", Email: "ada@example.org", Role: model.RoleChapterAdmin, ChapterID: "ch-1", Active: true}

// backend is a scripted admin API. Tokens named in valid are accepted on
// /things; refresh swaps a known refresh token for the next pair.
type backend struct {
	mu        sync.Mutex
	valid     map[string]bool
	rotations map[string]model.TokenPair

	refreshCalls atomic.Int32
	thingCalls   atomic.Int32
	refreshAuth  atomic.Value
	lastAuth     atomic.Value

	refreshGate chan struct{}
	refreshHit  chan struct{}
}

func newBackend() *backend {
	return &backend{
		valid:     map[string]bool{},
		rotations: map[string]model.TokenPair{},
	}
}

func (b *backend) accept(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valid[token] = true
}

func (b *backend) rotate(refresh string, next model.TokenPair) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rotations[refresh] = next
}

// hold makes refresh calls report on the returned hit channel and wait until
// gate is closed.
func (b *backend) hold() (hit chan struct{}, gate chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshHit = make(chan struct{}, 16)
	b.refreshGate = make(chan struct{})
	return b.refreshHit, b.refreshGate
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api" + RefreshPath:
		b.refreshCalls.Add(1)
		b.refreshAuth.Store(r.Header.Get("Authorization"))
		b.mu.Lock()
		hit, gate := b.refreshHit, b.refreshGate
		b.mu.Unlock()
		if hit != nil {
			hit <- struct{}{}
		}
		if gate != nil {
			<-gate
		}

		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		pair, ok := b.rotations[body.RefreshToken]
		if ok {
			delete(b.rotations, body.RefreshToken)
			b.valid[pair.AccessToken] = true
		}
		b.mu.Unlock()

		if !ok {
			writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token revoked")
			return
		}
		_ = json.NewEncoder(w).Encode(pair)

	case "/api/things":
		b.thingCalls.Add(1)
		auth := r.Header.Get("Authorization")
		b.lastAuth.Store(auth)

		b.mu.Lock()
		ok := len(auth) > 7 && b.valid[auth[7:]]
		b.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token expired")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "thing", "q": r.URL.Query().Get("q")})

	case "/api/forbidden":
		writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")

	case "/api/missing":
		writeError(w, http.StatusNotFound, "NOT_FOUND", "request r9 not found")

	case "/api/broken":
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))

	default:
		http.NotFound(w, r)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": msg, "status": code},
	})
}

type harness struct {
	backend    *backend
	server     *httptest.Server
	creds      *credential.Store
	gw         *Gateway
	terminated atomic.Int32
	cause      atomic.Pointer[error]
	ended      atomic.Pointer[credential.Snapshot]
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{backend: newBackend()}
	h.server = httptest.NewServer(h.backend)
	t.Cleanup(h.server.Close)

	h.creds = credential.NewStore(nil, credential.WithLogger(logger.Discard()))
	gw, err := New(h.server.URL+"/api/", h.creds, WithLogger(logger.Discard()), WithTimeouts(5*time.Second, 5*time.Second))
	require.NoError(t, err)
	gw.OnTerminate(func(ctx context.Context, ended credential.Snapshot, cause error) {
		h.terminated.Add(1)
		h.cause.Store(&cause)
		h.ended.Store(&ended)
	})
	h.gw = gw
	return h
}

func (h *harness) login(access, refresh string) {
	h.creds.SetSession(context.Background(), model.TokenPair{AccessToken: access, RefreshToken: refresh}, principal)
}

type thing struct {
	Name string `json:"name"`
	Q    string `json:"q"`
}

func TestDoAttachesBearer(t *testing.T) {
	h := newHarness(t)
	h.login("a1", "r1")
	h.backend.accept("a1")

	var out thing
	err := h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things", Query: url.Values{"q": {"x y"}}}, &out)
	require.NoError(t, err)

	assert.Equal(t, "Bearer a1", h.backend.lastAuth.Load())
	assert.Equal(t, thing{Name: "thing", Q: "x y"}, out)
	assert.Zero(t, h.backend.refreshCalls.Load())
}

func TestDoWithoutTokenIsUnauthenticated(t *testing.T) {
	h := newHarness(t)

	err := h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things"}, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "", h.backend.lastAuth.Load())
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.Zero(t, h.terminated.Load())
}

func TestAnonymousRequestSkipsBearer(t *testing.T) {
	h := newHarness(t)
	h.login("a1", "r1")

	err := h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things", Anonymous: true}, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "", h.backend.lastAuth.Load())
	assert.Zero(t, h.backend.refreshCalls.Load())

	_, ok := h.creds.AccessToken()
	assert.True(t, ok, "an anonymous 401 leaves the session alone")
}

func TestRenewalRetriesOnce(t *testing.T) {
	h := newHarness(t)
	h.login("expired", "r1")
	h.backend.rotate("r1", model.TokenPair{AccessToken: "a2", RefreshToken: "r2"})

	var out thing
	err := h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "thing", out.Name)
	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.EqualValues(t, 2, h.backend.thingCalls.Load())
	assert.Equal(t, "", h.backend.refreshAuth.Load(), "refresh goes out without a bearer token")

	snap := h.creds.Snapshot()
	assert.Equal(t, model.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, snap.Tokens)
	assert.Equal(t, principal, *snap.Principal)
	assert.Zero(t, h.terminated.Load())
}

func TestRenewalFailureTerminates(t *testing.T) {
	h := newHarness(t)
	h.login("expired", "revoked")

	err := h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things"}, nil)
	require.Error(t, err)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnauthorized, gwErr.Status)
	assert.Equal(t, "TOKEN_EXPIRED", gwErr.Code, "caller sees the original 401")
	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.EqualValues(t, 1, h.backend.thingCalls.Load())

	_, ok := h.creds.AccessToken()
	assert.False(t, ok)
	_, ok = h.creds.RefreshToken()
	assert.False(t, ok)
	assert.Nil(t, h.creds.Principal())
	assert.EqualValues(t, 1, h.terminated.Load())

	ended := h.ended.Load()
	require.NotNil(t, ended)
	require.NotNil(t, ended.Principal, "handler sees the session that was cleared")
	assert.Equal(t, principal.ID, ended.Principal.ID)
	assert.Equal(t, "revoked", ended.Tokens.RefreshToken)
}

func TestMissingRefreshTokenTerminates(t *testing.T) {
	h := newHarness(t)
	h.creds.SetTokens(context.Background(), "expired", "")

	err := h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things"}, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.EqualValues(t, 1, h.terminated.Load())
	require.NotNil(t, h.cause.Load())
	assert.ErrorIs(t, *h.cause.Load(), ErrNoRefreshToken)
}

func TestRetriedUnauthorizedIsNotRenewedAgain(t *testing.T) {
	h := newHarness(t)
	h.login("expired", "r1")

	// The renewed token is issued but never accepted.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api"+RefreshPath {
			h.backend.refreshCalls.Add(1)
			_ = json.NewEncoder(w).Encode(model.TokenPair{AccessToken: "a2", RefreshToken: "r2"})
			return
		}
		h.backend.thingCalls.Add(1)
		writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "nope")
	}))
	defer srv.Close()

	gw, err := New(srv.URL+"/api", h.creds, WithLogger(logger.Discard()))
	require.NoError(t, err)

	err = gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things"}, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.EqualValues(t, 2, h.backend.thingCalls.Load())
}

func TestForbiddenKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.login("a1", "r1")
	before := h.creds.Snapshot()

	err := h.gw.Do(context.Background(), Request{Method: http.MethodPost, Path: "/forbidden", Body: map[string]string{"k": "v"}}, nil)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, errors.Is(err, ErrUnauthorized))

	after := h.creds.Snapshot()
	assert.Equal(t, before, after)
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.Zero(t, h.terminated.Load())
}

func TestOtherStatusesPassThrough(t *testing.T) {
	h := newHarness(t)
	h.login("a1", "r1")
	ctx := context.Background()

	err := h.gw.Do(ctx, Request{Method: http.MethodGet, Path: "/missing"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "NOT_FOUND", gwErr.Code)
	assert.Equal(t, "request r9 not found", gwErr.Message)

	err = h.gw.Do(ctx, Request{Method: http.MethodGet, Path: "/broken"}, nil)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Contains(t, err.Error(), "upstream down")

	_, ok := h.creds.AccessToken()
	assert.True(t, ok)
}

func TestTransportFailure(t *testing.T) {
	h := newHarness(t)
	h.server.Close()

	err := h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things"}, nil)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Zero(t, StatusOf(err))
}

func TestConcurrentRenewalsCoalesce(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	h := newHarness(t)
	defer h.server.Close()
	h.login("expired", "r1")
	h.backend.rotate("r1", model.TokenPair{AccessToken: "a2", RefreshToken: "r2"})
	hit, gate := h.backend.hold()

	const callers = 8
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			errs <- h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things"}, nil)
		}()
	}

	<-hit
	// Give the remaining callers time to hit their 401 and queue behind the
	// renewal in flight.
	time.Sleep(50 * time.Millisecond)
	close(gate)

	for i := 0; i < callers; i++ {
		assert.NoError(t, <-errs)
	}
	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.Equal(t, model.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, h.creds.Snapshot().Tokens)
}

func TestLogoutDuringRenewalDoesNotResurrect(t *testing.T) {
	h := newHarness(t)
	h.login("expired", "r1")
	h.backend.rotate("r1", model.TokenPair{AccessToken: "a2", RefreshToken: "r2"})
	hit, gate := h.backend.hold()

	done := make(chan error, 1)
	go func() {
		done <- h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things"}, nil)
	}()

	<-hit
	h.creds.Clear(context.Background())
	close(gate)

	assert.ErrorIs(t, <-done, ErrUnauthorized)
	_, ok := h.creds.AccessToken()
	assert.False(t, ok, "late renewal must not restore the cleared session")
	assert.Zero(t, h.terminated.Load())
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	creds := credential.NewStore(nil)
	_, err := New("not a url", creds)
	assert.Error(t, err)
	_, err = New("http://localhost:3001", nil)
	assert.Error(t, err)
}

func TestExplicitTokenIsNotRenewed(t *testing.T) {
	h := newHarness(t)
	h.login("a1", "r1")
	h.backend.accept("fresh")

	require.NoError(t, h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things", Token: "fresh"}, nil))
	assert.Equal(t, "Bearer fresh", h.backend.lastAuth.Load())

	err := h.gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/things", Token: "bogus"}, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.Zero(t, h.terminated.Load())
}
