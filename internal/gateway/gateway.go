// Package gateway is the console's single egress point to the admin backend.
// It attaches the bearer token, renews it once on 401 and terminates the
// session when renewal is impossible. A 403 never touches the session.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"memberconsole/internal/credential"
	"memberconsole/internal/model"
	"memberconsole/internal/monitoring"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	RefreshPath     = "/auth/refresh"
	maxResponseBody = 4 << 20
)

var (
	ErrNoRefreshToken = errors.New("no refresh token")
	errSessionChanged = errors.New("session changed during renewal")
)

// Request describes one backend call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Anonymous requests carry no bearer token and a 401 on them is returned
	// as is.
	Anonymous bool
	// Token, when set, is sent instead of the stored access token. It is
	// never renewed.
	Token string
}

// TerminateFunc is told when renewal failed and the credentials were
// cleared. ended is the session as it was before the clear.
type TerminateFunc func(ctx context.Context, ended credential.Snapshot, cause error)

type Gateway struct {
	base           string
	client         *http.Client
	bare           *http.Client
	creds          *credential.Store
	userAgent      string
	callTimeout    time.Duration
	refreshTimeout time.Duration
	renewals       singleflight.Group

	mu          sync.RWMutex
	onTerminate TerminateFunc

	tel    monitoring.Telemetry
	tracer trace.Tracer
	log    *slog.Logger
}

type Option func(*Gateway)

// WithHTTPClient replaces the client used for ordinary calls. Renewal keeps
// its own bare client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

func WithRefreshClient(c *http.Client) Option {
	return func(g *Gateway) { g.bare = c }
}

func WithTimeouts(call, refresh time.Duration) Option {
	return func(g *Gateway) {
		g.callTimeout = call
		if refresh > 0 {
			g.refreshTimeout = refresh
		}
	}
}

func WithTelemetry(t monitoring.Telemetry) Option {
	return func(g *Gateway) { g.tel = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

func WithUserAgent(ua string) Option {
	return func(g *Gateway) { g.userAgent = ua }
}

func New(baseURL string, creds *credential.Store, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}
	if creds == nil {
		return nil, errors.New("gateway requires a credential store")
	}

	g := &Gateway{
		base:           strings.TrimRight(u.String(), "/"),
		client:         &http.Client{},
		bare:           &http.Client{Timeout: 10 * time.Second},
		creds:          creds,
		callTimeout:    15 * time.Second,
		refreshTimeout: 10 * time.Second,
		tel:            monitoring.Noop(),
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	client := *g.client
	client.Transport = &transport{base: client.Transport, userAgent: g.userAgent}
	if g.callTimeout > 0 {
		client.Timeout = g.callTimeout
	}
	g.client = &client

	g.tracer = g.tel.Tracer("memberconsole/gateway")
	g.log = g.log.With("component", "gateway")
	return g, nil
}

// OnTerminate registers the session's termination handler.
func (g *Gateway) OnTerminate(fn TerminateFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTerminate = fn
}

// Do sends req and decodes a 2xx JSON body into out (which may be nil).
// Non-2xx responses come back as *Error.
func (g *Gateway) Do(ctx context.Context, req Request, out any) error {
	ctx, span := g.tracer.Start(ctx, "gateway "+req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		))
	defer span.End()

	body, err := encodeBody(req.Body)
	if err != nil {
		return err
	}

	var snap credential.Snapshot
	if !req.Anonymous && req.Token == "" {
		snap = g.creds.Snapshot()
	}
	token := snap.Tokens.AccessToken
	if !req.Anonymous && req.Token != "" {
		token = req.Token
	}

	status, payload, err := g.send(ctx, g.client, req, body, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return err
	}

	if status == http.StatusUnauthorized && snap.Tokens.AccessToken != "" {
		next, ok := g.renew(ctx, snap)
		if !ok {
			span.SetStatus(codes.Error, "unauthorized")
			return newError(req.Method, req.Path, status, payload)
		}
		span.AddEvent("retry after renewal")
		status, payload, err = g.send(ctx, g.client, req, body, next)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transport")
			return err
		}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status < 200 || status > 299 {
		e := newError(req.Method, req.Path, status, payload)
		if status == http.StatusForbidden {
			g.log.InfoContext(ctx, "Request forbidden", "method", req.Method, "path", req.Path)
		}
		if status >= 500 {
			span.SetStatus(codes.Error, e.Error())
		}
		return e
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

// renew returns the access token to retry with. Concurrent callers holding
// the same refresh token share a single renewal.
func (g *Gateway) renew(ctx context.Context, used credential.Snapshot) (string, bool) {
	current := g.creds.Snapshot()
	if current.Tokens.AccessToken == "" {
		return "", false
	}
	if current.Tokens.AccessToken != used.Tokens.AccessToken {
		return current.Tokens.AccessToken, true
	}

	v, err, shared := g.renewals.Do(current.Tokens.RefreshToken, func() (any, error) {
		return g.refresh(ctx, current)
	})
	if err == nil {
		if shared {
			g.log.DebugContext(ctx, "Joined in-flight token renewal")
		}
		return v.(string), true
	}

	if errors.Is(err, errSessionChanged) {
		if now := g.creds.Snapshot(); now.Tokens.AccessToken != "" && now.Tokens.AccessToken != used.Tokens.AccessToken {
			return now.Tokens.AccessToken, true
		}
	}
	return "", false
}

func (g *Gateway) refresh(ctx context.Context, snap credential.Snapshot) (any, error) {
	// The renewal outlives any single waiter's cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
	defer cancel()

	pair, err := g.exchange(ctx, snap.Tokens.RefreshToken)
	if err != nil {
		g.tel.RecordTokenRenewal(ctx, "failure")
		if g.creds.ClearIfCurrent(ctx, snap.Generation) {
			g.log.WarnContext(ctx, "Token renewal failed, session terminated", "error", err)
			g.terminate(ctx, snap, err)
		}
		return nil, err
	}

	if !g.creds.SetTokensIfCurrent(ctx, snap.Generation, pair) {
		g.tel.RecordTokenRenewal(ctx, "discarded")
		return nil, errSessionChanged
	}
	g.tel.RecordTokenRenewal(ctx, "success")
	return pair.AccessToken, nil
}

// exchange calls the refresh endpoint on the bare client: no bearer token and
// no renewal on failure.
func (g *Gateway) exchange(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	var pair model.TokenPair
	if refreshToken == "" {
		return pair, ErrNoRefreshToken
	}

	body, err := encodeBody(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return pair, err
	}
	req := Request{Method: http.MethodPost, Path: RefreshPath, Anonymous: true}
	status, payload, err := g.send(ctx, g.bare, req, body, "")
	if err != nil {
		return pair, err
	}
	if status < 200 || status > 299 {
		return pair, newError(req.Method, req.Path, status, payload)
	}
	if err := json.Unmarshal(payload, &pair); err != nil {
		return pair, fmt.Errorf("decode token renewal: %w", err)
	}
	if !pair.Complete() {
		return pair, errors.New("token renewal returned an incomplete pair")
	}
	return pair, nil
}

func (g *Gateway) send(ctx context.Context, client *http.Client, req Request, body []byte, token string) (int, []byte, error) {
	target := g.base + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.Path, ErrTransport, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s %s: %w: %w", req.Method, req.Path, ErrTransport, err)
	}
	return resp.StatusCode, payload, nil
}

func (g *Gateway) terminate(ctx context.Context, ended credential.Snapshot, cause error) {
	g.mu.RLock()
	fn := g.onTerminate
	g.mu.RUnlock()
	if fn != nil {
		fn(ctx, ended, cause)
	}
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}
