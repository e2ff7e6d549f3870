package devserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"memberconsole/internal/api"
	"memberconsole/internal/audit"
	"memberconsole/internal/credential"
	"memberconsole/internal/devserver"
	"memberconsole/internal/gateway"
	"memberconsole/internal/logger"
	"memberconsole/internal/membership"
	"memberconsole/internal/model"
	"memberconsole/internal/service"
	"memberconsole/internal/session"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// console wires the real client stack against a dev server.
type console struct {
	store   *devserver.Store
	server  *httptest.Server
	creds   *credential.Store
	gw      *gateway.Gateway
	auth    *api.AuthClient
	client  *api.MembershipClient
	session *session.Store
	svc     *service.MembershipService
	events  *audit.MemorySink
}

func newConsole(t *testing.T, loginRateLimit int) *console {
	t.Helper()

	store, err := devserver.NewStore(devserver.DefaultSeed(), devserver.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	srv := devserver.New(devserver.Options{
		Store:          store,
		Logger:         logger.Discard(),
		LoginRateLimit: loginRateLimit,
	})
	ts := httptest.NewServer(adaptor.FiberApp(srv.App()))
	t.Cleanup(ts.Close)

	creds := credential.NewStore(nil)
	gw, err := gateway.New(ts.URL+"/api", creds, gateway.WithLogger(logger.Discard()))
	require.NoError(t, err)

	events := audit.NewMemorySink(100)
	auditor := audit.NewAuditor(logger.Discard(), events)
	auth := api.NewAuthClient(gw)
	sess := session.New(creds, auth, session.WithLogger(logger.Discard()), session.WithAuditor(auditor))
	gw.OnTerminate(sess.Ended)

	client := api.NewMembershipClient(gw)
	svc := service.NewMembershipService(client, sess, service.MembershipConfig{
		DelayedThreshold: 72 * time.Hour,
		MemberCacheTTL:   time.Minute,
	}, auditor, nil, logger.Discard())

	return &console{
		store:   store,
		server:  ts,
		creds:   creds,
		gw:      gw,
		auth:    auth,
		client:  client,
		session: sess,
		svc:     svc,
		events:  events,
	}
}

func (c *console) login(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, c.session.Login(context.Background(), email, devserver.DefaultPassword))
	require.True(t, c.session.IsAuthenticated())
}

func TestHealthz(t *testing.T) {
	c := newConsole(t, 0)
	resp, err := http.Get(c.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginFlows(t *testing.T) {
	ctx := context.Background()

	t.Run("chapter admin", func(t *testing.T) {
		c := newConsole(t, 0)
		c.login(t, "admin1@example.org")

		p := c.session.Principal()
		require.NotNil(t, p)
		assert.Equal(t, "u-admin1", p.ID)
		assert.True(t, c.session.IsChapterAdmin())
		assert.Equal(t, "ch-1", c.session.UserChapterID())
		assert.True(t, c.session.Can(model.PermApproveRejectRequest))
		assert.Contains(t, c.events.Types(), audit.EventSessionLogin)
	})

	t.Run("google", func(t *testing.T) {
		c := newConsole(t, 0)
		require.NoError(t, c.session.LoginWithGoogle(ctx, "google-super"))
		assert.True(t, c.session.IsSuperAdmin())

		c2 := newConsole(t, 0)
		err := c2.session.LoginWithGoogle(ctx, "forged")
		assert.ErrorIs(t, err, session.ErrInvalidCredentials)
		assert.False(t, c2.session.IsAuthenticated())
	})

	t.Run("wrong password", func(t *testing.T) {
		c := newConsole(t, 0)
		err := c.session.Login(ctx, "admin1@example.org", "nope")
		assert.ErrorIs(t, err, session.ErrInvalidCredentials)
		assert.ErrorIs(t, err, gateway.ErrUnauthorized)
		assert.False(t, c.session.IsAuthenticated())
		assert.ErrorIs(t, c.session.LastError(), session.ErrInvalidCredentials)
	})

	t.Run("member cannot use the console", func(t *testing.T) {
		c := newConsole(t, 0)
		err := c.session.Login(ctx, "member@example.org", devserver.DefaultPassword)
		assert.ErrorIs(t, err, session.ErrNotAdmin)
		assert.False(t, c.session.IsAuthenticated())
		_, held := c.creds.AccessToken()
		assert.False(t, held)
	})

	t.Run("inactive admin", func(t *testing.T) {
		c := newConsole(t, 0)
		err := c.session.Login(ctx, "inactive@example.org", devserver.DefaultPassword)
		assert.ErrorIs(t, err, session.ErrInactiveAccount)
		assert.False(t, c.session.IsAuthenticated())
	})

	t.Run("validation", func(t *testing.T) {
		c := newConsole(t, 0)
		_, err := c.auth.Login(ctx, "not-an-email", "x")
		assert.ErrorIs(t, err, gateway.ErrBadRequest)
	})
}

func TestLoginRateLimit(t *testing.T) {
	c := newConsole(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.auth.Login(ctx, "admin1@example.org", "nope")
		require.ErrorIs(t, err, gateway.ErrUnauthorized)
	}
	_, err := c.auth.Login(ctx, "admin1@example.org", devserver.DefaultPassword)
	assert.ErrorIs(t, err, gateway.ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, gateway.StatusOf(err))
}

func TestExpiredAccessTokenIsRenewed(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "admin1@example.org")
	ctx := context.Background()

	before := c.creds.Snapshot().Tokens
	require.True(t, c.store.ExpireAccess(before.AccessToken))

	reqs, err := c.svc.Requests(ctx, "ch-1", model.RequestStatusPending)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	after := c.creds.Snapshot().Tokens
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken)
	assert.True(t, c.session.IsAuthenticated())

	// The spent refresh token is now poison.
	_, err = c.store.Rotate(before.RefreshToken)
	assert.ErrorIs(t, err, devserver.ErrTokenReused)
}

func TestRevokedSessionTerminates(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "admin1@example.org")
	ctx := context.Background()

	var terminated error
	c.session.OnTerminated(func(_ context.Context, cause error) { terminated = cause })

	tokens := c.creds.Snapshot().Tokens
	c.store.Revoke(tokens.RefreshToken, "")

	_, err := c.svc.Requests(ctx, "ch-1", "")
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.False(t, c.session.IsAuthenticated())
	assert.ErrorIs(t, c.session.LastError(), session.ErrSessionExpired)
	assert.Error(t, terminated)

	var ended *audit.Event
	for _, e := range c.events.Events() {
		if e.Type == audit.EventSessionTerminated {
			ended = &e
		}
	}
	require.NotNil(t, ended)
	assert.Equal(t, "u-admin1", ended.ActorID)
}

func TestForbiddenKeepsSession(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "admin1@example.org")
	ctx := context.Background()

	// Skip the client-side guard to hit the server directly.
	_, err := c.client.Approve(ctx, "ch-2", "r-3", "")
	assert.ErrorIs(t, err, gateway.ErrForbidden)
	assert.True(t, c.session.IsAuthenticated())

	_, err = c.svc.Requests(ctx, "ch-2", "")
	assert.Error(t, err)
	assert.True(t, c.session.IsAuthenticated())
}

func TestTriageOrder(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "admin1@example.org")

	reqs, err := c.svc.Requests(context.Background(), "ch-1", "")
	require.NoError(t, err)

	ids := []string{}
	for _, r := range reqs {
		ids = append(ids, r.ID)
	}
	require.Len(t, ids, 5)
	assert.Equal(t, []string{"r-1", "r-2"}, ids[:2])
	assert.True(t, reqs[0].IsDelayed)
	assert.False(t, reqs[1].IsDelayed)
}

func TestApproveInvalidatesMembers(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "admin1@example.org")
	ctx := context.Background()

	members, err := c.svc.Members(ctx, "ch-1")
	require.NoError(t, err)
	require.Len(t, members, 3)

	req, err := c.store.Request("ch-1", "r-1")
	require.NoError(t, err)
	approved, err := c.svc.Approve(ctx, req, "welcome aboard")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, approved.Status)
	assert.Equal(t, "welcome aboard", approved.ReviewNotes)

	members, err = c.svc.Members(ctx, "ch-1")
	require.NoError(t, err)
	assert.Len(t, members, 4)

	// Approving again is refused locally before any call.
	_, err = c.svc.Approve(ctx, approved, "")
	assert.ErrorIs(t, err, membership.ErrInvalidTransition)
}

func TestRejectWithoutReapply(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "admin1@example.org")
	ctx := context.Background()

	req, err := c.store.Request("ch-1", "r-2")
	require.NoError(t, err)

	_, err = c.svc.Reject(ctx, req, "   ", false)
	require.ErrorIs(t, err, membership.ErrReasonRequired)

	rejected, err := c.svc.Reject(ctx, req, "missing documents", false)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, rejected.Status)
	assert.False(t, rejected.CanReapply)

	// The applicant tries again with their own token.
	applicant, err := c.store.IssueTokens("u-app2")
	require.NoError(t, err)
	err = c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/chapters/ch-1/membership-requests",
		Token:  applicant.AccessToken,
	}, nil)
	assert.ErrorIs(t, err, gateway.ErrForbidden)
	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "REAPPLY_BLOCKED", gerr.Code)
}

func TestSuspendAndReinstate(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "admin1@example.org")
	ctx := context.Background()

	member, err := c.store.Member("u-member")
	require.NoError(t, err)

	_, err = c.svc.Suspend(ctx, member, "")
	require.ErrorIs(t, err, membership.ErrReasonRequired)

	suspended, err := c.svc.Suspend(ctx, member, "code of conduct")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusSuspended, suspended.Status)
	assert.Contains(t, c.events.Types(), audit.EventMemberSuspended)

	reinstated, err := c.svc.Reinstate(ctx, suspended)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, reinstated.Status)

	// The server refuses an impossible transition on its own.
	_, err = c.client.SetMembershipStatus(ctx, "u-member", model.RequestStatusApproved, "")
	assert.ErrorIs(t, err, gateway.ErrConflict)
}

func TestSuperAdminCannotBeSuspended(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "super@example.org")
	ctx := context.Background()

	target, err := c.store.Member("u-super")
	require.NoError(t, err)

	_, err = c.svc.Suspend(ctx, target, "testing")
	assert.ErrorIs(t, err, membership.ErrProtectedTarget)

	_, err = c.client.SetMembershipStatus(ctx, "u-super", model.RequestStatusSuspended, "testing")
	assert.ErrorIs(t, err, gateway.ErrForbidden)
	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "PROTECTED_TARGET", gerr.Code)

	m, err := c.store.Member("u-super")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, m.Status)
}

func TestStaffCannotApprove(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "staff1@example.org")
	ctx := context.Background()

	reqs, err := c.svc.Requests(ctx, "ch-1", model.RequestStatusPending)
	require.NoError(t, err)
	require.NotEmpty(t, reqs)

	_, err = c.svc.Approve(ctx, reqs[0], "")
	assert.ErrorIs(t, err, membership.ErrNotAuthorized)

	_, err = c.client.Approve(ctx, "ch-1", reqs[0].ID, "")
	assert.ErrorIs(t, err, gateway.ErrForbidden)
	assert.True(t, c.session.IsAuthenticated())
}

func TestLogoutRevokesTokens(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "admin1@example.org")
	ctx := context.Background()

	tokens := c.creds.Snapshot().Tokens
	c.session.Logout(ctx)
	assert.False(t, c.session.IsAuthenticated())

	_, err := c.store.ResolveAccess(tokens.AccessToken)
	assert.ErrorIs(t, err, devserver.ErrTokenInvalid)

	// Second logout is a no-op.
	c.session.Logout(ctx)
	assert.False(t, c.session.IsAuthenticated())
}

func TestRefreshPrincipal(t *testing.T) {
	c := newConsole(t, 0)
	c.login(t, "hq@example.org")

	p, err := c.session.RefreshPrincipal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RoleHQStaff, p.Role)
}
