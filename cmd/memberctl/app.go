package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"memberconsole/internal/api"
	"memberconsole/internal/audit"
	"memberconsole/internal/config"
	"memberconsole/internal/credential"
	"memberconsole/internal/gateway"
	"memberconsole/internal/logger"
	"memberconsole/internal/membership"
	"memberconsole/internal/monitoring"
	"memberconsole/internal/permission"
	"memberconsole/internal/service"
	"memberconsole/internal/session"
)

// app is the wired console core for one CLI invocation.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	tel     monitoring.Telemetry
	creds   *credential.Store
	session *session.Store
	service *service.MembershipService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(globalFlags.config)
	if err != nil {
		return nil, err
	}
	if globalFlags.debug {
		cfg.Server.LogLevel = "debug"
	} else if os.Getenv("LOG_LEVEL") == "" && globalFlags.config == "" {
		cfg.Server.LogLevel = "warn"
	}

	tel, err := monitoring.NewOpenTelemetry(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	log := logger.New(*cfg, os.Stderr)

	backend, err := credential.NewBackend(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	creds := credential.NewStore(backend,
		credential.WithKeyPrefix(cfg.Credentials.KeyPrefix),
		credential.WithLogger(log.Component("credential")),
	)

	gw, err := gateway.New(cfg.API.BaseURL, creds,
		gateway.WithTimeouts(cfg.API.Timeout, cfg.API.RefreshTimeout),
		gateway.WithTelemetry(tel),
		gateway.WithLogger(log.Logger),
		gateway.WithUserAgent(programName),
	)
	if err != nil {
		return nil, err
	}

	auditor := audit.NewAuditor(log.Logger, nil)
	sess := session.New(creds, api.NewAuthClient(gw),
		session.WithAuditor(auditor),
		session.WithTelemetry(tel),
		session.WithLogger(log.Logger),
	)
	gw.OnTerminate(sess.Ended)

	svc := service.NewMembershipService(api.NewMembershipClient(gw), sess, service.MembershipConfig{
		DelayedThreshold: cfg.Membership.DelayedThreshold,
		MemberCacheTTL:   cfg.Membership.MemberCacheTTL,
	}, auditor, tel, log.Component("membership"))

	sess.Restore(ctx)

	return &app{cfg: cfg, log: log, tel: tel, creds: creds, session: sess, service: svc}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.tel.Shutdown(ctx)
	_ = a.creds.Close()
}

var errNotSignedIn = errors.New("not signed in, run `memberctl login` first")

func (a *app) requireSession() error {
	if !a.session.IsAuthenticated() {
		return errNotSignedIn
	}
	return nil
}

// chapter resolves the --chapter flag, defaulting to the principal's own.
func (a *app) chapter(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if id := a.session.UserChapterID(); id != "" {
		return id, nil
	}
	return "", errors.New("--chapter is required for platform-wide roles")
}

// describe turns known errors into operator-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return "session expired, please sign in again"
	case errors.Is(err, session.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, session.ErrNotAdmin):
		return "this account has no console access"
	case errors.Is(err, session.ErrInactiveAccount):
		return "this account is deactivated"
	case errors.Is(err, session.ErrLoginSuperseded):
		return "sign-in was interrupted by a sign-out, try again"
	case errors.Is(err, membership.ErrProtectedTarget):
		return "super admins cannot be suspended"
	case errors.Is(err, membership.ErrReasonRequired):
		return "a reason is required (--reason)"
	case errors.Is(err, membership.ErrInvalidTransition):
		return err.Error()
	case errors.Is(err, permission.ErrForbidden), errors.Is(err, membership.ErrNotAuthorized), errors.Is(err, gateway.ErrForbidden):
		return "you do not have permission to do that"
	case errors.Is(err, gateway.ErrTransport):
		return "cannot reach the admin API: " + err.Error()
	}
	return err.Error()
}
