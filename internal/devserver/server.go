// Package devserver is an in-memory admin backend that serves the same
// endpoints the console talks to. It enforces permissions, chapter scope
// and the membership state machine on its own, so it can be used to drive
// the console end to end.
package devserver

import (
	"context"
	"log/slog"
	"time"

	"memberconsole/internal/middleware"
	"memberconsole/internal/telemetry"
	"memberconsole/internal/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Store      *Store
	Authorizer Authorizer
	Google     GoogleVerifier
	Throttle   LoginThrottle
	Tracer     trace.Tracer
	Logger     *slog.Logger

	// LoginRateLimit caps login attempts per client IP per minute. Zero
	// disables the limiter.
	LoginRateLimit int
}

type Server struct {
	app      *fiber.App
	store    *Store
	authz    Authorizer
	google   GoogleVerifier
	throttle LoginThrottle
	validate *validator.Validator
	logger   *slog.Logger
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Authorizer == nil {
		opts.Authorizer = RoleAuthorizer{}
	}
	if opts.Google == nil {
		opts.Google = staticGoogle{store: opts.Store}
	}
	if opts.Throttle == nil {
		opts.Throttle = NewMemoryThrottle(opts.LoginRateLimit, 15*time.Minute)
	}

	s := &Server{
		store:    opts.Store,
		authz:    opts.Authorizer,
		google:   opts.Google,
		throttle: opts.Throttle,
		validate: validator.New(),
		logger:   opts.Logger.With("component", "devserver"),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(s.logger),
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	if opts.Tracer != nil {
		s.app.Use(telemetry.FiberMiddleware(opts.Tracer))
	}
	s.app.Use(middleware.Logger(s.logger))

	s.routes(opts.LoginRateLimit)
	return s
}

func (s *Server) routes(loginRateLimit int) {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api")

	loginLimiter := func(c *fiber.Ctx) error { return c.Next() }
	if loginRateLimit > 0 {
		loginLimiter = limiter.New(limiter.Config{
			Max:        loginRateLimit,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return middleware.ErrorResponse(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "Too many login attempts. Please try again later.")
			},
		})
	}

	auth := api.Group("/auth")
	auth.Post("/login", loginLimiter, s.login)
	auth.Post("/google", loginLimiter, s.loginWithGoogle)
	auth.Post("/refresh", s.refresh)
	auth.Post("/logout", s.logout)

	bearer := middleware.BearerToken(s.store)

	api.Get("/users/me", bearer, s.me)

	chapters := api.Group("/chapters")
	chapters.Get("/:chapterId/membership-requests", bearer, s.listRequests)
	chapters.Post("/:chapterId/membership-requests", bearer, s.submitRequest)
	chapters.Post("/:chapterId/membership-requests/:requestId/approve", bearer, s.approve)
	chapters.Post("/:chapterId/membership-requests/:requestId/reject", bearer, s.reject)
	chapters.Get("/:chapterId/members", bearer, s.listMembers)

	api.Patch("/admin/:userId/membership-status", bearer, s.setMembershipStatus)
}

// App exposes the fiber application, e.g. for adaptor.FiberApp in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("Dev server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
