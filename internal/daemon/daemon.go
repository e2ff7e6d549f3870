package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DaemonFunc is the body of a daemon. Returning nil ends it; returning an
// error gets it restarted.
type DaemonFunc func(ctx context.Context, name string) error

// Manager supervises named daemons until their context is cancelled.
type Manager struct {
	daemons      map[string]DaemonFunc
	restartDelay time.Duration
	logger       *slog.Logger
	wg           sync.WaitGroup
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		daemons:      make(map[string]DaemonFunc),
		restartDelay: 2 * time.Second,
		logger:       logger.With("component", "daemon"),
	}
}

// Add registers a daemon. It must be called before Start.
func (m *Manager) Add(name string, fn DaemonFunc) {
	m.daemons[name] = fn
}

func (m *Manager) Start(ctx context.Context) {
	for name, fn := range m.daemons {
		m.wg.Add(1)
		go m.run(ctx, name, fn)
	}
}

// Wait blocks until every daemon has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context, name string, fn DaemonFunc) {
	defer m.wg.Done()

	for {
		err := fn(ctx, name)
		if err == nil || ctx.Err() != nil {
			m.logger.Debug("Daemon stopped", "daemon", name)
			return
		}

		m.logger.Error("Daemon crashed, restarting", "daemon", name, "error", err, "delay", m.restartDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.restartDelay):
		}
	}
}

// Purger drops expired state and reports how much it removed.
type Purger interface {
	PurgeExpired() int
}

// CleanupTask calls p.PurgeExpired every interval.
func CleanupTask(p Purger, interval time.Duration, logger *slog.Logger) DaemonFunc {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := p.PurgeExpired(); n > 0 {
					logger.Debug("Purged expired entries", "daemon", name, "count", n)
				}
			}
		}
	}
}
