package core

import (
	"context"
	"sync"
	"time"

	"github.com/babblebot-server/server-sub000/internal/logger"
)

// maxPingTimeout bounds a single health ping.
const maxPingTimeout = 5 * time.Second

// pinger is the part of a Connection the health checker needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthChecker pings the backend every interval so a dropped database is
// noticed while the bot is idle rather than on the next guild command.
type healthChecker struct {
	conn     pinger
	logger   logger.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.RWMutex
	lastErr  error
	lastPing time.Time
	failures int
}

func newHealthChecker(conn pinger, log logger.Logger, interval time.Duration) *healthChecker {
	return &healthChecker{
		conn:     conn,
		logger:   log,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (h *healthChecker) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.run(ctx)
}

func (h *healthChecker) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pingContext(ctx)
		}
	}
}

func (h *healthChecker) ping() { h.pingContext(context.Background()) }

func (h *healthChecker) pingContext(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, min(h.interval, maxPingTimeout))
	defer cancel()
	err := h.conn.Ping(ctx)

	h.mu.Lock()
	recovered := err == nil && h.failures > 0
	down := h.failures
	if err != nil {
		h.failures++
	} else {
		h.failures = 0
	}
	h.lastErr = err
	h.lastPing = time.Now()
	failures := h.failures
	h.mu.Unlock()

	switch {
	case err != nil:
		h.logger.Warn("database health check failed", "error", err, "consecutive_failures", failures)
	case recovered:
		h.logger.Info("database connection recovered", "failed_checks", down)
	default:
		h.logger.Debug("database health check passed", "interval", h.interval)
	}
}

// shutdown stops the loop and waits for an in-flight ping.
func (h *healthChecker) shutdown() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (h *healthChecker) isHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr == nil
}

func (h *healthChecker) lastCheck() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastPing
}
