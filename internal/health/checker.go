// Package health tracks connectivity to the two collaborators (backend
// service and message broker) and derives the service's operating mode.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Operating modes derived from collaborator connectivity.
const (
	ModeIntegrated = "integrated"
	ModeQueueOnly  = "queue_only"
	ModeStandalone = "standalone"
)

// Config controls the checker.
type Config struct {
	// BackendURL is the backend service base address; empty disables the
	// backend probe.
	BackendURL string
	// HealthPath is appended to BackendURL for the probe.
	HealthPath string
	// Timeout bounds each probe request.
	Timeout time.Duration
	// Interval is the period of the background check loop.
	Interval time.Duration
}

// BrokerStatus reports broker connectivity; the queue adapter implements it.
type BrokerStatus interface {
	Connected() bool
}

// Checker probes the backend periodically and combines the result with the
// broker's connectivity flag.
type Checker struct {
	cfg    Config
	client *http.Client
	broker BrokerStatus
	logger *zap.Logger

	mu        sync.RWMutex
	backendOK bool
}

// New builds a Checker. broker may be nil when the queue adapter is
// disabled.
func New(cfg Config, broker BrokerStatus, logger *zap.Logger) *Checker {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/actuator/health"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		broker: broker,
		logger: logger,
	}
}

// Run probes the backend on the configured interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	c.CheckBackend(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckBackend(ctx)
		}
	}
}

// CheckBackend probes the backend once and updates the cached flag.
func (c *Checker) CheckBackend(ctx context.Context) bool {
	ok := c.probe(ctx)
	c.mu.Lock()
	c.backendOK = ok
	c.mu.Unlock()
	return ok
}

func (c *Checker) probe(ctx context.Context) bool {
	if c.cfg.BackendURL == "" {
		return false
	}
	url := c.cfg.BackendURL + c.cfg.HealthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("backend probe request build failed", zap.Error(err))
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("backend unreachable", zap.String("url", url), zap.Error(err))
		return false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("close probe body failed", zap.Error(err))
		}
	}()
	return resp.StatusCode == http.StatusOK
}

// Status returns the two connectivity flags.
func (c *Checker) Status() (backend, broker bool) {
	c.mu.RLock()
	backend = c.backendOK
	c.mu.RUnlock()
	if c.broker != nil {
		broker = c.broker.Connected()
	}
	return backend, broker
}

// Mode derives the operating label: integrated when both collaborators are
// reachable, queue_only with just the broker, standalone otherwise.
func (c *Checker) Mode() string {
	backend, broker := c.Status()
	switch {
	case backend && broker:
		return ModeIntegrated
	case broker:
		return ModeQueueOnly
	default:
		return ModeStandalone
	}
}

// String implements fmt.Stringer for log lines.
func (c *Checker) String() string {
	backend, broker := c.Status()
	return fmt.Sprintf("backend=%t broker=%t mode=%s", backend, broker, c.Mode())
}
