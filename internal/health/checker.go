// Package health runs the service's self checks. The scheduler calls
// RunOnce periodically; the API serves the latest results on /health.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/infra/metrics"
	"github.com/stagelight/fanquest/internal/infra/sqlite"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker holds the checks and their latest results.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	log      *logrus.Entry
}

// NewChecker creates a checker for the store, the data directory and the
// loaded catalog.
func NewChecker(db *sqlite.DB, dataDir string, catalog domain.Catalog, logger *logrus.Logger) *Checker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Checker{
		log: logger.WithField("component", "health"),
		checks: []Check{
			{
				Name:    "sqlite",
				CheckFn: db.PingContext,
			},
			{
				Name: "data_dir",
				CheckFn: func(ctx context.Context) error {
					return checkWritable(dataDir)
				},
				RecoverFn: func(ctx context.Context) error {
					return os.MkdirAll(dataDir, 0700)
				},
			},
			{
				Name: "catalog",
				CheckFn: func(ctx context.Context) error {
					return checkCatalog(catalog)
				},
			},
		},
	}
}

// Add registers an extra check.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	c.checks = append(c.checks, check)
	c.mu.Unlock()
}

// RunOnce runs every check, attempting recovery on failures.
func (c *Checker) RunOnce(ctx context.Context) {
	c.mu.RLock()
	checks := append([]Check(nil), c.checks...)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			c.log.WithField("check", check.Name).WithError(err).Warn("health check failed")
			if check.RecoverFn != nil {
				c.recover(ctx, check)
			}
		} else {
			s.Healthy = true
		}
		gauge := 0.0
		if s.Healthy {
			gauge = 1
		}
		metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(gauge)
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

func (c *Checker) recover(ctx context.Context, check Check) {
	if err := check.RecoverFn(ctx); err != nil {
		metrics.HealthRecoveries.WithLabelValues(check.Name, "failed").Inc()
		c.log.WithField("check", check.Name).WithError(err).Error("recovery failed")
		return
	}
	metrics.HealthRecoveries.WithLabelValues(check.Name, "ok").Inc()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass. Before the first run it
// reports false.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.statuses) == 0 {
		return false
	}
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	probe := filepath.Join(dir, ".health")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	return os.Remove(probe)
}

func checkCatalog(catalog domain.Catalog) error {
	if catalog == nil {
		return errors.New("no catalog loaded")
	}
	n := len(catalog.QuestsForPeriod(domain.PeriodDaily)) + len(catalog.QuestsForPeriod(domain.PeriodWeekly))
	if n == 0 {
		return errors.New("catalog has no quests")
	}
	if len(catalog.ItemsByRarity(domain.RarityCommon, domain.ItemConstraint{})) == 0 {
		return errors.New("catalog has no common items")
	}
	return nil
}
