// Package monitoring reports feed health: when the catalog last synced
// successfully and whether recent imports are failing.
package monitoring

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mobilifiver/feedwise/internal/model"
	"github.com/mobilifiver/feedwise/internal/store"
)

// Thresholds control when the checker reports degraded health.
type Thresholds struct {
	// MaxSyncAge is how stale the last successful import may be before the
	// feed is considered degraded. The daily schedule makes 26h a sensible
	// default: one missed run plus slack.
	MaxSyncAge time.Duration

	// MaxConsecutiveFailures is how many trailing failed runs are tolerated.
	MaxConsecutiveFailures int
}

// DefaultThresholds matches a once-a-day import schedule.
var DefaultThresholds = Thresholds{
	MaxSyncAge:             26 * time.Hour,
	MaxConsecutiveFailures: 2,
}

// Status is the health report served by GET /health.
type Status struct {
	Healthy             bool       `json:"healthy"`
	DatabaseOK          bool       `json:"database_ok"`
	TotalProducts       int        `json:"total_products"`
	LastSuccessfulSync  *time.Time `json:"last_successful_sync,omitempty"`
	SyncAge             string     `json:"sync_age,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Problems            []string   `json:"problems,omitempty"`
}

// Checker evaluates catalog feed health against thresholds.
type Checker struct {
	store      store.Store
	thresholds Thresholds
	log        *zap.Logger
}

// NewChecker creates a Checker. Zero threshold fields fall back to
// DefaultThresholds.
func NewChecker(st store.Store, th Thresholds) *Checker {
	if th.MaxSyncAge <= 0 {
		th.MaxSyncAge = DefaultThresholds.MaxSyncAge
	}
	if th.MaxConsecutiveFailures <= 0 {
		th.MaxConsecutiveFailures = DefaultThresholds.MaxConsecutiveFailures
	}
	return &Checker{
		store:      st,
		thresholds: th,
		log:        zap.L().With(zap.String("component", "monitoring")),
	}
}

// Check builds the current health status. A database error is itself an
// unhealthy condition, not a Check failure.
func (c *Checker) Check(ctx context.Context) *Status {
	status := &Status{Healthy: true, DatabaseOK: true}

	if err := c.store.Ping(ctx); err != nil {
		c.log.Error("database unreachable", zap.Error(err))
		status.Healthy = false
		status.DatabaseOK = false
		status.Problems = append(status.Problems, "database unreachable: "+err.Error())
		return status
	}

	stats, err := c.store.Stats(ctx)
	if err != nil {
		c.log.Error("stats query failed", zap.Error(err))
		status.Healthy = false
		status.Problems = append(status.Problems, eris.ToString(err, false))
		return status
	}
	status.TotalProducts = stats.TotalProducts
	if stats.TotalProducts == 0 {
		status.Healthy = false
		status.Problems = append(status.Problems, "catalog is empty")
	}

	runs, err := c.store.ListImportRuns(ctx, 10)
	if err != nil {
		c.log.Error("import run query failed", zap.Error(err))
		status.Healthy = false
		status.Problems = append(status.Problems, eris.ToString(err, false))
		return status
	}
	c.evaluateRuns(status, runs, time.Now().UTC())
	return status
}

// evaluateRuns inspects the most recent runs, newest first.
func (c *Checker) evaluateRuns(status *Status, runs []model.ImportRun, now time.Time) {
	failures := 0
	for _, run := range runs {
		if run.CompletedAt == nil {
			// still in flight, neither success nor failure
			continue
		}
		if run.Success {
			break
		}
		failures++
	}
	status.ConsecutiveFailures = failures
	if failures >= c.thresholds.MaxConsecutiveFailures {
		status.Healthy = false
		status.Problems = append(status.Problems,
			"last "+strconv.Itoa(failures)+" import runs failed")
	}

	for _, run := range runs {
		if run.Success && run.CompletedAt != nil {
			t := *run.CompletedAt
			status.LastSuccessfulSync = &t
			age := now.Sub(t)
			status.SyncAge = age.Round(time.Minute).String()
			if age > c.thresholds.MaxSyncAge {
				status.Healthy = false
				status.Problems = append(status.Problems,
					"last successful sync is "+status.SyncAge+" old")
			}
			return
		}
	}
	status.Healthy = false
	status.Problems = append(status.Problems, "no successful import recorded")
}
