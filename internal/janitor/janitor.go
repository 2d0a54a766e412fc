// Package janitor runs periodic housekeeping on a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Sweeper drops finished entries older than cutoff and reports how many went.
type Sweeper interface {
	Sweep(cutoff time.Time) int
}

// Janitor sweeps finished tournaments once they pass the retention window.
type Janitor struct {
	cron      *cron.Cron
	retention time.Duration
	target    Sweeper
	now       func() time.Time
	// Stats, when set, is logged after each sweep.
	Stats func() log.Fields
}

// New validates the schedule (standard cron or "@every 5m" style).
func New(schedule string, retention time.Duration, target Sweeper) (*Janitor, error) {
	j := &Janitor{
		cron:      cron.New(),
		retention: retention,
		target:    target,
		now:       time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce() }); err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce() int {
	n := j.target.Sweep(j.now().Add(-j.retention))
	entry := log.WithField("swept", n)
	if j.Stats != nil {
		entry = entry.WithFields(j.Stats())
	}
	if n > 0 {
		entry.Info("janitor sweep")
	} else {
		entry.Debug("janitor sweep")
	}
	return n
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and returns a context done once a running sweep finishes.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}
