// Package runstats accumulates per-step timings for a single run. The
// accumulator is created by the caller and threaded through explicitly;
// nothing here is process-global.
package runstats

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.airbusds-geo.com/log"
)

// Step names used by the pipeline.
const (
	StepConvert = "convert"
	StepCatalog = "catalog"
	StepPublish = "publish"
)

// Stats accumulates named step durations and unit counters for one run.
// Not safe for concurrent use; the pipeline is strictly sequential.
type Stats struct {
	RunID   string
	start   time.Time
	elapsed map[string]time.Duration
	counts  map[string]int
}

func New() *Stats {
	return &Stats{
		RunID:   uuid.New().String(),
		start:   time.Now(),
		elapsed: map[string]time.Duration{},
		counts:  map[string]int{},
	}
}

// Time runs fn and accounts its duration against step. The error is
// passed through untouched.
func (s *Stats) Time(step string, fn func() error) error {
	t0 := time.Now()
	err := fn()
	s.elapsed[step] += time.Since(t0)
	return err
}

// Count bumps a unit counter (sources converted, items written, ...).
func (s *Stats) Count(unit string, n int) {
	s.counts[unit] += n
}

// Elapsed returns the accumulated duration for step.
func (s *Stats) Elapsed(step string) time.Duration {
	return s.elapsed[step]
}

// Counter returns the accumulated count for unit.
func (s *Stats) Counter(unit string) int {
	return s.counts[unit]
}

// Log emits one summary line for the run.
func (s *Stats) Log(ctx context.Context) {
	sugar := log.Logger(ctx).Sugar()
	steps := make([]string, 0, len(s.elapsed))
	for step := range s.elapsed {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		sugar.Infof("run %s: %s took %.1fs", s.RunID, step, s.elapsed[step].Seconds())
	}
	units := make([]string, 0, len(s.counts))
	for unit := range s.counts {
		units = append(units, unit)
	}
	sort.Strings(units)
	for _, unit := range units {
		sugar.Infof("run %s: %s=%d", s.RunID, unit, s.counts[unit])
	}
	sugar.Infof("run %s: total %.1fs", s.RunID, time.Since(s.start).Seconds())
}
