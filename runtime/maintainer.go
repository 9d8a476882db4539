// Package runtime hosts background jobs that keep long-term memory fresh.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aschepis/recalld/memory"
	"github.com/aschepis/recalld/store"
)

// Schedule computes successive run times.
type Schedule interface {
	Next(time.Time) time.Time
}

type cronSchedule struct {
	schedule cron.Schedule
}

func (cs *cronSchedule) Next(t time.Time) time.Time {
	return cs.schedule.Next(t)
}

// ParseSchedule parses a schedule string.
// Supports:
//   - Cron expressions: "0 */15 * * * *" (6-field) or "*/15 * * * *" (5-field)
//   - Go duration strings: "15m", "2h", "1h30m"
func ParseSchedule(schedule string) (Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("schedule string is empty")
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronSched, err := parser.Parse(schedule)
	if err == nil {
		return &cronSchedule{schedule: cronSched}, nil
	}

	duration, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule as cron expression or duration: %w", err)
	}
	return &cronSchedule{schedule: cron.ConstantDelaySchedule{Delay: duration}}, nil
}

// Maintainer periodically rebuilds lifetime summaries for every user that has
// accumulated session summaries.
type Maintainer struct {
	store     *store.Store
	summaries *memory.SummaryEngine
	schedule  Schedule
	logger    zerolog.Logger
}

// NewMaintainer parses the schedule and returns a Maintainer.
func NewMaintainer(st *store.Store, summaries *memory.SummaryEngine, schedule string, logger zerolog.Logger) (*Maintainer, error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse maintenance schedule %q: %w", schedule, err)
	}
	return &Maintainer{
		store:     st,
		summaries: summaries,
		schedule:  sched,
		logger:    logger.With().Str("component", "maintainer").Logger(),
	}, nil
}

// Start blocks, running the refresh job at each scheduled time until the
// context is cancelled. Run it in its own goroutine.
func (m *Maintainer) Start(ctx context.Context) {
	m.logger.Info().Msg("Starting maintenance loop")
	for {
		next := m.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info().Msg("Maintenance loop stopped: context cancelled")
			return
		case <-timer.C:
			m.RefreshAll(ctx)
		}
	}
}

// RefreshAll rebuilds the lifetime summary for every eligible user. Per-user
// failures are logged and do not stop the sweep.
func (m *Maintainer) RefreshAll(ctx context.Context) {
	userIDs, err := m.store.UserIDsWithSessionSummaries(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list users for refresh")
		return
	}
	if len(userIDs) == 0 {
		return
	}

	m.logger.Info().Int("users", len(userIDs)).Msg("Refreshing lifetime summaries")
	for _, userID := range userIDs {
		if _, err := m.summaries.RefreshLifetimeSummary(ctx, userID); err != nil {
			m.logger.Error().Err(err).Str("user_id", userID).Msg("Lifetime refresh failed")
		}
	}
}
