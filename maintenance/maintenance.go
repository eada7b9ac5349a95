// Package maintenance runs the nightly housekeeping job: fingerprint
// compaction, join history trimming, and presence counter persistence.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/fingerprint"
	"github.com/groupline/feedsim/backend/joiner"
	"github.com/groupline/feedsim/backend/store"
)

// Job owns the cron schedule.
type Job struct {
	schedule string
	joinKeep int

	fp       *fingerprint.Store
	st       store.Store
	presence *joiner.Presence

	cron *cron.Cron
}

// New builds the nightly job. Schedule comes from MAINTENANCE_SCHEDULE,
// default 03:30 local time daily.
func New(fp *fingerprint.Store, st store.Store, presence *joiner.Presence) *Job {
	return &Job{
		schedule: config.EnvString("MAINTENANCE_SCHEDULE", "30 3 * * *"),
		joinKeep: config.EnvInt("JOIN_HISTORY_KEEP", 2000),
		fp:       fp,
		st:       st,
		presence: presence,
	}
}

// Start registers and launches the cron schedule.
func (j *Job) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		j.Run(ctx)
	}); err != nil {
		return fmt.Errorf("registering maintenance schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	slog.Info("maintenance scheduled", slog.String("schedule", j.schedule))
	return nil
}

// Stop halts the schedule, waiting for a running job to finish.
func (j *Job) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Run executes one housekeeping pass. Errors are logged, not returned;
// housekeeping failures never take the service down.
func (j *Job) Run(ctx context.Context) {
	start := time.Now()
	if j.fp != nil {
		if err := j.fp.Compact(ctx); err != nil {
			slog.Warn("fingerprint compaction failed", slog.Any("err", err))
		}
	}
	if j.st != nil {
		if err := j.st.TrimJoins(ctx, j.joinKeep); err != nil {
			slog.Warn("join history trim failed", slog.Any("err", err))
		}
		if j.presence != nil {
			members, online := j.presence.Counts()
			if err := j.st.SetKV(ctx, "presence:members", fmt.Sprintf("%d", members)); err != nil {
				slog.Warn("persisting member count failed", slog.Any("err", err))
			}
			if err := j.st.SetKV(ctx, "presence:online", fmt.Sprintf("%d", online)); err != nil {
				slog.Warn("persisting online count failed", slog.Any("err", err))
			}
		}
	}
	slog.Info("maintenance pass done", slog.Duration("took", time.Since(start)))
}
