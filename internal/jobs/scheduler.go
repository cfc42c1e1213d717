package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"nandu/api/internal/repository"
)

// Scheduler runs periodic maintenance. Its only job today is dropping reset
// tokens that sat unused past their TTL, so the stored value cannot linger
// after the signed expiry.
type Scheduler struct {
	cron     *cron.Cron
	users    *repository.UserRepository
	resetTTL time.Duration
	log      zerolog.Logger
}

func NewScheduler(users *repository.UserRepository, resetTTL time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		users:    users,
		resetTTL: resetTTL,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 * * * *", s.purgeResetTokens); err != nil { // hourly
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) purgeResetTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cleared, err := s.users.ClearExpiredResetTokens(ctx, s.resetTTL)
	if err != nil {
		s.log.Error().Err(err).Msg("reset token purge failed")
		return
	}
	if cleared > 0 {
		s.log.Info().Int64("cleared", cleared).Msg("expired reset tokens purged")
	}
}
