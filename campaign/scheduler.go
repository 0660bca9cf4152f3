package campaign

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/athomewithrose/homeletter"
)

// Scheduler periodically sends the scheduled newsletters that are due.
type Scheduler struct {
	cron        *cron.Cron
	sender      *Sender
	newsletters homeletter.NewsletterService
	logger      zerolog.Logger
	now         func() time.Time

	mu sync.Mutex
}

// NewScheduler returns a scheduler checking for due newsletters on the cron spec.
func NewScheduler(spec string, sender *Sender, newsletters homeletter.NewsletterService, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		sender:      sender,
		newsletters: newsletters,
		logger:      logger.With().Str("component", "scheduler").Logger(),
		now:         time.Now,
	}

	cronLogger := cron.PrintfLogger(&s.logger)
	s.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunDue(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("scheduled send failed")
		}
	}); err != nil {
		return nil, errors.Wrapf(err, "invalid cron spec %q", spec)
	}

	return s, nil
}

// Start starts the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running send to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunDue sends every scheduled newsletter whose scheduledAt has passed, oldest schedule
// first. A failing newsletter does not stop the others; the first error is returned.
func (s *Scheduler) RunDue(ctx context.Context) ([]*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheduled, err := s.newsletters.FindAll(homeletter.StatusScheduled)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list scheduled newsletters")
	}

	now := s.now()
	var due []homeletter.Newsletter
	for _, n := range scheduled {
		if n.ScheduledAt != nil && !n.ScheduledAt.After(now) {
			due = append(due, n)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(*due[j].ScheduledAt)
	})

	var (
		results  []*Result
		firstErr error
	)
	for i := range due {
		doc := &due[i]
		s.logger.Info().Str("newsletter", doc.ID).Time("scheduledAt", *doc.ScheduledAt).Msg("sending scheduled newsletter")

		result, err := s.sender.Send(ctx, doc, ModeSend)
		if err != nil {
			s.logger.Error().Err(err).Str("newsletter", doc.ID).Msg("failed to send scheduled newsletter")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, result)
	}

	return results, firstErr
}
