package navigation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// OverdueSweeper periodically persists OVERDUE on steps whose due date has
// passed. Read paths derive the same status on the fly, so the sweep is an
// optional reconciliation for consumers querying the store directly; losing
// a race with a manual completion is harmless because the repository's
// optimistic guard applies.
type OverdueSweeper struct {
	steps    StepRepository
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	// scope prepares the context each tick runs under. The server loop runs
	// outside any request, so without a scope the repository would hit the
	// bare pool instead of a tenant schema.
	scope func(context.Context) (context.Context, func(), error)
}

func NewOverdueSweeper(steps StepRepository, interval time.Duration, log zerolog.Logger) *OverdueSweeper {
	return &OverdueSweeper{
		steps:    steps,
		interval: interval,
		log:      log,
		now:      time.Now,
		scope: func(ctx context.Context) (context.Context, func(), error) {
			return ctx, func() {}, nil
		},
	}
}

// WithScope sets the per-tick context preparation, typically pinning a
// tenant schema. The release func is called after each tick.
func (s *OverdueSweeper) WithScope(scope func(context.Context) (context.Context, func(), error)) {
	s.scope = scope
}

// Start runs the sweep loop until the context is cancelled. Call in a
// goroutine.
func (s *OverdueSweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("overdue sweep started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("overdue sweep stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *OverdueSweeper) runOnce(ctx context.Context) {
	scoped, release, err := s.scope(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("overdue sweep could not scope context")
		return
	}
	defer release()

	n, err := s.steps.MarkOverdue(scoped, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("overdue sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("steps", n).Msg("steps marked overdue")
	}
}
