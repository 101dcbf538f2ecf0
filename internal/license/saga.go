package license

import (
	"context"
	"log/slog"
)

// sagaStep is one forward action in a multi-step provider mutation, with an
// optional compensating action run when a later step fails.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSaga executes the steps in order. When a step fails, the compensations
// of every completed step run in reverse order, best effort: a compensation
// failure is logged and counted but never masks the original error, since
// the caller needs the real cause and the leftover provider resource is
// inert (expired or unindexed).
func runSaga(ctx context.Context, logger *slog.Logger, onCompensation func(), steps []sagaStep) error {
	completed := make([]sagaStep, 0, len(steps))

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			logger.WarnContext(ctx, "saga step failed, compensating",
				slog.String("step", step.name),
				slog.Int("completed_steps", len(completed)),
				slog.String("error", err.Error()))

			for i := len(completed) - 1; i >= 0; i-- {
				comp := completed[i]
				if comp.compensate == nil {
					continue
				}
				if onCompensation != nil {
					onCompensation()
				}
				if cerr := comp.compensate(ctx); cerr != nil {
					logger.ErrorContext(ctx, "saga compensation failed",
						slog.String("step", comp.name),
						slog.String("error", cerr.Error()))
				} else {
					logger.InfoContext(ctx, "saga step compensated",
						slog.String("step", comp.name))
				}
			}

			return err
		}
		completed = append(completed, step)
	}

	return nil
}
