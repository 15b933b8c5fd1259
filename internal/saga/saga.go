// Package saga runs ordered steps and compensates the completed ones in
// reverse order when a later step fails.
package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

// Step is one unit of a saga. Compensate may be nil for steps with no
// external effect.
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga is an ordered list of steps.
type Saga struct {
	name                string
	steps               []Step
	compensationTimeout time.Duration
}

// Option configures a Saga.
type Option func(*Saga)

// WithCompensationTimeout bounds each compensation call.
func WithCompensationTimeout(d time.Duration) Option {
	return func(s *Saga) { s.compensationTimeout = d }
}

// New creates a saga named name.
func New(name string, opts ...Option) *Saga {
	s := &Saga{name: name, compensationTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends a step.
func (s *Saga) Add(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// CompensationError reports compensations that failed after a step error.
// The saga still returns the step error; this is attached for logging.
type CompensationError struct {
	Step  string
	Cause error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensate %s: %v", e.Step, e.Cause)
}

func (e *CompensationError) Unwrap() error { return e.Cause }

// Run executes the steps in order. When step k fails, the compensations of
// steps k-1..1 run in reverse order and Run returns step k's error.
// Compensations run on a context detached from ctx's cancellation so a
// timed out request still cleans up.
func (s *Saga) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).With(zap.String("saga", s.name))

	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			s.compensate(ctx, i, log)
			return err
		}
		if err := step.Action(ctx); err != nil {
			log.Warn("Saga step failed", zap.String("step", step.Name), zap.Error(err))
			if cerr := s.compensate(ctx, i, log); cerr != nil {
				log.Error("Saga compensation incomplete", zap.String("failed_step", step.Name), zap.Error(cerr))
			}
			return err
		}
		log.Debug("Saga step completed", zap.String("step", step.Name))
	}
	return nil
}

// compensate undoes steps [0, done) in reverse and joins failures.
func (s *Saga) compensate(ctx context.Context, done int, log *zap.Logger) error {
	var errs error
	base := context.WithoutCancel(ctx)

	for i := done - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		cctx, cancel := context.WithTimeout(base, s.compensationTimeout)
		err := step.Compensate(cctx)
		cancel()

		metrics.RecordCompensation(step.Name, err == nil)
		if err != nil {
			log.Error("Saga compensation failed", zap.String("step", step.Name), zap.Error(err))
			errs = multierr.Append(errs, &CompensationError{Step: step.Name, Cause: err})
			continue
		}
		log.Info("Saga step compensated", zap.String("step", step.Name))
	}
	return errs
}
