// Package saga runs multi-step workflows that span the ledger and external services,
// undoing completed steps when a later one fails.
package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "service-learning/saga"

// Step is one unit of a saga. Compensate may be nil for steps with nothing to undo.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga executes steps in order and compensates the executed ones in reverse on failure.
type Saga struct {
	name   string
	steps  []Step
	logger *zap.Logger
}

// New creates an empty saga. Steps run in the order they are added.
func New(name string, logger *zap.Logger) *Saga {
	return &Saga{name: name, logger: logger}
}

func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs the saga. The returned error wraps the failing step's error, so errors.Is
// still sees domain errors. Compensation runs on a context that ignores the caller's cancellation.
func (s *Saga) Execute(ctx context.Context) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "saga."+s.name, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	executed := make([]Step, 0, len(s.steps))
	for _, step := range s.steps {
		stepCtx, stepSpan := tracer.Start(ctx, "saga."+s.name+"."+step.Name)
		err := step.Execute(stepCtx)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, "step failed")
		}
		stepSpan.End()

		if err == nil {
			executed = append(executed, step)
			continue
		}

		s.logger.Warn("saga step failed, compensating",
			zap.String("saga", s.name),
			zap.String("step", step.Name),
			zap.Error(err),
		)
		span.SetAttributes(attribute.String("saga.failed_step", step.Name))
		span.SetStatus(codes.Error, "saga failed")
		s.compensate(context.WithoutCancel(ctx), executed)
		return fmt.Errorf("saga %s failed at %s: %w", s.name, step.Name, err)
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, executed []Step) {
	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]
		if step.Compensate == nil {
			continue
		}
		trace.SpanFromContext(ctx).AddEvent("compensate", trace.WithAttributes(attribute.String("saga.step", step.Name)))
		if err := step.Compensate(ctx); err != nil {
			s.logger.Error("compensation failed",
				zap.String("saga", s.name),
				zap.String("step", step.Name),
				zap.Error(err),
			)
		}
	}
}
