// Package bootstrap sequences the container start of the julie server:
// wait for the database, synchronize the schema, materialize static assets,
// then hand the process over to the server command.
//
// Stages run strictly in order on the caller's goroutine. Each returns a
// Result; the Driver proceeds on success, warns and proceeds on a soft
// failure, and stops with a *StageError on a hard failure.
package bootstrap

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/juliehq/julie-entrypoint/internal/logger"
	"github.com/juliehq/julie-entrypoint/internal/telemetry"
)

// Driver runs stages in a fixed total order.
type Driver struct {
	stages   []Stage
	observer Observer
	flush    func(ctx context.Context)
}

// Option configures a Driver.
type Option func(*Driver)

// WithObserver reports per-stage outcomes and durations.
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observer = o }
}

// WithFlush registers fn to run exactly once: right before the final stage
// starts (the handoff does not return), or when a stage fails hard.
func WithFlush(fn func(ctx context.Context)) Option {
	return func(d *Driver) { d.flush = fn }
}

// NewDriver returns a Driver running stages in the given order.
func NewDriver(stages []Stage, opts ...Option) *Driver {
	d := &Driver{stages: stages}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stages returns the stage names in run order.
func (d *Driver) Stages() []string {
	names := make([]string, len(d.stages))
	for i, s := range d.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes the stages. It returns nil when every stage succeeded or
// soft-failed, and a *StageError naming the first stage that failed hard.
// No stage runs after a hard failure.
func (d *Driver) Run(ctx context.Context) error {
	flushed := false
	flush := func() {
		if flushed || d.flush == nil {
			return
		}
		flushed = true
		d.flush(context.WithoutCancel(ctx))
	}
	defer flush()

	for i, stage := range d.stages {
		name := stage.Name()

		if err := ctx.Err(); err != nil {
			flush()
			return &StageError{Stage: name, Reason: "interrupted before start", Err: err}
		}
		if i == len(d.stages)-1 {
			flush()
		}

		res, elapsed := d.runStage(ctx, stage)
		if d.observer != nil {
			d.observer.StageFinished(name, res.Kind, elapsed)
		}

		if res.IsHard() {
			flush()
			return &StageError{Stage: name, Reason: res.Reason, Err: res.Err}
		}
	}
	return nil
}

func (d *Driver) runStage(ctx context.Context, stage Stage) (Result, time.Duration) {
	name := stage.Name()

	ctx, span := telemetry.StartSpan(ctx, "bootstrap."+name,
		trace.WithAttributes(attribute.String(telemetry.AttrStage, name)))
	defer span.End()

	if lc := logger.FromContext(ctx); lc != nil {
		lc = lc.WithStage(name).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
		ctx = logger.WithContext(ctx, lc)
	}

	logger.DebugCtx(ctx, "stage started")
	start := time.Now()
	res := stage.Run(ctx)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.String(telemetry.AttrResult, res.Kind.String()))

	switch res.Kind {
	case KindSuccess:
		logger.InfoCtx(ctx, "stage complete", logger.DurationMs(start))
	case KindSoftFailure:
		span.SetAttributes(attribute.String(telemetry.AttrReason, res.Message()))
		logger.WarnCtx(ctx, "stage degraded, continuing",
			logger.KeyReason, res.Message(), logger.DurationMs(start))
	case KindHardFailure:
		// Reported once by the caller; only the span records it here.
		span.SetAttributes(attribute.String(telemetry.AttrReason, res.Message()))
		if res.Err != nil {
			telemetry.RecordError(ctx, res.Err)
		}
	}
	return res, elapsed
}
