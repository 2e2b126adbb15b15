// Package telemetry implements component H: the control loop's (F) iteration
// transitions are reported here, fanned out to structured logs, OTel
// counters/histograms, and an optional ClickHouse sink for longer-term
// analysis, mirroring how the teacher's observability stack layers
// zerolog, OTel, and ClickHouse rather than picking just one.
package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"codeact/internal/config"
)

// IterationEvent describes one control-loop iteration's outcome, enough to
// reconstruct the retry/mode timeline of a task after the fact.
type IterationEvent struct {
	ConversationID string
	TaskKey        string
	Iteration      int
	PromptMode     string
	ActionType     string
	Status         string // "ok" | "error" | "empty_output" | "parse_error" | "hard_failed" | "finished" | "paused"
	RetryCount     int
	TotalRetries   int
	Duration       time.Duration
}

// Sink is the narrow contract the control loop depends on. Implementations
// must not block the loop on a slow backend; RecordIteration should return
// quickly and log/drop on failure rather than propagate an error.
type Sink interface {
	RecordIteration(ctx context.Context, event IterationEvent)
	Close(ctx context.Context) error
}

// noopSink satisfies Sink without recording anything, for callers that
// configure no observability backend at all.
type noopSink struct{}

func (noopSink) RecordIteration(context.Context, IterationEvent) {}
func (noopSink) Close(context.Context) error                     { return nil }

// Noop returns a Sink that discards every event.
func Noop() Sink { return noopSink{} }

type instruments struct {
	iterations metric.Int64Counter
	retries    metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter("codeact/telemetry")
	iterations, err := meter.Int64Counter("codeact.loop.iterations",
		metric.WithDescription("control loop iterations, tagged by prompt_mode and status"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("codeact.loop.retries",
		metric.WithDescription("retry-counter increments charged against MaxRetryTimes"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("codeact.loop.iteration_duration_ms",
		metric.WithDescription("wall-clock duration of one control loop iteration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &instruments{iterations: iterations, retries: retries, duration: duration}, nil
}

// sink is the default Sink: always logs + emits OTel metrics, and writes to
// ClickHouse too when a writer is configured.
type sink struct {
	inst *instruments
	ch   *clickhouseWriter
}

// Build assembles the configured Sink. A ClickHouse DSN is optional; when
// absent, events are still logged and recorded as OTel metrics.
func Build(ctx context.Context, cfg config.ObsConfig) (Sink, error) {
	inst, err := newInstruments()
	if err != nil {
		return nil, err
	}
	ch, err := newClickhouseWriter(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry: clickhouse sink disabled")
		ch = nil
	}
	return &sink{inst: inst, ch: ch}, nil
}

func (s *sink) RecordIteration(ctx context.Context, event IterationEvent) {
	attrs := attribute.NewSet(
		attribute.String("prompt_mode", event.PromptMode),
		attribute.String("status", event.Status),
		attribute.String("action_type", event.ActionType),
	)
	s.inst.iterations.Add(ctx, 1, metric.WithAttributeSet(attrs))
	s.inst.duration.Record(ctx, float64(event.Duration.Microseconds())/1000.0, metric.WithAttributeSet(attrs))
	if event.RetryCount > 0 {
		s.inst.retries.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}

	logEvt := log.Info()
	if event.Status == "failed" || event.Status == "hard_failed" || event.Status == "parse_error" {
		logEvt = log.Warn()
	}
	logEvt.
		Str("conversation_id", event.ConversationID).
		Str("task_key", event.TaskKey).
		Int("iteration", event.Iteration).
		Str("prompt_mode", event.PromptMode).
		Str("action_type", event.ActionType).
		Str("status", event.Status).
		Int("retry_count", event.RetryCount).
		Dur("duration", event.Duration).
		Msg("loop iteration")

	if s.ch != nil {
		s.ch.write(ctx, event)
	}
}

func (s *sink) Close(ctx context.Context) error {
	if s.ch == nil {
		return nil
	}
	return s.ch.close()
}
