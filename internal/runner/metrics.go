package runner

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("perld.runner")
	meter  = otel.Meter("perld.runner")
)

var (
	runDuration metric.Float64Histogram
	runTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runDuration, err = meter.Float64Histogram(
			"perld_tool_duration_seconds",
			metric.WithDescription("Duration of external tool runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"perld_tool_runs_total",
			metric.WithDescription("Total number of external tool runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startRunSpan(ctx context.Context, command Command) (context.Context, trace.Span) {
	return tracer.Start(ctx, "runner.Run",
		trace.WithAttributes(
			attribute.String("tool.name", command.Tool),
			attribute.String("tool.executable", command.Executable),
			attribute.String("tool.dir", command.Dir),
		),
	)
}

func recordRun(ctx context.Context, span trace.Span, tool string, output *Output, err error) {
	span.SetAttributes(attribute.Int("tool.exit_code", output.ExitCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if initMetrics() != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("started", err == nil),
	)
	runDuration.Record(ctx, output.Duration.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)
}
