package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"memberconsole/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	instrumentationName = "memberconsole"
	metricInterval      = 10 * time.Second
)

// Telemetry records the console's session and membership metrics.
type Telemetry interface {
	RecordTokenRenewal(ctx context.Context, outcome string)
	RecordSessionTermination(ctx context.Context, reason string)
	RecordTransition(ctx context.Context, transition string, success bool)
	Tracer(name string) oteltrace.Tracer
	Shutdown(ctx context.Context) error
}

type shutdownFunc func(context.Context) error

// OpenTelemetry exports over OTLP gRPC. The zero value records nothing.
type OpenTelemetry struct {
	tracer    oteltrace.TracerProvider
	shutdowns []shutdownFunc

	renewals     metric.Int64Counter
	terminations metric.Int64Counter
	transitions  metric.Int64Counter
}

// NewOpenTelemetry wires OTLP gRPC exporters for traces, logs and metrics. A
// disabled config yields a Telemetry whose recorders do nothing.
func NewOpenTelemetry(cfg config.TelemetryConfig) (Telemetry, error) {
	if !cfg.Enabled || cfg.ExporterURL == "" {
		slog.Debug("Telemetry disabled", "exporter", cfg.ExporterURL)
		return Noop(), nil
	}

	ctx := context.Background()
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	tel := &OpenTelemetry{}
	fail := func(what string, err error) (Telemetry, error) {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return fail("trace exporter", err)
	}
	tel.tracer = tp
	tel.shutdowns = append(tel.shutdowns, tp.Shutdown)

	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		return fail("metric exporter", err)
	}
	tel.shutdowns = append(tel.shutdowns, mp.Shutdown)

	lp, err := newLoggerProvider(ctx, cfg, res)
	if err != nil {
		return fail("log exporter", err)
	}
	tel.shutdowns = append(tel.shutdowns, lp.Shutdown)

	if err := tel.counters(mp.Meter(instrumentationName)); err != nil {
		return fail("metrics", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("Telemetry initialized",
		"service", cfg.ServiceName,
		"endpoint", cfg.ExporterURL,
		"sampling_ratio", cfg.SamplingRatio,
	)
	return tel, nil
}

func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.ExporterURL),
		otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
	), nil
}

func newMeterProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.ExporterURL),
		otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricInterval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
}

func newLoggerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	exp, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(cfg.ExporterURL),
		otlploggrpc.WithTLSCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}
	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
	), nil
}

func (t *OpenTelemetry) counters(meter metric.Meter) error {
	var err error
	if t.renewals, err = meter.Int64Counter("memberconsole_token_renewals_total",
		metric.WithDescription("Access token renewals by outcome")); err != nil {
		return err
	}
	if t.terminations, err = meter.Int64Counter("memberconsole_session_terminations_total",
		metric.WithDescription("Sessions ended by logout or failed renewal")); err != nil {
		return err
	}
	t.transitions, err = meter.Int64Counter("memberconsole_membership_transitions_total",
		metric.WithDescription("Membership request transitions attempted"))
	return err
}

// Shutdown flushes every provider, newest first.
func (t *OpenTelemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, t.shutdowns[i](ctx))
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}

// Tracer falls back to the global provider when exporting is off.
func (t *OpenTelemetry) Tracer(name string) oteltrace.Tracer {
	if t.tracer != nil {
		return t.tracer.Tracer(name)
	}
	return otel.Tracer(name)
}

func (t *OpenTelemetry) RecordTokenRenewal(ctx context.Context, outcome string) {
	if t.renewals != nil {
		t.renewals.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (t *OpenTelemetry) RecordSessionTermination(ctx context.Context, reason string) {
	if t.terminations != nil {
		t.terminations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (t *OpenTelemetry) RecordTransition(ctx context.Context, transition string, success bool) {
	if t.transitions == nil {
		return
	}
	t.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transition", transition),
		attribute.Bool("success", success),
	))
}

// Noop returns a Telemetry that records nothing. Tests and short-lived CLI
// invocations use it.
func Noop() Telemetry {
	return &OpenTelemetry{}
}
