package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/theblitlabs/parity-provision/internal/core/config"
	"github.com/theblitlabs/parity-provision/pkg/logger"
)

const instrumentationName = "github.com/theblitlabs/parity-provision/pipeline"

// InitTelemetry sets up OTLP trace and metric export. When telemetry is disabled or the
// collector is unreachable it returns a no-op shutdown.
func InitTelemetry(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	log := logger.WithComponent("telemetry")

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collectorAddr := fmt.Sprintf("%s:%d", cfg.CollectorHost, cfg.CollectorPort)
	conn, err := grpc.DialContext(dialCtx, collectorAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		log.Warn().Err(err).Str("collector", collectorAddr).Msg("Failed to connect to OpenTelemetry collector, continuing without telemetry")
		return noop, nil
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create trace exporter, continuing without telemetry")
		conn.Close()
		return noop, nil
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create metric exporter, continuing without telemetry")
		_ = tracerProvider.Shutdown(ctx)
		conn.Close()
		return noop, nil
	}

	interval := cfg.MetricsInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(meterProvider)

	return func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var errs []error
		if err := tracerProvider.Shutdown(cctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
		if err := meterProvider.Shutdown(cctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close gRPC connection: %w", err))
		}

		if len(errs) > 0 {
			return fmt.Errorf("shutdown errors: %v", errs)
		}
		return nil
	}, nil
}

// Tracer opens one span per pipeline step on the global tracer provider and
// records the step duration on the global meter provider.
type Tracer struct {
	tracer      trace.Tracer
	duration    metric.Float64Histogram
	environment string
}

func NewTracer(environment string) *Tracer {
	duration, err := otel.Meter(instrumentationName).Float64Histogram("provision.step.duration",
		metric.WithDescription("Duration of provisioning steps"),
		metric.WithUnit("s"),
	)
	if err != nil {
		log := logger.WithComponent("telemetry")
		log.Warn().Err(err).Msg("Failed to create step duration instrument")
	}
	return &Tracer{
		tracer:      otel.Tracer(instrumentationName),
		duration:    duration,
		environment: environment,
	}
}

// StepStarted implements pipeline.Observer.
func (t *Tracer) StepStarted(ctx context.Context, pipeline, step string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{
		attribute.String("provision.pipeline", pipeline),
		attribute.String("provision.step", step),
		attribute.String("provision.environment", t.environment),
	}
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, pipeline+"/"+step, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if t.duration != nil {
			t.duration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(append(attrs, attribute.String("provision.status", status))...))
		}
	}
}
