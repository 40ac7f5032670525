// Package tracing owns the process tracer provider.
package tracing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hadlocna/PaperDrop/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
)

const InstrumentationName = "github.com/hadlocna/PaperDrop"

// NewProvider builds an SDK provider that exports spans as JSON lines to w.
func NewProvider(cfg config.TracingConfig, serviceName string, w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("tracing: exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	), nil
}

type errorHandler struct {
	logger *slog.Logger
}

func (h errorHandler) Handle(err error) {
	h.logger.Warn("trace error occurred", "err", err)
}

// ServiceName is stamped on every exported span.
type ServiceName string

var Module = fx.Module("tracing",
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config, name ServiceName, logger *slog.Logger) (trace.Tracer, error) {
		if !cfg.Tracing.Enabled {
			return noop.NewTracerProvider().Tracer(InstrumentationName), nil
		}

		tp, err := NewProvider(cfg.Tracing, string(name), os.Stderr)
		if err != nil {
			return nil, err
		}

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
		otel.SetErrorHandler(errorHandler{logger: logger.With("component", "tracing")})

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return tp.Shutdown(ctx) },
		})
		return tp.Tracer(InstrumentationName), nil
	}),
)
