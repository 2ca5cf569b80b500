package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"google.golang.org/grpc/credentials"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// Provider exports traces, metrics and logs over OTLP and mirrors logs to the console.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	console        *zap.Logger
	tracer         *tracer
	logger         *logger
	metrics        *metrics
	shutdownFuncs  []func(context.Context) error
}

func NewProvider(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		return nil, errors.New("otel: config cannot be nil")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	console, err := newConsole(config.LogLevel, config.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to build console logger: %w", err)
	}

	p := &Provider{config: config, console: console}
	if config.Insecure {
		console.Warn("using insecure OTLP connection",
			zap.String("endpoint", config.OTLPEndpoint),
			zap.String("environment", config.Environment))
	}

	res, err := p.resource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := p.initTraces(ctx, res); err != nil {
		return nil, p.abort(ctx, fmt.Errorf("failed to initialize tracer provider: %w", err))
	}
	if err := p.initMetrics(ctx, res); err != nil {
		return nil, p.abort(ctx, fmt.Errorf("failed to initialize meter provider: %w", err))
	}
	if err := p.initLogs(ctx, res); err != nil {
		return nil, p.abort(ctx, fmt.Errorf("failed to initialize logger provider: %w", err))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.tracer = newTracer(p.tracerProvider.Tracer(config.ServiceName))
	p.logger = newLogger(console, p.loggerProvider.Logger(config.ServiceName), config.ServiceName)
	p.metrics = newMetrics(p.meterProvider.Meter(config.ServiceName))

	return p, nil
}

// abort releases whatever was initialised before a failure.
func (p *Provider) abort(ctx context.Context, cause error) error {
	if err := p.Shutdown(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Provider) resource(ctx context.Context) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(p.config.ServiceName),
		semconv.ServiceVersion(p.config.ServiceVersion),
		semconv.DeploymentEnvironment(p.config.Environment),
	}
	for k, v := range p.config.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

func (p *Provider) sampler() sdktrace.Sampler {
	switch rate := p.config.TraceSampleRate; {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// endpoint splits a configured endpoint into host:port and an optional full URL.
// A value with a scheme (https://app.tracekit.dev/v1/traces) is used as-is for traces.
func (p *Provider) endpoint() (host string, full string) {
	raw := strings.TrimSpace(p.config.OTLPEndpoint)
	if !strings.Contains(raw, "://") {
		return raw, ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}
	return u.Host, raw
}

func (p *Provider) initTraces(ctx context.Context, res *resource.Resource) error {
	exporter, err := p.traceExporter(ctx)
	if err != nil {
		return err
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(p.sampler()),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(p.tracerProvider)
	p.shutdownFuncs = append(p.shutdownFuncs, p.tracerProvider.Shutdown)
	return nil
}

func (p *Provider) traceExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	host, full := p.endpoint()

	if p.config.OTLPProtocol == ProtocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithHeaders(p.config.Headers)}
		if full != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(full))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(host))
		}
		if p.config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else if p.config.TLSConfig != nil {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(p.config.TLSConfig))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(host),
		otlptracegrpc.WithHeaders(p.config.Headers),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else if p.config.TLSConfig != nil {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(p.config.TLSConfig)))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics(ctx context.Context, res *resource.Resource) error {
	exporter, err := p.metricExporter(ctx)
	if err != nil {
		return err
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(p.meterProvider)
	p.shutdownFuncs = append(p.shutdownFuncs, p.meterProvider.Shutdown)
	return nil
}

func (p *Provider) metricExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	host, _ := p.endpoint()

	if p.config.OTLPProtocol == ProtocolHTTP {
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(host),
			otlpmetrichttp.WithHeaders(p.config.Headers),
		}
		if p.config.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		} else if p.config.TLSConfig != nil {
			opts = append(opts, otlpmetrichttp.WithTLSClientConfig(p.config.TLSConfig))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(host),
		otlpmetricgrpc.WithHeaders(p.config.Headers),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else if p.config.TLSConfig != nil {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(p.config.TLSConfig)))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initLogs(ctx context.Context, res *resource.Resource) error {
	exporter, err := p.logExporter(ctx)
	if err != nil {
		return err
	}

	p.loggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	p.shutdownFuncs = append(p.shutdownFuncs, p.loggerProvider.Shutdown)
	return nil
}

func (p *Provider) logExporter(ctx context.Context) (sdklog.Exporter, error) {
	host, _ := p.endpoint()

	if p.config.OTLPProtocol == ProtocolHTTP {
		opts := []otlploghttp.Option{
			otlploghttp.WithEndpoint(host),
			otlploghttp.WithHeaders(p.config.Headers),
		}
		if p.config.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		} else if p.config.TLSConfig != nil {
			opts = append(opts, otlploghttp.WithTLSClientConfig(p.config.TLSConfig))
		}
		return otlploghttp.New(ctx, opts...)
	}

	opts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(host),
		otlploggrpc.WithHeaders(p.config.Headers),
	}
	if p.config.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	} else if p.config.TLSConfig != nil {
		opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(p.config.TLSConfig)))
	}
	return otlploggrpc.New(ctx, opts...)
}

func (p *Provider) Tracer() observability.Tracer { return p.tracer }
func (p *Provider) Logger() observability.Logger { return p.logger }
func (p *Provider) Metrics() observability.Metrics { return p.metrics }

// Shutdown flushes pending telemetry. Safe to call on a partially built provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdownFuncs) - 1; i >= 0; i-- {
		if err := p.shutdownFuncs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdownFuncs = nil

	if p.console != nil {
		// stdout sync returns EINVAL on some platforms; nothing to act on.
		_ = p.console.Sync()
	}
	return errors.Join(errs...)
}
