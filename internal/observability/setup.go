package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	promreg "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ncecere/kereru_gateway/internal/config"
	"github.com/ncecere/kereru_gateway/internal/guardrails"
)

const namespace = "kereru_gateway"

type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *metric.MeterProvider
	promExporter   *prometheus.Exporter
	promHandler    http.Handler
	shutdownFuncs  []func(context.Context) error

	httpRequestCounter *promreg.CounterVec
	httpRequestLatency *promreg.HistogramVec
	upstreamLatency    *promreg.HistogramVec
	verdictCounter     *promreg.CounterVec
	toxicityHist       *promreg.HistogramVec
	rateLimitDenials   *promreg.CounterVec
}

func Setup(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if !cfg.EnableOTLP && !cfg.EnableMetrics {
		return nil, nil
	}

	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("kereru-gateway"),
		),
	)
	if err != nil {
		return nil, err
	}

	if cfg.EnableOTLP {
		rawEndpoint := strings.TrimSpace(cfg.OTLPEndpoint)
		endpoint := rawEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		opts := []otlptracegrpc.Option{}
		switch {
		case strings.HasPrefix(endpoint, "http://"):
			endpoint = strings.TrimPrefix(endpoint, "http://")
			opts = append(opts, otlptracegrpc.WithInsecure())
		case strings.HasPrefix(endpoint, "https://"):
			endpoint = strings.TrimPrefix(endpoint, "https://")
		default:
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))

		client := otlptracegrpc.NewClient(opts...)
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		provider.tracerProvider = tp
		provider.shutdownFuncs = append(provider.shutdownFuncs, tp.Shutdown)
	}

	if cfg.EnableMetrics {
		registry := promreg.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, err
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(promExporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		provider.meterProvider = mp
		provider.promExporter = promExporter
		provider.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
		provider.shutdownFuncs = append(provider.shutdownFuncs, mp.Shutdown)

		latencyBuckets := []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30}
		provider.httpRequestCounter = promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		)
		provider.httpRequestLatency = promreg.NewHistogramVec(
			promreg.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   latencyBuckets,
			},
			[]string{"method", "route", "status"},
		)
		provider.upstreamLatency = promreg.NewHistogramVec(
			promreg.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Duration of model requests.",
				Buckets:   latencyBuckets,
			},
			[]string{"provider", "mode", "status"},
		)
		provider.verdictCounter = promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: namespace,
				Name:      "guardrail_verdicts_total",
				Help:      "Guardrail verdicts by channel and reason.",
			},
			[]string{"channel", "allowed", "reason"},
		)
		provider.toxicityHist = promreg.NewHistogramVec(
			promreg.HistogramOpts{
				Namespace: namespace,
				Name:      "toxicity_score",
				Help:      "Toxicity scores computed by the guardrail evaluator.",
				Buckets:   []float64{0, 0.1, 0.3, 0.5, 0.7, 0.85, 0.95, 1},
			},
			[]string{"channel"},
		)
		provider.rateLimitDenials = promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_denials_total",
				Help:      "Requests rejected by the rate limiter.",
			},
			[]string{"backend"},
		)
		for _, collector := range []promreg.Collector{
			provider.httpRequestCounter,
			provider.httpRequestLatency,
			provider.upstreamLatency,
			provider.verdictCounter,
			provider.toxicityHist,
			provider.rateLimitDenials,
		} {
			if err := registry.Register(collector); err != nil {
				return nil, err
			}
		}
	}

	return provider, nil
}

func (p *Provider) PrometheusHandler() http.Handler {
	if p == nil || p.promHandler == nil {
		return nil
	}
	return p.promHandler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tracerProvider
}

func (p *Provider) RecordHTTPRequest(_ context.Context, method, route string, status int, duration time.Duration) {
	if p == nil {
		return
	}

	statusLabel := strconv.Itoa(status)

	if p.httpRequestCounter != nil {
		p.httpRequestCounter.WithLabelValues(method, route, statusLabel).Inc()
	}

	if p.httpRequestLatency != nil {
		p.httpRequestLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
	}
}

// RecordUpstream observes one model call. mode is "chat" or "stream".
func (p *Provider) RecordUpstream(provider, mode string, err error, duration time.Duration) {
	if p == nil || p.upstreamLatency == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.upstreamLatency.WithLabelValues(provider, mode, status).Observe(duration.Seconds())
}

// ObserveVerdict implements guardrails.Observer.
func (p *Provider) ObserveVerdict(channel guardrails.Channel, v guardrails.Verdict) {
	if p == nil || p.verdictCounter == nil {
		return
	}
	reason := string(v.Reason)
	if reason == "" {
		reason = "none"
	}
	p.verdictCounter.WithLabelValues(string(channel), strconv.FormatBool(v.Allowed), reason).Inc()
	if v.ToxicityScore != nil && p.toxicityHist != nil {
		p.toxicityHist.WithLabelValues(string(channel)).Observe(*v.ToxicityScore)
	}
}

// RecordRateLimited counts one rejected request.
func (p *Provider) RecordRateLimited(backend string) {
	if p == nil || p.rateLimitDenials == nil {
		return
	}
	p.rateLimitDenials.WithLabelValues(backend).Inc()
}
