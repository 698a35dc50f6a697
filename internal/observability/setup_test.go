package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ncecere/kereru_gateway/internal/config"
	"github.com/ncecere/kereru_gateway/internal/guardrails"
	"github.com/ncecere/kereru_gateway/internal/limits"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestSetupDisabledReturnsNil(t *testing.T) {
	p, err := Setup(context.Background(), config.ObservabilityConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil provider when nothing is enabled")
	}
	// nil receivers are no-ops
	p.ObserveVerdict(guardrails.ChannelPrompt, guardrails.Verdict{Allowed: true})
	p.RecordRateLimited("memory")
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
}

func TestVerdictAndRateLimitMetrics(t *testing.T) {
	p, err := Setup(context.Background(), config.ObservabilityConfig{EnableMetrics: true})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer p.Shutdown(context.Background())

	score := 0.9
	p.ObserveVerdict(guardrails.ChannelOutput, guardrails.Verdict{Reason: guardrails.ReasonToxicOutput, ToxicityScore: &score})
	p.RecordHTTPRequest(context.Background(), http.MethodPost, "/api/chat", 200, 40*time.Millisecond)

	limiter := InstrumentLimiter(limits.NewSlidingWindow(limits.Config{MaxRequests: 1, Window: time.Minute}), "memory", p)
	_ = limiter.Allow(context.Background(), "ip:1.2.3.4")
	_ = limiter.Allow(context.Background(), "ip:1.2.3.4")

	body := scrape(t, p)
	for _, want := range []string{
		`kereru_gateway_guardrail_verdicts_total{allowed="false",channel="output",reason="toxic_output"} 1`,
		`kereru_gateway_rate_limit_denials_total{backend="memory"} 1`,
		`kereru_gateway_toxicity_score_count{channel="output"} 1`,
		`kereru_gateway_http_requests_total{method="POST",route="/api/chat",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q\n%s", want, body)
		}
	}
}
