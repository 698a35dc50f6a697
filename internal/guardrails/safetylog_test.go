package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	buf.Reset()
	return line
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)), 0.5)
	ctx := context.Background()

	low, high := 0.3, 0.6
	_ = sink.Emit(ctx, Entry{Channel: ChannelPrompt, Content: "hello", Allowed: true, ToxicityScore: &low})
	line := decodeLogLine(t, &buf)
	if line["level"] != "INFO" {
		t.Fatalf("expected INFO for pass, got %v", line["level"])
	}
	if _, ok := line["content"]; ok {
		t.Fatal("expected passing entry to omit content")
	}

	_ = sink.Emit(ctx, Entry{Channel: ChannelPrompt, Content: "hmm", Allowed: true, ToxicityScore: &high})
	line = decodeLogLine(t, &buf)
	if line["level"] != "WARN" || line["content"] != "hmm" {
		t.Fatalf("expected WARN with content for elevated score, got %v", line)
	}

	_ = sink.Emit(ctx, Entry{Channel: ChannelOutput, Content: "secret", Reason: ReasonSecretsInOutput})
	line = decodeLogLine(t, &buf)
	if line["level"] != "WARN" || line["reason"] != string(ReasonSecretsInOutput) {
		t.Fatalf("expected WARN with reason for block, got %v", line)
	}
}

type failingSink struct{ err error }

func (f failingSink) Emit(context.Context, Entry) error { return f.err }

func TestMultiSinkJoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	rec := &recordingSink{}
	multi := MultiSink{failingSink{err: errA}, rec, nil}
	err := multi.Emit(context.Background(), Entry{Channel: ChannelPrompt})
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(rec.all()) != 1 {
		t.Fatal("expected remaining sinks to receive the entry")
	}
}

func TestSinkFailureDoesNotChangeVerdict(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), DefaultLibrary().Classifier(true), failingSink{err: errors.New("boom")})
	if v := e.EvaluatePrompt(context.Background(), "good morning"); !v.Allowed {
		t.Fatalf("expected allow despite sink failure, got %+v", v)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("kererū", 6); got != "kererū" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncateRunes("kererū", 5); got != "kerer" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncateRunes(strings.Repeat("ū", 10), 3); got != "ūūū" {
		t.Fatalf("unexpected %q", got)
	}
}
