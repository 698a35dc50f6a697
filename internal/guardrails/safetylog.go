package guardrails

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ncecere/kereru_gateway/internal/requestctx"
)

// Entry is one safety audit record. Content is truncated before emission.
type Entry struct {
	ID            uuid.UUID  `json:"id"`
	Timestamp     time.Time  `json:"timestamp"`
	Channel       Channel    `json:"channel"`
	Content       string     `json:"content"`
	Allowed       bool       `json:"allowed"`
	Reason        ReasonCode `json:"reason,omitempty"`
	Rule          string     `json:"rule,omitempty"`
	ToxicityScore *float64   `json:"toxicity_score,omitempty"`
	Identity      string     `json:"identity,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	RequestID     string     `json:"request_id,omitempty"`
}

// NewEntry builds an entry for a verdict, keeping at most maxContent runes of text.
func NewEntry(ctx context.Context, channel Channel, text string, v Verdict, maxContent int) Entry {
	entry := Entry{
		ID:            uuid.New(),
		Timestamp:     time.Now().UTC(),
		Channel:       channel,
		Content:       truncateRunes(text, maxContent),
		Allowed:       v.Allowed,
		Reason:        v.Reason,
		Rule:          v.Rule,
		ToxicityScore: v.ToxicityScore,
	}
	if rc, ok := requestctx.FromContext(ctx); ok {
		entry.Identity = rc.Identity
		entry.SessionID = rc.SessionID
		entry.RequestID = rc.RequestID
	}
	return entry
}

func truncateRunes(text string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == max {
			return text[:i]
		}
		count++
	}
	return text
}

// Sink receives safety entries. Implementations must not block the caller for long.
type Sink interface {
	Emit(ctx context.Context, entry Entry) error
}

// SlogSink writes entries through slog.
type SlogSink struct {
	logger    *slog.Logger
	warnScore float64
}

// NewSlogSink returns a sink that logs at WARN for blocks and for allowed text
// scoring above warnScore. Allowed entries omit content.
func NewSlogSink(logger *slog.Logger, warnScore float64) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	if warnScore <= 0 {
		warnScore = 0.5
	}
	return &SlogSink{logger: logger, warnScore: warnScore}
}

func (s *SlogSink) Emit(ctx context.Context, entry Entry) error {
	attrs := []slog.Attr{
		slog.String("id", entry.ID.String()),
		slog.String("channel", string(entry.Channel)),
		slog.Bool("allowed", entry.Allowed),
	}
	if entry.Identity != "" {
		attrs = append(attrs, slog.String("identity", entry.Identity))
	}
	if entry.ToxicityScore != nil {
		attrs = append(attrs, slog.Float64("toxicity_score", *entry.ToxicityScore))
	}

	switch {
	case !entry.Allowed:
		attrs = append(attrs,
			slog.String("reason", string(entry.Reason)),
			slog.String("rule", entry.Rule),
			slog.String("content", entry.Content),
		)
		s.logger.LogAttrs(ctx, slog.LevelWarn, "guardrail blocked content", attrs...)
	case entry.ToxicityScore != nil && *entry.ToxicityScore > s.warnScore:
		attrs = append(attrs, slog.String("content", entry.Content))
		s.logger.LogAttrs(ctx, slog.LevelWarn, "guardrail allowed elevated toxicity", attrs...)
	default:
		s.logger.LogAttrs(ctx, slog.LevelInfo, "guardrail passed content", attrs...)
	}
	return nil
}

// MultiSink fans an entry out to every sink.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, entry Entry) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
