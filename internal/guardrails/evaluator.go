package guardrails

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

// Channel identifies which side of the model call text came from.
type Channel string

const (
	ChannelPrompt Channel = "prompt"
	ChannelOutput Channel = "output"
)

// Config holds the evaluator thresholds.
type Config struct {
	MaxPromptChars    int
	MaxOutputChars    int
	ToxicityThreshold float64
	LogContentChars   int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxPromptChars:    20000,
		MaxOutputChars:    50000,
		ToxicityThreshold: 0.7,
		LogContentChars:   200,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxPromptChars <= 0 {
		c.MaxPromptChars = def.MaxPromptChars
	}
	if c.MaxOutputChars <= 0 {
		c.MaxOutputChars = def.MaxOutputChars
	}
	if c.ToxicityThreshold <= 0 {
		c.ToxicityThreshold = def.ToxicityThreshold
	}
	if c.LogContentChars <= 0 {
		c.LogContentChars = def.LogContentChars
	}
	return c
}

// Verdict is the outcome of one evaluation. A denied verdict always carries a reason.
type Verdict struct {
	Allowed       bool       `json:"allowed"`
	Reason        ReasonCode `json:"reason,omitempty"`
	Rule          string     `json:"rule,omitempty"`
	ToxicityScore *float64   `json:"toxicity_score,omitempty"`
}

// Observer receives every verdict. Used for metrics.
type Observer interface {
	ObserveVerdict(channel Channel, v Verdict)
}

// Evaluator runs the length, secret, intent and toxicity checks in order and
// stops at the first failure.
type Evaluator struct {
	config     Config
	classifier Classifier
	sink       Sink
	observer   Observer
}

// NewEvaluator builds an evaluator. A nil sink disables safety logging.
func NewEvaluator(cfg Config, classifier Classifier, sink Sink) *Evaluator {
	return &Evaluator{config: cfg.normalized(), classifier: classifier, sink: sink}
}

// WithObserver attaches a verdict observer and returns the evaluator.
func (e *Evaluator) WithObserver(o Observer) *Evaluator {
	e.observer = o
	return e
}

// Config returns the effective thresholds.
func (e *Evaluator) Config() Config {
	return e.config
}

// EvaluatePrompt gates user text before it is sent upstream.
func (e *Evaluator) EvaluatePrompt(ctx context.Context, text string) Verdict {
	return e.evaluate(ctx, ChannelPrompt, text)
}

// EvaluateOutput gates model text before it is shown to the user.
func (e *Evaluator) EvaluateOutput(ctx context.Context, text string) Verdict {
	return e.evaluate(ctx, ChannelOutput, text)
}

// Evaluate dispatches on channel.
func (e *Evaluator) Evaluate(ctx context.Context, channel Channel, text string) Verdict {
	return e.evaluate(ctx, channel, text)
}

// Preview classifies text without emitting a safety log entry or notifying the
// observer. It backs operator dry runs, which must not crowd the audit queue.
func (e *Evaluator) Preview(channel Channel, text string) Verdict {
	return e.classify(channel, text)
}

func (e *Evaluator) evaluate(ctx context.Context, channel Channel, text string) Verdict {
	verdict := e.classify(channel, text)
	e.record(ctx, channel, text, verdict)
	return verdict
}

func (e *Evaluator) classify(channel Channel, text string) Verdict {
	limit := e.config.MaxPromptChars
	if channel == ChannelOutput {
		limit = e.config.MaxOutputChars
	}
	if utf8.RuneCountInString(text) > limit {
		return deny(channel, reasonTooLong, "")
	}
	if e.classifier.Secrets != nil {
		if rule, ok := e.classifier.Secrets.Match(text); ok {
			return deny(channel, reasonSecrets, rule)
		}
	}
	if e.classifier.Intents != nil {
		if rule, ok := e.classifier.Intents.Match(text); ok {
			return deny(channel, reasonDisallowed, rule)
		}
	}
	score := 0.0
	if e.classifier.Toxicity != nil {
		score = e.classifier.Toxicity.Score(text)
	}
	if score > e.config.ToxicityThreshold {
		v := deny(channel, reasonToxic, "")
		v.ToxicityScore = &score
		return v
	}
	return Verdict{Allowed: true, ToxicityScore: &score}
}

func (e *Evaluator) record(ctx context.Context, channel Channel, text string, v Verdict) {
	if e.observer != nil {
		e.observer.ObserveVerdict(channel, v)
	}
	if e.sink == nil {
		return
	}
	entry := NewEntry(ctx, channel, text, v, e.config.LogContentChars)
	if err := e.sink.Emit(ctx, entry); err != nil {
		slog.Warn("safety log emit failed", slog.String("channel", string(channel)), slog.String("error", err.Error()))
	}
}
