package guardrails

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// streamCheckMinStep is the smallest amount of new text, in bytes, that
// triggers another incremental check. Checks otherwise run each time the
// buffer doubles, so the total scanned stays linear in the answer length.
const streamCheckMinStep = 256

// StreamGuard accumulates streamed model output so the output gate runs on the
// full text before anything reaches the caller.
type StreamGuard struct {
	evaluator *Evaluator
	buf       strings.Builder
	runes     int
	checked   int
	checks    int
	scanned   int
}

// NewStreamGuard returns a guard bound to the evaluator. Nil evaluators yield nil.
func NewStreamGuard(e *Evaluator) *StreamGuard {
	if e == nil {
		return nil
	}
	return &StreamGuard{evaluator: e}
}

// Process appends a delta and, on a doubling schedule, runs an unlogged check
// over the text seen so far, cut at the last whitespace so partial words never
// match. The output ceiling is enforced on every delta. It returns a denied
// verdict and true once the stream can already be rejected.
func (g *StreamGuard) Process(delta string) (Verdict, bool) {
	if g == nil || delta == "" {
		return Verdict{Allowed: true}, false
	}
	g.buf.WriteString(delta)
	g.runes += utf8.RuneCountInString(delta)
	if g.runes > g.evaluator.config.MaxOutputChars {
		return deny(ChannelOutput, reasonTooLong, ""), true
	}
	if g.buf.Len() < g.nextCheck() {
		return Verdict{Allowed: true}, false
	}
	text := g.buf.String()
	cut := strings.LastIndexFunc(text, unicode.IsSpace)
	if cut <= g.checked {
		return Verdict{Allowed: true}, false
	}
	g.checked = cut
	g.checks++
	g.scanned += cut
	v := g.evaluator.classify(ChannelOutput, text[:cut])
	if !v.Allowed {
		return v, true
	}
	return v, false
}

func (g *StreamGuard) nextCheck() int {
	return max(2*g.checked, g.checked+streamCheckMinStep)
}

// Text returns everything accumulated so far.
func (g *StreamGuard) Text() string {
	if g == nil {
		return ""
	}
	return g.buf.String()
}

// Finish runs the logged output gate on the complete text.
func (g *StreamGuard) Finish(ctx context.Context) Verdict {
	if g == nil {
		return Verdict{Allowed: true}
	}
	return g.evaluator.EvaluateOutput(ctx, g.buf.String())
}

// Abort logs the verdict produced by an early rejection.
func (g *StreamGuard) Abort(ctx context.Context, v Verdict) {
	if g == nil {
		return
	}
	g.evaluator.record(ctx, ChannelOutput, g.buf.String(), v)
}
