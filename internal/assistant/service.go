package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ncecere/kereru_gateway/internal/guardrails"
	"github.com/ncecere/kereru_gateway/internal/limits"
	"github.com/ncecere/kereru_gateway/internal/models"
	"github.com/ncecere/kereru_gateway/internal/providers"
	"github.com/ncecere/kereru_gateway/internal/requestctx"
	"github.com/ncecere/kereru_gateway/internal/search"
)

// ErrUpstreamUnavailable wraps every model collaborator failure.
var ErrUpstreamUnavailable = errors.New("assistant: upstream unavailable")

const emptyReply = "No response received"

// Searcher runs a web search on behalf of the model.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// Options tune the upstream chat request.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int32
}

// Request is one user turn plus the prior conversation.
type Request struct {
	Message string               `json:"message"`
	History []models.ChatMessage `json:"history"`
}

// Reply is what the caller sees. Blocked replies carry the refusal text in
// Message and the reason code.
type Reply struct {
	Message  string                `json:"message"`
	Blocked  bool                  `json:"blocked"`
	Reason   guardrails.ReasonCode `json:"reason,omitempty"`
	Searched bool                  `json:"searched,omitempty"`
}

// Service composes the rate limiter, both guardrail passes and the model call.
type Service struct {
	provider  providers.Provider
	evaluator *guardrails.Evaluator
	limiter   limits.Limiter
	searcher  Searcher
	opts      Options
}

// NewService wires a chat service. limiter and searcher may be nil.
func NewService(provider providers.Provider, evaluator *guardrails.Evaluator, limiter limits.Limiter, searcher Searcher, opts Options) *Service {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	return &Service{
		provider:  provider,
		evaluator: evaluator,
		limiter:   limiter,
		searcher:  searcher,
		opts:      opts,
	}
}

// Send answers one message, offering the model a single search round-trip.
// It returns limits.ErrLimitExceeded when the caller is over quota and an
// error wrapping ErrUpstreamUnavailable when the model call fails.
func (s *Service) Send(ctx context.Context, req Request) (Reply, error) {
	if reply, done, err := s.admit(ctx, req.Message); done {
		return reply, err
	}

	withSearch := s.searcher != nil
	messages := s.conversation(SystemPrompt(withSearch), req)
	chatReq := s.chatRequest(messages)
	if withSearch {
		chatReq.Tools = []models.Tool{SearchTool()}
	}

	resp, err := s.provider.Chat(ctx, chatReq)
	if err != nil {
		return Reply{}, upstreamError(err)
	}
	msg, _ := resp.FirstMessage()

	searched := false
	if withSearch && len(msg.ToolCalls) > 0 && msg.ToolCalls[0].Name == SearchToolName {
		call := msg.ToolCalls[0]
		toolMsg := models.ChatMessage{
			Role:       models.RoleTool,
			ToolCallID: call.ID,
			Name:       SearchToolName,
			Content:    s.runSearch(ctx, call.Arguments),
		}
		assistantMsg := msg
		assistantMsg.Role = models.RoleAssistant
		assistantMsg.ToolCalls = msg.ToolCalls[:1]

		follow := s.chatRequest(append(messages, assistantMsg, toolMsg))
		resp, err = s.provider.Chat(ctx, follow)
		if err != nil {
			return Reply{}, upstreamError(err)
		}
		msg, _ = resp.FirstMessage()
		searched = true
	}

	reply := s.release(ctx, msg.Content)
	reply.Searched = searched
	return reply, nil
}

// Stream answers one message from a streamed completion. Nothing is released
// until the whole answer has passed the output gate; a running check cancels
// the upstream stream as soon as the partial answer is already deniable.
func (s *Service) Stream(ctx context.Context, req Request) (Reply, error) {
	if reply, done, err := s.admit(ctx, req.Message); done {
		return reply, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chatReq := s.chatRequest(s.conversation(SystemPrompt(false), req))
	chatReq.Stream = true
	chunks, closeFn, err := s.provider.ChatStream(ctx, chatReq)
	if err != nil {
		return Reply{}, upstreamError(err)
	}

	guard := guardrails.NewStreamGuard(s.evaluator)
	for chunk := range chunks {
		if v, deny := guard.Process(chunk.Text()); deny {
			cancel()
			for range chunks {
			}
			_ = closeFn()
			guard.Abort(ctx, v)
			slog.Warn("stream aborted by output guardrail", slog.String("reason", string(v.Reason)), slog.String("rule", v.Rule))
			return refusal(v), nil
		}
	}
	if err := closeFn(); err != nil {
		return Reply{}, upstreamError(err)
	}
	if err := ctx.Err(); err != nil {
		return Reply{}, upstreamError(err)
	}
	return s.releaseStream(ctx, guard), nil
}

// admit applies the rate limit and the prompt gate. done reports whether the
// caller should return reply and err as-is.
func (s *Service) admit(ctx context.Context, message string) (reply Reply, done bool, err error) {
	if s.limiter != nil {
		identity := requestctx.IdentityFrom(ctx)
		if err := s.limiter.Allow(ctx, identity); err != nil {
			if errors.Is(err, limits.ErrLimitExceeded) {
				return Reply{Message: guardrails.RateLimitedMessage}, true, err
			}
			slog.Warn("rate limiter unavailable, admitting request", slog.String("identity", identity), slog.String("error", err.Error()))
		}
	}
	if v := s.evaluator.EvaluatePrompt(ctx, message); !v.Allowed {
		return refusal(v), true, nil
	}
	return Reply{}, false, nil
}

func (s *Service) release(ctx context.Context, content string) Reply {
	if strings.TrimSpace(content) == "" {
		content = emptyReply
	}
	if v := s.evaluator.EvaluateOutput(ctx, content); !v.Allowed {
		return refusal(v)
	}
	return Reply{Message: guardrails.Sanitize(content)}
}

func (s *Service) releaseStream(ctx context.Context, guard *guardrails.StreamGuard) Reply {
	if strings.TrimSpace(guard.Text()) == "" {
		return s.release(ctx, "")
	}
	if v := guard.Finish(ctx); !v.Allowed {
		return refusal(v)
	}
	return Reply{Message: guardrails.Sanitize(guard.Text())}
}

func (s *Service) runSearch(ctx context.Context, arguments string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		slog.Warn("search tool call had malformed arguments", slog.String("error", err.Error()))
		return search.ResultsJSON(nil, err)
	}
	results, err := s.searcher.Search(ctx, args.Query)
	if err != nil {
		slog.Warn("search tool call failed", slog.String("error", err.Error()))
	}
	return search.ResultsJSON(results, err)
}

func (s *Service) conversation(system string, req Request) []models.ChatMessage {
	messages := make([]models.ChatMessage, 0, len(req.History)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: system})
	for _, item := range req.History {
		// Callers may only replay their own turns and the visible answers.
		switch item.Role {
		case models.RoleUser, models.RoleAssistant:
			if strings.TrimSpace(item.Content) == "" {
				continue
			}
			messages = append(messages, models.ChatMessage{Role: item.Role, Content: item.Content})
		}
	}
	return append(messages, models.ChatMessage{Role: models.RoleUser, Content: req.Message})
}

func (s *Service) chatRequest(messages []models.ChatMessage) models.ChatRequest {
	req := models.ChatRequest{Model: s.opts.Model, Messages: messages}
	temp := s.opts.Temperature
	req.Temperature = &temp
	if s.opts.MaxTokens > 0 {
		maxTokens := s.opts.MaxTokens
		req.MaxTokens = &maxTokens
	}
	return req
}

func refusal(v guardrails.Verdict) Reply {
	return Reply{Message: guardrails.MessageFor(v.Reason), Blocked: true, Reason: v.Reason}
}

func upstreamError(err error) error {
	slog.Error("model request failed", slog.String("error", err.Error()))
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
