package public

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/kereru_gateway/internal/app"
	"github.com/ncecere/kereru_gateway/internal/assistant"
	"github.com/ncecere/kereru_gateway/internal/guardrails"
	"github.com/ncecere/kereru_gateway/internal/httpserver/httputil"
	"github.com/ncecere/kereru_gateway/internal/limits"
	"github.com/ncecere/kereru_gateway/internal/requestctx"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	releaseChunkBytes    = 48
)

type chatHandler struct {
	container *app.Container
}

func (h *chatHandler) send(c *fiber.Ctx) error {
	req, err := parseChatRequest(c)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := userContext(c)
	identity := requestctx.IdentityFrom(ctx)
	idempotencyKey := strings.TrimSpace(c.Get(headerIdempotencyKey))
	if cached, ok := h.container.Idempotency.Get(ctx, identity, idempotencyKey); ok {
		c.Set("Idempotent-Replayed", "true")
		c.Type("json")
		return c.Send(cached)
	}

	reply, err := h.container.Assistant.Send(ctx, req)
	if err != nil {
		return h.writeChatError(c, err)
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, "failed to encode reply")
	}
	h.container.Idempotency.Set(ctx, identity, idempotencyKey, payload)
	c.Type("json")
	return c.Send(payload)
}

// stream runs the whole completion before responding, so guardrail and
// upstream failures still get a proper status code. Only released text is
// sent as server-sent events.
func (h *chatHandler) stream(c *fiber.Ctx) error {
	req, err := parseChatRequest(c)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := userContext(c)
	if d := h.container.Config.Server.StreamMaxDuration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	reply, err := h.container.Assistant.Stream(ctx, req)
	if err != nil {
		return h.writeChatError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	chunks := releaseChunks(reply.Message, releaseChunkBytes)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		for _, chunk := range chunks {
			if err := writeSSE(w, fiber.Map{"delta": chunk}); err != nil {
				slog.Debug("stream client went away", slog.String("error", err.Error()))
				return
			}
		}
		done := fiber.Map{"done": true, "blocked": reply.Blocked}
		if reply.Reason != "" {
			done["reason"] = reply.Reason
		}
		if err := writeSSE(w, done); err != nil {
			return
		}
		_, _ = w.WriteString("data: [DONE]\n\n")
		_ = w.Flush()
	})
	return nil
}

func (h *chatHandler) writeChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, limits.ErrLimitExceeded):
		if window := h.container.Config.RateLimits.Window; window > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(window.Seconds())))
		}
		return httputil.WriteError(c, fiber.StatusTooManyRequests, guardrails.RateLimitedMessage)
	case errors.Is(err, assistant.ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return httputil.WriteError(c, fiber.StatusBadGateway, guardrails.UnavailableMessage)
	default:
		slog.Error("chat request failed", slog.String("error", err.Error()))
		return httputil.WriteError(c, fiber.StatusInternalServerError, guardrails.UnavailableMessage)
	}
}

func parseChatRequest(c *fiber.Ctx) (assistant.Request, error) {
	var req assistant.Request
	if err := c.BodyParser(&req); err != nil {
		return req, errors.New("invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return req, errors.New("message is required")
	}
	return req, nil
}

func writeSSE(w *bufio.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: " + string(data) + "\n\n"); err != nil {
		return err
	}
	return w.Flush()
}

// releaseChunks splits text after whitespace into pieces of roughly size
// bytes. Splitting only at whitespace keeps escaped entities whole.
func releaseChunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	var (
		chunks []string
		buf    strings.Builder
	)
	for _, part := range strings.SplitAfter(text, " ") {
		buf.WriteString(part)
		if buf.Len() >= size {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}
