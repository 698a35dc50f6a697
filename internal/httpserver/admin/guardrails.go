package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/kereru_gateway/internal/app"
	"github.com/ncecere/kereru_gateway/internal/guardrails"
	"github.com/ncecere/kereru_gateway/internal/httpserver/httputil"
)

type guardrailHandler struct {
	container *app.Container
}

func registerGuardrailRoutes(router fiber.Router, container *app.Container) {
	handler := &guardrailHandler{container: container}
	router.Get("/guardrails/rules", handler.rules)
	router.Post("/guardrails/evaluate", handler.evaluate)
}

type evaluateRequest struct {
	Channel guardrails.Channel `json:"channel"`
	Text    string             `json:"text"`
}

type evaluateResponse struct {
	guardrails.Verdict
	Channel   guardrails.Channel `json:"channel"`
	Message   string             `json:"message,omitempty"`
	Sanitized string             `json:"sanitized,omitempty"`
}

// rules lists the active rule names so operators can confirm which pattern
// file is loaded.
func (h *guardrailHandler) rules(c *fiber.Ctx) error {
	lib := h.container.Library
	cfg := h.container.Evaluator.Config()
	toxicity := make([]fiber.Map, 0, len(lib.Toxicity))
	for _, rule := range lib.Toxicity {
		toxicity = append(toxicity, fiber.Map{"name": rule.Name, "weight": rule.Weight})
	}
	return c.JSON(fiber.Map{
		"secrets":            lib.Secrets.Names(),
		"disallowed":         lib.Disallowed.Names(),
		"regional":           lib.Regional.Names(),
		"regional_enabled":   h.container.Config.Guardrails.RegionalPatterns,
		"toxicity":           toxicity,
		"toxicity_threshold": cfg.ToxicityThreshold,
		"max_prompt_chars":   cfg.MaxPromptChars,
		"max_output_chars":   cfg.MaxOutputChars,
	})
}

// evaluate runs one channel of the gate as a dry run: no model call, no safety
// log entry. Operators use it to try pattern files against sample text.
func (h *guardrailHandler) evaluate(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Channel == "" {
		req.Channel = guardrails.ChannelPrompt
	}
	if req.Channel != guardrails.ChannelPrompt && req.Channel != guardrails.ChannelOutput {
		return httputil.WriteError(c, fiber.StatusBadRequest, "channel must be prompt or output")
	}

	verdict := h.container.Evaluator.Preview(req.Channel, req.Text)
	resp := evaluateResponse{Verdict: verdict, Channel: req.Channel}
	if verdict.Allowed {
		resp.Sanitized = guardrails.Sanitize(req.Text)
	} else {
		resp.Message = guardrails.MessageFor(verdict.Reason)
	}
	return c.JSON(resp)
}
