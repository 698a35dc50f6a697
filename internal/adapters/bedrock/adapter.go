package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ncecere/kereru_gateway/internal/models"
	"github.com/ncecere/kereru_gateway/internal/providers/streamutil"
)

// Options controls how the Bedrock adapter is initialised.
type Options struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	ModelID          string
	DefaultMaxTokens int32
	AnthropicVersion string
}

// invoker is the subset of the bedrockruntime client the adapter uses.
type invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// Adapter serves chat through Anthropic models hosted on Amazon Bedrock.
type Adapter struct {
	client invoker
	opts   Options
}

// New creates a Bedrock adapter using the provided credentials/region.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.Region == "" {
		return nil, errors.New("bedrock region required")
	}
	if opts.ModelID == "" {
		return nil, errors.New("bedrock model id required")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		staticProvider := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)
		loadOpts = append(loadOpts, config.WithCredentialsProvider(staticProvider))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = opts.Region
	}

	return newWithClient(bedrockruntime.NewFromConfig(awsCfg), opts), nil
}

func newWithClient(client invoker, opts Options) *Adapter {
	if opts.AnthropicVersion == "" {
		opts.AnthropicVersion = "bedrock-2023-05-31"
	}
	return &Adapter{client: client, opts: opts}
}

// Chat executes a non-streaming Anthropic messages request.
func (a *Adapter) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return models.ChatResponse{}, errors.New("at least one message is required")
	}

	body, err := a.buildAnthropicBody(req)
	if err != nil {
		return models.ChatResponse{}, err
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.opts.ModelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return models.ChatResponse{}, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return models.ChatResponse{}, fmt.Errorf("decode bedrock response: %w", err)
	}
	return convertAnthropicResponse(parsed, req.Model), nil
}

// ChatStream executes a streaming Anthropic messages request. Tools are not
// offered on the streaming path.
func (a *Adapter) ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.ChatChunk, func() error, error) {
	req.Tools = nil
	body, err := a.buildAnthropicBody(req)
	if err != nil {
		return nil, nil, err
	}

	resp, err := a.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(a.opts.ModelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, nil, err
	}
	stream := resp.GetStream()
	if stream == nil {
		return nil, nil, errors.New("bedrock stream missing")
	}

	forward := func(ctx context.Context, yield streamutil.YieldFunc) error {
		decoder := newStreamDecoder(req.Model)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case evt, ok := <-stream.Events():
				if !ok {
					return stream.Err()
				}
				member, ok := evt.(*types.ResponseStreamMemberChunk)
				if !ok || member == nil {
					continue
				}
				chunk, done, emit := decoder.Decode(member.Value.Bytes)
				if emit && !yield(chunk) {
					return ctx.Err()
				}
				if done {
					return nil
				}
			}
		}
	}

	chunks, cancel := streamutil.Forward(ctx, stream.Close, forward)
	return chunks, cancel, nil
}

// streamDecoder turns Anthropic stream events into chat chunks.
type streamDecoder struct {
	messageID  string
	model      string
	created    time.Time
	finishSent bool
}

func newStreamDecoder(model string) *streamDecoder {
	created := time.Now().UTC()
	return &streamDecoder{
		messageID: fmt.Sprintf("chatcmpl-bedrock-%d", created.UnixNano()),
		model:     model,
		created:   created,
	}
}

// Decode returns the chunk to emit (if any) and whether the stream is complete.
func (d *streamDecoder) Decode(raw []byte) (models.ChatChunk, bool, bool) {
	var payload anthropicStreamEvent
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.ChatChunk{}, false, false
	}

	switch payload.Type {
	case "message_start":
		if payload.Message != nil {
			if payload.Message.ID != "" {
				d.messageID = payload.Message.ID
			}
			if payload.Message.Model != "" {
				d.model = payload.Message.Model
			}
		}
	case "content_block_delta":
		text := payload.DeltaText()
		if text == "" {
			return models.ChatChunk{}, false, false
		}
		return d.chunk(payload.Index, models.ChatMessage{Role: models.RoleAssistant, Content: text}, ""), false, true
	case "message_delta":
		finish := strings.TrimSpace(payload.StopReason())
		if d.finishSent || finish == "" {
			return models.ChatChunk{}, false, false
		}
		d.finishSent = true
		chunk := d.chunk(payload.Index, models.ChatMessage{}, mapAnthropicStopReason(finish))
		if payload.Usage.InputTokens > 0 || payload.Usage.OutputTokens > 0 {
			chunk.Usage = &models.Usage{
				PromptTokens:     payload.Usage.InputTokens,
				CompletionTokens: payload.Usage.OutputTokens,
				TotalTokens:      payload.Usage.InputTokens + payload.Usage.OutputTokens,
			}
		}
		return chunk, false, true
	case "message_stop":
		if d.finishSent {
			return models.ChatChunk{}, true, false
		}
		d.finishSent = true
		return d.chunk(payload.Index, models.ChatMessage{}, "stop"), true, true
	}
	return models.ChatChunk{}, false, false
}

func (d *streamDecoder) chunk(index int, delta models.ChatMessage, finish string) models.ChatChunk {
	return models.ChatChunk{
		ID:      d.messageID,
		Model:   d.model,
		Created: d.created,
		Choices: []models.ChunkDelta{{
			Index:        index,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}

func (a *Adapter) buildAnthropicBody(req models.ChatRequest) ([]byte, error) {
	var systemPrompts []string
	messages := make([]anthropicMessage, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch strings.ToLower(msg.Role) {
		case models.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case models.RoleAssistant:
			content := make([]anthropicContent, 0, 1+len(msg.ToolCalls))
			if strings.TrimSpace(msg.Content) != "" {
				content = append(content, anthropicContent{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				args := strings.TrimSpace(call.Arguments)
				if args == "" {
					args = "{}"
				}
				input := json.RawMessage(args)
				if !json.Valid(input) {
					return nil, fmt.Errorf("tool call %s: arguments are not valid json", call.ID)
				}
				content = append(content, anthropicContent{Type: "tool_use", ID: call.ID, Name: call.Name, Input: input})
			}
			messages = append(messages, anthropicMessage{Role: models.RoleAssistant, Content: content})
		case models.RoleTool:
			messages = append(messages, anthropicMessage{
				Role: models.RoleUser,
				Content: []anthropicContent{
					{Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Content},
				},
			})
		default:
			messages = append(messages, anthropicMessage{
				Role: models.RoleUser,
				Content: []anthropicContent{
					{Type: "text", Text: msg.Content},
				},
			})
		}
	}

	body := anthropicRequest{
		AnthropicVersion: a.opts.AnthropicVersion,
		Messages:         messages,
	}

	maxTokens := int32(0)
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	} else if a.opts.DefaultMaxTokens > 0 {
		maxTokens = a.opts.DefaultMaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 1024
	}
	body.MaxTokens = maxTokens

	if len(systemPrompts) > 0 {
		body.System = strings.Join(systemPrompts, "\n")
	}
	if req.Temperature != nil {
		body.Temperature = float64(*req.Temperature)
	}
	for _, tool := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	return json.Marshal(body)
}

func convertAnthropicResponse(parsed anthropicResponse, model string) models.ChatResponse {
	message := models.ChatMessage{
		Role:    models.RoleAssistant,
		Content: parsed.JoinText(),
	}
	for _, block := range parsed.Content {
		if block.Type != "tool_use" {
			continue
		}
		message.ToolCalls = append(message.ToolCalls, models.ToolCall{
			ID:        block.ID,
			Name:      block.Name,
			Arguments: string(block.Input),
		})
	}
	return models.ChatResponse{
		ID:      parsed.ID,
		Created: time.Now().UTC(),
		Model:   model,
		Choices: []models.ChatChoice{{
			Index:        0,
			Message:      message,
			FinishReason: mapAnthropicStopReason(parsed.StopReason),
		}},
		Usage: models.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}
}

// anthropicRequest models the payload expected by Claude on Bedrock.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	MaxTokens        int32              `json:"max_tokens"`
	Temperature      float64            `json:"temperature,omitempty"`
	Tools            []anthropicTool    `json:"tools,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

func (a anthropicResponse) JoinText() string {
	var b strings.Builder
	for _, c := range a.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

type anthropicStreamEvent struct {
	Type    string                  `json:"type"`
	Index   int                     `json:"index"`
	Message *anthropicStreamMessage `json:"message"`
	Delta   *anthropicStreamDelta   `json:"delta"`
	Usage   anthropicUsage          `json:"usage"`
}

type anthropicStreamMessage struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

type anthropicStreamDelta struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	StopReason   string `json:"stop_reason"`
	StopSequence string `json:"stop_sequence"`
}

func (e anthropicStreamEvent) DeltaText() string {
	if e.Delta == nil {
		return ""
	}
	return e.Delta.Text
}

func (e anthropicStreamEvent) StopReason() string {
	if e.Delta == nil {
		return ""
	}
	return e.Delta.StopReason
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		if reason == "" {
			return "stop"
		}
		return reason
	}
}
