package bedrock

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ncecere/kereru_gateway/internal/models"
	"github.com/ncecere/kereru_gateway/internal/providers/fixtures"
)

type fakeInvoker struct {
	body     []byte
	lastBody []byte
}

func (f *fakeInvoker) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.lastBody = params.Body
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func (f *fakeInvoker) InvokeModelWithResponseStream(context.Context, *bedrockruntime.InvokeModelWithResponseStreamInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	return nil, nil
}

func TestAnthropicStreamUsageFixture(t *testing.T) {
	var evt anthropicStreamEvent
	if err := fixtures.Load("bedrock_stream_delta.json", &evt); err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	if evt.Type != "message_delta" {
		t.Fatalf("unexpected type %q", evt.Type)
	}
	if evt.Usage.InputTokens != 27 || evt.Usage.OutputTokens != 580 {
		t.Fatalf("unexpected usage: %+v", evt.Usage)
	}
	if got := mapAnthropicStopReason(evt.StopReason()); got != "stop" {
		t.Fatalf("expected stop reason remapped to stop, got %s", got)
	}
}

func TestChatConvertsToolUse(t *testing.T) {
	raw, err := fixtures.Read("bedrock_tool_use_response.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	fake := &fakeInvoker{body: raw}
	adapter := newWithClient(fake, Options{ModelID: "anthropic.claude-3-haiku"})

	resp, err := adapter.Chat(context.Background(), models.ChatRequest{
		Model: "kereru",
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "be helpful"},
			{Role: models.RoleUser, Content: "when is provisional tax due?"},
		},
		Tools: []models.Tool{{Name: "search_nz_web", Description: "search", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	msg, ok := resp.FirstMessage()
	if !ok {
		t.Fatal("expected a choice")
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "search_nz_web" || msg.ToolCalls[0].ID != "toolu_01" {
		t.Fatalf("unexpected tool calls %+v", msg.ToolCalls)
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(msg.ToolCalls[0].Arguments), &args); err != nil || args.Query != "IRD provisional tax dates" {
		t.Fatalf("unexpected arguments %q (%v)", msg.ToolCalls[0].Arguments, err)
	}
	if resp.Choices[0].FinishReason != "tool_calls" {
		t.Fatalf("unexpected finish reason %q", resp.Choices[0].FinishReason)
	}

	var sent anthropicRequest
	if err := json.Unmarshal(fake.lastBody, &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent.System != "be helpful" || len(sent.Messages) != 1 || len(sent.Tools) != 1 {
		t.Fatalf("unexpected request body %+v", sent)
	}
	if sent.MaxTokens != 1024 {
		t.Fatalf("expected default max tokens, got %d", sent.MaxTokens)
	}
}

func TestBuildBodyEncodesToolRoundTrip(t *testing.T) {
	adapter := newWithClient(&fakeInvoker{}, Options{ModelID: "m"})
	raw, err := adapter.buildAnthropicBody(models.ChatRequest{
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: "minimum wage?"},
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "t1", Name: "search_nz_web", Arguments: `{"query":"minimum wage"}`}}},
			{Role: models.RoleTool, ToolCallID: "t1", Content: `[{"title":"Employment NZ"}]`},
		},
	})
	if err != nil {
		t.Fatalf("build body: %v", err)
	}
	var sent anthropicRequest
	if err := json.Unmarshal(raw, &sent); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sent.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(sent.Messages))
	}
	use := sent.Messages[1].Content
	if len(use) != 1 || use[0].Type != "tool_use" || use[0].ID != "t1" {
		t.Fatalf("unexpected assistant content %+v", use)
	}
	result := sent.Messages[2]
	if result.Role != models.RoleUser || result.Content[0].Type != "tool_result" || result.Content[0].ToolUseID != "t1" {
		t.Fatalf("unexpected tool result %+v", result)
	}
}

func TestStreamDecoder(t *testing.T) {
	d := newStreamDecoder("kereru")
	if _, _, emit := d.Decode([]byte(`{"type":"message_start","message":{"id":"msg_1","model":"claude"}}`)); emit {
		t.Fatal("message_start should not emit")
	}
	chunk, done, emit := d.Decode([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Kia ora"}}`))
	if !emit || done || chunk.Text() != "Kia ora" || chunk.ID != "msg_1" || chunk.Model != "claude" {
		t.Fatalf("unexpected delta chunk %+v", chunk)
	}
	delta := fixtures.MustRead(t, "bedrock_stream_delta.json")
	chunk, done, emit = d.Decode(delta)
	if !emit || done || chunk.Choices[0].FinishReason != "stop" || chunk.Usage == nil || chunk.Usage.TotalTokens != 607 {
		t.Fatalf("unexpected finish chunk %+v", chunk)
	}
	if _, done, emit = d.Decode([]byte(`{"type":"message_stop"}`)); !done || emit {
		t.Fatalf("expected stop without a second finish chunk, done=%v emit=%v", done, emit)
	}
	if _, _, emit = d.Decode([]byte(`not json`)); emit {
		t.Fatal("malformed events should be skipped")
	}
}
