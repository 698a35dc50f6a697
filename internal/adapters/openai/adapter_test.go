package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/kereru_gateway/internal/models"
	"github.com/ncecere/kereru_gateway/internal/providers/fixtures"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestChatSendsToolsAndParsesToolCalls(t *testing.T) {
	raw := fixtures.MustRead(t, "openai_tool_call_response.json")

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	adapter, err := New(Options{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	temp := float32(0.7)
	resp, err := adapter.Chat(context.Background(), models.ChatRequest{
		Model:       "ashela_ec3d/kereru-ai-demo-fixed",
		Temperature: &temp,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "system"},
			{Role: models.RoleUser, Content: "What is the minimum wage?"},
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call_0", Name: "search_nz_web", Arguments: `{"query":"x"}`}}},
			{Role: models.RoleTool, ToolCallID: "call_0", Content: "[]"},
		},
		Tools: []models.Tool{{
			Name:        "search_nz_web",
			Description: "Search the NZ web",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"query": map[string]any{"type": "string"}}},
		}},
	})
	require.NoError(t, err)

	msg, ok := resp.FirstMessage()
	require.True(t, ok)
	require.Len(t, msg.ToolCalls, 1)
	require.Equal(t, "call_1", msg.ToolCalls[0].ID)
	require.Equal(t, "search_nz_web", msg.ToolCalls[0].Name)
	require.JSONEq(t, `{"query":"minimum wage NZ"}`, msg.ToolCalls[0].Arguments)
	require.Equal(t, int32(320), resp.Usage.TotalTokens)

	tools, ok := captured["tools"].([]any)
	require.True(t, ok, "tools should be sent")
	require.Len(t, tools, 1)
	require.InDelta(t, 0.7, captured["temperature"], 1e-6)

	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)
	toolMsg := messages[3].(map[string]any)
	require.Equal(t, "tool", toolMsg["role"])
	require.Equal(t, "call_0", toolMsg["tool_call_id"])
	assistant := messages[2].(map[string]any)
	require.NotEmpty(t, assistant["tool_calls"])
}

func TestChatSurfacesUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad gateway"}}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter, err := New(Options{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = adapter.Chat(context.Background(), models.ChatRequest{
		Model:    "m",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
}

func TestChatStreamYieldsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Kia ", "ora"} {
			payload := map[string]any{
				"id":      "chunk",
				"object":  "chat.completion.chunk",
				"created": 1730000000,
				"model":   "m",
				"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": part}}},
			}
			data, _ := json.Marshal(payload)
			_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	adapter, err := New(Options{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	chunks, closeFn, err := adapter.ChatStream(context.Background(), models.ChatRequest{
		Model:    "m",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var text string
	for chunk := range chunks {
		text += chunk.Text()
	}
	require.NoError(t, closeFn())
	require.Equal(t, "Kia ora", text)
}
