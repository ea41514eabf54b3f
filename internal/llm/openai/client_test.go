package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
)

func chatServer(t *testing.T, status int, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "boom", "type": "server_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl_1",
			"object":  "chat.completion",
			"created": 123,
			"model":   "gpt-4o-mini",
			"choices": []any{
				map[string]any{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				},
			},
			"usage": map[string]any{"prompt_tokens": 1200, "completion_tokens": 300, "total_tokens": 1500},
		})
	}))
}

func TestClient_Complete(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, http.StatusOK, `{"vendor_name":"Acme","total":10}`, &seen)
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"}, nil)
	out, err := c.Complete(context.Background(), llm.Prompt{System: "sys", User: "page text", Temperature: 0.1, MaxOutputTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, `{"vendor_name":"Acme","total":10}`, out.Text)
	assert.Equal(t, int64(1200), out.InputTokens)
	assert.Equal(t, int64(300), out.OutputTokens)

	assert.Equal(t, "gpt-4o-mini", seen["model"])
	rf, _ := seen["response_format"].(map[string]any)
	assert.Equal(t, "json_object", rf["type"])
	msgs, _ := seen["messages"].([]any)
	require.Len(t, msgs, 2)
}

func TestClient_CompleteWithAttachment(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, http.StatusOK, `{}`, &seen)
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)
	_, err := c.Complete(context.Background(), llm.Prompt{
		System: "sys", User: "see attached",
		Attachment: []byte("%PDF-1.7"), AttachmentMediaType: "application/pdf", AttachmentName: "inv.pdf",
	})
	require.NoError(t, err)

	msgs := seen["messages"].([]any)
	user := msgs[1].(map[string]any)
	parts, ok := user["content"].([]any)
	require.True(t, ok, "user content should be a part list")
	require.Len(t, parts, 2)
	assert.Equal(t, "file", parts[1].(map[string]any)["type"])
}

func TestClient_ServerErrorIsRetryable(t *testing.T) {
	srv := chatServer(t, http.StatusServiceUnavailable, "", nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)
	_, err := c.Complete(context.Background(), llm.Prompt{User: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTransport))
	assert.True(t, llm.IsRetryable(err))
}

func TestClient_AuthErrorIsNotRetryable(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "{}", nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-wrong", BaseURL: srv.URL + "/v1"}, nil)
	_, err := c.Complete(context.Background(), llm.Prompt{User: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTransport))
	assert.False(t, llm.IsRetryable(err))
}

func TestClient_WithProviderAdapter(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "```json\n{\"vendor_name\":\"Acme\",\"total\":\"$1,234.56\",\"confidence\":0.9}\n```", nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)
	a := llm.NewProviderAdapter("openai", c, llm.WithPricing(llm.Pricing{InputPerMTok: 1, OutputPerMTok: 2}))
	r, err := a.Call(context.Background(), llm.ExtractRequest{Text: "TAX INVOICE"})
	require.NoError(t, err)
	assert.Equal(t, llm.ParseRecovered, r.ParseKind)
	assert.InDelta(t, 0.0012+0.0006, r.Cost, 1e-9)
	assert.InDelta(t, 1234.56, *r.Invoice().Total, 1e-9)
	assert.InDelta(t, 0.81, r.Confidence, 1e-9)
}
