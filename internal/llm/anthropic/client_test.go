package anthropic

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

func messagesServer(t *testing.T, status int, text string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "sk-ant-test" {
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
				"type":  "error",
				"error": map[string]any{"type": "overloaded_error", "message": "overloaded"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-3-5-haiku-latest",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []any{map[string]any{"type": "text", "text": text}},
			"usage":         map[string]any{"input_tokens": 900, "output_tokens": 120},
		})
	}))
}

func TestClient_Complete(t *testing.T) {
	var seen map[string]any
	srv := messagesServer(t, http.StatusOK, `{"vendor_name":"Acme","total":10}`, &seen)
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-ant-test", BaseURL: srv.URL}, nil)
	out, err := c.Complete(context.Background(), llm.Prompt{System: "sys", User: "page text", MaxOutputTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, `{"vendor_name":"Acme","total":10}`, out.Text)
	assert.Equal(t, int64(900), out.InputTokens)
	assert.Equal(t, int64(120), out.OutputTokens)

	assert.EqualValues(t, 256, seen["max_tokens"])
	system, _ := seen["system"].([]any)
	require.Len(t, system, 1)
}

func TestClient_CompleteWithPDF(t *testing.T) {
	var seen map[string]any
	srv := messagesServer(t, http.StatusOK, `{}`, &seen)
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-ant-test", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), llm.Prompt{
		User: "see attached", Attachment: []byte("%PDF-1.7"), AttachmentMediaType: "application/pdf",
	})
	require.NoError(t, err)

	msgs := seen["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "document", content[0].(map[string]any)["type"])
	assert.Equal(t, "text", content[1].(map[string]any)["type"])
}

func TestClient_OverloadedIsRetryable(t *testing.T) {
	srv := messagesServer(t, 529, "", nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-ant-test", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), llm.Prompt{User: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTransport))
	assert.True(t, llm.IsRetryable(err))
}

func TestClient_BadKeyIsNotRetryable(t *testing.T) {
	srv := messagesServer(t, http.StatusOK, "{}", nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "nope", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), llm.Prompt{User: "x"})
	require.Error(t, err)
	assert.False(t, llm.IsRetryable(err))
}

func TestClient_MultiRecordThroughAdapter(t *testing.T) {
	srv := messagesServer(t, http.StatusOK,
		`{"invoices":[{"vendor_name":"A","total":10,"confidence":0.9},{"vendor_name":"B","total":20,"confidence":0.5}]}`, nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-ant-test", BaseURL: srv.URL}, nil)
	a := llm.NewProviderAdapter("anthropic", c, llm.WithPricing(llm.Pricing{PerCall: 0.03}))
	r, err := a.Call(context.Background(), llm.ExtractRequest{Text: "two invoices"})
	require.NoError(t, err)
	assert.Len(t, r.Invoices, 2)
	assert.InDelta(t, 0.7, r.Confidence, 1e-9)
	assert.InDelta(t, 0.03, r.Cost, 1e-9)
	assert.Equal(t, int64(1020), r.TokensUsed)
}
