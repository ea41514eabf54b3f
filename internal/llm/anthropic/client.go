package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
)

const defaultMaxTokens = 2048

// Complete sends one message. PDF attachments go as a base64 document block ahead
// of the instructions.
func (c *Client) Complete(ctx context.Context, p llm.Prompt) (llm.Completion, error) {
	rid := uuid.New().String()
	start := time.Now()

	maxTokens := p.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)
	if len(p.Attachment) > 0 && p.AttachmentMediaType == constants.MediaTypePDF {
		b64 := base64.StdEncoding.EncodeToString(p.Attachment)
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: b64}))
	}
	blocks = append(blocks, anthropic.NewTextBlock(p.User+"\n\nReturn ONLY JSON."))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if s := strings.TrimSpace(p.System); s != "" {
		params.System = []anthropic.TextBlockParam{{Text: s}}
	}
	if p.Temperature > 0 {
		params.Temperature = anthropic.Float(min(p.Temperature, 1))
	}

	c.logger.Debug("llm.anthropic.request",
		"req_id", rid,
		"model", c.cfg.Model,
		"max_tokens", maxTokens,
		"attachment_bytes", len(p.Attachment),
	)

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		c.logger.Error("llm.anthropic.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, classify(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := llm.Completion{
		Text:         strings.TrimSpace(text.String()),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}

	c.logger.Debug("llm.anthropic.response",
		"req_id", rid,
		"stop_reason", string(msg.StopReason),
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// classify maps SDK errors onto the transport taxonomy. 429, 529 and other 5xx
// responses are retryable.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("%w: anthropic status %d: %v", common.ErrTransport, apiErr.StatusCode, err)
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return llm.Retryable(wrapped)
		}
		return wrapped
	}
	return llm.Retryable(fmt.Errorf("%w: anthropic: %v", common.ErrTransport, err))
}
