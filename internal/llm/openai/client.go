package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
)

// Complete sends one chat completion in JSON mode. PDF attachments go as a file
// content part next to the user text.
func (c *Client) Complete(ctx context.Context, p llm.Prompt) (llm.Completion, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Debug("llm.openai.request",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", p.Temperature,
		"max_tokens", p.MaxOutputTokens,
		"attachment_bytes", len(p.Attachment),
	)

	jsonMode := shared.NewResponseFormatJSONObjectParam()
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			userMessage(p),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &jsonMode},
	}
	if p.Temperature > 0 {
		params.Temperature = openai.Float(p.Temperature)
	}
	if p.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.MaxOutputTokens)
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		c.logger.Error("llm.openai.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, classify(err)
	}

	out := llm.Completion{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("llm.openai.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return out, nil
	}
	out.Text = strings.TrimSpace(resp.Choices[0].Message.Content)

	c.logger.Debug("llm.openai.response",
		"req_id", rid,
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", out.InputTokens,
		"completion_tokens", out.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func userMessage(p llm.Prompt) openai.ChatCompletionMessageParamUnion {
	if len(p.Attachment) == 0 {
		return openai.UserMessage(p.User)
	}
	dataURL := "data:" + p.AttachmentMediaType + ";base64," + base64.StdEncoding.EncodeToString(p.Attachment)
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(p.User),
		openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
			FileData: openai.String(dataURL),
			Filename: openai.String(p.AttachmentName),
		}),
	}
	return openai.UserMessage(parts)
}

// classify maps SDK errors onto the transport taxonomy. Throttling and server
// errors are retryable; other API errors are not.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("%w: openai status %d: %v", common.ErrTransport, apiErr.StatusCode, err)
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return llm.Retryable(wrapped)
		}
		return wrapped
	}
	return llm.Retryable(fmt.Errorf("%w: openai: %v", common.ErrTransport, err))
}
