package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/pdftables/internal/llm"
)

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    float32        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

var errNoChoices = errors.New("no choices in openai response")

// Generate implements llm.VisionModel with one chat/completions call carrying
// the prompt and the page image as a data URL.
func (c *Client) Generate(ctx context.Context, req llm.VisionRequest) (string, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: llm.PNGDataURL(req.ImagePNG), Detail: "high"}},
			},
		}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if !c.cfg.DisableJSONMode {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, _, err := llm.SendJSON(ctx, c.http, "openai", endpoint, body, headers, c.logger)
	if err != nil {
		return "", err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.openai.decode_error", "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", errNoChoices
	}
	if cc.Choices[0].FinishReason == "length" {
		c.logger.Warn("llm.openai.truncated", "max_tokens", req.MaxTokens)
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}
