// Package vertex is a Gemini-on-Vertex-AI implementation of llm.VisionModel.
package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/pdftables/internal/llm"
)

// Config for the Vertex client.
type Config struct {
	ProjectID string
	Region    string // default us-central1
	Model     string // default gemini-1.5-pro

	Temperature     float32
	MaxOutputTokens int32
}

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	cfg    Config
	base   *genai.Client
	gen    generator
	logger *slog.Logger
}

// NewClient dials Vertex AI. Close releases the connection.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("vertex: project id is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := base.GenerativeModel(cfg.Model)
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
	}
	model.SetTemperature(cfg.Temperature)
	if cfg.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}
	return &Client{cfg: cfg, base: base, gen: model, logger: logger}, nil
}

func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

// Name identifies the model in logs.
func (c *Client) Name() string {
	return "vertex/" + c.cfg.Model
}

// Generate implements llm.VisionModel. Decoding settings are fixed when the
// client is built, so req.Temperature and req.MaxTokens are not re-applied.
func (c *Client) Generate(ctx context.Context, req llm.VisionRequest) (string, error) {
	start := time.Now()

	resp, err := c.gen.GenerateContent(ctx, genai.ImageData("png", req.ImagePNG), genai.Text(req.Prompt))
	if err != nil {
		c.logger.Error("llm.vertex.generate_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", mapError(err)
	}

	text := responseText(resp)
	c.logger.Info("llm.vertex.response",
		"bytes", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

// mapError turns gRPC status codes into llm.APIError so the retry policy can
// treat both providers the same way.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	code := http.StatusInternalServerError
	switch st.Code() {
	case codes.ResourceExhausted:
		code = http.StatusTooManyRequests
	case codes.Unavailable:
		code = http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		code = http.StatusGatewayTimeout
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		code = http.StatusBadRequest
	case codes.PermissionDenied:
		code = http.StatusForbidden
	case codes.Unauthenticated:
		code = http.StatusUnauthorized
	case codes.NotFound:
		code = http.StatusNotFound
	case codes.Canceled:
		return context.Canceled
	}
	return &llm.APIError{Provider: "vertex", StatusCode: code, Body: st.Message()}
}
