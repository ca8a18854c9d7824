package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdftables/internal/common"
)

const (
	DefaultMaxTokens   = 4000
	DefaultTemperature = float32(0.05)
	DefaultPageTimeout = 2 * time.Minute
)

// Extractor implements PageExtractor on top of any VisionModel. It owns the
// prompt, the per-page timeout and the retry-or-skip policy, and turns the
// model text into rows.
type Extractor struct {
	model       VisionModel
	logger      *slog.Logger
	retry       RetryPolicy
	pageTimeout time.Duration
	maxTokens   int
	temperature float32
}

type Option func(*Extractor)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Extractor) {
		if p.MaxAttempts > 0 {
			e.retry = p
		}
	}
}

func WithPageTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.pageTimeout = d
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

func WithTemperature(t float32) Option {
	return func(e *Extractor) {
		if t >= 0 {
			e.temperature = t
		}
	}
}

func NewExtractor(model VisionModel, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		model:       model,
		logger:      logger,
		retry:       DefaultRetryPolicy(),
		pageTimeout: DefaultPageTimeout,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExtractPage asks the model for the rows on one page. A provider failure that
// survives the retry policy is returned; an unparseable answer is not an error
// and yields an empty result.
func (e *Extractor) ExtractPage(ctx context.Context, req PageRequest) (PageResult, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
		ctx = common.WithRequestID(ctx, rid)
	}
	start := time.Now()

	e.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", e.model.Name(),
		"page", req.PageNumber,
		"columns", len(req.Columns),
		"image_bytes", len(req.ImagePNG),
	)

	vreq := VisionRequest{
		Prompt:      BuildPagePrompt(req.Columns, req.Instructions),
		ImagePNG:    req.ImagePNG,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	}

	text, attempts, err := e.generate(ctx, rid, req.PageNumber, vreq)
	if err != nil {
		e.logger.Error("llm.extract.failed",
			"req_id", rid, "page", req.PageNumber, "attempts", attempts, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return PageResult{Attempts: attempts}, err
	}

	e.logger.Info("llm.extract.raw", "req_id", rid, "page", req.PageNumber, "preview", preview(text, 200))

	res := e.interpret(rid, req, text)
	res.Attempts = attempts

	e.logger.Info("llm.extract.ok",
		"req_id", rid,
		"page", req.PageNumber,
		"rows", len(res.Rows),
		"recovered", res.Recovered,
		"confidence", res.Confidence,
		"attempts", attempts,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) generate(ctx context.Context, rid string, page int, vreq VisionRequest) (string, int, error) {
	var lastErr error
	attempt := 0
	for attempt < e.retry.MaxAttempts {
		attempt++
		if err := ctx.Err(); err != nil {
			return "", attempt - 1, err
		}

		actx, cancel := context.WithTimeout(ctx, e.pageTimeout)
		text, err := e.model.Generate(actx, vreq)
		cancel()
		if err == nil {
			return text, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) || attempt == e.retry.MaxAttempts {
			break
		}
		wait := e.retry.Backoff(attempt - 1)
		e.logger.Warn("llm.extract.retry",
			"req_id", rid, "page", page, "attempt", attempt, "max_attempts", e.retry.MaxAttempts,
			"backoff_ms", wait.Milliseconds(), "error", err,
		)
		if err := sleepCtx(ctx, wait); err != nil {
			return "", attempt, err
		}
	}
	return "", attempt, fmt.Errorf("page %d: %w", page, lastErr)
}

func (e *Extractor) interpret(rid string, req PageRequest, raw string) PageResult {
	text := StripFences(raw)

	parsed, err := ParsePageResponse(text)
	if err != nil {
		e.logger.Warn("llm.extract.decode_error", "req_id", rid, "page", req.PageNumber, "error", err)
		rows := RecoverRows(text, req.Columns)
		if len(rows) == 0 {
			e.logger.Warn("llm.extract.unrecoverable", "req_id", rid, "page", req.PageNumber)
			return PageResult{Recovered: true}
		}
		e.normalize(rid, req, rows)
		e.logger.Info("llm.extract.recovered", "req_id", rid, "page", req.PageNumber, "rows", len(rows))
		return PageResult{Rows: rows, Recovered: true}
	}

	if err := ValidateJSONAgainstSchema(BuildPageJSONSchema(req.Columns), []byte(text)); err != nil {
		e.logger.Warn("llm.extract.schema_mismatch", "req_id", rid, "page", req.PageNumber, "error", err)
	}
	if parsed.Dropped > 0 {
		e.logger.Warn("llm.extract.non_object_rows", "req_id", rid, "page", req.PageNumber, "dropped", parsed.Dropped)
	}
	if parsed.ExtractionNotes != "" {
		e.logger.Info("llm.extract.notes", "req_id", rid, "page", req.PageNumber, "notes", parsed.ExtractionNotes)
	}
	e.normalize(rid, req, parsed.ExtractedData)

	return PageResult{
		Rows:       parsed.ExtractedData,
		Notes:      parsed.ExtractionNotes,
		Confidence: parsed.ConfidenceLevel,
	}
}

func (e *Extractor) normalize(rid string, req PageRequest, rows []Row) {
	if renamed := NormalizeRowKeys(rows, req.Columns); len(renamed) > 0 {
		e.logger.Debug("llm.extract.keys_renamed", "req_id", rid, "page", req.PageNumber, "renamed", renamed)
	}
}
