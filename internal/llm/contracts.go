package llm

import "context"

// Row is one extracted record keyed by column name.
type Row = map[string]any

// PageRequest is everything needed to extract the rows of one rendered page.
type PageRequest struct {
	ImagePNG     []byte
	Columns      []string
	Instructions string
	PageNumber   int // 1-based, used for logs only
}

// PageResult is what a page yielded. Notes and Confidence are informational.
type PageResult struct {
	Rows       []Row
	Notes      string
	Confidence string
	Recovered  bool // rows came from the lenient recovery path
	Attempts   int
}

// PageExtractor is the interface the pipeline depends on.
type PageExtractor interface {
	ExtractPage(ctx context.Context, req PageRequest) (PageResult, error)
}

// VisionRequest is a single prompt+image call to a provider.
type VisionRequest struct {
	Prompt      string
	ImagePNG    []byte
	MaxTokens   int
	Temperature float32
}

// VisionModel is implemented by each provider and returns the raw model text.
type VisionModel interface {
	Generate(ctx context.Context, req VisionRequest) (string, error)
	Name() string
}
