// Package pipeline runs one PDF through rasterization, per-page extraction,
// checkpointing and spreadsheet output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdftables/constants"
	"github.com/joseph-ayodele/pdftables/internal/checkpoint"
	"github.com/joseph-ayodele/pdftables/internal/common"
	"github.com/joseph-ayodele/pdftables/internal/export"
	"github.com/joseph-ayodele/pdftables/internal/llm"
	"github.com/joseph-ayodele/pdftables/internal/raster"
	"github.com/joseph-ayodele/pdftables/internal/repository"
)

const defaultCheckpointEvery = 5

// TableWriter renders the final rows. export.Writer satisfies it.
type TableWriter interface {
	Write(rows []llm.Row, columns []string, dest string) error
}

// Job is one extraction request.
type Job struct {
	PDFPath      string
	Columns      []string
	Instructions string
	MultiRow     bool
	StartPage    int // 0-based index of the first page to process
	SamplePages  int // process at most this many pages; <= 0 means all
	// Ephemeral runs neither resume from nor write checkpoints. Used for
	// uploads whose document id is never seen again.
	Ephemeral    bool
	OnPage       func(PageProgress)
}

// PageProgress is reported after every processed page.
type PageProgress struct {
	Index      int // 0-based page index
	PageNumber int
	Total      int // pages that will be processed in this run, including skipped ones
	Rows       int
	TotalRows  int
	Err        error
}

// Result describes a finished run.
type Result struct {
	RunID            uuid.UUID
	OutputPath       string
	PublishedURI     string
	DocumentID       string
	Rows             int
	PagesTotal       int
	PagesProcessed   int
	PagesWithData    int
	PagesWithoutData int
	Resumed          bool
	Summary          Summary
	Quality          Quality
}

// Config holds run-wide settings.
type Config struct {
	OutputDir       string
	DPI             int
	CheckpointEvery int
	PaceUnit        time.Duration
}

// ConfigFromCommon maps application settings to a pipeline Config.
func ConfigFromCommon(c *common.Config) Config {
	return Config{
		OutputDir:       c.Pipeline.OutputDir,
		DPI:             c.Render.DPI,
		CheckpointEvery: c.Pipeline.CheckpointEvery,
		PaceUnit:        c.Pipeline.PaceUnit,
	}
}

// Pipeline is safe for concurrent use; runs on the same document id are
// serialized.
type Pipeline struct {
	cfg         Config
	rasterizer  raster.Rasterizer
	extractor   llm.PageExtractor
	checkpoints checkpoint.Store
	writer      TableWriter
	publisher   export.Publisher
	runs        repository.RunRepository
	locks       *DocLocks
	logger      *slog.Logger
}

type Option func(*Pipeline)

// WithPublisher uploads every written workbook.
func WithPublisher(p export.Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithRunRepository records every run in the run history.
func WithRunRepository(r repository.RunRepository) Option {
	return func(pl *Pipeline) { pl.runs = r }
}

// WithDocLocks shares a lock table between pipelines.
func WithDocLocks(l *DocLocks) Option {
	return func(pl *Pipeline) {
		if l != nil {
			pl.locks = l
		}
	}
}

func New(cfg Config, r raster.Rasterizer, x llm.PageExtractor, cp checkpoint.Store, w TableWriter, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = defaultCheckpointEvery
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	p := &Pipeline{
		cfg:         cfg,
		rasterizer:  r,
		extractor:   x,
		checkpoints: cp,
		writer:      w,
		locks:       NewDocLocks(),
		logger:      logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// run carries the mutable state of a single Run call.
type run struct {
	job      Job
	columns  []string
	docID    string
	runID    uuid.UUID
	log      *slog.Logger
	rows     []llm.Row
	res      Result
	started  time.Time
	lastPage int // number of the last processed PDF page
}

// Run extracts job.Columns from every page of job.PDFPath and writes the
// workbook. Only a document that cannot be opened or rendered fails the run;
// page-level problems are logged and the page yields no rows. On context
// cancellation progress is checkpointed and the context error is returned.
func (p *Pipeline) Run(ctx context.Context, job Job) (Result, error) {
	columns := common.NormalizeColumns(job.Columns)
	if err := common.ValidateColumns(columns); err != nil {
		return Result{}, err
	}
	if job.PDFPath == "" {
		return Result{}, common.InvalidInputError("pdf path is required")
	}

	docID := DocumentID(job.PDFPath)
	unlock := p.locks.Lock(docID)
	defer unlock()

	r := &run{
		job:     job,
		columns: columns,
		docID:   docID,
		started: time.Now(),
	}
	r.res.DocumentID = docID
	r.res.OutputPath = OutputPath(p.cfg.OutputDir, job.PDFPath, columns)

	ctx = common.WithDocumentID(ctx, docID)
	r.runID = p.startRun(ctx, job.PDFPath, docID, columns)
	if r.runID != uuid.Nil {
		r.res.RunID = r.runID
		ctx = common.WithRunID(ctx, r.runID.String())
	}
	r.log = p.logger.With(common.LogAttrs(ctx)...)

	p.state(r, constants.StateInit)
	r.log.Info("pipeline.start",
		"pdf", job.PDFPath,
		"columns", columns,
		"start_page", job.StartPage,
		"sample_pages", job.SamplePages,
		"multi_row", job.MultiRow,
	)

	p.state(r, constants.StateRestoring)
	p.restore(ctx, r)

	p.state(r, constants.StateRasterizing)
	pages, err := p.rasterizer.Rasterize(ctx, job.PDFPath, p.cfg.DPI)
	if err != nil {
		return p.fail(ctx, r, rasterizeError(job.PDFPath, err))
	}
	r.res.PagesTotal = len(pages)

	p.state(r, constants.StatePageLoop)
	if err := p.pageLoop(ctx, r, pages); err != nil {
		p.saveCheckpoint(ctx, r)
		p.finishRun(ctx, r, constants.RunStatusCancelled, err)
		r.log.Warn("pipeline.interrupted", "last_page", r.lastPage, "rows", len(r.rows), "error", err)
		return r.res, err
	}

	p.state(r, constants.StateFinalizing)
	if err := p.finalize(ctx, r); err != nil {
		p.saveCheckpoint(ctx, r)
		return p.fail(ctx, r, err)
	}

	p.state(r, constants.StateDone)
	p.finishRun(ctx, r, constants.RunStatusSucceeded, nil)
	r.log.Info("pipeline.done",
		"output", r.res.OutputPath,
		"rows", r.res.Rows,
		"elapsed_ms", time.Since(r.started).Milliseconds(),
	)
	return r.res, nil
}

func (p *Pipeline) state(r *run, s constants.PipelineState) {
	r.log.Debug("pipeline.state", "state", s)
}

func (p *Pipeline) fail(ctx context.Context, r *run, err error) (Result, error) {
	p.state(r, constants.StateFailed)
	r.log.Error("pipeline.failed", "error", err, "elapsed_ms", time.Since(r.started).Milliseconds())
	p.finishRun(ctx, r, constants.RunStatusFailed, err)
	return r.res, err
}

func rasterizeError(path string, err error) error {
	if common.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return common.NewAppError(common.CodeRasterize, "render "+path, errors.Join(common.ErrRasterize, err))
}

// restore resumes from a checkpoint written for the same column set that
// holds rows. Any other checkpoint is discarded.
func (p *Pipeline) restore(ctx context.Context, r *run) {
	if p.checkpoints == nil || r.job.Ephemeral {
		return
	}

	cp, err := p.checkpoints.Load(ctx, r.docID)
	if err != nil {
		r.log.Warn("checkpoint.load_failed", "error", err)
		return
	}
	if cp.IsEmpty() {
		return
	}
	if !cp.Resumable(r.columns) {
		r.log.Info("checkpoint.discarded", "stored_columns", cp.Columns, "rows", len(cp.Data), "last_page", cp.LastPage)
		return
	}

	r.rows = cp.Data
	r.lastPage = cp.LastPage
	r.res.Resumed = true
	r.log.Info("checkpoint.resumed", "rows", len(r.rows), "last_page", r.lastPage)
}

// firstPage is the index of the first page to process: not before
// job.StartPage and past every page the restored checkpoint covered.
func firstPage(pages []raster.PageImage, startPage, lastPage int) int {
	i := max(startPage, 0)
	for i < len(pages) && pages[i].Number <= lastPage {
		i++
	}
	return i
}

func (p *Pipeline) pageLoop(ctx context.Context, r *run, pages []raster.PageImage) error {
	end := len(pages)
	if r.job.SamplePages > 0 && r.job.SamplePages < end {
		end = r.job.SamplePages
	}
	start := firstPage(pages, r.job.StartPage, r.lastPage)
	if start >= end {
		r.log.Info("pipeline.nothing_to_do", "start", start, "last_page", r.lastPage, "pages", end)
		return nil
	}

	processed := 0
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page := pages[i]
		start := time.Now()

		res, err := p.extractor.ExtractPage(ctx, llm.PageRequest{
			ImagePNG:     page.PNG,
			Columns:      r.columns,
			Instructions: r.job.Instructions,
			PageNumber:   page.Number,
		})
		if err != nil && ctx.Err() != nil {
			// The page was cut short, so it is retried on resume.
			return ctx.Err()
		}

		n := 0
		if err != nil {
			r.log.Error("pipeline.page.failed", "page", page.Number, "error", err)
		} else {
			n = len(res.Rows)
			for _, row := range res.Rows {
				row[constants.PageNumberColumn] = page.Number
			}
			r.rows = append(r.rows, res.Rows...)
		}

		processed++
		r.lastPage = page.Number
		r.res.PagesProcessed++
		if n > 0 {
			r.res.PagesWithData++
		} else {
			r.res.PagesWithoutData++
		}
		r.log.Info("pipeline.page.ok",
			"page", page.Number,
			"index", i,
			"of", end,
			"rows", n,
			"total_rows", len(r.rows),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if r.job.OnPage != nil {
			r.job.OnPage(PageProgress{Index: i, PageNumber: page.Number, Total: end, Rows: n, TotalRows: len(r.rows), Err: err})
		}

		if processed%p.cfg.CheckpointEvery == 0 {
			p.saveCheckpoint(ctx, r)
		}

		if i < end-1 {
			if err := p.pace(ctx, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// pace waits between pages: 2 units after a page with more than 50 rows,
// 1 unit after 1-50 rows and half a unit after an empty page.
func (p *Pipeline) pace(ctx context.Context, rows int) error {
	d := paceDelay(p.cfg.PaceUnit, rows)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func paceDelay(unit time.Duration, rows int) time.Duration {
	switch {
	case rows > 50:
		return 2 * unit
	case rows > 0:
		return unit
	default:
		return unit / 2
	}
}

func (p *Pipeline) finalize(ctx context.Context, r *run) error {
	out := outputRows(r.rows, r.columns)

	if p.writer == nil {
		return common.NewAppError(common.CodeStorage, "no table writer configured", common.ErrInternal)
	}
	if err := p.writer.Write(out, r.columns, r.res.OutputPath); err != nil {
		return common.NewAppError(common.CodeStorage, "write "+r.res.OutputPath, err)
	}
	if len(out) == 0 {
		r.log.Warn("pipeline.no_data", "output", r.res.OutputPath)
	} else {
		p.clearCheckpoint(ctx, r)
	}

	r.res.Rows = len(out)
	r.res.Summary = Summarize(r.res.PagesProcessed, r.res.PagesWithData, len(r.rows))
	r.res.Quality = AssessQuality(out, r.columns)
	p.logSummary(r)

	if p.publisher != nil {
		uri, err := p.publisher.Publish(ctx, r.res.OutputPath)
		if err != nil {
			r.log.Error("pipeline.publish_failed", "error", err)
		} else {
			r.res.PublishedURI = uri
		}
	}
	return nil
}

// outputRows copies rows without the page-number attribute unless the
// caller asked for it as a column.
func outputRows(rows []llm.Row, columns []string) []llm.Row {
	keep := false
	for _, c := range columns {
		if c == constants.PageNumberColumn {
			keep = true
			break
		}
	}
	out := make([]llm.Row, 0, len(rows))
	for _, row := range rows {
		cp := make(llm.Row, len(row))
		for k, v := range row {
			if k == constants.PageNumberColumn && !keep {
				continue
			}
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

func (p *Pipeline) logSummary(r *run) {
	s := r.res.Summary
	r.log.Info("pipeline.summary",
		"pages_total", r.res.PagesTotal,
		"pages_processed", s.PagesProcessed,
		"pages_with_data", s.PagesWithData,
		"pages_without_data", s.PagesWithoutData,
		"success_rate", s.SuccessRate,
		"avg_rows_per_page", s.AvgRowsPerPage,
		"rows", r.res.Rows,
		"resumed", r.res.Resumed,
	)
	for _, c := range r.res.Quality.Columns {
		r.log.Info("pipeline.quality",
			"column", c.Column,
			"completeness", c.Completeness,
			"filled", c.Filled,
			"total", c.Total,
		)
	}
	if r.res.Quality.SampleRow != nil {
		r.log.Debug("pipeline.quality.sample_row", "row", r.res.Quality.SampleRow)
	}
}

func (p *Pipeline) saveCheckpoint(ctx context.Context, r *run) {
	if p.checkpoints == nil || r.job.Ephemeral {
		return
	}
	cp := checkpoint.New(r.rows, r.columns, r.lastPage)
	// Saving must outlive a cancelled run context.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.checkpoints.Save(sctx, r.docID, cp); err != nil {
		r.log.Error("checkpoint.save_failed", "error", err)
		return
	}
	r.log.Info("checkpoint.saved", "rows", cp.TotalRows, "last_page", cp.LastPage)
}

func (p *Pipeline) clearCheckpoint(ctx context.Context, r *run) {
	if p.checkpoints == nil || r.job.Ephemeral {
		return
	}
	if err := p.checkpoints.Clear(ctx, r.docID); err != nil {
		r.log.Warn("checkpoint.clear_failed", "error", err)
	}
}

func (p *Pipeline) startRun(ctx context.Context, path, docID string, columns []string) uuid.UUID {
	if p.runs == nil {
		return uuid.Nil
	}
	id, err := p.runs.Start(ctx, docID, path, columns)
	if err != nil {
		p.logger.Warn("pipeline.run_record_failed", "document_id", docID, "error", err)
		return uuid.Nil
	}
	return id
}

func (p *Pipeline) finishRun(ctx context.Context, r *run, status constants.RunStatus, runErr error) {
	if p.runs == nil || r.runID == uuid.Nil {
		return
	}
	out := repository.RunOutcome{
		Status:         status,
		OutputPath:     r.res.OutputPath,
		Rows:           r.res.Rows,
		PagesTotal:     r.res.PagesTotal,
		PagesProcessed: r.res.PagesProcessed,
		PagesWithData:  r.res.PagesWithData,
		Resumed:        r.res.Resumed,
	}
	if status != constants.RunStatusSucceeded {
		out.OutputPath = ""
	}
	if runErr != nil {
		out.Error = fmt.Sprint(runErr)
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.runs.Finish(sctx, r.runID, out); err != nil {
		r.log.Warn("pipeline.run_record_failed", "error", err)
	}
}
