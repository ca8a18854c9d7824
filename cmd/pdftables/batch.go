package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/pdftables/internal/ingest"
	"github.com/joseph-ayodele/pdftables/internal/pipeline"
)

const watchDebounce = 2 * time.Second

func newBatchCmd(c *cli) *cobra.Command {
	var opts batchOptions
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Extract tables from every PDF in a directory",
		Long: `Process every PDF under --dir (INPUT_DIR by default) and write one workbook
per document to OUTPUT_DIR. Interrupting with Ctrl-C stops after the current
page; the next run resumes from the checkpoint.`,
		Example: `  pdftables batch --columns "Species,Common Name,Status" --test
  pdftables batch --columns-file preset.yaml --watch
  pdftables batch --interactive`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, c, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.dir, "dir", "d", "", "directory holding the PDFs (default INPUT_DIR)")
	f.StringVarP(&opts.columns, "columns", "c", "", "comma-separated column names")
	f.StringVar(&opts.columnsFile, "columns-file", "", "YAML preset with columns, instructions and page limits")
	f.StringVarP(&opts.instructions, "instructions", "i", "", "extra extraction notes for the model")
	f.IntVar(&opts.sample, "sample", 0, "process at most this many pages per document")
	f.BoolVar(&opts.test, "test", false, "test mode: process only the first 3 pages")
	f.IntVar(&opts.startPage, "start-page", 0, "0-based index of the first page to process")
	f.BoolVarP(&opts.watch, "watch", "w", false, "keep running and process PDFs added to the directory")
	f.BoolVar(&opts.interactive, "interactive", false, "prompt for columns, instructions and test mode")
	f.BoolVarP(&opts.recursive, "recursive", "r", false, "include subdirectories")
	f.BoolVar(&opts.includePageNumber, "page-number", false, "add a _page_number column to the output")
	return cmd
}

type batchTally struct {
	ok, failed, empty int
	rows              int
}

func runBatch(cmd *cobra.Command, c *cli, opts batchOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg := c.cfg

	if err := cfg.ValidateForExtraction(); err != nil {
		return err
	}
	dir := opts.dir
	if dir == "" {
		dir = cfg.Pipeline.InputDir
	}

	section(out, "PDF TABLE EXTRACTOR")
	docs, stats, err := ingest.ScanPDFs(ctx, dir, ingest.ScanOptions{Recursive: opts.recursive, SkipHidden: true})
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	c.logger.Info("batch.scan.ok", "dir", dir, "scanned", stats.Scanned, "matched", stats.Matched, "failed", stats.Failed)
	if len(docs) == 0 && !opts.watch {
		abs, _ := filepath.Abs(dir)
		warnStyle.Fprintf(out, " No PDF files found in %s\n", dir)
		fmt.Fprintf(out, " Please place your PDFs in: %s\n", abs)
		return nil
	}
	fmt.Fprintf(out, " Found %d PDF file(s)\n", len(docs))

	settings, err := resolveJobSettings(opts, cmd.InOrStdin(), out)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	c.logger.Info("batch.start", "model", a.model, "columns", settings.Columns, "sample_pages", settings.SamplePages)

	tally := &batchTally{}
	for _, d := range docs {
		if ctx.Err() != nil {
			break
		}
		if d.Err != "" {
			failStyle.Fprintf(out, " Skipping %s: %s\n", d.Path, d.Err)
			tally.failed++
			continue
		}
		if interrupted := processOne(ctx, out, a, d.Path, settings, tally); interrupted {
			break
		}
	}

	if opts.watch && ctx.Err() == nil {
		if err := watchDir(ctx, out, c, a, dir, settings, tally); err != nil {
			return err
		}
	}

	section(out, "PROCESSING COMPLETE")
	fmt.Fprintf(out, " Succeeded: %d  Empty: %d  Failed: %d  Rows: %d\n", tally.ok, tally.empty, tally.failed, tally.rows)
	fmt.Fprintf(out, " Check '%s' for results\n", cfg.Pipeline.OutputDir)
	return nil
}

// processOne runs one document and reports whether the batch was interrupted.
func processOne(ctx context.Context, out io.Writer, a *app, path string, s jobSettings, tally *batchTally) bool {
	name := filepath.Base(path)
	section(out, "PROCESSING: "+name)

	bar := newPageBar(os.Stderr, name)
	res, err := a.pipeline.Run(ctx, pipeline.Job{
		PDFPath:      path,
		Columns:      s.Columns,
		Instructions: s.Instructions,
		MultiRow:     true,
		StartPage:    s.StartPage,
		SamplePages:  s.SamplePages,
		OnPage:       bar.update,
	})
	bar.finish()

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		warnStyle.Fprintln(out, "\n Processing interrupted by user; progress is checkpointed")
		return true
	case err != nil:
		failStyle.Fprintf(out, " Failed: %s: %v\n", name, err)
		tally.failed++
		return false
	}

	tally.rows += res.Rows
	if res.Rows == 0 {
		warnStyle.Fprintf(out, " No rows extracted from %s\n", name)
		tally.empty++
	} else {
		successStyle.Fprintf(out, " Success: %s\n", name)
		tally.ok++
	}
	printResult(out, res)
	return false
}

func watchDir(ctx context.Context, out io.Writer, c *cli, a *app, dir string, s jobSettings, tally *batchTally) error {
	paths, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:    []string{dir},
		Debounce: watchDebounce,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	dimStyle.Fprintf(out, "\n Watching %s for new PDFs (Ctrl-C to stop)\n", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.logger.Warn("batch.watch.error", "error", err)
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			if interrupted := processOne(ctx, out, a, p, s, tally); interrupted {
				return nil
			}
		}
	}
}
