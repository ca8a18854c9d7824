package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/joseph-ayodele/pdftables/constants"
	"github.com/joseph-ayodele/pdftables/internal/pipeline"
)

var (
	headerStyle  = color.New(color.FgCyan, color.Bold)
	successStyle = color.New(color.FgGreen)
	warnStyle    = color.New(color.FgYellow)
	failStyle    = color.New(color.FgRed)
	dimStyle     = color.New(color.Faint)
)

func section(w io.Writer, title string) {
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	headerStyle.Fprintln(w, " "+title)
	fmt.Fprintln(w, rule)
}

// pageBar renders page progress for one document. It is created on the first
// progress report, when the page total is known.
type pageBar struct {
	w    io.Writer
	name string
	bar  *progressbar.ProgressBar
}

func newPageBar(w io.Writer, name string) *pageBar {
	return &pageBar{w: w, name: name}
}

func (p *pageBar) update(pr pipeline.PageProgress) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(pr.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(p.name),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("pages"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.w) }),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	p.bar.Describe(fmt.Sprintf("%s page %d (%d rows)", p.name, pr.PageNumber, pr.TotalRows))
	_ = p.bar.Set(pr.Index + 1)
}

func (p *pageBar) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func printResult(w io.Writer, res pipeline.Result) {
	successStyle.Fprintf(w, " Output: %s\n", res.OutputPath)
	if res.PublishedURI != "" {
		successStyle.Fprintf(w, " Published: %s\n", res.PublishedURI)
	}
	s := res.Summary
	fmt.Fprintf(w, " Rows: %d  Pages: %d processed, %d with data, %d without (%.1f%% success, %.1f rows/page)\n",
		res.Rows, s.PagesProcessed, s.PagesWithData, s.PagesWithoutData, s.SuccessRate, s.AvgRowsPerPage)
	if res.Resumed {
		dimStyle.Fprintln(w, " Resumed from checkpoint")
	}
	for _, c := range res.Quality.Columns {
		style := successStyle
		switch {
		case c.Completeness < 50:
			style = failStyle
		case c.Completeness < 90:
			style = warnStyle
		}
		style.Fprintf(w, "   %-30s %5.1f%% (%d/%d)\n", c.Column, c.Completeness, c.Filled, c.Total)
	}
	if len(res.Quality.SampleRow) > 0 {
		var parts []string
		for _, c := range res.Quality.Columns {
			v, ok := res.Quality.SampleRow[c.Column]
			if !ok {
				v = constants.MissingValue
			}
			parts = append(parts, fmt.Sprintf("%s=%v", c.Column, v))
		}
		dimStyle.Fprintf(w, "   sample: %s\n", strings.Join(parts, ", "))
	}
}
