package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/pdftables/constants"
	"github.com/joseph-ayodele/pdftables/internal/common"
)

const testModePages = 3

var suggestedColumns = []string{"Species", "Common Name", "Location", "Status", "Date"}

// jobSettings is what every document in a batch is extracted with.
type jobSettings struct {
	Columns      []string
	Instructions string
	SamplePages  int
	StartPage    int
}

type batchOptions struct {
	dir               string
	columns           string
	columnsFile       string
	instructions      string
	sample            int
	startPage         int
	test              bool
	watch             bool
	interactive       bool
	recursive         bool
	includePageNumber bool
}

// resolveJobSettings merges the preset file, flags and, when interactive,
// answers read from in. Later sources win.
func resolveJobSettings(opts batchOptions, in io.Reader, out io.Writer) (jobSettings, error) {
	var s jobSettings
	pageNumber := opts.includePageNumber

	if opts.columnsFile != "" {
		p, err := common.LoadJobPreset(opts.columnsFile)
		if err != nil {
			return s, err
		}
		s.Columns = p.Columns
		s.Instructions = p.Instructions
		s.SamplePages = p.SamplePages
		s.StartPage = p.StartPage
		pageNumber = pageNumber || p.IncludePageNumber
	}
	if opts.columns != "" {
		s.Columns = splitColumns(opts.columns)
	}
	if opts.instructions != "" {
		s.Instructions = opts.instructions
	}
	if opts.sample > 0 {
		s.SamplePages = opts.sample
	}
	if opts.test {
		s.SamplePages = testModePages
	}
	if opts.startPage > 0 {
		s.StartPage = opts.startPage
	}

	if opts.interactive {
		if err := promptJob(bufio.NewReader(in), out, &s); err != nil {
			return s, err
		}
	}

	if pageNumber {
		s.Columns = append(s.Columns, constants.PageNumberColumn)
	}
	s.Columns = common.NormalizeColumns(s.Columns)
	if len(s.Columns) == 0 {
		return s, common.InvalidInputError("no columns given: use --columns, --columns-file or --interactive")
	}
	if err := common.ValidateColumns(s.Columns); err != nil {
		return s, err
	}
	return s, nil
}

func splitColumns(raw string) []string {
	return strings.Split(raw, ",")
}

// promptJob asks for columns, instructions and test mode the way the
// interactive extractor always has.
func promptJob(r *bufio.Reader, w io.Writer, s *jobSettings) error {
	headerStyle.Fprintln(w, "\n COLUMN SETUP:")
	fmt.Fprintln(w, "Enter column names (common for scientific docs: Species, Common Name, Location, Status)")
	fmt.Fprintf(w, "\n Suggested columns: %s\n", strings.Join(suggestedColumns, ", "))

	answer, err := ask(r, w, "Use suggested columns? (Y/n): ")
	if err != nil {
		return err
	}
	var cols []string
	if strings.ToLower(answer) == "n" {
		fmt.Fprintln(w, "\nEnter custom column names (press Enter on empty line to finish):")
		for {
			col, err := ask(r, w, fmt.Sprintf("Column %d: ", len(cols)+1))
			if err != nil {
				return err
			}
			if col == "" {
				break
			}
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		cols = append([]string(nil), suggestedColumns...)
	}
	s.Columns = cols
	fmt.Fprintf(w, "\n Final columns: %s\n", strings.Join(cols, ", "))

	headerStyle.Fprintln(w, "\n ADDITIONAL INSTRUCTIONS (optional):")
	instr, err := ask(r, w, "Any specific extraction notes: ")
	if err != nil {
		return err
	}
	s.Instructions = instr

	headerStyle.Fprintln(w, "\n TEST MODE:")
	test, err := ask(r, w, fmt.Sprintf("Run in test mode (process only first %d pages)? (y/N): ", testModePages))
	if err != nil {
		return err
	}
	if strings.ToLower(test) == "y" {
		s.SamplePages = testModePages
	} else {
		s.SamplePages = 0
	}
	return nil
}

// ask prints prompt and returns the trimmed line. EOF counts as an empty answer.
func ask(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
