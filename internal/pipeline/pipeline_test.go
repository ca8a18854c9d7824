package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pdftables/constants"
	"github.com/joseph-ayodele/pdftables/internal/checkpoint"
	"github.com/joseph-ayodele/pdftables/internal/common"
	"github.com/joseph-ayodele/pdftables/internal/llm"
	"github.com/joseph-ayodele/pdftables/internal/raster"
	"github.com/joseph-ayodele/pdftables/internal/repository"
)

// fakeRasterizer renders pages 1..pages, or exactly the page numbers in
// numbers when set.
type fakeRasterizer struct {
	pages   int
	numbers []int
	err     error
}

func (f *fakeRasterizer) Rasterize(_ context.Context, _ string, _ int) ([]raster.PageImage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.numbers != nil {
		out := make([]raster.PageImage, 0, len(f.numbers))
		for _, n := range f.numbers {
			out = append(out, raster.PageImage{Number: n, PNG: []byte(fmt.Sprintf("page-%d", n))})
		}
		return out, nil
	}
	out := make([]raster.PageImage, f.pages)
	for i := range out {
		out[i] = raster.PageImage{Number: i + 1, PNG: []byte(fmt.Sprintf("page-%d", i+1))}
	}
	return out, nil
}

// scriptedExtractor answers per page number; pages without a script yield one row.
type scriptedExtractor struct {
	mu     sync.Mutex
	pages  map[int][]llm.Row
	errs   map[int]error
	onCall func(page int)
	calls  []int
}

func (s *scriptedExtractor) ExtractPage(_ context.Context, req llm.PageRequest) (llm.PageResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req.PageNumber)
	s.mu.Unlock()
	if s.onCall != nil {
		s.onCall(req.PageNumber)
	}
	if err := s.errs[req.PageNumber]; err != nil {
		return llm.PageResult{}, err
	}
	if rows, ok := s.pages[req.PageNumber]; ok {
		return llm.PageResult{Rows: copyRows(rows)}, nil
	}
	return llm.PageResult{Rows: []llm.Row{{"Species": fmt.Sprintf("species-%d", req.PageNumber), "Status": "Ex"}}}, nil
}

func copyRows(rows []llm.Row) []llm.Row {
	out := make([]llm.Row, len(rows))
	for i, r := range rows {
		c := make(llm.Row, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}

type captureWriter struct {
	rows    []llm.Row
	columns []string
	dest    string
	calls   int
	err     error
}

func (c *captureWriter) Write(rows []llm.Row, columns []string, dest string) error {
	c.calls++
	c.rows, c.columns, c.dest = rows, columns, dest
	return c.err
}

type recordingStore struct {
	*checkpoint.FileStore
	saves []checkpoint.Checkpoint
}

func (r *recordingStore) Save(ctx context.Context, id string, cp checkpoint.Checkpoint) error {
	r.saves = append(r.saves, cp)
	return r.FileStore.Save(ctx, id, cp)
}

func newStore(t *testing.T) *recordingStore {
	return &recordingStore{FileStore: checkpoint.NewFileStore(t.TempDir(), nil)}
}

func TestRunThreePageScenario(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writer := &captureWriter{}
	x := &scriptedExtractor{
		pages: map[int][]llm.Row{
			1: {{"Species": "Quercus alba", "Status": "Ex"}, {"Species": "Acer rubrum", "Status": "T"}},
			3: {{"Species": "Pinus strobus"}},
		},
		errs: map[int]error{2: errors.New("model unavailable")},
	}
	outDir := t.TempDir()
	p := New(Config{OutputDir: outDir}, &fakeRasterizer{pages: 3}, x, store, writer, nil)

	res, err := p.Run(ctx, Job{PDFPath: "input/survey.pdf", Columns: []string{"Species", "Status"}})
	require.NoError(t, err)

	require.Len(t, writer.rows, 3)
	assert.Equal(t, "Quercus alba", writer.rows[0]["Species"])
	assert.Equal(t, "Acer rubrum", writer.rows[1]["Species"])
	assert.Equal(t, "Pinus strobus", writer.rows[2]["Species"])
	for _, r := range writer.rows {
		assert.NotContains(t, r, constants.PageNumberColumn)
	}
	assert.Equal(t, []string{"Species", "Status"}, writer.columns)
	assert.Equal(t, filepath.Join(outDir, "survey_Spe_Sta_enhanced.xlsx"), res.OutputPath)
	assert.Equal(t, res.OutputPath, writer.dest)

	assert.Equal(t, "survey", res.DocumentID)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 3, res.PagesTotal)
	assert.Equal(t, 3, res.PagesProcessed)
	assert.Equal(t, 2, res.PagesWithData)
	assert.Equal(t, 1, res.PagesWithoutData)
	assert.False(t, res.Resumed)
	assert.InDelta(t, 66.7, res.Summary.SuccessRate, 0.01)
	assert.InDelta(t, 1.5, res.Summary.AvgRowsPerPage, 0.01)

	cp, err := store.Load(ctx, "survey")
	require.NoError(t, err)
	assert.True(t, cp.IsEmpty())
	assert.NoFileExists(t, store.Path("survey"))
}

func TestRunInterruptedAndResumed(t *testing.T) {
	store := newStore(t)
	columns := []string{"Species", "Status"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &scriptedExtractor{
		errs: map[int]error{6: context.Canceled},
		onCall: func(page int) {
			if page == 6 {
				cancel()
			}
		},
	}
	writer := &captureWriter{}
	p := New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 10}, first, store, writer, nil)

	_, err := p.Run(ctx, Job{PDFPath: "atlas.pdf", Columns: columns})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, writer.calls)

	cp, err := store.Load(context.Background(), "atlas")
	require.NoError(t, err)
	require.Len(t, cp.Data, 5)
	assert.Equal(t, 5, cp.LastPage)
	assert.Equal(t, 5, cp.TotalRows)
	require.NotEmpty(t, store.saves)
	assert.Equal(t, 5, store.saves[0].LastPage)

	second := &scriptedExtractor{}
	p = New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 10}, second, store, writer, nil)
	res, err := p.Run(context.Background(), Job{PDFPath: "atlas.pdf", Columns: []string{"Status", "Species"}})
	require.NoError(t, err)

	assert.Equal(t, []int{6, 7, 8, 9, 10}, second.calls)
	assert.True(t, res.Resumed)
	require.Len(t, writer.rows, 10)
	seen := map[any]bool{}
	for _, r := range writer.rows {
		assert.False(t, seen[r["Species"]], "duplicate row %v", r["Species"])
		seen[r["Species"]] = true
	}
	assert.NoFileExists(t, store.Path("atlas"))
}

func TestRunDiscardsIncompatibleCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	stale := checkpoint.New([]llm.Row{{"Name": "old"}}, []string{"Name"}, 2)
	require.NoError(t, store.FileStore.Save(ctx, "doc", stale))

	x := &scriptedExtractor{}
	writer := &captureWriter{}
	p := New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 2}, x, store, writer, nil)

	res, err := p.Run(ctx, Job{PDFPath: "doc.pdf", Columns: []string{"Species", "Status"}})
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, []int{1, 2}, x.calls)
	require.Len(t, writer.rows, 2)
	assert.NotContains(t, writer.rows[0], "Name")
}

func TestRunKeepsPageNumberWhenRequested(t *testing.T) {
	writer := &captureWriter{}
	p := New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 2}, &scriptedExtractor{}, nil, writer, nil)

	_, err := p.Run(context.Background(), Job{PDFPath: "doc.pdf", Columns: []string{"Species", constants.PageNumberColumn}})
	require.NoError(t, err)
	require.Len(t, writer.rows, 2)
	assert.Equal(t, 1, writer.rows[0][constants.PageNumberColumn])
	assert.Equal(t, 2, writer.rows[1][constants.PageNumberColumn])
}

func TestRunSampleAndStartPage(t *testing.T) {
	x := &scriptedExtractor{}
	writer := &captureWriter{}
	var progress []PageProgress
	p := New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 10}, x, nil, writer, nil)

	res, err := p.Run(context.Background(), Job{
		PDFPath:     "doc.pdf",
		Columns:     []string{"Species"},
		StartPage:   1,
		SamplePages: 3,
		OnPage:      func(pp PageProgress) { progress = append(progress, pp) },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, x.calls)
	assert.Equal(t, 2, res.PagesProcessed)
	require.Len(t, progress, 2)
	assert.Equal(t, 3, progress[1].PageNumber)
	assert.Equal(t, 3, progress[1].Total)
	assert.Equal(t, 2, progress[1].TotalRows)
}

func TestRunEmptyDocumentWritesHeaderOnly(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.FileStore.Save(ctx, "blank", checkpoint.New(nil, []string{"Other"}, 0)))

	x := &scriptedExtractor{pages: map[int][]llm.Row{1: nil, 2: nil}}
	writer := &captureWriter{}
	p := New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 2}, x, store, writer, nil)

	res, err := p.Run(ctx, Job{PDFPath: "blank.pdf", Columns: []string{"Species"}})
	require.NoError(t, err)
	assert.Equal(t, 1, writer.calls)
	assert.Empty(t, writer.rows)
	assert.Zero(t, res.Rows)
	assert.Equal(t, 2, res.PagesWithoutData)
	// nothing was written, so the checkpoint is left alone
	assert.FileExists(t, store.Path("blank"))
}

func TestRunRestartsAfterRunWithoutRows(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	columns := []string{"Species", "Status"}

	unauthorized := errors.New("401 unauthorized")
	failing := &scriptedExtractor{errs: map[int]error{}}
	for page := 1; page <= 5; page++ {
		failing.errs[page] = unauthorized
	}
	writer := &captureWriter{}
	p := New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 5}, failing, store, writer, nil)

	res, err := p.Run(ctx, Job{PDFPath: "checklist.pdf", Columns: columns})
	require.NoError(t, err)
	assert.Zero(t, res.Rows)

	cp, err := store.Load(ctx, "checklist")
	require.NoError(t, err)
	assert.Empty(t, cp.Data)
	assert.Equal(t, 5, cp.LastPage)

	working := &scriptedExtractor{}
	p = New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 5}, working, store, writer, nil)
	res, err = p.Run(ctx, Job{PDFPath: "checklist.pdf", Columns: columns})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, working.calls)
	assert.False(t, res.Resumed)
	assert.Equal(t, 5, res.Rows)
	assert.Len(t, writer.rows, 5)
	assert.NoFileExists(t, store.Path("checklist"))
}

func TestRunResumesAfterLastPageNumber(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	columns := []string{"Species"}
	// Pages 1-3 were processed while page 3 rendered; this time page 3 is missing.
	prior := checkpoint.New([]llm.Row{{"Species": "species-1"}, {"Species": "species-2"}}, columns, 3)
	require.NoError(t, store.FileStore.Save(ctx, "flora", prior))

	x := &scriptedExtractor{}
	writer := &captureWriter{}
	p := New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{numbers: []int{1, 2, 4, 5}}, x, store, writer, nil)

	res, err := p.Run(ctx, Job{PDFPath: "flora.pdf", Columns: columns})
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, []int{4, 5}, x.calls)
	require.Len(t, writer.rows, 4)
	assert.Equal(t, "species-4", writer.rows[2]["Species"])
}

func TestFirstPage(t *testing.T) {
	pages := []raster.PageImage{{Number: 1}, {Number: 2}, {Number: 4}, {Number: 5}}
	assert.Equal(t, 0, firstPage(pages, 0, 0))
	assert.Equal(t, 2, firstPage(pages, 0, 3))
	assert.Equal(t, 3, firstPage(pages, 3, 1))
	assert.Equal(t, 4, firstPage(pages, 0, 9))
	assert.Equal(t, 1, firstPage(pages, -2, 1))
}

func TestRunEphemeralSkipsCheckpoints(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	columns := []string{"Species"}
	require.NoError(t, store.FileStore.Save(ctx, "upload", checkpoint.New([]llm.Row{{"Species": "old"}}, columns, 1)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	x := &scriptedExtractor{
		errs: map[int]error{3: context.Canceled},
		onCall: func(page int) {
			if page == 3 {
				cancel()
			}
		},
	}
	p := New(Config{OutputDir: t.TempDir(), CheckpointEvery: 1}, &fakeRasterizer{pages: 4}, x, store, &captureWriter{}, nil)

	res, err := p.Run(ctx, Job{PDFPath: "upload.pdf", Columns: columns, Ephemeral: true})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Resumed)
	assert.Equal(t, []int{1, 2, 3}, x.calls)
	assert.Empty(t, store.saves)

	cp, err := store.Load(context.Background(), "upload")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.LastPage, "stored checkpoint is left untouched")
}

func TestRunFatalRasterizeError(t *testing.T) {
	writer := &captureWriter{}
	r := &fakeRasterizer{err: common.DocumentOpenError("missing.pdf", errors.New("no such file"))}
	p := New(Config{OutputDir: t.TempDir()}, r, &scriptedExtractor{}, nil, writer, nil)

	_, err := p.Run(context.Background(), Job{PDFPath: "missing.pdf", Columns: []string{"Species"}})
	require.ErrorIs(t, err, common.ErrDocumentOpen)
	assert.True(t, common.IsFatal(err))
	assert.Zero(t, writer.calls)

	r.err = errors.New("renderer crashed")
	_, err = p.Run(context.Background(), Job{PDFPath: "broken.pdf", Columns: []string{"Species"}})
	require.ErrorIs(t, err, common.ErrRasterize)
}

func TestRunRejectsBadInput(t *testing.T) {
	p := New(Config{}, &fakeRasterizer{pages: 1}, &scriptedExtractor{}, nil, &captureWriter{}, nil)

	_, err := p.Run(context.Background(), Job{PDFPath: "doc.pdf", Columns: []string{" ", ""}})
	require.Error(t, err)
	assert.True(t, common.IsValidationError(err))

	_, err = p.Run(context.Background(), Job{Columns: []string{"Species"}})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestRunWriteFailureKeepsProgress(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writer := &captureWriter{err: errors.New("disk full")}
	p := New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 2}, &scriptedExtractor{}, store, writer, nil)

	_, err := p.Run(ctx, Job{PDFPath: "doc.pdf", Columns: []string{"Species"}})
	require.Error(t, err)

	cp, err := store.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, cp.Data, 2)
	assert.Equal(t, 2, cp.LastPage)
}

type fakeRuns struct {
	mu       sync.Mutex
	started  []string
	outcomes []repository.RunOutcome
}

func (f *fakeRuns) Start(_ context.Context, documentID, _ string, _ []string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, documentID)
	return uuid.New(), nil
}

func (f *fakeRuns) Finish(_ context.Context, _ uuid.UUID, out repository.RunOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, out)
	return nil
}

func (f *fakeRuns) List(context.Context, int) ([]repository.Run, error) { return nil, nil }

type fakePublisher struct{ published []string }

func (f *fakePublisher) Publish(_ context.Context, path string) (string, error) {
	f.published = append(f.published, path)
	return "gs://bucket/" + filepath.Base(path), nil
}

func TestRunRecordsHistoryAndPublishes(t *testing.T) {
	runs := &fakeRuns{}
	pub := &fakePublisher{}
	p := New(Config{OutputDir: t.TempDir()}, &fakeRasterizer{pages: 1}, &scriptedExtractor{}, nil, &captureWriter{}, nil,
		WithRunRepository(runs), WithPublisher(pub))

	res, err := p.Run(context.Background(), Job{PDFPath: "doc.pdf", Columns: []string{"Species"}})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	assert.Equal(t, "gs://bucket/doc_Spe_enhanced.xlsx", res.PublishedURI)
	assert.Equal(t, []string{res.OutputPath}, pub.published)

	require.Len(t, runs.outcomes, 1)
	assert.Equal(t, constants.RunStatusSucceeded, runs.outcomes[0].Status)
	assert.Equal(t, 1, runs.outcomes[0].Rows)
	assert.Equal(t, []string{"doc"}, runs.started)
}

func TestPaceDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, paceDelay(time.Second, 51))
	assert.Equal(t, time.Second, paceDelay(time.Second, 50))
	assert.Equal(t, time.Second, paceDelay(time.Second, 1))
	assert.Equal(t, 500*time.Millisecond, paceDelay(time.Second, 0))
	assert.Zero(t, paceDelay(0, 10))
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "survey", DocumentID("/data/in/survey.pdf"))
	assert.Equal(t, "a.b", DocumentID("a.b.pdf"))

	assert.Equal(t, filepath.Join("out", "doc_Sci_Com_Loc_enhanced.xlsx"),
		OutputPath("out", "doc.pdf", []string{"Scientific Name", "Common Name", "Location", "Status"}))
	assert.Equal(t, filepath.Join("out", "doc_ID_enhanced.xlsx"), OutputPath("out", "doc.pdf", []string{"ID"}))
}

func TestAssessQuality(t *testing.T) {
	rows := []llm.Row{
		{"Species": "Quercus alba", "Status": "N/A"},
		{"Species": "nan", "Status": "Ex"},
		{"Species": " ", "Status": float64(3)},
		{"Status": nil},
	}
	q := AssessQuality(rows, []string{"Species", "Status"})
	require.Len(t, q.Columns, 2)
	assert.Equal(t, 1, q.Columns[0].Filled)
	assert.Equal(t, 25.0, q.Columns[0].Completeness)
	assert.Equal(t, 2, q.Columns[1].Filled)
	assert.Equal(t, 50.0, q.Columns[1].Completeness)
	assert.Equal(t, rows[0], q.SampleRow)

	empty := AssessQuality(nil, []string{"Species"})
	assert.Zero(t, empty.Columns[0].Completeness)
	assert.Nil(t, empty.SampleRow)
}

func TestDocLocksSerialize(t *testing.T) {
	locks := NewDocLocks()
	unlock := locks.Lock("doc")

	acquired := make(chan struct{})
	go func() {
		u := locks.Lock("doc")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	other := locks.Lock("other")
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
	require.Eventually(t, func() bool { return locks.held() == 0 }, time.Second, 10*time.Millisecond)
}
