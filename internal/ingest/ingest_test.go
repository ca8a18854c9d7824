package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestScanPDFs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.pdf"), "%PDF-b")
	writeFile(t, filepath.Join(root, "A.PDF"), "%PDF-a")
	writeFile(t, filepath.Join(root, "notes.txt"), "x")
	writeFile(t, filepath.Join(root, ".hidden.pdf"), "%PDF-h")
	writeFile(t, filepath.Join(root, "sub", "c.pdf"), "%PDF-c")

	docs, stats, err := ScanPDFs(context.Background(), root, ScanOptions{SkipHidden: true})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, filepath.Join(root, "A.PDF"), docs[0].Path)
	assert.Equal(t, filepath.Join(root, "b.pdf"), docs[1].Path)
	assert.Equal(t, int64(6), docs[1].Size)
	assert.Equal(t, uint32(2), stats.Matched)

	docs, _, err = ScanPDFs(context.Background(), root, ScanOptions{Recursive: true, SkipHidden: true})
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, _, err = ScanPDFs(context.Background(), root, ScanOptions{Recursive: true})
	require.NoError(t, err)
	assert.Len(t, docs, 4)
}

func TestScanPDFsErrors(t *testing.T) {
	_, _, err := ScanPDFs(context.Background(), "", ScanOptions{})
	require.Error(t, err)

	_, _, err = ScanPDFs(context.Background(), filepath.Join(t.TempDir(), "missing"), ScanOptions{})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "doc.pdf")
	writeFile(t, file, "%PDF")
	_, _, err = ScanPDFs(context.Background(), file, ScanOptions{})
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	writeFile(t, a, "same")
	writeFile(t, b, "same")

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}

func TestSeen(t *testing.T) {
	s := newSeen()
	assert.True(t, s.add("a.pdf", "1"))
	assert.False(t, s.add("a.pdf", "1"))
	assert.True(t, s.add("a.pdf", "2"))
	assert.True(t, s.add("b.pdf", "1"))
}

func TestWatchEmitsNewPDFs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "%PDF-old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(3 * time.Second):
			t.Fatal("no watch event")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(root, "existing.pdf"), next())

	writeFile(t, filepath.Join(root, "ignored.txt"), "x")
	writeFile(t, filepath.Join(root, "new.pdf"), "%PDF-new")
	assert.Equal(t, filepath.Join(root, "new.pdf"), next())

	cancel()
	for range events {
	}
}

func TestWatchRequiresRoots(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{})
	require.Error(t, err)
}
