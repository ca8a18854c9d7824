// Package ingest discovers PDF documents on the local filesystem.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/pdftables/constants"
)

// Document is a PDF found on disk.
type Document struct {
	Path    string
	Size    int64
	ModTime time.Time
	Err     string
}

type DirStats struct {
	Scanned uint32
	Matched uint32
	Failed  uint32
}

type ScanOptions struct {
	Recursive  bool
	SkipHidden bool
}

// ScanPDFs lists the PDFs under root sorted by path. Unreadable entries are
// reported in the result with Err set and do not stop the walk.
func ScanPDFs(ctx context.Context, root string, opts ScanOptions) ([]Document, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, DirStats{}, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, DirStats{}, fmt.Errorf("%s is not a directory", root)
	}

	var docs []Document
	var stats DirStats

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		stats.Scanned++
		if walkErr != nil {
			docs = append(docs, Document{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if opts.SkipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !constants.IsPDF(path) {
			return nil
		}
		stats.Matched++

		fi, err := d.Info()
		if err != nil {
			docs = append(docs, Document{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		docs = append(docs, Document{Path: path, Size: fi.Size(), ModTime: fi.ModTime()})
		return nil
	})
	if err != nil {
		return docs, stats, fmt.Errorf("walk: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, stats, nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// Fingerprint is the hex SHA-256 of the file contents.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
