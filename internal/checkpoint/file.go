package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/pdftables/constants"
)

// FileStore keeps one JSON file per document: <dir>/<documentID>_progress.json.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = "."
	}
	return &FileStore{dir: dir, logger: logger}
}

// Path returns the checkpoint file for documentID.
func (s *FileStore) Path(documentID string) string {
	return filepath.Join(s.dir, documentID+constants.CheckpointSuffix)
}

// Save writes to a temp file in the same directory and renames it over the
// previous checkpoint.
func (s *FileStore) Save(_ context.Context, documentID string, cp Checkpoint) error {
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, documentID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(documentID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint.file.saved", "document_id", documentID, "rows", cp.TotalRows, "last_page", cp.LastPage)
	return nil
}

func (s *FileStore) Load(_ context.Context, documentID string) (Checkpoint, error) {
	b, err := os.ReadFile(s.Path(documentID))
	if errors.Is(err, fs.ErrNotExist) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", s.Path(documentID), err)
	}
	return cp, nil
}

func (s *FileStore) Clear(_ context.Context, documentID string) error {
	err := os.Remove(s.Path(documentID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
