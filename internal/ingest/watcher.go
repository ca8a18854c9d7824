package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/pdftables/constants"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing PDFs
	Debounce    time.Duration // coalesce rapid create/write bursts while a file is copied in
	Logger      *slog.Logger
}

// Watch emits the path of every PDF created or rewritten under cfg.Roots
// until ctx is done. A file that is written again with identical contents is
// emitted only once.
func Watch(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("ingest.watch.no_roots")
		return nil, nil, errors.New("no roots provided")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("ingest.watch.create_failed", "error", err)
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if cfg.InitialScan && constants.IsPDF(path) && !IsHidden(path) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("ingest.watch.add_root_failed", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)
	seen := newSeen()

	var mu sync.Mutex
	pending := map[string]struct{}{}
	flush := make(chan struct{}, 1)

	emit := func(path string) {
		sum, err := Fingerprint(path)
		if err != nil {
			logger.Warn("ingest.watch.unreadable", "path", path, "error", err)
			return
		}
		if !seen.add(path, sum) {
			logger.Debug("ingest.watch.unchanged", "path", path)
			return
		}
		select {
		case evCh <- path:
			logger.Info("ingest.watch.detected", "path", path)
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("ingest.watch.close_failed", "error", err)
			}
		}()

		for _, p := range initial {
			emit(p)
		}

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		drain := func() {
			mu.Lock()
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			pending = map[string]struct{}{}
			mu.Unlock()
			for _, p := range paths {
				emit(p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-flush:
				drain()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create == fsnotify.Create {
					// a new directory is watched too; files make Add fail harmlessly
					if err := w.Add(e.Name); err == nil {
						logger.Debug("ingest.watch.dir_added", "path", e.Name)
					}
				}
				if !constants.IsPDF(e.Name) || IsHidden(e.Name) {
					continue
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				pending[e.Name] = struct{}{}
				mu.Unlock()
				if cfg.Debounce <= 0 {
					drain()
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(cfg.Debounce, func() {
					select {
					case flush <- struct{}{}:
					default:
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// seen remembers the last fingerprint emitted per path.
type seen struct {
	mu   sync.Mutex
	sums map[string]string
}

func newSeen() *seen {
	return &seen{sums: make(map[string]string)}
}

// add reports whether path has new contents.
func (s *seen) add(path, sum string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sums[path] == sum {
		return false
	}
	s.sums[path] = sum
	return true
}
