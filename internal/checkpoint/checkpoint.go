// Package checkpoint persists partial extraction progress so an interrupted
// run can resume without repeating model calls.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/pdftables/internal/common"
	"github.com/joseph-ayodele/pdftables/internal/llm"
)

// Checkpoint is the serialized progress of one document.
type Checkpoint struct {
	Data      []llm.Row `json:"data"`
	Columns   []string  `json:"columns"`
	Timestamp int64     `json:"timestamp"`
	TotalRows int       `json:"total_rows"`
	LastPage  int       `json:"last_page"` // 1-based number of the last processed PDF page, 0 if none
}

// New builds a checkpoint stamped with the current time.
func New(rows []llm.Row, columns []string, lastPage int) Checkpoint {
	return Checkpoint{
		Data:      rows,
		Columns:   columns,
		Timestamp: time.Now().Unix(),
		TotalRows: len(rows),
		LastPage:  lastPage,
	}
}

// IsEmpty reports whether nothing was stored.
func (c Checkpoint) IsEmpty() bool {
	return len(c.Data) == 0 && len(c.Columns) == 0 && c.LastPage == 0
}

// Resumable reports whether a run with columns should continue from c. A
// checkpoint without rows is never resumed, so a run that extracted nothing
// starts over.
func (c Checkpoint) Resumable(columns []string) bool {
	return len(c.Data) > 0 && c.Compatible(columns)
}

// Compatible reports whether the checkpoint was written for the same column
// set. Order does not matter; duplicates collapse.
func (c Checkpoint) Compatible(columns []string) bool {
	return sameSet(c.Columns, columns)
}

func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, x := range a {
		as[x] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, x := range b {
		bs[x] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for x := range as {
		if _, ok := bs[x]; !ok {
			return false
		}
	}
	return true
}

// Store saves, loads and clears checkpoints keyed by document id.
type Store interface {
	Save(ctx context.Context, documentID string, cp Checkpoint) error
	// Load returns the zero Checkpoint when nothing is stored. A corrupt
	// entry yields the zero Checkpoint and an error.
	Load(ctx context.Context, documentID string) (Checkpoint, error)
	Clear(ctx context.Context, documentID string) error
}

// NewStore builds the backend selected by cfg.Backend. The returned close
// function releases backend connections.
func NewStore(ctx context.Context, cfg common.CheckpointConfig, logger *slog.Logger) (Store, func() error, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Dir, logger), func() error { return nil }, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, common.NewAppError(common.CodeStorage, "redis ping "+cfg.RedisAddr, err)
		}
		return NewRedisStore(rdb, cfg.TTL, logger), rdb.Close, nil
	default:
		return nil, nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown checkpoint backend %q", cfg.Backend), common.ErrConfig)
	}
}
