package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdftables/constants"
)

const runsTable = "extraction_runs"

var ErrRunNotFound = errors.New("run not found")

// Run is one row of the run history.
type Run struct {
	ID             uuid.UUID           `json:"id"`
	DocumentID     string              `json:"document_id"`
	SourcePath     string              `json:"source_path"`
	Columns        []string            `json:"columns"`
	Status         constants.RunStatus `json:"status"`
	OutputPath     string              `json:"output_path,omitempty"`
	Rows           int                 `json:"rows"`
	PagesTotal     int                 `json:"pages_total"`
	PagesProcessed int                 `json:"pages_processed"`
	PagesWithData  int                 `json:"pages_with_data"`
	Resumed        bool                `json:"resumed"`
	Error          string              `json:"error,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
}

// RunOutcome is what a finished run reports.
type RunOutcome struct {
	Status         constants.RunStatus
	OutputPath     string
	Rows           int
	PagesTotal     int
	PagesProcessed int
	PagesWithData  int
	Resumed        bool
	Error          string
}

type RunRepository interface {
	Start(ctx context.Context, documentID, sourcePath string, columns []string) (uuid.UUID, error)
	Finish(ctx context.Context, id uuid.UUID, out RunOutcome) error
	List(ctx context.Context, limit int) ([]Run, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log}
}

func (r *runRepo) Start(ctx context.Context, documentID, sourcePath string, columns []string) (uuid.UUID, error) {
	cols, err := json.Marshal(columns)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode columns: %w", err)
	}
	id := uuid.New()

	query, args := entsql.Dialect(r.db.dialect).
		Insert(runsTable).
		Columns("id", "document_id", "source_path", "columns", "status", "started_at").
		Values(id.String(), documentID, sourcePath, string(cols), string(constants.RunStatusRunning), time.Now().UnixMilli()).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.log.Error("runs.start_failed", "document_id", documentID, "error", err)
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	r.log.Info("runs.started", "run_id", id, "document_id", documentID)
	return id, nil
}

func (r *runRepo) Finish(ctx context.Context, id uuid.UUID, out RunOutcome) error {
	query, args := entsql.Dialect(r.db.dialect).
		Update(runsTable).
		Set("status", string(out.Status)).
		Set("output_path", out.OutputPath).
		Set("row_count", out.Rows).
		Set("pages_total", out.PagesTotal).
		Set("pages_processed", out.PagesProcessed).
		Set("pages_with_data", out.PagesWithData).
		Set("resumed", out.Resumed).
		Set("error_message", out.Error).
		Set("finished_at", time.Now().UnixMilli()).
		Where(entsql.EQ("id", id.String())).
		Query()

	var res entsql.Result
	if err := r.db.drv.Exec(ctx, query, args, &res); err != nil {
		r.log.Error("runs.finish_failed", "run_id", id, "error", err)
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	r.log.Info("runs.finished", "run_id", id, "status", out.Status, "rows", out.Rows)
	return nil
}

func (r *runRepo) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args := entsql.Dialect(r.db.dialect).
		Select(
			"id", "document_id", "source_path", "columns", "status", "output_path",
			"row_count", "pages_total", "pages_processed", "pages_with_data", "resumed",
			"error_message", "started_at", "finished_at",
		).
		From(entsql.Table(runsTable)).
		OrderBy(entsql.Desc("started_at")).
		Limit(limit).
		Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run        Run
			id, cols   string
			status     string
			startedAt  int64
			finishedAt entsql.NullInt64
		)
		if err := rows.Scan(
			&id, &run.DocumentID, &run.SourcePath, &cols, &status, &run.OutputPath,
			&run.Rows, &run.PagesTotal, &run.PagesProcessed, &run.PagesWithData, &run.Resumed,
			&run.Error, &startedAt, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		run.ID = parsed
		run.Status = constants.RunStatus(status)
		if err := json.Unmarshal([]byte(cols), &run.Columns); err != nil {
			r.log.Warn("runs.columns_decode_failed", "run_id", id, "error", err)
		}
		run.StartedAt = time.UnixMilli(startedAt).UTC()
		if finishedAt.Valid {
			t := time.UnixMilli(finishedAt.Int64).UTC()
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
