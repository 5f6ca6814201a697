// Package documents maintains document processing state derived from per-chunk tasks.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nimburion/docflow/pkg/observability/logger"
	"github.com/nimburion/docflow/pkg/observability/tracing"
)

// RunStatus mirrors the document.run column.
type RunStatus string

const (
	RunUnstart RunStatus = "0"
	RunRunning RunStatus = "1"
	RunCancel  RunStatus = "2"
	RunDone    RunStatus = "3"
	RunFail    RunStatus = "4"
)

const (
	// ProgressFailed marks a document or task that failed.
	ProgressFailed = -1.0
	// ProgressDone marks a document or task that completed.
	ProgressDone = 1.0
)

const (
	selectRunningDocumentsQuery = `SELECT id FROM document WHERE run = $1 AND progress >= 0 AND progress < 1 ORDER BY create_time`
	selectTaskProgressQuery     = `SELECT progress FROM task WHERE doc_id = $1`
	updateDocumentProgressQuery = `UPDATE document SET progress = $2, run = $3, update_time = NOW() WHERE id = $1 AND progress >= 0 AND progress < 1`
)

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
	DB() *sql.DB
}

// Service recomputes document progress from task progress.
type Service struct {
	db  TxRunner
	log logger.Logger
}

// NewService builds the progress service.
func NewService(db TxRunner, log logger.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("documents: database is required")
	}
	if log == nil {
		return nil, errors.New("documents: logger is required")
	}
	return &Service{db: db, log: log}, nil
}

// Summary is the outcome of one document's recomputation.
type Summary struct {
	Progress float64
	Run      RunStatus
}

// Summarize folds task progress values into a document summary. Any failed task fails
// the document; all tasks at 1 finish it; otherwise progress is the mean, with failed
// tasks counted as 0.
func Summarize(tasks []float64) (Summary, bool) {
	if len(tasks) == 0 {
		return Summary{}, false
	}
	var sum float64
	finished, failed := true, false
	for _, p := range tasks {
		if p == ProgressFailed {
			failed = true
		}
		if p != ProgressDone {
			finished = false
		}
		if p >= 0 {
			sum += p
		}
	}
	switch {
	case failed:
		return Summary{Progress: ProgressFailed, Run: RunFail}, true
	case finished:
		return Summary{Progress: ProgressDone, Run: RunDone}, true
	default:
		return Summary{Progress: sum / float64(len(tasks)), Run: RunRunning}, true
	}
}

// UpdateProgress runs one pass over every document still in progress. A failing
// document is logged and skipped; the joined errors are returned after the pass.
func (s *Service) UpdateProgress(ctx context.Context) error {
	ids, err := s.runningDocuments(ctx)
	if err != nil {
		return err
	}

	var errs []error
	updated := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		changed, err := s.updateDocument(ctx, id)
		if err != nil {
			s.log.Error("document progress update failed", "doc_id", id, "error", err)
			errs = append(errs, fmt.Errorf("document %s: %w", id, err))
			continue
		}
		if changed {
			updated++
		}
	}
	s.log.Debug("document progress pass complete", "documents", len(ids), "updated", updated)
	return errors.Join(errs...)
}

func (s *Service) runningDocuments(ctx context.Context) (_ []string, err error) {
	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationDBQuery, "document")
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	rows, err := s.db.DB().QueryContext(ctx, selectRunningDocumentsQuery, string(RunRunning))
	if err != nil {
		return nil, fmt.Errorf("list running documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate running documents: %w", err)
	}
	return ids, nil
}

func (s *Service) updateDocument(ctx context.Context, id string) (bool, error) {
	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationDBTx, "document")
	defer span.End()

	changed := false
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		progress, err := taskProgress(ctx, tx, id)
		if err != nil {
			return err
		}
		summary, ok := Summarize(progress)
		if !ok {
			return nil
		}
		if _, err := tx.ExecContext(ctx, updateDocumentProgressQuery, id, summary.Progress, string(summary.Run)); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		changed = true
		return nil
	})
	tracing.RecordError(span, err)
	return changed, err
}

func taskProgress(ctx context.Context, tx *sql.Tx, docID string) ([]float64, error) {
	rows, err := tx.QueryContext(ctx, selectTaskProgressQuery, docID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var progress []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan task progress: %w", err)
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}
