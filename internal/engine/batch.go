package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dentaflow/verify-engine/internal/db"
	"github.com/dentaflow/verify-engine/internal/store"
)

// ProgressFunc receives a progress snapshot after each batch item, before
// the next item starts.
type ProgressFunc func(progress db.BatchProgress)

// BatchVerify processes the given queued verification ids sequentially.
// Sequential on purpose: it keeps progress reporting deterministic and
// bounds load on the verification backend. One item's failure is recorded
// in the summary and never aborts the rest; an id missing from the queue is
// itself just a failed item. The batch reports Success as long as the
// orchestration ran to completion, even with zero successful items.
//
// Cancellation is cooperative: ctx is checked between items, never
// mid-item.
func (e *Engine) BatchVerify(ctx context.Context, ids []string, onProgress ProgressFunc) (*db.BatchResult, error) {
	batchID := uuid.NewString()

	e.record(ctx, db.EventBatchStarted, "", db.LevelInfo, map[string]any{
		"batchId": batchID,
		"total":   len(ids),
	})

	result := &db.BatchResult{
		BatchID: batchID,
		Results: make([]db.BatchItem, 0, len(ids)),
		Summary: db.BatchSummary{Total: len(ids)},
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			// The terminal audit entry must outlive the cancelled context
			// or the stream sink drops it.
			e.record(context.WithoutCancel(ctx), db.EventBatchFailed, "", db.LevelError, map[string]any{
				"batchId":   batchID,
				"processed": i,
				"total":     len(ids),
				"reason":    "cancelled",
			})
			return nil, err
		}

		item := e.runBatchItem(ctx, id)
		result.Results = append(result.Results, item)
		if item.Success {
			result.Summary.Successful++
		} else {
			result.Summary.Failed++
			result.Summary.Errors = append(result.Summary.Errors,
				fmt.Sprintf("%s: %s", id, item.Error))
		}

		progress := db.BatchProgress{
			Current:     i + 1,
			Total:       len(ids),
			Percentage:  (i + 1) * 100 / len(ids),
			CurrentItem: id,
		}
		if onProgress != nil {
			onProgress(progress)
		}
		if e.progress != nil {
			e.progress.Publish(ctx, batchID, progress)
		}
	}

	result.Success = true

	e.record(context.WithoutCancel(ctx), db.EventBatchCompleted, "", db.LevelInfo, map[string]any{
		"batchId":    batchID,
		"total":      result.Summary.Total,
		"successful": result.Summary.Successful,
		"failed":     result.Summary.Failed,
	})

	return result, nil
}

func (e *Engine) runBatchItem(ctx context.Context, id string) db.BatchItem {
	e.mu.Lock()
	req, err := e.store.GetRequest(ctx, id)
	if err == nil {
		req.Status = db.StatusInProgress
		req.UpdatedAt = e.clock.Now()
		err = e.store.PutRequest(ctx, req)
	}
	e.mu.Unlock()

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return db.BatchItem{ID: id, Error: "not found in queue"}
		}
		return db.BatchItem{ID: id, Error: Categorize(err).Message}
	}

	res, err := e.execute(ctx, req, true)
	if err != nil {
		return db.BatchItem{ID: id, Error: Categorize(err).Error()}
	}

	return db.BatchItem{ID: id, Success: true, Result: res}
}
