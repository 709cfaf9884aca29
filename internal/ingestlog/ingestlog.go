// Package ingestlog journals scheduled job runs and the external calls
// they make.
package ingestlog

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/weatherdepot/weatherdepot/internal/database"
	"github.com/weatherdepot/weatherdepot/internal/log"
)

type contextKey struct{}

var runContextKey = contextKey{}

// Run is one journaled invocation of a scheduled job. Item outcomes are
// counted so the run's final status can be derived.
type Run struct {
	ID        string
	JobName   string
	startedAt time.Time
	okCount   atomic.Int64
	failCount atomic.Int64
}

// RecordItemSuccess counts one successfully processed item.
func (r *Run) RecordItemSuccess() {
	r.okCount.Add(1)
}

// RecordItemFailure counts one failed item. The run keeps going; a
// non-zero failure count makes the final status FAILED.
func (r *Run) RecordItemFailure() {
	r.failCount.Add(1)
}

// Failures returns the current failure count.
func (r *Run) Failures() int64 {
	return r.failCount.Load()
}

// Journal writes run and event records through the ingest pool.
type Journal struct {
	store *database.Store
}

// NewJournal creates a journal bound to the ingest store.
func NewJournal(store *database.Store) *Journal {
	return &Journal{store: store}
}

// StartRun opens a run record in RUNNING state and returns a context
// carrying it, so the request fabric can attribute events.
func (j *Journal) StartRun(ctx context.Context, jobName string) (context.Context, *Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		JobName:   jobName,
		startedAt: time.Now(),
	}
	rec := database.IngestRun{
		RunID:     run.ID,
		JobName:   jobName,
		StartedAt: run.startedAt,
		Status:    database.RunStatusRunning,
	}
	if err := j.store.DB().WithContext(ctx).Create(&rec).Error; err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, runContextKey, run), run, nil
}

// FinishRun closes the run record. Status is SUCCESS iff no item failed
// and no fatal error occurred; a fatal error is recorded in the notes.
func (j *Journal) FinishRun(ctx context.Context, run *Run, fatal error) {
	status := database.RunStatusSuccess
	notes := ""
	if fatal != nil {
		status = database.RunStatusFailed
		notes = fatal.Error()
	} else if run.Failures() > 0 {
		status = database.RunStatusFailed
	}

	// Closing the run must survive a cancelled job context, or a run
	// interrupted at shutdown stays RUNNING forever.
	now := time.Now()
	err := j.store.DB().WithContext(context.WithoutCancel(ctx)).
		Model(&database.IngestRun{}).
		Where("run_id = ?", run.ID).
		Updates(map[string]interface{}{
			"finished_at": now,
			"status":      status,
			"notes":       notes,
		}).Error
	if err != nil {
		log.Errorf("error closing ingest run %s: %v", run.ID, err)
	}
}

// RunFromContext returns the run bound to the context, if any.
func RunFromContext(ctx context.Context) (*Run, bool) {
	run, ok := ctx.Value(runContextKey).(*Run)
	return run, ok
}

// AppendEvent implements fabric.EventSink: one journal row per logical
// upstream call, attributed to the context's run when one is bound.
func (j *Journal) AppendEvent(ctx context.Context, source, endpoint string, httpStatus *int, responseMs *int64, errMsg string, headers http.Header) {
	run, ok := RunFromContext(ctx)
	if !ok {
		return
	}

	event := database.IngestEvent{
		RunID:      run.ID,
		Source:     source,
		Endpoint:   endpoint,
		HTTPStatus: httpStatus,
		ResponseMs: responseMs,
		Error:      errMsg,
	}
	if len(headers) > 0 {
		if b, err := json.Marshal(flattenHeaders(headers)); err == nil {
			event.ResponseHeaders.Set(b)
		}
	} else {
		event.ResponseHeaders.Set(nil)
	}

	// Event writes survive a cancelled job context; the row is the record
	// of what already happened.
	if err := j.store.DB().WithContext(context.WithoutCancel(ctx)).Create(&event).Error; err != nil {
		log.Errorf("error appending ingest event for run %s: %v", run.ID, err)
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
