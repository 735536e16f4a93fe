package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studynotes/internal/app"
	"studynotes/internal/model"
)

type fakeIndexer struct {
	errs  []error
	calls int
}

func (f *fakeIndexer) Reindex(ctx context.Context, event model.NoteChangedEvent) (int, error) {
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func testEvent() model.NoteChangedEvent {
	return model.NoteChangedEvent{EventID: "evt-1", NoteID: 3, UserID: 1, Title: "T", Content: "body"}
}

func newTestWorker(indexer Indexer) *ReindexWorker {
	return NewReindexWorker(nil, indexer, "test.queue", 3, time.Millisecond)
}

func TestReindexWithRetryRecoversFromTransientFailures(t *testing.T) {
	transient := errors.New("db timeout")
	indexer := &fakeIndexer{errs: []error{transient, transient, nil}}
	w := newTestWorker(indexer)

	err := w.reindexWithRetry(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, 3, indexer.calls)
}

func TestReindexWithRetryExhaustsAttempts(t *testing.T) {
	transient := errors.New("db timeout")
	indexer := &fakeIndexer{errs: []error{transient, transient, transient}}
	w := newTestWorker(indexer)

	err := w.reindexWithRetry(context.Background(), testEvent())
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, indexer.calls)
}

func TestReindexWithRetryDoesNotRetryFatalErrors(t *testing.T) {
	fatal := fmt.Errorf("reindex note 3: %w", app.ErrDimensionMismatch)
	indexer := &fakeIndexer{errs: []error{fatal, fatal, fatal}}
	w := newTestWorker(indexer)

	err := w.reindexWithRetry(context.Background(), testEvent())
	assert.ErrorIs(t, err, app.ErrDimensionMismatch)
	assert.Equal(t, 1, indexer.calls)
}

func TestReindexWithRetryDoesNotRetryInvalidEvents(t *testing.T) {
	indexer := &fakeIndexer{errs: []error{app.ErrInvalidInput}}
	w := newTestWorker(indexer)

	err := w.reindexWithRetry(context.Background(), testEvent())
	assert.ErrorIs(t, err, app.ErrInvalidInput)
	assert.Equal(t, 1, indexer.calls)
}

func TestReindexWithRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	indexer := &fakeIndexer{errs: []error{errors.New("db timeout")}}
	w := newTestWorker(indexer)

	err := w.reindexWithRetry(ctx, testEvent())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, indexer.calls)
}
