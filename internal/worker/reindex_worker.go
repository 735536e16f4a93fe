package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"studynotes/internal/app"
	"studynotes/internal/model"
)

// Indexer runs one re-index pass for a note-changed event.
type Indexer interface {
	Reindex(ctx context.Context, event model.NoteChangedEvent) (int, error)
}

// ReindexWorker consumes note-changed events and drives the re-index
// workflow with bounded retries. Exhausted or fatal events are logged
// and dropped: the note is left with its previous generation or with
// zero chunks, both safe states, and never with corrupt data.
type ReindexWorker struct {
	conn      *amqp.Connection
	indexer   Indexer
	queueName string
	attempts  int
	retryBase time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReindexWorker(conn *amqp.Connection, indexer Indexer, queueName string, attempts int, retryBase time.Duration) *ReindexWorker {
	if attempts <= 0 {
		attempts = 3
	}
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	return &ReindexWorker{
		conn:      conn,
		indexer:   indexer,
		queueName: queueName,
		attempts:  attempts,
		retryBase: retryBase,
	}
}

func (w *ReindexWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var event model.NoteChangedEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					log.Printf("worker decode note event failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.reindexWithRetry(workerCtx, event); err != nil {
					log.Printf("worker reindex failed permanently: note=%d event=%s err=%v",
						event.NoteID, event.EventID, err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// reindexWithRetry retries transient failures with exponential backoff.
// A dimension mismatch is not transient: retrying cannot fix a provider
// returning wrongly-shaped vectors, so it fails immediately.
func (w *ReindexWorker) reindexWithRetry(ctx context.Context, event model.NoteChangedEvent) error {
	var lastErr error
	for attempt := 0; attempt < w.attempts; attempt++ {
		if attempt > 0 {
			backoff := w.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		count, err := w.indexer.Reindex(ctx, event)
		if err == nil {
			log.Printf("worker reindexed note=%d chunks=%d event=%s", event.NoteID, count, event.EventID)
			return nil
		}
		if errors.Is(err, app.ErrDimensionMismatch) || errors.Is(err, app.ErrInvalidInput) {
			return err
		}
		lastErr = err
		log.Printf("worker reindex attempt %d/%d failed: note=%d err=%v", attempt+1, w.attempts, event.NoteID, err)
	}
	return lastErr
}

func (w *ReindexWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
