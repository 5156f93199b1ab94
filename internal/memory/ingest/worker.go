package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shimonpozd/astra-sub000/internal/embedding"
	"github.com/shimonpozd/astra-sub000/internal/memory/store"
	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

const (
	dequeueTimeout  = 5 * time.Second
	summaryInterval = time.Minute
)

// Worker drains the ingestion queue one item at a time: derive the fact
// id, embed the text, upsert into the vector store and mirror into the
// graph. Items are processed strictly in order; a failed item is logged
// and counted, never retried in place, so one poison item cannot stall
// the queue.
type Worker struct {
	id       string
	queue    *Queue
	embedder embedding.Embedding
	vector   store.VectorStore
	graph    store.GraphStore
	log      *logger.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a Worker.
func NewWorker(queue *Queue, embedder embedding.Embedding, vector store.VectorStore, graph store.GraphStore, log *logger.Logger) *Worker {
	return &Worker{
		id:       uuid.NewString(),
		queue:    queue,
		embedder: embedder,
		vector:   vector,
		graph:    graph,
		log:      log,
	}
}

// Run processes items until the context is cancelled. It is safe to
// restart a worker at any point; fact ids make every write idempotent.
func (w *Worker) Run(ctx context.Context) {
	w.log.WithPayload(map[string]interface{}{"worker_id": w.id}).Info("ingestion worker started")

	if requeued, err := w.queue.Recover(ctx); err != nil {
		w.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "ingest"}).
			Warn("processing-list recovery failed")
	} else if requeued > 0 {
		w.log.WithPayload(map[string]interface{}{"requeued": requeued}).
			Info("requeued unacked envelopes from a previous run")
	}

	summary := time.NewTicker(summaryInterval)
	defer summary.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.WithPayload(w.stats()).Info("ingestion worker stopped")
			return
		case <-summary.C:
			w.log.WithPayload(w.stats()).Info("ingestion worker summary")
		default:
		}

		envelope, raw, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.failed.Add(1)
			w.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "ingest"}).
				Error("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if envelope == nil {
			continue
		}

		// ack either way: a failed item is dropped from this delivery,
		// not retried in place, so it must not linger unacked
		if err := w.processEnvelope(ctx, envelope); err != nil {
			w.failed.Add(1)
			w.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "ingest"}).
				Error("ingest item failed, skipping")
		} else {
			w.processed.Add(1)
		}
		if err := w.queue.Ack(ctx, raw); err != nil {
			w.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "ingest"}).
				Warn("ack failed, envelope will be redelivered after restart")
		}
	}
}

func (w *Worker) processEnvelope(ctx context.Context, envelope *models.IngestEnvelope) error {
	var item models.IngestItem
	if err := json.Unmarshal([]byte(envelope.ItemJSON), &item); err != nil {
		return err
	}
	if item.TS == 0 {
		item.TS = time.Now().Unix()
	}

	// the speaker is the user the fact belongs to; recall matches it
	// against the querying user id for the same-speaker bonus
	fact := &models.Fact{
		FactID:     DeriveFactID(envelope.Collection, &item),
		Text:       item.Text,
		Speaker:    item.UserID,
		Timestamp:  item.TS,
		TopicSlugs: item.Tags,
		Category:   item.Metadata["category"],
		Collection: envelope.Collection,
	}
	if item.OriginRef != "" {
		fact.SourceMessageIDs = []string{item.OriginRef}
	}
	if entities := item.Metadata["entities"]; entities != "" {
		fact.EntitySlugs = splitCSV(entities)
	}

	vector, err := w.embedder.Embed(ctx, item.Text)
	if err != nil {
		return err
	}

	if err := w.vector.UpsertFact(ctx, fact, vector); err != nil {
		return err
	}

	// graph mirror is best-effort; the vector store is the source of
	// truth and the mirror converges on the next upsert of the same id
	if err := w.graph.MirrorFact(ctx, fact, vector); err != nil {
		w.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "ingest"}).
			Warn("graph mirror failed for fact " + fact.FactID)
	}
	return nil
}

func (w *Worker) stats() map[string]interface{} {
	return map[string]interface{}{
		"worker_id": w.id,
		"processed": w.processed.Load(),
		"failed":    w.failed.Load(),
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
