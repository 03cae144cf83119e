package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mailagent/internal/gmailc"
	"mailagent/internal/model"
	"mailagent/internal/store"
)

// pageSize is the provider page size for listing calls.
const pageSize int64 = 100

// MailboxClient is the mailbox capability the orchestrator consumes.
type MailboxClient interface {
	ListMessageIDs(ctx context.Context, since time.Time, pageToken string, max int64) ([]string, string, error)
	FetchMessage(ctx context.Context, id string) (*model.Message, error)
}

// Classifier assigns a complete classification to one message.
type Classifier interface {
	Classify(ctx context.Context, msg *model.Message) (model.Classification, error)
}

// Store is the persistence contract the orchestrator writes through.
type Store interface {
	UpsertMessage(ctx context.Context, m *model.Message) error
	UpdateClassification(ctx context.Context, id, bodyHash string, c model.Classification) error
	GetCheckpoint(ctx context.Context) (model.SyncCheckpoint, error)
	AdvanceCheckpoint(ctx context.Context, cp model.SyncCheckpoint) error
	LogSync(ctx context.Context, rec model.SyncRecord) error
}

// Orchestrator coordinates mailbox fetches, storage and classification
// for incremental and historical sync runs. Sync is best-effort:
// per-message failures land in the report, only auth failures abort.
type Orchestrator struct {
	mailbox    MailboxClient
	classifier Classifier
	store      Store
	workers    int
	log        *slog.Logger
}

// New creates an Orchestrator. workers bounds concurrent classification
// calls within a batch.
func New(mailbox MailboxClient, classifier Classifier, st Store, workers int, log *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		mailbox:    mailbox,
		classifier: classifier,
		store:      st,
		workers:    workers,
		log:        log,
	}
}

// SyncRecent fetches up to maxResults messages newer than the checkpoint,
// stores them, classifies them when classify is set, and advances the
// checkpoint to the newest successfully stored message.
func (o *Orchestrator) SyncRecent(ctx context.Context, maxResults int64, classify bool) (*model.SyncReport, error) {
	started := time.Now()

	cp, err := o.store.GetCheckpoint(ctx)
	if err != nil {
		return nil, err
	}

	r := newRun(o, classify)
	err = r.fetchPages(ctx, cp.LastSyncedAt, maxResults)
	if err == nil {
		r.classifyStored(ctx)
	}

	// The checkpoint covers successfully stored messages only, and it
	// advances even when an auth error cut the run short: everything
	// already stored is durable. The cursor is recorded for diagnosis
	// only: provider page tokens are scoped to the query that produced
	// them, so the next run derives a fresh query from last_synced_at
	// instead of resuming the stale token.
	if !r.maxReceived.IsZero() {
		cpErr := o.store.AdvanceCheckpoint(ctx, model.SyncCheckpoint{
			LastSyncedAt: r.maxReceived,
			Cursor:       r.cursor,
		})
		if cpErr != nil {
			o.log.Error("failed to advance checkpoint", "error", cpErr)
		}
	}

	o.logRun(ctx, "recent", started, r.report)
	if err != nil {
		return r.report, err
	}

	o.log.Info("recent sync complete",
		"fetched", r.report.Fetched, "stored", r.report.Stored,
		"classified", r.report.Classified, "failed", r.report.Failed)
	return r.report, nil
}

// SyncHistorical fetches all messages in [now - daysBack, now),
// independent of the checkpoint, which it never mutates. Intended to run
// in the background; cancelling ctx stops it between pages.
func (o *Orchestrator) SyncHistorical(ctx context.Context, daysBack int, classify bool) (*model.SyncReport, error) {
	started := time.Now()
	since := time.Now().AddDate(0, 0, -daysBack)

	r := newRun(o, classify)
	err := r.fetchPages(ctx, since, 0)
	if err == nil {
		r.classifyStored(ctx)
	}

	o.logRun(ctx, "historical", started, r.report)
	if err != nil {
		return r.report, err
	}

	o.log.Info("historical sync complete",
		"days_back", daysBack,
		"fetched", r.report.Fetched, "stored", r.report.Stored,
		"classified", r.report.Classified, "failed", r.report.Failed)
	return r.report, nil
}

func (o *Orchestrator) logRun(ctx context.Context, kind string, started time.Time, report *model.SyncReport) {
	err := o.store.LogSync(ctx, model.SyncRecord{
		Kind:       kind,
		StartedAt:  started,
		Duration:   time.Since(started),
		Fetched:    report.Fetched,
		Stored:     report.Stored,
		Classified: report.Classified,
		Failed:     report.Failed,
		Errors:     store.EncodeSyncErrors(report.Errors),
	})
	if err != nil {
		o.log.Error("failed to log sync run", "kind", kind, "error", err)
	}
}

// run carries the state of one sync invocation.
type run struct {
	o        *Orchestrator
	classify bool

	report      *model.SyncReport
	stored      []*model.Message
	maxReceived time.Time
	cursor      string

	mu sync.Mutex
}

func newRun(o *Orchestrator, classify bool) *run {
	return &run{o: o, classify: classify, report: &model.SyncReport{}}
}

// fetchPages lists and stores messages page by page. maxResults of 0
// means unbounded. Returns an error only for auth failures, which make
// every remaining call fail identically.
func (r *run) fetchPages(ctx context.Context, since time.Time, maxResults int64) error {
	var pageToken string
	var listed int64

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		size := pageSize
		if maxResults > 0 && maxResults-listed < size {
			size = maxResults - listed
		}

		ids, next, err := r.o.mailbox.ListMessageIDs(ctx, since, pageToken, size)
		if err != nil {
			if errors.Is(err, gmailc.ErrAuth) {
				return err
			}
			r.recordFailure(fmt.Sprintf("list: %v", err))
			return nil
		}

		listed += int64(len(ids))
		r.report.Fetched += len(ids)

		for _, id := range ids {
			if err := r.fetchAndStore(ctx, id); errors.Is(err, gmailc.ErrAuth) {
				return err
			}
		}

		r.cursor = next
		if next == "" || (maxResults > 0 && listed >= maxResults) {
			return nil
		}
		pageToken = next
	}
}

// fetchAndStore pulls one message and upserts it. Messages whose stored
// classification survived the upsert (same body fingerprint) are not
// queued for classification again. Only auth errors propagate;
// everything else becomes a report entry.
func (r *run) fetchAndStore(ctx context.Context, id string) error {
	msg, err := r.o.mailbox.FetchMessage(ctx, id)
	if err != nil {
		if errors.Is(err, gmailc.ErrAuth) {
			return err
		}
		r.o.log.Error("fetch failed", "id", id, "error", err)
		r.recordFailure(fmt.Sprintf("fetch %s: %v", id, err))
		return nil
	}

	if err := r.o.store.UpsertMessage(ctx, msg); err != nil {
		r.o.log.Error("store failed", "id", id, "error", err)
		r.recordFailure(fmt.Sprintf("store %s: %v", id, err))
		return nil
	}

	r.report.Stored++
	if msg.ReceivedAt.After(r.maxReceived) {
		r.maxReceived = msg.ReceivedAt
	}
	if !msg.Classified() {
		r.stored = append(r.stored, msg)
	}
	return nil
}

// classifyStored classifies stored messages concurrently, bounded by the
// worker count so the local model server is not overloaded. Failed
// messages stay stored and unclassified for retry on the next sync.
func (r *run) classifyStored(ctx context.Context) {
	if !r.classify || len(r.stored) == 0 {
		return
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.o.workers)

	for _, msg := range r.stored {
		eg.Go(func() error {
			cls, err := r.o.classifier.Classify(egCtx, msg)
			if err != nil {
				r.recordFailure(fmt.Sprintf("classify %s: %v", msg.ID, err))
				return nil
			}

			err = r.o.store.UpdateClassification(egCtx, msg.ID, msg.BodyHash, cls)
			if err != nil {
				r.recordFailure(fmt.Sprintf("apply classification %s: %v", msg.ID, err))
				return nil
			}

			r.mu.Lock()
			r.report.Classified++
			r.mu.Unlock()
			return nil
		})
	}

	_ = eg.Wait()
}

func (r *run) recordFailure(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Failed++
	r.report.Errors = append(r.report.Errors, msg)
}
