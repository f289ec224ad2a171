// Package scheduler drives the periodic hand-off from persisted events to
// the fill-creation queue.
package scheduler

import (
	"context"
	"time"

	"github.com/fill-tracker/internal/config"
	"github.com/fill-tracker/internal/logging"
	"github.com/fill-tracker/internal/models"
	"github.com/fill-tracker/internal/queue"
	"github.com/fill-tracker/internal/storage"
	"github.com/fill-tracker/internal/types"
)

// EventFinder is the event store surface the scheduler reads and flags.
type EventFinder interface {
	FindUnscheduled(ctx context.Context, eventTypes []types.EventType, limit int) ([]storage.UnscheduledEvent, error)
	MarkFillCreationScheduled(ctx context.Context, eventIDs []string) error
}

// TransactionLookup resolves which parent transactions have been fetched.
type TransactionLookup interface {
	GetByHashes(ctx context.Context, hashes []string) (map[string]*models.Transaction, error)
}

// Publisher enqueues fill-creation jobs.
type Publisher interface {
	Publish(ctx context.Context, queueName, jobName string, payload interface{}, opts *queue.PublishOptions) error
}

// CreateFillsPayload is the create-fills-for-event job body.
type CreateFillsPayload struct {
	EventID string `json:"eventId"`
}

// FillCreationScheduler periodically picks a batch of unscheduled
// fill-producing events, publishes one fill-creation job per event whose
// parent transaction has been fetched, and flags the published events.
// Events whose transaction is still missing are left for the next run so
// one laggard never blocks the batch.
type FillCreationScheduler struct {
	events       EventFinder
	transactions TransactionLookup
	queue        Publisher
	batchSize    int
	interval     time.Duration
	logger       *logging.Logger
}

func NewFillCreationScheduler(events EventFinder, transactions TransactionLookup, q Publisher, cfg *config.SchedulerConfig, logger *logging.Logger) *FillCreationScheduler {
	return &FillCreationScheduler{
		events:       events,
		transactions: transactions,
		queue:        q,
		batchSize:    cfg.BatchSize,
		interval:     cfg.Interval,
		logger:       logger,
	}
}

// Run executes scheduling rounds until the context is cancelled.
func (s *FillCreationScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.WithError(err).Error("fill creation scheduling round failed")
			}
		}
	}
}

// RunOnce performs a single scheduling round and returns how many events
// were scheduled.
func (s *FillCreationScheduler) RunOnce(ctx context.Context) (int, error) {
	candidates, err := s.events.FindUnscheduled(ctx, types.FillCreationEventTypes, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// One bulk lookup resolves transaction presence for the whole batch
	// before any job is published.
	fetched, err := s.transactions.GetByHashes(ctx, transactionHashes(candidates))
	if err != nil {
		return 0, err
	}

	var scheduled []string
	var publishErr error
	for _, candidate := range candidates {
		if _, ok := fetched[candidate.TransactionHash]; !ok {
			continue
		}

		err := s.queue.Publish(ctx, queue.QueueEventProcessing, queue.JobCreateFillsForEvent,
			&CreateFillsPayload{EventID: candidate.ID},
			&queue.PublishOptions{JobID: queue.JobCreateFillsForEvent + "-" + candidate.ID})
		if err != nil {
			publishErr = err
			break
		}
		scheduled = append(scheduled, candidate.ID)
	}

	// Flag whatever was actually published, even on a partial round; the
	// flag is the authoritative guard against double scheduling.
	if len(scheduled) > 0 {
		if err := s.events.MarkFillCreationScheduled(ctx, scheduled); err != nil {
			return len(scheduled), err
		}
	}

	if publishErr != nil {
		return len(scheduled), publishErr
	}

	s.logger.WithFields(map[string]interface{}{
		"candidates": len(candidates),
		"scheduled":  len(scheduled),
	}).Debug("fill creation scheduling round complete")

	return len(scheduled), nil
}

func transactionHashes(candidates []storage.UnscheduledEvent) []string {
	seen := make(map[string]struct{}, len(candidates))
	hashes := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate.TransactionHash]; ok {
			continue
		}
		seen[candidate.TransactionHash] = struct{}{}
		hashes = append(hashes, candidate.TransactionHash)
	}
	return hashes
}
