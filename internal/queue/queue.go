// Package queue implements the Redis-backed job queue the pipeline stages
// communicate through. Each queue is a Redis list; jobs are JSON envelopes.
// Publishing with an explicit job ID deduplicates: concurrent publishes of
// the same ID collapse to one job. Failed jobs are retried with backoff
// when the error is retryable, and dead-lettered once attempts run out.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fill-tracker/internal/config"
	apperrors "github.com/fill-tracker/internal/errors"
	"github.com/fill-tracker/internal/logging"
	"github.com/fill-tracker/internal/retry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue names
const (
	QueueTransactionProcessing = "transaction-processing"
	QueueAddressProcessing     = "address-processing"
	QueueEventProcessing       = "event-processing"
)

// Job names
const (
	JobFetchTransaction    = "fetch-transaction"
	JobFetchAddressType    = "fetch-address-type"
	JobCreateFillsForEvent = "create-fills-for-event"
)

// Job is the envelope carried on a queue
type Job struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// UnmarshalPayload decodes the job payload into dest
func (j *Job) UnmarshalPayload(dest interface{}) error {
	if err := json.Unmarshal(j.Payload, dest); err != nil {
		return fmt.Errorf("failed to unmarshal payload of job %s: %w", j.Name, err)
	}
	return nil
}

// PublishOptions control publication behavior
type PublishOptions struct {
	// JobID deduplicates: while a job with this ID is pending (or within
	// the dedup TTL), further publishes with the same ID are dropped.
	JobID string
}

// Handler processes a single job. A returned error fails the invocation;
// whether it is retried is decided by errors.IsRetryable.
type Handler func(ctx context.Context, job *Job) error

// Queue is the broker client: publish side and consumer pool
type Queue struct {
	client      *redis.Client
	logger      *logging.Logger
	workers     int
	maxAttempts int
	dedupTTL    time.Duration
	backoff     *retry.Config

	mu       sync.RWMutex
	handlers map[string]map[string]Handler // queue name -> job name -> handler

	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New creates a queue client
func New(client *redis.Client, cfg *config.QueueConfig, logger *logging.Logger) *Queue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &Queue{
		client:      client,
		logger:      logger,
		workers:     workers,
		maxAttempts: maxAttempts,
		dedupTTL:    cfg.DedupTTL,
		backoff:     retry.DefaultConfig(),
		handlers:    make(map[string]map[string]Handler),
		stopCh:      make(chan struct{}),
		stopped:     true,
	}
}

func listKey(queueName string) string {
	return "queue:" + queueName
}

func deadKey(queueName string) string {
	return "queue:" + queueName + ":dead"
}

func dedupKey(queueName, jobID string) string {
	return "queue:dedup:" + queueName + ":" + jobID
}

// Publish enqueues a job on the named queue
func (q *Queue) Publish(ctx context.Context, queueName, jobName string, payload interface{}, opts *PublishOptions) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for job %s: %w", jobName, err)
	}

	job := &Job{
		ID:      uuid.NewString(),
		Name:    jobName,
		Payload: payloadJSON,
	}

	if opts != nil && opts.JobID != "" {
		job.ID = opts.JobID

		set, err := q.client.SetNX(ctx, dedupKey(queueName, job.ID), 1, q.dedupTTL).Result()
		if err != nil {
			return fmt.Errorf("failed to reserve job id %s: %w", job.ID, err)
		}
		if !set {
			// Duplicate publish collapsed
			q.logger.WithFields(map[string]interface{}{
				"queue": queueName,
				"job":   jobName,
				"jobId": job.ID,
			}).Debug("Dropped duplicate job")
			return nil
		}
	}

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", jobName, err)
	}

	if err := q.client.LPush(ctx, listKey(queueName), jobJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish job %s to %s: %w", jobName, queueName, err)
	}

	return nil
}

// Register binds a handler to a job name on a queue. Must be called before
// Start.
func (q *Queue) Register(queueName, jobName string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.handlers[queueName] == nil {
		q.handlers[queueName] = make(map[string]Handler)
	}
	q.handlers[queueName][jobName] = handler
}

// Start launches the consumer pool for every registered queue
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if !q.stopped {
		q.mu.Unlock()
		return fmt.Errorf("queue already started")
	}
	q.stopped = false
	queueNames := make([]string, 0, len(q.handlers))
	for name := range q.handlers {
		queueNames = append(queueNames, name)
	}
	q.mu.Unlock()

	for _, name := range queueNames {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.consume(ctx, name)
		}
	}

	return nil
}

// Stop signals the consumer pool to drain and waits for it
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
}

// Depth returns the number of pending jobs on a queue
func (q *Queue) Depth(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, listKey(queueName)).Result()
}

// consume is a single worker loop for one queue
func (q *Queue) consume(ctx context.Context, queueName string) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		default:
		}

		result, err := q.client.BRPop(ctx, 2*time.Second, listKey(queueName)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.WithError(err).WithField("queue", queueName).Error("Failed to pop job")
			select {
			case <-time.After(time.Second):
			case <-q.stopCh:
				return
			}
			continue
		}

		// BRPop returns [key, value]
		if len(result) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			q.logger.WithError(err).WithField("queue", queueName).Error("Discarding malformed job")
			continue
		}

		q.dispatch(ctx, queueName, &job)
	}
}

// dispatch runs the registered handler for a job and applies the retry
// policy to failures
func (q *Queue) dispatch(ctx context.Context, queueName string, job *Job) {
	q.mu.RLock()
	handler := q.handlers[queueName][job.Name]
	q.mu.RUnlock()

	logger := q.logger.WithFields(map[string]interface{}{
		"queue":   queueName,
		"job":     job.Name,
		"jobId":   job.ID,
		"attempt": job.Attempts + 1,
	})

	if handler == nil {
		logger.Error("No handler registered for job")
		q.deadLetter(ctx, queueName, job)
		return
	}

	err := handler(logging.WithLogger(ctx, logger), job)
	if err == nil {
		return
	}

	job.Attempts++
	if !apperrors.IsRetryable(err) || job.Attempts >= q.maxAttempts {
		logger.ErrorWithErr("Job failed permanently", err)
		q.deadLetter(ctx, queueName, job)
		return
	}

	delay := q.backoff.Delay(job.Attempts)
	logger.WithFields(map[string]interface{}{
		"delay": delay.String(),
		"error": err.Error(),
	}).Warn("Job failed, requeueing")

	select {
	case <-time.After(delay):
	case <-q.stopCh:
	case <-ctx.Done():
	}

	jobJSON, marshalErr := json.Marshal(job)
	if marshalErr != nil {
		logger.ErrorWithErr("Failed to marshal job for requeue", marshalErr)
		return
	}
	if pushErr := q.client.LPush(ctx, listKey(queueName), jobJSON).Err(); pushErr != nil {
		logger.ErrorWithErr("Failed to requeue job", pushErr)
	}
}

// deadLetter parks a job on the queue's dead list for operator inspection
func (q *Queue) deadLetter(ctx context.Context, queueName string, job *Job) {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := q.client.LPush(ctx, deadKey(queueName), jobJSON).Err(); err != nil {
		q.logger.ErrorWithErr("Failed to dead-letter job", err)
	}
}
