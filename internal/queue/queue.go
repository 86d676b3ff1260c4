package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kraklabs/repoanalyzer/internal/metrics"
	"github.com/kraklabs/repoanalyzer/internal/model"
)

const (
	keyPending    = "analyze:queue:pending"
	keyProcessing = "analyze:queue:processing"
	keyProgress   = "analyze:queue:progress:"  // + id
	keyHeartbeat  = "analyze:queue:heartbeat:" // + id
	keyAttempts   = "analyze:queue:attempts:"  // + id
	keyCancelled  = "analyze:queue:cancelled"  // set
	keyCompleted  = "analyze:queue:completed"  // list of ids, capped
	keyFailed     = "analyze:queue:failed"     // list of ids, retained

	maxAttempts       = 3
	initialBackoff    = 2 * time.Second
	heartbeatTTL      = 30 * time.Second
	completedRetain   = time.Hour
	completedMaxItems = 100
	failedRetain      = 24 * time.Hour
	dequeueTimeout    = 5 * time.Second
)

// State is the lifecycle state reported by Status, independent of the
// AnalysisRecord's own Status enum (the queue only knows whether a job is
// still pending delivery, in flight, or has reached a terminal outcome).
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateDone    State = "done"
	StateFailed  State = "failed"
	StateUnknown State = "unknown"
)

// JobStatus is returned by Status.
type JobStatus struct {
	State         State
	Progress      model.Progress
	FailureReason string
}

// Queue is the Redis-backed implementation of the job queue contract (C1),
// grounded on flyingrobots-go-redis-work-queue's BRPOPLPUSH + processing-list
// + heartbeat-key pattern in internal/worker/worker.go.
type Queue struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New connects to the Redis instance described by addr/password.
func New(addr, password string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &Queue{rdb: rdb, logger: logger}
}

func (q *Queue) Close() error { return q.rdb.Close() }

func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Enqueue places a job keyed by analysisID. Duplicate enqueues (the same id
// still pending or active) are rejected; the id's reservation is released
// once the job completes or finally fails.
func (q *Queue) Enqueue(ctx context.Context, analysisID string) error {
	attemptsKey := keyAttempts + analysisID
	set, err := q.rdb.SetNX(ctx, attemptsKey, 0, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve job: %w", err)
	}
	if !set {
		return fmt.Errorf("job already enqueued: %s", analysisID)
	}

	job := Job{AnalysisID: analysisID, Attempt: 1, EnqueuedAt: time.Now().UTC()}
	payload, err := job.Marshal()
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, keyPending, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	metrics.JobEnqueued()
	return q.setProgress(ctx, analysisID, model.Progress{CurrentStep: "queued", Percentage: 0, StepsTotal: 6})
}

// Status returns what the queue currently knows about a job.
func (q *Queue) Status(ctx context.Context, analysisID string) (JobStatus, error) {
	if done, err := q.rdb.LPos(ctx, keyCompleted, analysisID, redis.LPosArgs{}).Result(); err == nil && done >= 0 {
		return JobStatus{State: StateDone, Progress: q.getProgress(ctx, analysisID)}, nil
	}
	if _, err := q.rdb.Exists(ctx, keyHeartbeat+analysisID).Result(); err == nil {
		if n, _ := q.rdb.Exists(ctx, keyHeartbeat+analysisID).Result(); n > 0 {
			return JobStatus{State: StateActive, Progress: q.getProgress(ctx, analysisID)}, nil
		}
	}

	reason, err := q.rdb.HGet(ctx, "analyze:queue:failure_reason", analysisID).Result()
	if err == nil && reason != "" {
		return JobStatus{State: StateFailed, Progress: q.getProgress(ctx, analysisID), FailureReason: reason}, nil
	}

	exists, err := q.rdb.Exists(ctx, keyAttempts+analysisID).Result()
	if err != nil {
		return JobStatus{}, err
	}
	if exists == 0 {
		return JobStatus{State: StateUnknown}, nil
	}
	return JobStatus{State: StatePending, Progress: q.getProgress(ctx, analysisID)}, nil
}

// Cancel removes a job not yet in flight. Returns false if the job could not
// be found in the pending list (e.g. already dequeued).
func (q *Queue) Cancel(ctx context.Context, analysisID string) (bool, error) {
	// Scan the pending list for a matching payload; LRem works on exact
	// string match, and the payload's attempt and enqueue time are not known here.
	pending, err := q.rdb.LRange(ctx, keyPending, 0, -1).Result()
	if err != nil {
		return false, err
	}
	payload := ""
	for _, raw := range pending {
		if job, jerr := UnmarshalJob(raw); jerr == nil && job.AnalysisID == analysisID {
			payload = raw
		}
	}

	n, err := q.rdb.LRem(ctx, keyPending, 0, payload).Result()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := q.rdb.SAdd(ctx, keyCancelled, analysisID).Err(); err != nil {
		return false, err
	}
	metrics.JobCancelled()
	return true, nil
}

// Drain does nothing and returns nil: it neither closes the queue nor stops
// the workers. Workers stop when the context passed to RunWorkers is
// cancelled, and Close releases the Redis connection.
func (q *Queue) Drain(ctx context.Context) error {
	return nil
}

func (q *Queue) setProgress(ctx context.Context, analysisID string, p model.Progress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	// Transport failures publishing progress are non-fatal per the job
	// queue's failure semantics; log and continue rather than propagate.
	if err := q.rdb.Set(ctx, keyProgress+analysisID, raw, 0).Err(); err != nil {
		q.logger.Warn("queue.progress.publish_failed", "analysis_id", analysisID, "err", err)
	}
	return nil
}

func (q *Queue) getProgress(ctx context.Context, analysisID string) model.Progress {
	raw, err := q.rdb.Get(ctx, keyProgress+analysisID).Bytes()
	if err != nil {
		return model.Progress{}
	}
	var p model.Progress
	_ = json.Unmarshal(raw, &p)
	return p
}

// Handler processes one job to completion. It receives the current attempt
// number so callers can decide whether partial progress should reset.
type Handler func(ctx context.Context, analysisID string, attempt int, report func(model.Progress)) error

// RunWorkers starts n worker goroutines pulling from the pending list via
// BRPOPLPUSH into a per-worker processing list, following
// flyingrobots-go-redis-work-queue/internal/worker/worker.go's Run/runOne
// shape. It blocks until ctx is cancelled.
func (q *Queue) RunWorkers(ctx context.Context, n int, handler Handler) {
	if n <= 0 {
		n = 1
	}
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(workerID int) {
			q.runOne(ctx, workerID, handler)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
}

func (q *Queue) runOne(ctx context.Context, workerID int, handler Handler) {
	procList := fmt.Sprintf("%s:%d", keyProcessing, workerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := q.rdb.BRPopLPush(ctx, keyPending, procList, dequeueTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			q.logger.Warn("queue.worker.dequeue_error", "worker", workerID, "err", err)
			time.Sleep(time.Second)
			continue
		}

		job, err := UnmarshalJob(payload)
		if err != nil {
			q.logger.Error("queue.worker.bad_payload", "worker", workerID, "err", err)
			q.rdb.LRem(ctx, procList, 1, payload)
			continue
		}

		q.processJob(ctx, procList, payload, job, handler, workerID)
	}
}

func (q *Queue) processJob(ctx context.Context, procList, payload string, job Job, handler Handler, workerID int) {
	hbKey := keyHeartbeat + job.AnalysisID
	q.rdb.Set(ctx, hbKey, workerID, heartbeatTTL)
	stopHB := q.startHeartbeat(ctx, hbKey)
	defer stopHB()

	report := func(p model.Progress) { q.setProgress(ctx, job.AnalysisID, p) }

	err := handler(ctx, job.AnalysisID, job.Attempt, report)
	q.rdb.LRem(ctx, procList, 1, payload)
	q.rdb.Del(ctx, hbKey)

	if err == nil {
		q.markCompleted(ctx, job.AnalysisID)
		metrics.JobCompleted()
		return
	}

	if job.Attempt >= maxAttempts {
		q.markFailed(ctx, job.AnalysisID, err.Error())
		metrics.JobFailed()
		return
	}

	metrics.JobRetried()
	q.logger.Warn("queue.worker.retry", "analysis_id", job.AnalysisID, "attempt", job.Attempt, "err", err)
	backoff := initialBackoff * time.Duration(1<<(job.Attempt-1))
	time.AfterFunc(backoff, func() {
		retryCtx := context.Background()
		next := Job{AnalysisID: job.AnalysisID, Attempt: job.Attempt + 1, EnqueuedAt: time.Now().UTC()}
		retryPayload, _ := next.Marshal()
		q.rdb.Set(retryCtx, keyAttempts+job.AnalysisID, job.Attempt, 0)
		q.rdb.LPush(retryCtx, keyPending, retryPayload)
	})
}

func (q *Queue) startHeartbeat(ctx context.Context, hbKey string) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.rdb.Expire(ctx, hbKey, heartbeatTTL)
			}
		}
	}()
	return func() { close(stop) }
}

func (q *Queue) markCompleted(ctx context.Context, analysisID string) {
	q.rdb.LPush(ctx, keyCompleted, analysisID)
	q.rdb.LTrim(ctx, keyCompleted, 0, completedMaxItems-1)
	q.rdb.Expire(ctx, keyCompleted, completedRetain)
	q.rdb.Del(ctx, keyAttempts+analysisID)
}

func (q *Queue) markFailed(ctx context.Context, analysisID string, reason string) {
	q.rdb.LPush(ctx, keyFailed, analysisID)
	q.rdb.Expire(ctx, keyFailed, failedRetain)
	q.rdb.HSet(ctx, "analyze:queue:failure_reason", analysisID, reason)
	q.rdb.Expire(ctx, "analyze:queue:failure_reason", failedRetain)
	q.rdb.Del(ctx, keyAttempts+analysisID)
}
