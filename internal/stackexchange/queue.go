package stackexchange

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// executeFunc performs the actual HTTP call for a request. The queue
// owns scheduling and retries; the client owns transport and error
// classification.
type executeFunc func(ctx context.Context, req *QueuedRequest) (json.RawMessage, error)

type outcome struct {
	value json.RawMessage
	err   error
}

// queueEntry is one logical unit of work: a request plus every caller
// waiting on its result. Callers that submit an identical request
// while this one is pending or in flight attach as extra waiters
// instead of producing a second upstream call.
type queueEntry struct {
	req     *QueuedRequest
	key     string
	waiters []chan outcome
}

// RequestQueue bounds the number of concurrent upstream calls,
// preserves priority ordering among pending work, retries transient
// failures and short-circuits on cache hits.
//
// A single coordinating worker goroutine pulls from the priority-
// ordered pending list; a weighted semaphore enforces the hard ceiling
// on simultaneously in-flight executions. The worker starts on demand
// with the first enqueue and exits once the queue drains.
type RequestQueue struct {
	mu sync.Mutex

	pending    []*queueEntry
	inflight   map[string]*queueEntry // cache key -> entry, for coalescing
	processing int
	completed  int
	failed     int

	workerRunning bool
	closed        bool
	wake          chan struct{}

	maxConcurrent int
	sem           *semaphore.Weighted
	retryDelay    time.Duration

	cache     *Cache
	rateLimit *RateLimitState
	execute   executeFunc
	metrics   *Metrics
	log       *logrus.Entry
}

// QueueStatus is an observability snapshot; reading it has no effect
// on scheduling. The access-mode fields are filled in by the client,
// which owns the mode; the queue only reports its own counters.
type QueueStatus struct {
	Queued            int        `json:"queued"`
	Processing        int        `json:"processing"`
	Completed         int        `json:"completed"`
	Failed            int        `json:"failed"`
	MaxConcurrent     int        `json:"max_concurrent"`
	WorkerRunning     bool       `json:"worker_running"`
	AccessMode        AccessMode `json:"current_access_mode"`
	AutoSwitchEnabled bool       `json:"auto_switch_enabled"`
}

// newRequestQueue wires a queue to its collaborators. maxConcurrent
// must be >= 1.
func newRequestQueue(maxConcurrent int, retryDelay time.Duration, cache *Cache, rateLimit *RateLimitState, execute executeFunc, metrics *Metrics, log *logrus.Entry) *RequestQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &RequestQueue{
		inflight:      make(map[string]*queueEntry),
		wake:          make(chan struct{}, 1),
		maxConcurrent: maxConcurrent,
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		retryDelay:    retryDelay,
		cache:         cache,
		rateLimit:     rateLimit,
		execute:       execute,
		metrics:       metrics,
		log:           log,
	}
}

// Enqueue submits a request and blocks until it reaches a terminal
// outcome or ctx is done. A valid cache entry resolves immediately
// without consuming a concurrency slot; an identical in-flight request
// is joined rather than duplicated.
func (q *RequestQueue) Enqueue(ctx context.Context, req *QueuedRequest) (json.RawMessage, error) {
	key := req.CacheKey()
	if value, ok := q.cache.Get(key); ok {
		q.metrics.recordCacheHit()
		return value, nil
	}
	q.metrics.recordCacheMiss()

	ch := make(chan outcome, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, newError(KindInternal, "request queue is shut down")
	}
	if entry, ok := q.inflight[key]; ok {
		entry.waiters = append(entry.waiters, ch)
		q.mu.Unlock()
		q.metrics.recordCoalesced()
		q.log.WithFields(logrus.Fields{"request_id": req.ID, "endpoint": req.Endpoint}).
			Debug("coalesced with identical in-flight request")
	} else {
		entry = &queueEntry{req: req, key: key, waiters: []chan outcome{ch}}
		q.inflight[key] = entry
		q.insertPending(entry)
		if !q.workerRunning {
			q.workerRunning = true
			go q.worker()
		}
		q.mu.Unlock()
		q.signal()
	}

	select {
	case out := <-ch:
		return out.value, out.err
	case <-ctx.Done():
		// The execution keeps running; its result will still land in
		// the cache for later callers.
		return nil, wrapError(KindInternal, ctx.Err(), "request %s abandoned by caller", req.ID)
	}
}

// insertPending places the entry after all entries of equal or higher
// priority, keeping FIFO order within a tier. Caller holds q.mu.
func (q *RequestQueue) insertPending(entry *queueEntry) {
	pos := len(q.pending)
	for pos > 0 && q.pending[pos-1].req.Priority < entry.req.Priority {
		pos--
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[pos+1:], q.pending[pos:])
	q.pending[pos] = entry
}

func (q *RequestQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// worker is the coordinating loop: it waits for a concurrency slot,
// then pops the head of the pending list and hands it to a run
// goroutine. The slot is acquired before the head is chosen so that a
// high priority request arriving during the wait still dispatches
// first. The worker exits once nothing is pending or processing.
func (q *RequestQueue) worker() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			if q.processing == 0 {
				q.workerRunning = false
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			// In-flight work remains; wait for it to finish or requeue.
			<-q.wake
			continue
		}
		q.mu.Unlock()

		if err := q.sem.Acquire(context.Background(), 1); err != nil {
			continue
		}

		q.mu.Lock()
		if len(q.pending) == 0 {
			// Drained while waiting for the slot (Close, or a retry
			// that was picked up elsewhere).
			q.mu.Unlock()
			q.sem.Release(1)
			continue
		}
		entry := q.pending[0]
		q.pending = q.pending[1:]
		q.processing++
		q.mu.Unlock()

		go q.run(entry)
	}
}

// run executes one entry while holding a semaphore slot, then either
// completes it, requeues it for retry, or fails it.
func (q *RequestQueue) run(entry *queueEntry) {
	if delay := q.rateLimit.PacingDelay(); delay > 0 {
		q.log.WithField("request_id", entry.req.ID).
			WithField("delay", delay).Debug("pacing before dispatch")
		time.Sleep(delay)
	}

	q.metrics.requestStarted()
	value, err := q.execute(context.Background(), entry.req)
	q.metrics.requestFinished()
	q.sem.Release(1)

	if err == nil {
		if cerr := q.cache.Set(entry.key, value); cerr != nil {
			q.log.WithError(cerr).Warn("caching response failed")
		}
		q.complete(entry, outcome{value: value})
		return
	}

	if IsRetryable(err) && entry.req.retryCount < entry.req.maxRetries {
		entry.req.retryCount++
		q.metrics.recordRetry(entry.req.Endpoint)
		q.log.WithFields(logrus.Fields{
			"request_id": entry.req.ID,
			"endpoint":   entry.req.Endpoint,
			"attempt":    entry.req.retryCount,
		}).WithError(err).Debug("retrying request")
		if q.retryDelay > 0 {
			time.Sleep(q.retryDelay)
		}
		q.requeue(entry)
		return
	}

	q.fail(entry, err)
}

// requeue puts a retried entry back at its priority position.
func (q *RequestQueue) requeue(entry *queueEntry) {
	q.mu.Lock()
	q.processing--
	q.insertPending(entry)
	q.mu.Unlock()
	q.signal()
}

func (q *RequestQueue) complete(entry *queueEntry, out outcome) {
	q.finish(entry, out, false)
}

func (q *RequestQueue) fail(entry *queueEntry, err error) {
	q.finish(entry, outcome{err: err}, true)
}

// finish settles an entry in a terminal state, counting it as either
// completed or failed, and resolves every coalesced waiter.
func (q *RequestQueue) finish(entry *queueEntry, out outcome, failed bool) {
	q.mu.Lock()
	delete(q.inflight, entry.key)
	q.processing--
	if failed {
		q.failed++
	} else {
		q.completed++
	}
	q.mu.Unlock()

	for _, ch := range entry.waiters {
		ch <- out
	}
	q.signal()
}

// Status reports counters for observability.
func (q *RequestQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{
		Queued:        len(q.pending),
		Processing:    q.processing,
		Completed:     q.completed,
		Failed:        q.failed,
		MaxConcurrent: q.maxConcurrent,
		WorkerRunning: q.workerRunning,
	}
}

// Close stops admission. Requests still pending are failed so every
// submitted request reaches a terminal outcome; in-flight executions
// finish on their own.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	drained := q.pending
	q.pending = nil
	for _, entry := range drained {
		delete(q.inflight, entry.key)
	}
	q.mu.Unlock()

	for _, entry := range drained {
		for _, ch := range entry.waiters {
			ch <- outcome{err: newError(KindInternal, "request queue is shut down")}
		}
	}
	q.signal()
}
