package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// ErrQueueFull is returned by Enqueue when the buffer has no free slot.
var ErrQueueFull = fmt.Errorf("gojob: queue is full")

// LocalQueue is an in-process queue.Enqueuer and queue.Dequeuer. Schedules and
// manual triggers publish into it and a Consumer drains it.
type LocalQueue struct {
	ch chan *localDelivery

	mu         sync.Mutex
	pending    map[string]struct{}
	deadLetter []DeadLetter
	closed     bool
}

type DeadLetter struct {
	Message *job.ExecutionMessage
	Reason  string
	Attempt int
}

func NewLocalQueue(capacity int) *LocalQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &LocalQueue{
		ch:      make(chan *localDelivery, capacity),
		pending: map[string]struct{}{},
	}
}

// Enqueue drops a message whose idempotency key is already pending under the
// drop policy and reports success for it.
func (q *LocalQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: queue is not configured")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("gojob: execution message with job id is required")
	}
	key := strings.TrimSpace(msg.IdempotencyKey)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("gojob: queue is closed")
	}
	if key != "" && msg.DedupPolicy == DedupDrop {
		if _, exists := q.pending[key]; exists {
			q.mu.Unlock()
			return nil
		}
	}
	if key != "" {
		q.pending[key] = struct{}{}
	}
	q.mu.Unlock()

	delivery := &localDelivery{queue: q, msg: cloneMessage(msg), attempt: 1}
	if err := q.push(ctx, delivery); err != nil {
		q.release(key)
		return err
	}
	return nil
}

func (q *LocalQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: queue is not configured")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case delivery := <-q.ch:
		return delivery, nil
	}
}

// Len reports the number of buffered deliveries.
func (q *LocalQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}

func (q *LocalQueue) DeadLetters() []DeadLetter {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.deadLetter...)
}

// Close rejects further enqueues. Buffered deliveries stay available.
func (q *LocalQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *LocalQueue) push(ctx context.Context, delivery *localDelivery) error {
	select {
	case q.ch <- delivery:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *LocalQueue) release(key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()
}

func (q *LocalQueue) bury(msg *job.ExecutionMessage, reason string, attempt int) {
	q.mu.Lock()
	q.deadLetter = append(q.deadLetter, DeadLetter{Message: msg, Reason: reason, Attempt: attempt})
	q.mu.Unlock()
	q.release(msg.IdempotencyKey)
}

type localDelivery struct {
	queue   *LocalQueue
	msg     *job.ExecutionMessage
	attempt int

	once sync.Once
}

func (d *localDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

// Attempt is 1 for the first delivery of a message.
func (d *localDelivery) Attempt() int {
	return d.attempt
}

func (d *localDelivery) Ack(context.Context) error {
	d.once.Do(func() {
		d.queue.release(d.msg.IdempotencyKey)
	})
	return nil
}

func (d *localDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	var err error
	d.once.Do(func() {
		if opts.DeadLetter || !opts.Requeue {
			d.queue.bury(d.msg, opts.Reason, d.attempt)
			return
		}
		next := &localDelivery{queue: d.queue, msg: d.msg, attempt: d.attempt + 1}
		if opts.Delay <= 0 {
			if err = d.queue.push(ctx, next); err != nil {
				d.queue.bury(d.msg, err.Error(), d.attempt)
			}
			return
		}
		time.AfterFunc(opts.Delay, func() {
			if pushErr := d.queue.push(context.Background(), next); pushErr != nil {
				d.queue.bury(d.msg, pushErr.Error(), d.attempt)
			}
		})
	})
	return err
}

func cloneMessage(msg *job.ExecutionMessage) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    msg.DedupPolicy,
	}
}

var (
	_ queue.Enqueuer = (*LocalQueue)(nil)
	_ queue.Dequeuer = (*LocalQueue)(nil)
	_ queue.Delivery = (*localDelivery)(nil)
)
