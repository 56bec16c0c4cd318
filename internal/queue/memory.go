package queue

import (
	"context"
	"sync"
	"time"

	"alcyxob/notes-app/internal/domain"

	"github.com/google/uuid"
)

const defaultPoll = 100 * time.Millisecond

type memMessage struct {
	job     domain.WatermarkJob
	attempt int
}

type leased struct {
	memMessage
	deadline time.Time
}

// MemoryQueue is an in-process queue with SQS-style visibility timeouts.
// It is safe for any number of concurrent producers and consumers.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []memMessage
	inflight   map[string]*leased
	visibility time.Duration
	notify     chan struct{}
	closed     bool
	now        func() time.Time
}

func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	if visibility <= 0 {
		visibility = 2 * time.Minute
	}
	return &MemoryQueue{
		inflight:   make(map[string]*leased),
		visibility: visibility,
		notify:     make(chan struct{}, 1),
		now:        time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job domain.WatermarkJob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	job = prepare(job, q.now())

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}
	q.ready = append(q.ready, memMessage{job: job})
	q.wake()
	q.mu.Unlock()
	return job.ID, nil
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		now := q.now()
		q.reclaim(now)

		if len(q.ready) > 0 {
			msg := q.ready[0]
			q.ready = q.ready[1:]
			msg.attempt++
			token := uuid.NewString()
			q.inflight[token] = &leased{memMessage: msg, deadline: now.Add(q.visibility)}
			q.mu.Unlock()

			return &Delivery{
				Job:     msg.job,
				Attempt: msg.attempt,
				ack:     func(context.Context) error { return q.ack(token) },
			}, nil
		}

		wait := defaultPoll
		for _, l := range q.inflight {
			if d := l.deadline.Sub(now); d < wait {
				wait = d
			}
		}
		q.mu.Unlock()
		if wait <= 0 {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// reclaim returns expired leases to the ready list. Caller holds mu.
func (q *MemoryQueue) reclaim(now time.Time) {
	for token, l := range q.inflight {
		if !now.Before(l.deadline) {
			delete(q.inflight, token)
			q.ready = append(q.ready, l.memMessage)
		}
	}
}

func (q *MemoryQueue) ack(token string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[token]; !ok {
		return ErrStaleDelivery
	}
	delete(q.inflight, token)
	return nil
}

// wake signals one waiting Receive. Caller holds mu, so notify is still open.
func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of jobs not yet acknowledged.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}

// Close makes further Enqueue and Receive calls fail with ErrClosed.
// Closing twice is a no-op.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)
	return nil
}
