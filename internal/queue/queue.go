// Package queue moves watermark jobs from the API to the worker pool with
// at-least-once delivery: a delivery that is never acknowledged comes back.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"alcyxob/notes-app/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrClosed = errors.New("queue closed")
	// ErrStaleDelivery is returned by Ack after the visibility timeout handed the job to someone else.
	ErrStaleDelivery = errors.New("delivery no longer held by this consumer")
)

// Producer enqueues jobs and returns the job id.
type Producer interface {
	Enqueue(ctx context.Context, job domain.WatermarkJob) (string, error)
}

// Consumer hands out deliveries; Receive blocks until one is available or ctx ends.
type Consumer interface {
	Receive(ctx context.Context) (*Delivery, error)
}

// Delivery is one hand-out of a job. It must be acknowledged once handled.
type Delivery struct {
	Job     domain.WatermarkJob
	Attempt int // how many times this message has been handed out

	// Raw and DecodeErr are set when the message body could not be decoded.
	Raw       []byte
	DecodeErr error

	ack func(ctx context.Context) error
}

// NewDelivery wraps a job handed out by a Consumer implementation; ack is
// called once the job is handled and may be nil.
func NewDelivery(job domain.WatermarkJob, attempt int, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Job: job, Attempt: attempt, ack: ack}
}

// Ack removes the job from the queue.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// prepare assigns an id and enqueue time to new jobs.
func prepare(job domain.WatermarkJob, now time.Time) domain.WatermarkJob {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now.UTC()
	}
	return job
}

// Encode serialises a job to its wire form.
func Encode(job domain.WatermarkJob) ([]byte, error) {
	return json.Marshal(job)
}

// Decode parses a wire message. Unknown fields are ignored so newer producers
// can add optional fields.
func Decode(data []byte) (domain.WatermarkJob, error) {
	var job domain.WatermarkJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.WatermarkJob{}, fmt.Errorf("decode watermark job: %w", err)
	}
	return job, nil
}
