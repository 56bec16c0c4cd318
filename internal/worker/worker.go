// Package worker consumes watermark jobs and applies the upload-time stamp to
// each candidate file in place.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/metrics"
	"alcyxob/notes-app/internal/queue"
	"alcyxob/notes-app/internal/repository"
	"alcyxob/notes-app/internal/storage"
	"alcyxob/notes-app/internal/watermark"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Stamper is the engine call the worker needs.
type Stamper interface {
	Stamp(src []byte, opts watermark.Options) ([]byte, error)
}

// StampRecorder records the stamp outcome on the version that owns the file.
// NeedsStamp is false once the version is gone, live or already stamped.
// PublishStamp and MarkFailed only change a pending version that is not live;
// otherwise they fail with repository.ErrUpdateFailed (or ErrNotFound).
type StampRecorder interface {
	NeedsStamp(ctx context.Context, versionID uuid.UUID) (bool, error)
	// PublishStamp points the version at file and returns the handle it replaced.
	PublishStamp(ctx context.Context, versionID uuid.UUID, file domain.FileRef) (previous string, err error)
	MarkFailed(ctx context.Context, versionID uuid.UUID) error
}

// Deps are the collaborators of a Worker. Consumers holds one consumer per slot.
type Deps struct {
	Consumers   []queue.Consumer
	Producer    queue.Producer
	Store       storage.ObjectStore
	Engine      Stamper
	Recorder    StampRecorder
	DeadLetters repository.DeadLetterRepository
	Log         logrus.FieldLogger
}

type Worker struct {
	Deps
	cfg config.WorkerConfig
	wm  config.WatermarkConfig
}

func New(deps Deps, cfg config.WorkerConfig, wm config.WatermarkConfig) *Worker {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Worker{Deps: deps, cfg: cfg, wm: wm}
}

// Run processes deliveries on every slot until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range w.Consumers {
		slot, consumer := i, c
		g.Go(func() error {
			return w.loop(ctx, slot, consumer)
		})
	}
	w.Log.WithField("slots", len(w.Consumers)).Info("watermark worker started")
	err := g.Wait()
	w.Log.Info("watermark worker stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, slot int, c queue.Consumer) error {
	log := w.Log.WithField("slot", slot)
	for {
		d, err := c.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			log.WithError(err).Warn("receive failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		w.Handle(ctx, d)
	}
}

// Handle processes one delivery and acknowledges it. A failure that cannot
// be recorded yet is retried until it is, or until ctx ends; Handle does not
// return earlier, so the slot never moves past an unsettled delivery.
func (w *Worker) Handle(ctx context.Context, d *queue.Delivery) {
	job := d.Job
	log := w.Log.WithFields(logrus.Fields{
		"jobId":      job.ID,
		"kind":       job.Kind,
		"documentId": job.DocumentID,
		"versionId":  job.VersionID,
		"retryCount": job.RetryCount,
		"delivery":   d.Attempt,
	})

	var (
		err     error
		skipped bool
	)
	if d.DecodeErr != nil {
		err = backoff.Permanent(d.DecodeErr)
	} else if verr := job.Validate(); verr != nil {
		err = backoff.Permanent(verr)
	} else {
		skipped, err = w.processWithRetry(ctx, job, log)
	}

	if err != nil && ctx.Err() != nil {
		// Shutting down mid-job: leave it unacknowledged so it comes back.
		log.WithError(err).Info("job interrupted by shutdown")
		return
	}

	switch {
	case err == nil && skipped:
		metrics.RecordJob(string(job.Kind), metrics.OutcomeSkipped)
		log.Info("version no longer needs stamping; job skipped")
	case err == nil:
		metrics.RecordJob(string(job.Kind), metrics.OutcomeStamped)
		log.Info("watermark job done")
	case !w.settle(ctx, d, err, log):
		return
	}

	if ackErr := d.Ack(ctx); ackErr != nil {
		log.WithError(ackErr).Warn("ack failed; job may be processed again")
	}
}

// settle retries settleFailure until it succeeds. It gives up only when ctx
// ends, leaving the delivery unacknowledged for redelivery after restart.
// Acking a later message first would commit a partition offset past this one.
func (w *Worker) settle(ctx context.Context, d *queue.Delivery, cause error, log logrus.FieldLogger) bool {
	b := w.newBackOff()
	for {
		if w.settleFailure(ctx, d, cause, log) {
			return true
		}
		metrics.RecordJob(string(d.Job.Kind), metrics.OutcomeUnsettled)
		select {
		case <-ctx.Done():
			log.Warn("shutting down with an unsettled delivery; it will be redelivered")
			return false
		case <-time.After(b.NextBackOff()):
		}
	}
}

// settleFailure requeues or dead-letters a failed job. It reports whether the
// original delivery may be acknowledged.
func (w *Worker) settleFailure(ctx context.Context, d *queue.Delivery, err error, log logrus.FieldLogger) bool {
	job := d.Job
	permanent := isPermanent(err)

	if !permanent && job.RetryCount < w.cfg.MaxRetries {
		id, qerr := w.Producer.Enqueue(ctx, job.Retry())
		if qerr != nil {
			log.WithError(qerr).Error("requeue failed")
			return false
		}
		metrics.RecordJob(string(job.Kind), metrics.OutcomeRequeued)
		log.WithError(err).WithField("requeuedAs", id).Warn("watermark job requeued")
		return true
	}

	reason := err.Error()
	if d.DecodeErr != nil {
		reason = fmt.Sprintf("%s: %q", reason, truncate(d.Raw, 512))
	}
	dl := &domain.DeadLetter{
		Job:       job,
		Reason:    reason,
		Permanent: permanent,
		FailedAt:  time.Now().UTC(),
	}
	if serr := w.DeadLetters.Save(ctx, dl); serr != nil {
		log.WithError(serr).Error("dead letter could not be saved")
		return false
	}
	w.markFailed(ctx, job, log)

	metrics.RecordJob(string(job.Kind), metrics.OutcomeDeadLettered)
	log.WithError(err).WithFields(logrus.Fields{
		"deadLetterId": dl.ID.Hex(),
		"permanent":    permanent,
	}).Error("watermark job dead-lettered")
	return true
}

// newBackOff is the configured exponential schedule without an elapsed-time cap.
func (w *Worker) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if w.cfg.InitialBackoff > 0 {
		b.InitialInterval = w.cfg.InitialBackoff
	}
	if w.cfg.MaxBackoff > 0 {
		b.MaxInterval = w.cfg.MaxBackoff
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (w *Worker) processWithRetry(ctx context.Context, job domain.WatermarkJob, log logrus.FieldLogger) (skipped bool, err error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), uint64(w.cfg.Attempts-1)), ctx)

	op := func() error {
		var err error
		skipped, err = w.process(ctx, job)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.RecordJob(string(job.Kind), metrics.OutcomeRetried)
		log.WithError(err).WithField("backoff", next).Warn("watermark attempt failed, retrying")
	}
	err = backoff.RetryNotify(op, policy, notify)
	return skipped, err
}

// process runs one fetch, stamp and publish cycle.
func (w *Worker) process(ctx context.Context, job domain.WatermarkJob) (skipped bool, err error) {
	id, hasVersion := job.Version()
	if hasVersion {
		need, err := w.Recorder.NeedsStamp(ctx, id)
		if err != nil {
			return false, err
		}
		if !need {
			return true, nil
		}
	}

	src, err := w.Store.Get(ctx, job.StorageHandle)
	if errors.Is(err, storage.ErrObjectNotFound) && hasVersion {
		// A concurrent delivery may have published and released the source.
		if need, nerr := w.Recorder.NeedsStamp(ctx, id); nerr == nil && !need {
			return true, nil
		}
	}
	if err != nil {
		return false, err
	}

	start := time.Now()
	out, err := w.Engine.Stamp(src, w.options(job))
	metrics.ObserveStamp(string(job.Kind), time.Since(start))
	if err != nil {
		return false, err
	}

	if !hasVersion {
		_, err := w.Store.Put(ctx, job.StorageHandle, out, storage.ContentTypePDF)
		return false, err
	}
	return w.publish(ctx, id, job.StorageHandle, out)
}

// publish stores the stamped bytes under a fresh handle and swaps that handle
// into the version row. Files a version already references are never
// rewritten, so a version promoted meanwhile keeps serving what was approved.
func (w *Worker) publish(ctx context.Context, versionID uuid.UUID, source string, out []byte) (skipped bool, err error) {
	ref, err := w.Store.Put(ctx, storage.StampedHandle(source), out, storage.ContentTypePDF)
	if err != nil {
		return false, err
	}

	previous, err := w.Recorder.PublishStamp(ctx, versionID, ref)
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrUpdateFailed):
		// Deleted, promoted or stamped by another delivery in the meantime.
		w.release(ctx, ref.Handle)
		return true, nil
	case err != nil:
		w.Log.WithError(err).WithField("handle", ref.Handle).Warn("stamped copy not published; it stays unreferenced")
		return false, err
	}

	if previous != "" && previous != ref.Handle {
		w.release(ctx, previous)
	}
	return false, nil
}

func (w *Worker) release(ctx context.Context, handle string) {
	if err := w.Store.Delete(ctx, handle); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		w.Log.WithError(err).WithField("handle", handle).Warn("unreferenced file not removed")
	}
}

// options builds the upload-time stamp for a job kind. Jobs are stamped with
// their enqueue time so every redelivery produces the same bytes.
func (w *Worker) options(job domain.WatermarkJob) watermark.Options {
	switch job.Kind {
	case domain.JobProducerStamp:
		return watermark.ProducerOptions(w.wm.Brand, job.StampText, job.EnqueuedAt)
	default:
		return watermark.ProvenanceOptions(job.StampText, w.wm.ProvenancePoint, job.EnqueuedAt)
	}
}

// markFailed flags a still pending version. A stamped or live version keeps
// its state; a failing duplicate must not undo a stamp that already landed.
func (w *Worker) markFailed(ctx context.Context, job domain.WatermarkJob, log logrus.FieldLogger) {
	id, ok := job.Version()
	if !ok {
		return
	}
	err := w.Recorder.MarkFailed(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrUpdateFailed):
		log.Debug("version not pending; stamp state left unchanged")
	default:
		log.WithError(err).Warn("could not record failed stamp on version")
	}
}

// isPermanent reports errors that will fail the same way on every attempt.
func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return true
	}
	return errors.Is(err, watermark.ErrMalformedDocument) ||
		errors.Is(err, watermark.ErrStampFailed) ||
		errors.Is(err, storage.ErrObjectNotFound) ||
		errors.Is(err, domain.ErrUnknownJobKind) ||
		errors.Is(err, domain.ErrJobMissingHandle) ||
		errors.Is(err, domain.ErrJobMissingText)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
