package service

import (
	"context"
	"errors"
	"time"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/queue"
	"alcyxob/notes-app/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DeadLetterService lists failed watermark jobs and puts them back on the queue.
type DeadLetterService interface {
	List(ctx context.Context, limit int64) ([]domain.DeadLetter, error)
	Replay(ctx context.Context, id string) (jobID string, err error)
}

type deadLetterService struct {
	letters  repository.DeadLetterRepository
	versions repository.VersionRepository
	producer queue.Producer
	log      logrus.FieldLogger
}

func NewDeadLetterService(letters repository.DeadLetterRepository, versions repository.VersionRepository, producer queue.Producer, log logrus.FieldLogger) DeadLetterService {
	return &deadLetterService{letters: letters, versions: versions, producer: producer, log: log}
}

func (s *deadLetterService) List(ctx context.Context, limit int64) ([]domain.DeadLetter, error) {
	return s.letters.List(ctx, limit)
}

// Replay enqueues a fresh copy of the job with its retry budget reset. The
// enqueue time is kept so the stamp comes out the same as the first attempt's.
// The entry is claimed before anything is enqueued, so concurrent replays
// schedule the job once.
func (s *deadLetterService) Replay(ctx context.Context, id string) (string, error) {
	dl, err := s.letters.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrDeadLetterNotFound
		}
		return "", err
	}
	if dl.ReplayedAt != nil {
		return "", ErrAlreadyReplayed
	}
	log := s.log.WithFields(logrus.Fields{"deadLetterId": id, "versionId": dl.Job.VersionID})

	// 1. Claim
	if err := s.letters.ClaimReplay(ctx, id, time.Now()); err != nil {
		switch {
		case errors.Is(err, repository.ErrUpdateFailed):
			return "", ErrAlreadyReplayed
		case errors.Is(err, repository.ErrNotFound):
			return "", ErrDeadLetterNotFound
		}
		return "", err
	}

	job := dl.Job
	job.ID = ""
	job.RetryCount = 0

	// 2. Only a failed stamp is reopened. A version that got stamped or went
	// live meanwhile keeps its file; the entry stays claimed since nothing is left to do.
	vid, hasVersion := job.Version()
	reopened := false
	if hasVersion {
		reopened, err = s.reopen(ctx, vid)
		if errors.Is(err, ErrNothingToReplay) {
			log.Info("dead letter closed without replay")
			return "", err
		}
		if err != nil {
			s.release(ctx, id, log)
			return "", err
		}
	}

	// 3. Enqueue, handing the claim back if the queue refuses
	jobID, err := s.producer.Enqueue(ctx, job)
	if err != nil {
		if reopened {
			if rerr := s.versions.TransitionStampState(ctx, vid, domain.StampPending, domain.StampFailed); rerr != nil {
				log.WithError(rerr).Warn("could not restore failed stamp state")
			}
		}
		s.release(ctx, id, log)
		return "", errors.Join(ErrQueueUnavailable, err)
	}
	if err := s.letters.SetReplayJobID(ctx, id, jobID); err != nil {
		log.WithError(err).Warn("replay job id not recorded")
	}

	log.WithField("jobId", jobID).Info("dead letter replayed")
	return jobID, nil
}

// reopen moves a failed version back to pending. It reports false for a
// version that is still pending, and ErrNothingToReplay for one that is
// stamped, live or deleted.
func (s *deadLetterService) reopen(ctx context.Context, vid uuid.UUID) (bool, error) {
	err := s.versions.TransitionStampState(ctx, vid, domain.StampFailed, domain.StampPending)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, ErrNothingToReplay
	case !errors.Is(err, repository.ErrUpdateFailed):
		return false, err
	}

	v, err := s.versions.GetByID(ctx, vid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrNothingToReplay
		}
		return false, err
	}
	if v.IsCurrentLive || v.Stamped() {
		return false, ErrNothingToReplay
	}
	return false, nil
}

func (s *deadLetterService) release(ctx context.Context, id string, log logrus.FieldLogger) {
	if err := s.letters.ReleaseReplay(ctx, id); err != nil {
		log.WithError(err).Error("replay claim not released; dead letter hidden from the list")
	}
}
