package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/metrics"
	"alcyxob/notes-app/internal/repository"
	"alcyxob/notes-app/internal/storage"
	"alcyxob/notes-app/internal/watermark"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	viewRecordTimeout = 5 * time.Second
	fetchRetryDelay   = 100 * time.Millisecond
)

var unsafeFilename = regexp.MustCompile(`[^\w\-. ]+`)

// ViewService renders the live document for one reader.
type ViewService interface {
	RenderForViewer(ctx context.Context, documentID uuid.UUID, viewer domain.Identity) (body []byte, contentType, filename string, err error)
	// Wait blocks until background view records are written.
	Wait()
}

type viewService struct {
	store    repository.Store
	objects  storage.ObjectStore
	engine   PDFEngine
	access   *AccessPolicy
	viewLogs repository.ViewLogRepository // optional
	wm       config.WatermarkConfig
	cfg      config.ViewConfig
	logo     []byte
	sem      *semaphore.Weighted
	log      logrus.FieldLogger
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewViewService(
	store repository.Store,
	objects storage.ObjectStore,
	engine PDFEngine,
	access *AccessPolicy,
	viewLogs repository.ViewLogRepository,
	wm config.WatermarkConfig,
	cfg config.ViewConfig,
	logo []byte,
	log logrus.FieldLogger,
) ViewService {
	if cfg.MaxConcurrentStamps <= 0 {
		cfg.MaxConcurrentStamps = 4
	}
	return &viewService{
		store:    store,
		objects:  objects,
		engine:   engine,
		access:   access,
		viewLogs: viewLogs,
		wm:       wm,
		cfg:      cfg,
		logo:     logo,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentStamps),
		log:      log,
		now:      time.Now,
	}
}

// RenderForViewer stamps the live master with the viewer's name. The result
// is streamed and never stored.
func (s *viewService) RenderForViewer(ctx context.Context, documentID uuid.UUID, viewer domain.Identity) ([]byte, string, string, error) {
	log := s.log.WithFields(logrus.Fields{"documentId": documentID, "viewerId": viewer.UserID})

	// 1. Only approved, unexpired documents with a live file are servable
	doc, err := s.store.Documents().GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", "", ErrDocumentNotFound
		}
		return nil, "", "", err
	}
	if !doc.IsApproved() || doc.IsExpired(s.now()) {
		return nil, "", "", ErrDocumentNotFound
	}

	// 2. Access policy
	if err := s.access.Check(ctx, viewer, doc); err != nil {
		metrics.ViewsTotal.WithLabelValues("denied").Inc()
		return nil, "", "", err
	}

	// 3. Master bytes, one retry on a transient storage error
	master, err := s.fetch(ctx, doc.LiveFile.Handle)
	if err != nil {
		metrics.ViewsTotal.WithLabelValues("fetch_failed").Inc()
		log.WithError(err).WithField("handle", doc.LiveFile.Handle).Error("view fetch failed")
		return nil, "", "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	// 4. Stamp in the request path, bounded so a burst of views cannot starve the process
	out, err := s.stamp(ctx, master, doc, viewer)
	if err != nil {
		if errors.Is(err, ErrRenderBusy) {
			metrics.ViewsTotal.WithLabelValues("busy").Inc()
			return nil, "", "", err
		}
		metrics.ViewsTotal.WithLabelValues("stamp_failed").Inc()
		log.WithError(err).Error("view stamp failed")
		return nil, "", "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	metrics.ViewsTotal.WithLabelValues("served").Inc()
	s.recordView(doc.ID, viewer.UserID)
	return out, storage.ContentTypePDF, filename(doc.Title), nil
}

func (s *viewService) fetch(ctx context.Context, handle string) ([]byte, error) {
	var data []byte
	op := func() error {
		var err error
		data, err = s.objects.Get(ctx, handle)
		if err != nil && !errors.Is(err, storage.ErrStorageUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(fetchRetryDelay), 1), ctx)
	return data, backoff.Retry(op, policy)
}

func (s *viewService) stamp(ctx context.Context, master []byte, doc *domain.Document, viewer domain.Identity) ([]byte, error) {
	opts := watermark.ViewerOptions(viewer, doc.OwnerID, s.wm.ViewTextPoints, s.logo, doc.UpdatedAt)
	if viewer.IsOwnerOrElevated(doc.OwnerID) {
		return s.engine.Stamp(master, opts)
	}

	waitCtx := ctx
	if s.cfg.StampWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.StampWait)
		defer cancel()
	}
	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrRenderBusy
	}
	defer s.sem.Release(1)

	start := time.Now()
	out, err := s.engine.Stamp(master, opts)
	metrics.ObserveStamp("view", time.Since(start))
	return out, err
}

// recordView bumps the counter and the analytics entry off the request path.
func (s *viewService) recordView(documentID, viewerID uuid.UUID) {
	at := s.now().UTC()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), viewRecordTimeout)
		defer cancel()

		log := s.log.WithFields(logrus.Fields{"documentId": documentID, "viewerId": viewerID})
		if err := s.store.Documents().IncrementViewCount(ctx, documentID); err != nil {
			log.WithError(err).Warn("view count not incremented")
		}
		if s.viewLogs == nil {
			return
		}
		if err := s.viewLogs.Record(ctx, viewerID, documentID, at); err != nil {
			log.WithError(err).Warn("view log not recorded")
		}
	}()
}

func (s *viewService) Wait() {
	s.wg.Wait()
}

func filename(title string) string {
	name := strings.TrimSpace(unsafeFilename.ReplaceAllString(title, "_"))
	if name == "" {
		name = "document"
	}
	return name + ".pdf"
}
