package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/queue"
	"alcyxob/notes-app/internal/repository"
	"alcyxob/notes-app/internal/storage"
	"alcyxob/notes-app/internal/watermark"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PDFEngine is the slice of the watermark engine the services call.
type PDFEngine interface {
	Validate(src []byte) (pages int, err error)
	Stamp(src []byte, opts watermark.Options) ([]byte, error)
}

// Pipeline holds what initial uploads and new versions share: file checks,
// blob placement and the stamp job that follows.
type Pipeline struct {
	store    repository.Store
	objects  storage.ObjectStore
	engine   PDFEngine
	producer queue.Producer
	upload   config.UploadConfig
	wm       config.WatermarkConfig
	log      logrus.FieldLogger
}

func NewPipeline(
	store repository.Store,
	objects storage.ObjectStore,
	engine PDFEngine,
	producer queue.Producer,
	upload config.UploadConfig,
	wm config.WatermarkConfig,
	log logrus.FieldLogger,
) *Pipeline {
	return &Pipeline{
		store:    store,
		objects:  objects,
		engine:   engine,
		producer: producer,
		upload:   upload,
		wm:       wm,
		log:      log,
	}
}

// checkFile validates size, declared type and structure of an uploaded PDF.
func (p *Pipeline) checkFile(file []byte, contentType string) error {
	if len(file) == 0 {
		return invalidUpload("file is required")
	}
	if p.upload.MaxBytes > 0 && int64(len(file)) > p.upload.MaxBytes {
		return invalidUpload("file exceeds the %d byte limit", p.upload.MaxBytes)
	}
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || (mediaType != storage.ContentTypePDF && mediaType != "application/octet-stream") {
			return invalidUpload("file must be a PDF, got %q", contentType)
		}
	}
	if !bytes.HasPrefix(bytes.TrimLeft(file, "\x00\t\r\n "), []byte("%PDF-")) {
		return invalidUpload("file must be a PDF")
	}
	if _, err := p.engine.Validate(file); err != nil {
		if errors.Is(err, watermark.ErrMalformedDocument) {
			return invalidUpload("file is not a readable PDF")
		}
		return err
	}
	return nil
}

// putCandidate stores the bytes under the content-addressed handle of a new version.
func (p *Pipeline) putCandidate(ctx context.Context, docID, versionID uuid.UUID, file []byte) (domain.FileRef, string, error) {
	hash := storage.ContentHash(file)
	handle := storage.VersionHandle(docID, versionID, hash)
	ref, err := p.objects.Put(ctx, handle, file, storage.ContentTypePDF)
	if err != nil {
		return domain.FileRef{}, "", fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	return ref, hash, nil
}

// releaseBlob deletes a blob nobody references any more. Failures are logged only.
func (p *Pipeline) releaseBlob(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := p.objects.Delete(ctx, handle); err != nil {
		p.log.WithError(err).WithField("handle", handle).Warn("failed to release storage handle")
	}
}

// stampJob builds the upload-time job for a version. Admin uploads get the
// producer properties instead of a visible provenance mark.
func (p *Pipeline) stampJob(uploader domain.Identity, docID uuid.UUID, v *domain.DocumentVersion) domain.WatermarkJob {
	job := domain.WatermarkJob{
		Kind:          domain.JobProvenanceStamp,
		StorageHandle: v.File.Handle,
		StampText:     fmt.Sprintf("Uploaded by %s on %s", uploader.Username, p.wm.Brand),
		DocumentID:    docID.String(),
		VersionID:     v.ID.String(),
	}
	if uploader.IsElevated() {
		job.Kind = domain.JobProducerStamp
		job.StampText = p.wm.PublisherLabel
	}
	return job
}

func (p *Pipeline) enqueue(ctx context.Context, job domain.WatermarkJob) (string, error) {
	id, err := p.producer.Enqueue(ctx, job)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	p.log.WithFields(logrus.Fields{
		"jobId":      id,
		"kind":       job.Kind,
		"documentId": job.DocumentID,
		"versionId":  job.VersionID,
	}).Info("watermark job enqueued")
	return id, nil
}

func cleanTitle(title string) string {
	return strings.TrimSpace(title)
}
