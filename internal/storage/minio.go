package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

type minioStorage struct {
	client     *minio.Client
	bucketName string
	baseURL    string
	timeout    time.Duration
	log        logrus.FieldLogger
}

// NewMinioStorage connects to MinIO and makes sure the bucket exists.
func NewMinioStorage(ctx context.Context, cfg config.MinioConfig, storageCfg config.StorageConfig, log logrus.FieldLogger) (ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	baseURL := storageCfg.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.BucketName)
	}

	log.WithFields(logrus.Fields{"endpoint": cfg.Endpoint, "bucket": cfg.BucketName}).Info("MinIO storage initialized")
	return &minioStorage{
		client:     client,
		bucketName: cfg.BucketName,
		baseURL:    baseURL,
		timeout:    storageCfg.Timeout,
		log:        log,
	}, nil
}

func (s *minioStorage) Put(ctx context.Context, handle string, data []byte, contentType string) (domain.FileRef, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, s.bucketName, handle, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.log.WithError(err).WithField("handle", handle).Error("MinIO put failed")
		return domain.FileRef{}, unavailable("put", handle, err)
	}
	return domain.FileRef{URL: publicURL(s.baseURL, handle), Handle: handle}, nil
}

func (s *minioStorage) Get(ctx context.Context, handle string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucketName, handle, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classify("get", handle, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only shows up on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.classify("get", handle, err)
	}
	return data, nil
}

func (s *minioStorage) Delete(ctx context.Context, handle string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.RemoveObject(ctx, s.bucketName, handle, minio.RemoveObjectOptions{}); err != nil {
		return s.classify("delete", handle, err)
	}
	s.log.WithField("handle", handle).Info("deleted object")
	return nil
}

func (s *minioStorage) PresignedDownloadURL(ctx context.Context, handle string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, handle, expires, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign GET %q: %w", handle, err)
	}
	return u.String(), nil
}

func (s *minioStorage) classify(op, handle string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %q", ErrObjectNotFound, handle)
	}
	s.log.WithError(err).WithField("handle", handle).Errorf("MinIO %s failed", op)
	return unavailable(op, handle, err)
}
