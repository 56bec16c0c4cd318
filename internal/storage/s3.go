package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// s3Storage implements ObjectStore using an S3-compatible backend.
type s3Storage struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	baseURL       string
	timeout       time.Duration
	log           logrus.FieldLogger
}

// NewS3Storage creates a new S3 storage service instance.
func NewS3Storage(cfg config.S3Config, storageCfg config.StorageConfig, log logrus.FieldLogger) (ObjectStore, error) {
	// Custom resolver for S3-compatible endpoints (MinIO, DigitalOcean Spaces, ...)
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		}
		// Fallback to default AWS endpoint resolution
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsSDKConfig, err := awsCfg.LoadDefaultConfig(context.TODO(),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsCfg.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS SDK config: %w", err)
	}

	// Path-style addressing is required by most S3-compatible services
	s3Client := s3.NewFromConfig(awsSDKConfig, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	baseURL := storageCfg.PublicBaseURL
	if baseURL == "" {
		baseURL = publicURL(cfg.Endpoint, cfg.BucketName)
	}

	log.WithFields(logrus.Fields{"endpoint": cfg.Endpoint, "bucket": cfg.BucketName}).Info("S3 storage initialized")

	return &s3Storage{
		client:        s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    cfg.BucketName,
		baseURL:       baseURL,
		timeout:       storageCfg.Timeout,
		log:           log,
	}, nil
}

func (s *s3Storage) Put(ctx context.Context, handle string, data []byte, contentType string) (domain.FileRef, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(handle),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.log.WithError(err).WithField("handle", handle).Error("S3 put failed")
		return domain.FileRef{}, unavailable("put", handle, err)
	}
	return domain.FileRef{URL: publicURL(s.baseURL, handle), Handle: handle}, nil
}

func (s *s3Storage) Get(ctx context.Context, handle string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(handle),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %q", ErrObjectNotFound, handle)
		}
		s.log.WithError(err).WithField("handle", handle).Error("S3 get failed")
		return nil, unavailable("get", handle, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, unavailable("read", handle, err)
	}
	return data, nil
}

// Delete removes an object from the bucket. S3 treats a missing key as success.
func (s *s3Storage) Delete(ctx context.Context, handle string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(handle),
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"handle": handle, "bucket": s.bucketName}).Error("S3 delete failed")
		return unavailable("delete", handle, err)
	}

	s.log.WithField("handle", handle).Info("deleted object")
	return nil
}

func (s *s3Storage) PresignedDownloadURL(ctx context.Context, handle string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(handle),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		s.log.WithError(err).WithField("handle", handle).Error("presign GET failed")
		return "", err
	}
	return req.URL, nil
}
