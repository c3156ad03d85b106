package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/repairdesk/repairdesk/internal/config"
)

// S3Store keeps objects in a bucket on any S3-compatible endpoint.
type S3Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
	now       func() time.Time
}

// NewS3Store builds a minio client from cfg. The endpoint may carry a scheme.
func NewS3Store(cfg config.StorageConfig) (*S3Store, error) {
	endpoint, secure := cfg.S3Endpoint, cfg.S3UseSSL
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse S3_ENDPOINT: %w", err)
		}
		endpoint = parsed.Host
		secure = parsed.Scheme == "https"
	}

	lookup := minio.BucketLookupAuto
	if cfg.S3ForcePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretKey, ""),
		Secure:       secure,
		Region:       cfg.S3Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Store{
		client:    client,
		bucket:    cfg.S3Bucket,
		publicURL: strings.TrimRight(cfg.S3PublicURL, "/"),
		now:       time.Now,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Object{Key: key, URL: s.objectURL(key)}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", err
	}
	return signed.String(), nil
}

func (s *S3Store) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	removed := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return removed, obj.Err
		}
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *S3Store) objectURL(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}
