package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"nandu/api/internal/config"
)

// ObjectStore keeps binary photos out of the database; rows carry only the
// object key and content type.
type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.BucketPhotos)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.BucketPhotos, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.BucketPhotos, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.BucketPhotos, err)
		}
	}
	return nil
}

func (s *ObjectStore) PutPhoto(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.BucketPhotos, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put photo %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) GetPhoto(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.BucketPhotos, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get photo %s: %w", key, err)
	}
	return obj, nil
}

func (s *ObjectStore) RemovePhoto(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.BucketPhotos, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove photo %s: %w", key, err)
	}
	return nil
}
