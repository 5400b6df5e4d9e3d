package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

type MinioStorage struct {
	cfg    *config.Config
	log    logger.Logger
	client *minio.Client
}

func NewMinioStorage(cfg *config.Config, log logger.Logger, client *minio.Client) *MinioStorage {
	return &MinioStorage{
		cfg:    cfg,
		log:    log,
		client: client,
	}
}

func (s *MinioStorage) StoreObject(ctx context.Context, localPath, bucket, key string) (string, error) {
	s.log.Debug("[UPLOADING] to minio",
		logger.String("filepath", localPath),
		logger.String("bucket", bucket),
		logger.String("key", key))

	contentType, err := getFileContentType(localPath)
	if err != nil {
		return "", err
	}

	_, err = s.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.log.Error("Error while uploading to minio", logger.Error(err))
		return "", err
	}

	return s.objectURL(bucket, key), nil
}

func (s *MinioStorage) RemoveObject(ctx context.Context, bucket, key string) error {
	return s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioStorage) MakeAvailable(ctx context.Context, bucket, key, destination string) error {
	return s.client.FGetObject(ctx, bucket, key, destination, minio.GetObjectOptions{})
}

func (s *MinioStorage) objectURL(bucket, key string) string {
	if s.cfg.ObjectStorageBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.ObjectStorageBaseURL, bucket, key)
	}
	return fmt.Sprintf("https://%s/%s/%s", s.cfg.ObjectStorageEndpoint, bucket, key)
}
