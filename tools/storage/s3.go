package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

type S3Storage struct {
	cfg     *config.Config
	log     logger.Logger
	session *session.Session
}

func NewS3Storage(cfg *config.Config, log logger.Logger, sess *session.Session) *S3Storage {
	return &S3Storage{
		cfg:     cfg,
		log:     log,
		session: sess,
	}
}

func (s *S3Storage) StoreObject(ctx context.Context, localPath, bucket, key string) (string, error) {
	s.log.Debug("[UPLOADING] to s3",
		logger.String("filepath", localPath),
		logger.String("bucket", bucket),
		logger.String("key", key))

	file, err := os.Open(localPath)
	if err != nil {
		s.log.Error("Error while opening the path", logger.Error(err))
		return "", err
	}
	defer file.Close()

	uploader := s3manager.NewUploader(s.session)
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		s.log.Error("Error while uploading to s3", logger.Error(err))
		return "", err
	}

	return s.objectURL(bucket, key), nil
}

func (s *S3Storage) RemoveObject(ctx context.Context, bucket, key string) error {
	client := s3.New(s.session)
	_, err := client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3Storage) MakeAvailable(ctx context.Context, bucket, key, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}

	file, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer file.Close()

	downloader := s3manager.NewDownloader(s.session)
	_, err = downloader.DownloadWithContext(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3Storage) objectURL(bucket, key string) string {
	if s.cfg.ObjectStorageBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.ObjectStorageBaseURL, bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.cfg.ObjectStorageRegion, key)
}
