package storage

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/minio/minio-go/v7"
	minioCredentials "github.com/minio/minio-go/v7/pkg/credentials"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

// ObjectStorageI - the narrow surface the pipeline needs from a storage
// backend. The pipeline never talks to a backend SDK directly.
type ObjectStorageI interface {
	// StoreObject uploads a local file and returns its public URL
	StoreObject(ctx context.Context, localPath, bucket, key string) (string, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	// MakeAvailable downloads an object to a local destination path
	MakeAvailable(ctx context.Context, bucket, key, destination string) error
}

// NewObjectStorage builds the configured backend ("minio" or "s3")
func NewObjectStorage(cfg *config.Config, log logger.Logger) (ObjectStorageI, error) {
	switch cfg.ObjectStorageType {
	case "minio":
		client, err := minio.New(cfg.ObjectStorageEndpoint, &minio.Options{
			Creds:  minioCredentials.NewStaticV4(cfg.ObjectStorageAccessKey, cfg.ObjectStorageSecretKey, ""),
			Secure: true,
		})
		if err != nil {
			log.Error("Error while creating minio client", logger.Error(err))
			return nil, err
		}

		return NewMinioStorage(cfg, log, client), nil

	case "s3":
		awsCfg := &aws.Config{
			Region:      aws.String(cfg.ObjectStorageRegion),
			Credentials: credentials.NewStaticCredentials(cfg.ObjectStorageAccessKey, cfg.ObjectStorageSecretKey, ""),
		}
		if cfg.ObjectStorageEndpoint != "" {
			awsCfg.Endpoint = aws.String(cfg.ObjectStorageEndpoint)
		}

		sess, err := session.NewSession(awsCfg)
		if err != nil {
			log.Error("Error while creating aws session", logger.Error(err))
			return nil, err
		}

		return NewS3Storage(cfg, log, sess), nil
	}

	return nil, fmt.Errorf("invalid object storage type %q", cfg.ObjectStorageType)
}

// getFileContentType sniffs the content type from the first 512 bytes
func getFileContentType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil && n == 0 {
		return "", err
	}

	return http.DetectContentType(buffer[:n]), nil
}
