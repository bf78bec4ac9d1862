package storage

import (
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/config"
)

// NewMinioClient initializes a MinIO client for the configured endpoint.
// Buckets are owned by imagery producers, so no bucket is created here; a
// missing bucket surfaces as an ingestion failure on the viewpoint instead.
func NewMinioClient(cfg *config.Config) (*minio.Client, error) {
	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSSL,
	})
	if err != nil {
		return nil, err
	}
	return minioClient, nil
}
