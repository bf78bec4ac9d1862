package storage

import (
	"context"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// SourceResolver streams a cloud-stored object into a local writer. The
// ingestion worker depends on this contract rather than a concrete client so
// tests and alternative backends can substitute their own fetch.
type SourceResolver interface {
	Fetch(ctx context.Context, bucket, key string, dst io.Writer) error
}

// MinioResolver resolves source references against an S3-compatible endpoint.
type MinioResolver struct {
	client *minio.Client
}

func NewMinioResolver(client *minio.Client) *MinioResolver {
	return &MinioResolver{client: client}
}

// Fetch streams bucket/key into dst. Errors are categorized so the worker
// can record a meaningful failure cause on the viewpoint.
func (r *MinioResolver) Fetch(ctx context.Context, bucket, key string, dst io.Writer) error {
	obj, err := r.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return categorize(err, bucket, key)
	}
	defer obj.Close()
	if _, err := io.Copy(dst, obj); err != nil {
		return categorize(err, bucket, key)
	}
	return nil
}

func categorize(err error, bucket, key string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return tserrors.Ingestion(err, tserrors.CauseNetwork,
			"object "+key+" does not exist in bucket "+bucket)
	case http.StatusForbidden:
		return tserrors.Ingestion(err, tserrors.CausePermission,
			"access denied to object "+key+" in bucket "+bucket)
	default:
		return tserrors.Ingestion(err, tserrors.CauseNetwork,
			"could not fetch object "+key+" from bucket "+bucket)
	}
}
