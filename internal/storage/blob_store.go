package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/company-marketplace/backend/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type BlobLookup interface {
	GetBlobByKey(ctx context.Context, key string) (*models.Blob, error)
}

// ObjectStatter is the part of *minio.Client the store needs.
type ObjectStatter interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// BlobStore resolves signed ids to blobs that exist both in the blobs table
// and in object storage. Object storage is skipped when no client is set.
type BlobStore struct {
	ids     *SignedIDs
	lookup  BlobLookup
	objects ObjectStatter
	bucket  string
	log     *zap.Logger
}

func NewBlobStore(ids *SignedIDs, lookup BlobLookup, objects ObjectStatter, bucket string, log *zap.Logger) *BlobStore {
	return &BlobStore{ids: ids, lookup: lookup, objects: objects, bucket: bucket, log: log}
}

func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool, log *zap.Logger) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	log.Info("minio client created", zap.String("endpoint", endpoint))
	return client, nil
}

// Resolve returns models.ErrBlobNotFound (wrapped) for forged, unknown or
// missing blobs; other errors are storage failures.
func (s *BlobStore) Resolve(ctx context.Context, signedID string) (*models.Blob, error) {
	key, err := s.ids.Verify(signedID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBlobNotFound, err)
	}

	blob, err := s.lookup.GetBlobByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	if s.objects == nil {
		return blob, nil
	}
	info, err := s.objects.StatObject(ctx, s.bucket, blob.Key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("object %q: %w", blob.Key, models.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("stat object %q: %w", blob.Key, err)
	}
	if blob.ByteSize > 0 && info.Size != blob.ByteSize {
		s.log.Warn("blob size mismatch",
			zap.String("key", blob.Key),
			zap.Int64("expected", blob.ByteSize),
			zap.Int64("actual", info.Size),
		)
	}
	return blob, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrBlobNotFound)
}
