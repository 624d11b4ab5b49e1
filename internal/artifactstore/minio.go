package artifactstore

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/credexam/certification-api/internal/hash"
)

// Ensure MinioStore implements Store.
var _ Store = (*MinioStore)(nil)

// Minio (S3) backed store. S3 objects here have no archive tier: everything
// is immediately readable, Status always reports cool and rehydration is a
// no-op. Used as the secondary store when Azure is not configured.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(
	endpoint, id, secret string,
	ssl bool,
	bucket string,
) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(id, secret, ""),
		Secure: ssl,
	})
	if err != nil {
		return nil, err
	}

	return &MinioStore{
		client: client,
		bucket: bucket,
	}, nil
}

func NewMinioStoreFromClient(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{
		client: client,
		bucket: bucket,
	}
}

func (s *MinioStore) Upload(
	ctx context.Context,
	reader io.ReadSeeker,
	length int64,
	path string,
) (UploadResult, error) {
	ctx, span := tracer.Start(ctx, "MinioStore.Upload", trace.WithAttributes(
		attribute.String("path", path),
		attribute.Int64("length", length),
	))
	defer span.End()

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to seek to start")
		return UploadResult{}, err
	}

	sum, err := hash.Reader(ctx, reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash reader")
		return UploadResult{}, err
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to seek to start")
		return UploadResult{}, err
	}

	_, err = s.client.PutObject(ctx, s.bucket, path, reader, length, minio.PutObjectOptions{
		ContentType:  ContentTypePDF,
		UserMetadata: map[string]string{metadataSHA256: sum},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put object")
		return UploadResult{}, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "put object")
	return UploadResult{Path: path, SHA256: sum, Size: length}, nil
}

func (s *MinioStore) Status(ctx context.Context, path string) (ObjectStatus, error) {
	ctx, span := tracer.Start(ctx, "MinioStore.Status", trace.WithAttributes(
		attribute.String("path", path),
	))
	defer span.End()

	info, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		errResponse := minio.ToErrorResponse(err)
		if errResponse.Code == "NoSuchKey" {
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "did not find object")
			return ObjectStatus{}, ErrNotFound
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat object")
		return ObjectStatus{}, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "statted object")
	return ObjectStatus{
		Exists:       true,
		Tier:         TierCool,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
	}, nil
}

func (s *MinioStore) Download(ctx context.Context, path string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "MinioStore.Download", trace.WithAttributes(
		attribute.String("path", path),
	))
	defer span.End()

	info, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		errResponse := minio.ToErrorResponse(err)
		if errResponse.Code == "NoSuchKey" {
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "did not find object")
			return nil, ErrNotFound
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat object")
		return nil, err
	}

	object, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get object")
		return nil, err
	}
	defer object.Close()

	content, err := io.ReadAll(object)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read object body")
		return nil, err
	}

	verifyDigest(path, content, s3MetadataDigest(info.UserMetadata))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "downloaded object")
	return content, nil
}

func (s *MinioStore) SignedURL(
	ctx context.Context,
	path string,
	ttl time.Duration,
) (string, error) {
	ctx, span := tracer.Start(ctx, "MinioStore.SignedURL", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("ttl", ttl.String()),
	))
	defer span.End()

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, path, ttl, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get presigned url")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got presigned url")
	return presigned.String(), nil
}

func (s *MinioStore) RequestRehydration(
	ctx context.Context,
	path string,
	_ RehydrationPriority,
) (RehydrationStatus, error) {
	// No archive tier to come back from
	if _, err := s.Status(ctx, path); err != nil {
		return RehydrationStatus{}, err
	}

	return RehydrationStatus{Requested: false, InProgress: false}, nil
}

func (s *MinioStore) StoreIdentifier(_ context.Context) (string, error) {
	return s.bucket, nil
}

func s3MetadataDigest(metadata map[string]string) string {
	for key, value := range metadata {
		if strings.EqualFold(key, metadataSHA256) {
			return value
		}
	}
	return ""
}
