package artifactstore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/codes"
)

// Ensure RetryStore implements Store interface.
var _ Store = (*RetryStore)(nil)

// Meta store that wraps store operations in backoff loops. ErrNotFound and
// *ArchivedError are definitive answers, not transport failures, so they
// are never retried.
type RetryStore struct {
	store   Store
	backoff func() retry.Backoff
}

func NewRetryStoreBackoff(store Store, backoff func() retry.Backoff) *RetryStore {
	return &RetryStore{
		store:   store,
		backoff: backoff,
	}
}

// For non latency sensitive artifact persistence
func NewRetryStore(store Store) *RetryStore {
	return &RetryStore{
		store: store,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(time.Second)
			b = retry.WithMaxDuration(time.Second*120, b)
			return b
		},
	}
}

func retryable(err error) error {
	var archived *ArchivedError
	if errors.Is(err, ErrNotFound) || errors.As(err, &archived) {
		return err
	}
	return retry.RetryableError(err)
}

func (r *RetryStore) Upload(
	ctx context.Context,
	reader io.ReadSeeker,
	length int64,
	path string,
) (UploadResult, error) {
	ctx, span := tracer.Start(ctx, "RetryStore.Upload")
	defer span.End()

	var result UploadResult
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryStore.Upload.Retry")
		defer span.End()

		if _, err := reader.Seek(0, io.SeekStart); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to seek to start of artifact")
			return err
		}

		var err error
		result, err = r.store.Upload(ctx, reader, length, path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upload")
			return retryable(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload")
		return UploadResult{}, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded")
	return result, nil
}

func (r *RetryStore) Download(ctx context.Context, path string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "RetryStore.Download")
	defer span.End()

	var content []byte
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryStore.Download.Retry")
		defer span.End()

		var err error
		content, err = r.store.Download(ctx, path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to download")
			return retryable(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "downloaded")
	return content, nil
}

func (r *RetryStore) SignedURL(
	ctx context.Context,
	path string,
	ttl time.Duration,
) (string, error) {
	ctx, span := tracer.Start(ctx, "RetryStore.SignedURL")
	defer span.End()

	var presigned string
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryStore.SignedURL.Retry")
		defer span.End()

		var err error
		presigned, err = r.store.SignedURL(ctx, path, ttl)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to get presigned")
			return retryable(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get presigned")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got presigned")
	return presigned, nil
}

func (r *RetryStore) RequestRehydration(
	ctx context.Context,
	path string,
	priority RehydrationPriority,
) (RehydrationStatus, error) {
	ctx, span := tracer.Start(ctx, "RetryStore.RequestRehydration")
	defer span.End()

	var status RehydrationStatus
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryStore.RequestRehydration.Retry")
		defer span.End()

		var err error
		status, err = r.store.RequestRehydration(ctx, path, priority)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to request rehydration")
			return retryable(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request rehydration")
		return RehydrationStatus{}, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "requested rehydration")
	return status, nil
}

func (r *RetryStore) Status(ctx context.Context, path string) (ObjectStatus, error) {
	ctx, span := tracer.Start(ctx, "RetryStore.Status")
	defer span.End()

	var status ObjectStatus
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryStore.Status.Retry")
		defer span.End()

		var err error
		status, err = r.store.Status(ctx, path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to get status")
			return retryable(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get status")
		return ObjectStatus{}, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got status")
	return status, nil
}

func (r *RetryStore) StoreIdentifier(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "RetryStore.StoreIdentifier")
	defer span.End()

	var ident string
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryStore.StoreIdentifier.Retry")
		defer span.End()

		var err error
		ident, err = r.store.StoreIdentifier(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to get store identifier")
			return retryable(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get store identifier")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got store identifier")
	return ident, nil
}
