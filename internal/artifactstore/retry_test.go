package artifactstore_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credexam/certification-api/internal/artifactstore"
)

// fakeStore counts calls and replays canned answers per operation.
type fakeStore struct {
	uploadCalls   int
	downloadCalls int
	statusCalls   int

	upload          func(calls int) (artifactstore.UploadResult, error)
	download        func(calls int) ([]byte, error)
	status          func(calls int) (artifactstore.ObjectStatus, error)
	signedURL       func(calls int) (string, error)
	storeIdentifier func(calls int) (string, error)
}

func (f *fakeStore) Upload(
	_ context.Context,
	_ io.ReadSeeker,
	_ int64,
	_ string,
) (artifactstore.UploadResult, error) {
	f.uploadCalls++
	return f.upload(f.uploadCalls)
}

func (f *fakeStore) Download(_ context.Context, _ string) ([]byte, error) {
	f.downloadCalls++
	return f.download(f.downloadCalls)
}

func (f *fakeStore) SignedURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return f.signedURL(0)
}

func (f *fakeStore) RequestRehydration(
	_ context.Context,
	_ string,
	_ artifactstore.RehydrationPriority,
) (artifactstore.RehydrationStatus, error) {
	return artifactstore.RehydrationStatus{}, nil
}

func (f *fakeStore) Status(_ context.Context, _ string) (artifactstore.ObjectStatus, error) {
	f.statusCalls++
	return f.status(f.statusCalls)
}

func (f *fakeStore) StoreIdentifier(_ context.Context) (string, error) {
	return f.storeIdentifier(0)
}

func fastBackoff() func() retry.Backoff {
	return func() retry.Backoff {
		b := retry.NewConstant(time.Millisecond * 10)
		b = retry.WithMaxRetries(3, b)
		return b
	}
}

func TestRetryUpload(t *testing.T) {
	t.Run("NoError", func(t *testing.T) {
		ctx := context.Background()
		expected := artifactstore.UploadResult{Path: "a.pdf", SHA256: "abc", Size: 11}

		fake := &fakeStore{
			upload: func(_ int) (artifactstore.UploadResult, error) {
				return expected, nil
			},
		}

		reader := strings.NewReader("hello there")
		store := artifactstore.NewRetryStore(fake)
		actual, err := store.Upload(ctx, reader, int64(reader.Len()), "a.pdf")

		require.NoError(t, err, "failed to upload")
		assert.Equal(t, expected, actual, "not matching result")
		assert.Equal(t, 1, fake.uploadCalls, "should not retry a success")
	})

	t.Run("ErrorAfter1Try", func(t *testing.T) {
		ctx := context.Background()
		expected := artifactstore.UploadResult{Path: "a.pdf", SHA256: "abc", Size: 11}

		fake := &fakeStore{
			upload: func(calls int) (artifactstore.UploadResult, error) {
				if calls == 2 {
					return expected, nil
				}
				return artifactstore.UploadResult{}, errors.New("expected error")
			},
		}

		reader := strings.NewReader("hello there")
		store := artifactstore.NewRetryStore(fake)
		actual, err := store.Upload(ctx, reader, int64(reader.Len()), "a.pdf")

		require.NoError(t, err, "failed to upload")
		assert.Equal(t, expected, actual, "not matching result")
		assert.Equal(t, 2, fake.uploadCalls, "should succeed on second try")
	})

	t.Run("Error", func(t *testing.T) {
		ctx := context.Background()

		fake := &fakeStore{
			upload: func(_ int) (artifactstore.UploadResult, error) {
				return artifactstore.UploadResult{}, errors.New("expected error")
			},
		}

		reader := strings.NewReader("hello there")
		store := artifactstore.NewRetryStoreBackoff(fake, fastBackoff())
		_, err := store.Upload(ctx, reader, int64(reader.Len()), "a.pdf")

		require.Error(t, err, "somehow uploaded")
		assert.Equal(t, 4, fake.uploadCalls, "should exhaust retries")
	})
}

func TestRetryDownload(t *testing.T) {
	t.Run("NotFoundIsFinal", func(t *testing.T) {
		ctx := context.Background()

		fake := &fakeStore{
			download: func(_ int) ([]byte, error) {
				return nil, artifactstore.ErrNotFound
			},
		}

		store := artifactstore.NewRetryStore(fake)
		_, err := store.Download(ctx, "a.pdf")

		require.ErrorIs(t, err, artifactstore.ErrNotFound)
		assert.Equal(t, 1, fake.downloadCalls, "not found must not be retried")
	})

	t.Run("ArchivedIsFinal", func(t *testing.T) {
		ctx := context.Background()

		fake := &fakeStore{
			download: func(_ int) ([]byte, error) {
				return nil, &artifactstore.ArchivedError{
					Path:          "a.pdf",
					EstimatedWait: artifactstore.RehydrateWaitStandard,
				}
			},
		}

		store := artifactstore.NewRetryStore(fake)
		_, err := store.Download(ctx, "a.pdf")

		archived, ok := artifactstore.AsArchived(err)
		require.True(t, ok, "should surface the archived condition")
		assert.Equal(t, "a.pdf", archived.Path)
		assert.Equal(t, 1, fake.downloadCalls, "archived must not be retried")
	})

	t.Run("TransientIsRetried", func(t *testing.T) {
		ctx := context.Background()
		expected := []byte("content")

		fake := &fakeStore{
			download: func(calls int) ([]byte, error) {
				if calls == 2 {
					return expected, nil
				}
				return nil, errors.New("expected error")
			},
		}

		store := artifactstore.NewRetryStore(fake)
		actual, err := store.Download(ctx, "a.pdf")

		require.NoError(t, err, "failed to download")
		assert.Equal(t, expected, actual, "not matching content")
		assert.Equal(t, 2, fake.downloadCalls, "should succeed on second try")
	})
}

func TestRetryStatus(t *testing.T) {
	t.Run("ErrorAfter1Try", func(t *testing.T) {
		ctx := context.Background()
		expected := artifactstore.ObjectStatus{Exists: true, Tier: artifactstore.TierCool}

		fake := &fakeStore{
			status: func(calls int) (artifactstore.ObjectStatus, error) {
				if calls == 2 {
					return expected, nil
				}
				return artifactstore.ObjectStatus{}, errors.New("expected error")
			},
		}

		store := artifactstore.NewRetryStore(fake)
		actual, err := store.Status(ctx, "a.pdf")

		require.NoError(t, err, "failed to get status")
		assert.Equal(t, expected, actual, "not matching status")
	})
}

func TestRetryStoreIdentifier(t *testing.T) {
	t.Run("NoError", func(t *testing.T) {
		ctx := context.Background()
		expected := "identifier"

		fake := &fakeStore{
			storeIdentifier: func(_ int) (string, error) {
				return expected, nil
			},
		}

		store := artifactstore.NewRetryStore(fake)
		actual, err := store.StoreIdentifier(ctx)

		require.NoError(t, err, "failed to get store identifier")
		assert.Equal(t, expected, actual, "not matching identifier")
	})
}
