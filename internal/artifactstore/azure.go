package artifactstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/credexam/certification-api/internal/hash"
	"github.com/credexam/certification-api/internal/logger"
)

// Metadata key carrying the content digest recorded at upload time
const metadataSHA256 = "sha256"

// Ensures AzureStore implements Store.
var _ Store = (*AzureStore)(nil)

// Azure Blob backed tiered store. Uploads land in the cool access tier;
// archive handling maps onto blob rehydration by SetTier.
type AzureStore struct {
	client *azblob.Client
	// `container` in the storage account where artifacts are saved
	container string
}

// `container` must be part of the storage account provided
func NewAzureStore(
	accountName, accountKey, serviceURL, container string,
) (*AzureStore, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, err
	}

	if container == "" {
		return nil, errors.New("container is required")
	}

	return &AzureStore{
		client:    client,
		container: container,
	}, nil
}

// `container` must be part of the storage account of `client`
func NewAzureStoreFromClient(client *azblob.Client, container string) *AzureStore {
	return &AzureStore{
		client:    client,
		container: container,
	}
}

func (s *AzureStore) blobClient(path string) *blob.Client {
	return s.client.ServiceClient().
		NewContainerClient(s.container).
		NewBlobClient(path)
}

func (s *AzureStore) Upload(
	ctx context.Context,
	reader io.ReadSeeker,
	length int64,
	path string,
) (UploadResult, error) {
	ctx, span := tracer.Start(ctx, "AzureStore.Upload", trace.WithAttributes(
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

	tier := blob.AccessTierCool
	contentType := ContentTypePDF

	_, err = s.client.UploadStream(ctx, s.container, path, reader, &azblob.UploadStreamOptions{
		AccessTier: &tier,
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
		Metadata: map[string]*string{
			metadataSHA256: &sum,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload reader")
		return UploadResult{}, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded artifact")
	return UploadResult{Path: path, SHA256: sum, Size: length}, nil
}

func (s *AzureStore) Status(ctx context.Context, path string) (ObjectStatus, error) {
	ctx, span := tracer.Start(ctx, "AzureStore.Status", trace.WithAttributes(
		attribute.String("path", path),
	))
	defer span.End()

	props, err := s.blobClient(path).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "did not find blob")
			return ObjectStatus{}, ErrNotFound
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get blob properties")
		return ObjectStatus{}, err
	}

	status := ObjectStatus{Exists: true, Tier: TierCool}
	if props.AccessTier != nil {
		status.Tier = tierFromAzure(*props.AccessTier)
	}
	if props.ArchiveStatus != nil {
		status.ArchiveStatus = *props.ArchiveStatus
		status.Rehydrating = strings.HasPrefix(*props.ArchiveStatus, "rehydrate-pending")
	}
	if props.ContentLength != nil {
		status.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		status.LastModified = *props.LastModified
	}
	if props.ContentType != nil {
		status.ContentType = *props.ContentType
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got blob properties")
	return status, nil
}

func (s *AzureStore) Download(ctx context.Context, path string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "AzureStore.Download", trace.WithAttributes(
		attribute.String("path", path),
	))
	defer span.End()

	status, err := s.Status(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check blob status")
		return nil, err
	}

	if status.Tier == TierArchive {
		archived := &ArchivedError{
			Path:          path,
			EstimatedWait: RehydrateWaitStandard,
			Rehydrating:   status.Rehydrating,
		}
		if !status.Rehydrating {
			// Kick rehydration off so the caller's next poll makes progress
			if _, err := s.RequestRehydration(ctx, path, PriorityStandard); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to request rehydration")
				return nil, err
			}
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "blob is archived")
		return nil, archived
	}

	resp, err := s.client.DownloadStream(ctx, s.container, path, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download blob")
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read blob body")
		return nil, err
	}

	verifyDigest(path, content, blobMetadataDigest(resp.Metadata))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "downloaded blob")
	return content, nil
}

func (s *AzureStore) SignedURL(
	ctx context.Context,
	path string,
	ttl time.Duration,
) (string, error) {
	ctx, span := tracer.Start(ctx, "AzureStore.SignedURL", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("ttl", ttl.String()),
	))
	defer span.End()

	status, err := s.Status(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check blob status")
		return "", err
	}

	// Never hand out a URL that 409s on first use
	if status.Tier == TierArchive {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "blob is archived")
		return "", &ArchivedError{
			Path:          path,
			EstimatedWait: RehydrateWaitStandard,
			Rehydrating:   status.Rehydrating,
		}
	}

	presigned, err := s.blobClient(path).
		GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(ttl), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get presigned url")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got presigned url")
	return presigned, nil
}

func (s *AzureStore) RequestRehydration(
	ctx context.Context,
	path string,
	priority RehydrationPriority,
) (RehydrationStatus, error) {
	ctx, span := tracer.Start(ctx, "AzureStore.RequestRehydration", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("priority", string(priority)),
	))
	defer span.End()

	status, err := s.Status(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check blob status")
		return RehydrationStatus{}, err
	}

	if status.Tier != TierArchive {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "blob is already readable")
		return RehydrationStatus{Requested: false, InProgress: false}, nil
	}

	if status.Rehydrating {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "rehydration already in progress")
		return RehydrationStatus{
			Requested:     false,
			InProgress:    true,
			EstimatedWait: waitFor(priority),
		}, nil
	}

	rehydrate := blob.RehydratePriorityStandard
	if priority == PriorityHigh {
		rehydrate = blob.RehydratePriorityHigh
	}

	_, err = s.blobClient(path).SetTier(ctx, blob.AccessTierCool, &blob.SetTierOptions{
		RehydratePriority: &rehydrate,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set tier")
		return RehydrationStatus{}, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "requested rehydration")
	return RehydrationStatus{
		Requested:     true,
		InProgress:    true,
		EstimatedWait: waitFor(priority),
	}, nil
}

func (s *AzureStore) StoreIdentifier(_ context.Context) (string, error) {
	return s.container, nil
}

func tierFromAzure(accessTier string) Tier {
	switch strings.ToLower(accessTier) {
	case "hot":
		return TierHot
	case "archive":
		return TierArchive
	default:
		return TierCool
	}
}

func blobMetadataDigest(metadata map[string]*string) string {
	// Azure metadata keys are case insensitive and come back recapitalized
	for key, value := range metadata {
		if strings.EqualFold(key, metadataSHA256) && value != nil {
			return *value
		}
	}
	return ""
}

// verifyDigest compares retrieved bytes against the digest recorded at
// upload. A mismatch is logged and the content still returned; refusing
// delivery of an already issued certificate would be worse than a logged
// discrepancy.
func verifyDigest(path string, content []byte, recorded string) {
	if recorded == "" {
		return
	}

	if actual := hash.Buffer(content); actual != recorded {
		logger.Logger.Warn(
			"artifact digest mismatch on download",
			"path", path,
			"recorded", recorded,
			"actual", actual,
		)
	}
}
