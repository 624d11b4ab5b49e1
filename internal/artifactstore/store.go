package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/credexam/certification-api/internal/artifactstore")

// Storage tier of an object. New uploads land in cool; archive is cheap but
// not immediately readable.
type Tier string

const (
	TierHot     Tier = "hot"
	TierCool    Tier = "cool"
	TierArchive Tier = "archive"
)

type RehydrationPriority string

const (
	PriorityStandard RehydrationPriority = "standard"
	PriorityHigh     RehydrationPriority = "high"
)

// Estimated waits surfaced to callers when an object is still in archive.
const (
	RehydrateWaitStandard = 15 * time.Hour
	RehydrateWaitHigh     = 1 * time.Hour
)

const ContentTypePDF = "application/pdf"

var ErrNotFound = errors.New("artifact not found")

// ArchivedError is the recoverable-pending outcome of touching an object in
// the archive tier. It is not an I/O failure; callers must branch on it and
// answer "try again later".
type ArchivedError struct {
	Path          string
	EstimatedWait time.Duration
	// Whether a rehydration was already underway when the access happened
	Rehydrating bool
}

func (e *ArchivedError) Error() string {
	return fmt.Sprintf(
		"artifact %q is archived; estimated rehydration wait %s",
		e.Path,
		e.EstimatedWait,
	)
}

// AsArchived unwraps err into the recoverable-pending condition, if that is
// what it is.
func AsArchived(err error) (*ArchivedError, bool) {
	var ae *ArchivedError
	ok := errors.As(err, &ae)
	return ae, ok
}

type UploadResult struct {
	Path   string
	SHA256 string
	Size   int64
}

type ObjectStatus struct {
	Exists        bool
	Tier          Tier
	Rehydrating   bool
	ArchiveStatus string
	Size          int64
	LastModified  time.Time
	ContentType   string
}

// IsAvailable reports whether the object can be read right now.
func (s ObjectStatus) IsAvailable() bool {
	return s.Exists && s.Tier != TierArchive
}

type RehydrationStatus struct {
	Requested     bool
	InProgress    bool
	EstimatedWait time.Duration
}

// Store is the tiered artifact persistence contract.
//
// Download and SignedURL return *ArchivedError for archive-tier objects
// instead of blocking; the caller polls Status until the object is readable.
type Store interface {
	// Create / Overwrite object contents at `path`. Records the SHA-256 of
	// the content so later downloads can be verified.
	Upload(ctx context.Context, reader io.ReadSeeker, length int64, path string) (UploadResult, error)
	// Fetch object contents. Re-hashes the retrieved bytes against the
	// recorded digest; a mismatch is logged, not raised.
	Download(ctx context.Context, path string) ([]byte, error)
	// Anonymous, readonly, time boxed URL for downloading the object.
	// Returns *ArchivedError rather than a URL that cannot be used.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	// Begin promoting an archived object back to a readable tier. Never
	// blocks; callers poll Status.
	RequestRehydration(ctx context.Context, path string, priority RehydrationPriority) (RehydrationStatus, error)
	Status(ctx context.Context, path string) (ObjectStatus, error)
	// Identifier for where objects are stored. Useful for logging and auditing.
	StoreIdentifier(ctx context.Context) (string, error)
}

func waitFor(priority RehydrationPriority) time.Duration {
	if priority == PriorityHigh {
		return RehydrateWaitHigh
	}
	return RehydrateWaitStandard
}
