package domain

import (
	"context"
	"time"
)

// Store is the persistent table of cache entries. Every operation is atomic on
// its own; nothing spans calls. Medium failures come back as
// pkgError.StorageFault, misses from Get as pkgError.NotFoundError.
type Store interface {
	// Put upserts by ID.
	Put(ctx context.Context, entry Entry) error

	// Get never updates LastAccessedAt; recency is the facade's job.
	Get(ctx context.Context, id string) (Entry, error)

	GetAllByOwner(ctx context.Context, ownerID string) ([]Entry, error)
	GetAllByGroup(ctx context.Context, groupID string) ([]Entry, error)

	// Delete is a no-op when the id is absent.
	Delete(ctx context.Context, id string) error

	ScanAll(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) error

	// Touch sets LastAccessedAt on an existing entry only. It must not
	// recreate an entry that was deleted in the meantime.
	Touch(ctx context.Context, id string, at time.Time) error

	Close() error
}

// Fetcher turns a remote reference into a local payload. Failures are
// pkgError.RemoteUnavailable; retries are the caller's decision.
type Fetcher interface {
	Fetch(ctx context.Context, remoteRef string) (string, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, remoteRef string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, remoteRef string) (string, error) {
	return f(ctx, remoteRef)
}
