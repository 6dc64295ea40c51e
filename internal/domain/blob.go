package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves terminal records older than a cutoff out of the hot store
// into cold storage.
type Archiver interface {
	ArchiveStakes(ctx context.Context, before time.Time) (int64, error)
	ArchiveMarkets(ctx context.Context, before time.Time) (int64, error)
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
