package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aurayield/engine/internal/domain"
)

// Archiver implements domain.Archiver by querying the hot store for terminal
// records older than a cutoff, serializing them to JSONL, uploading the batch
// to S3, and then pruning the archived rows. The upload happens before the
// delete, so a failed prune leaves duplicates in cold storage, never a gap.
type Archiver struct {
	writer  domain.BlobWriter
	stakes  domain.StakeStore
	markets domain.MarketStore
	wagers  domain.WagerStore
	audit   domain.AuditStore
	logger  *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	stakes domain.StakeStore,
	markets domain.MarketStore,
	wagers domain.WagerStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:  writer,
		stakes:  stakes,
		markets: markets,
		wagers:  wagers,
		audit:   audit,
		logger:  logger,
	}
}

// ArchiveStakes moves settled stakes older than the cutoff to cold storage.
func (a *Archiver) ArchiveStakes(ctx context.Context, before time.Time) (int64, error) {
	stakes, err := a.stakes.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive stakes query: %w", err)
	}
	if len(stakes) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(stakes)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive stakes marshal: %w", err)
	}

	path := archivePath("stakes", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive stakes upload: %w", err)
	}

	deleted, err := a.stakes.DeleteSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive stakes prune: %w", err)
	}

	a.logAudit(ctx, "archive.stakes", path, deleted, before)
	return deleted, nil
}

// ArchiveMarkets moves resolved markets older than the cutoff, together with
// their wagers, to cold storage.
func (a *Archiver) ArchiveMarkets(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListResolvedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	type marketWithWagers struct {
		Market domain.Market  `json:"market"`
		Wagers []domain.Wager `json:"wagers"`
	}
	records := make([]marketWithWagers, 0, len(markets))
	for _, m := range markets {
		wagers, err := a.wagers.ListByMarket(ctx, m.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive markets wagers query: %w", err)
		}
		records = append(records, marketWithWagers{Market: m, Wagers: wagers})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets marshal: %w", err)
	}

	path := archivePath("markets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive markets upload: %w", err)
	}

	deleted, err := a.markets.DeleteResolvedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets prune: %w", err)
	}

	a.logAudit(ctx, "archive.markets", path, deleted, before)
	return deleted, nil
}

// ArchiveAudit moves audit entries older than the cutoff to cold storage.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	deleted, err := a.audit.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit prune: %w", err)
	}

	a.logger.InfoContext(ctx, "audit archive complete",
		slog.String("path", path), slog.Int64("count", deleted))
	return deleted, nil
}

func (a *Archiver) logAudit(ctx context.Context, event, path string, count int64, before time.Time) {
	if err := a.audit.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		a.logger.WarnContext(ctx, "archive audit log failed",
			slog.String("event", event), slog.Any("error", err))
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time, e.g. archive/stakes/2025-01.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
