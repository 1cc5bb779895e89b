package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// multipartThreshold switches snapshot uploads to the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// LedgerSource is the read access the archiver needs.
type LedgerSource struct {
	Positions domain.PositionStore
	Plans     domain.PlanStore
	Trades    domain.TradeStore
}

// LedgerSnapshot is the document written by SnapshotLedger.
type LedgerSnapshot struct {
	TakenAt   time.Time         `json:"taken_at"`
	Positions []domain.Position `json:"positions"`
	Plans     []domain.Plan     `json:"plans"`
	Trades    []domain.Trade    `json:"trades"`
}

// Archiver implements domain.Archiver. Archived trades stay in the primary
// store because realized profit is computed over the full history.
type Archiver struct {
	writer domain.BlobWriter
	src    LedgerSource
	audit  domain.AuditStore
	prefix string
	logger *slog.Logger
}

// NewArchiver creates an Archiver writing under prefix.
func NewArchiver(writer domain.BlobWriter, src LedgerSource, audit domain.AuditStore, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		src:    src,
		audit:  audit,
		prefix: prefix,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades writes every trade before the cutoff as JSONL to
// archive/trades/YYYY-MM-DD.jsonl and returns the number written.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.src.Trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	key := a.key(archivePath("trades", before))
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))
	a.record(ctx, "archive.trades", map[string]any{
		"path":   key,
		"count":  count,
		"before": before.Format(time.RFC3339),
	})
	return count, nil
}

// SnapshotLedger uploads positions, plans and trades as one JSON document
// to snapshots/ledger-<timestamp>.json and returns the object key.
func (a *Archiver) SnapshotLedger(ctx context.Context, at time.Time) (string, error) {
	positions, err := a.src.Positions.List(ctx)
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot positions: %w", err)
	}
	plans, err := a.src.Plans.List(ctx)
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot plans: %w", err)
	}
	trades, err := a.src.Trades.List(ctx, domain.ListOpts{})
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot trades: %w", err)
	}

	raw, err := json.Marshal(LedgerSnapshot{
		TakenAt:   at.UTC(),
		Positions: positions,
		Plans:     plans,
		Trades:    trades,
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot marshal: %w", err)
	}

	key := a.key(fmt.Sprintf("snapshots/ledger-%s.json", at.UTC().Format("20060102T150405Z")))
	if len(raw) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(raw), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(raw), "application/json")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot upload: %w", err)
	}

	a.record(ctx, "archive.snapshot", map[string]any{
		"path":      key,
		"positions": len(positions),
		"plans":     len(plans),
		"trades":    len(trades),
		"bytes":     len(raw),
	})
	return key, nil
}

func (a *Archiver) record(ctx context.Context, event string, detail map[string]any) {
	if err := a.audit.Log(ctx, event, detail); err != nil {
		a.logger.WarnContext(ctx, "archiver: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	a.logger.InfoContext(ctx, "archiver: "+event, slog.Any("path", detail["path"]))
}

func (a *Archiver) key(p string) string {
	if a.prefix == "" {
		return p
	}
	return path.Join(a.prefix, p)
}

// archivePath builds the key for an archive file, partitioned by the
// cutoff date.
//
//	archive/trades/2025-01-31.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01-02"))
}

// marshalJSONL serialises records as newline-delimited JSON.
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

var _ domain.Archiver = (*Archiver)(nil)
