package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// ArchiveHandler triggers archive runs and lists archived objects. Both
// collaborators are nil when object storage is disabled.
type ArchiveHandler struct {
	archiver      domain.Archiver
	blobs         domain.BlobReader
	retentionDays int
	logger        *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. Trades older than
// retentionDays are archived when a request names no cutoff.
func NewArchiveHandler(archiver domain.Archiver, blobs domain.BlobReader, retentionDays int, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiver:      archiver,
		blobs:         blobs,
		retentionDays: retentionDays,
		logger:        logHandler(logger, "archive"),
	}
}

type archiveRequest struct {
	Before   *time.Time `json:"before,omitempty"`
	Snapshot bool       `json:"snapshot"`
}

type archiveResponse struct {
	Archived     int64     `json:"archived"`
	Before       time.Time `json:"before"`
	SnapshotPath string    `json:"snapshot_path,omitempty"`
}

type listArchiveResponse struct {
	Objects []domain.BlobInfo `json:"objects"`
}

// Archive copies trades before the cutoff to object storage and optionally
// writes a full ledger snapshot.
// POST /api/archive
func (h *ArchiveHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archiving is disabled")
		return
	}

	var req archiveRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	now := time.Now().UTC()
	before := now.AddDate(0, 0, -h.retentionDays)
	if req.Before != nil {
		before = req.Before.UTC()
	}

	n, err := h.archiver.ArchiveTrades(r.Context(), before)
	if err != nil {
		writeServiceError(w, r, h.logger, "archive trades", err)
		return
	}

	resp := archiveResponse{Archived: n, Before: before}
	if req.Snapshot {
		path, err := h.archiver.SnapshotLedger(r.Context(), now)
		if err != nil {
			writeServiceError(w, r, h.logger, "snapshot ledger", err)
			return
		}
		resp.SnapshotPath = path
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListArchive lists archived objects under an optional prefix.
// GET /api/archive?prefix=archive/trades/
func (h *ArchiveHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "archiving is disabled")
		return
	}
	objects, err := h.blobs.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list archive", err)
		return
	}
	if objects == nil {
		objects = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, listArchiveResponse{Objects: objects})
}

// Download streams one archived object, such as a ledger snapshot. HEAD only
// reports whether the object exists.
// GET /api/archive/{path...}
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "archiving is disabled")
		return
	}
	key := strings.TrimPrefix(r.PathValue("path"), "/")
	if key == "" {
		writeError(w, http.StatusBadRequest, "object path is required")
		return
	}

	if r.Method == http.MethodHead {
		ok, err := h.blobs.Exists(r.Context(), key)
		if err != nil {
			writeServiceError(w, r, h.logger, "stat archive object", err)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", archiveContentType(key))
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, h.logger, "get archive object", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", archiveContentType(key))
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive: download interrupted",
			slog.String("path", key),
			slog.String("error", err.Error()),
		)
	}
}

func archiveContentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
