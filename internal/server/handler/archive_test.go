package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// memBlobs serves objects from a map.
type memBlobs map[string]string

func (m memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("mem: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, body := range m {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(body)), LastModified: time.Now()})
		}
	}
	return out, nil
}

func (m memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m[path]
	return ok, nil
}

func archiveMux(blobs domain.BlobReader) *http.ServeMux {
	h := NewArchiveHandler(nil, blobs, 365, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archive", h.ListArchive)
	mux.HandleFunc("GET /api/archive/{path...}", h.Download)
	return mux
}

func TestArchiveDownload(t *testing.T) {
	mux := archiveMux(memBlobs{
		"ledger/snapshots/ledger-20240304T050607Z.json": `{"positions":[]}`,
		"ledger/archive/trades/2024-01-03.jsonl":        "{\"id\":\"t1\"}\n",
	})

	tests := []struct {
		name        string
		method      string
		target      string
		status      int
		contentType string
		body        string
	}{
		{
			name: "snapshot", method: http.MethodGet,
			target: "/api/archive/ledger/snapshots/ledger-20240304T050607Z.json",
			status: http.StatusOK, contentType: "application/json", body: `{"positions":[]}`,
		},
		{
			name: "trade archive", method: http.MethodGet,
			target: "/api/archive/ledger/archive/trades/2024-01-03.jsonl",
			status: http.StatusOK, contentType: "application/x-ndjson", body: "{\"id\":\"t1\"}\n",
		},
		{name: "missing object", method: http.MethodGet, target: "/api/archive/ledger/nope.json", status: http.StatusNotFound},
		{name: "empty path", method: http.MethodGet, target: "/api/archive/", status: http.StatusBadRequest},
		{
			name: "head existing", method: http.MethodHead,
			target: "/api/archive/ledger/archive/trades/2024-01-03.jsonl",
			status: http.StatusOK, contentType: "application/x-ndjson",
		},
		{name: "head missing", method: http.MethodHead, target: "/api/archive/ledger/nope.json", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, tt.status, rec.Code)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			}
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			if tt.method == http.MethodHead {
				assert.Empty(t, rec.Body.String())
			}
		})
	}
}

func TestArchiveDownload_Disabled(t *testing.T) {
	rec := httptest.NewRecorder()
	archiveMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive/x.json", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
