// Package jsonfile keeps the whole ledger in a single JSON document on
// disk. Every mutation rewrites the file through a temp file, keeping the
// previous version as a backup. An empty path keeps the document in memory
// only.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// Quote is a remembered last price.
type Quote struct {
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

type document struct {
	Positions  []domain.Position   `json:"positions"`
	History    []domain.Trade      `json:"history"`
	Plans      []domain.Plan       `json:"plans"`
	LastPrices map[string]Quote    `json:"last_prices"`
	Audit      []domain.AuditEntry `json:"audit"`
	NextSeq    int64               `json:"next_seq,omitempty"`
}

func emptyDocument() document {
	return document{
		Positions:  []domain.Position{},
		History:    []domain.Trade{},
		Plans:      []domain.Plan{},
		LastPrices: map[string]Quote{},
		Audit:      []domain.AuditEntry{},
	}
}

// Store is the JSON document store.
type Store struct {
	mu     sync.Mutex
	path   string
	doc    document
	logger *slog.Logger
}

// Open loads the document at path. A missing file starts an empty ledger.
// A corrupt file is replaced by its backup when one decodes, and by an
// empty ledger otherwise.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		doc:    emptyDocument(),
		logger: logger.With(slog.String("component", "jsonfile")),
	}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: create data directory: %w", err)
	}

	doc, err := readDocument(path)
	switch {
	case err == nil:
		s.doc = doc
	case errors.Is(err, fs.ErrNotExist):
	default:
		s.logger.Warn("jsonfile: data file unreadable, trying backup",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		if backup, berr := readDocument(s.backupPath()); berr == nil {
			s.doc = backup
			if cerr := copyFile(s.backupPath(), path); cerr != nil {
				s.logger.Warn("jsonfile: restore backup failed", slog.String("error", cerr.Error()))
			}
		} else {
			s.logger.Warn("jsonfile: backup unusable, starting empty", slog.String("error", berr.Error()))
		}
	}
	return s, nil
}

// Path returns the data file path, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) backupPath() string {
	return s.path + ".bak"
}

func (s *Store) tempPath() string {
	return s.path + ".tmp"
}

func readDocument(path string) (document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return document{}, err
	}
	doc := emptyDocument()
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	doc.normalize()
	return doc, nil
}

func (d *document) normalize() {
	if d.Positions == nil {
		d.Positions = []domain.Position{}
	}
	if d.History == nil {
		d.History = []domain.Trade{}
	}
	// Files written before sequences existed keep their history order.
	for _, t := range d.History {
		d.NextSeq = max(d.NextSeq, t.Seq)
	}
	for i := range d.History {
		if d.History[i].Seq == 0 {
			d.NextSeq++
			d.History[i].Seq = d.NextSeq
		}
	}
	if d.Plans == nil {
		d.Plans = []domain.Plan{}
	}
	if d.LastPrices == nil {
		d.LastPrices = map[string]Quote{}
	}
	if d.Audit == nil {
		d.Audit = []domain.AuditEntry{}
	}
	for i := range d.Positions {
		if d.Positions[i].PlanIDs == nil {
			d.Positions[i].PlanIDs = []string{}
		}
	}
}

// update applies fn to the document under the lock and persists the
// result. If fn or the save fails the in-memory document is rolled back.
func (s *Store) update(fn func(*document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := cloneDocument(s.doc)
	if err != nil {
		return fmt.Errorf("jsonfile: snapshot document: %w", err)
	}
	if err := fn(&s.doc); err != nil {
		s.doc = prev
		return err
	}
	if err := s.save(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

func (s *Store) view(fn func(*document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.doc)
}

// save writes the document to a temp file, moves the current file to the
// backup and renames the temp file into place. On failure the backup is
// restored.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode document: %w", err)
	}
	if err := os.WriteFile(s.tempPath(), raw, 0o644); err != nil {
		return fmt.Errorf("jsonfile: write temp file: %w", err)
	}

	hadOriginal := false
	if _, err := os.Stat(s.path); err == nil {
		hadOriginal = true
		if err := copyFile(s.path, s.backupPath()); err != nil {
			_ = os.Remove(s.tempPath())
			return fmt.Errorf("jsonfile: write backup: %w", err)
		}
	}

	if err := os.Rename(s.tempPath(), s.path); err != nil {
		_ = os.Remove(s.tempPath())
		if hadOriginal {
			if rerr := copyFile(s.backupPath(), s.path); rerr != nil {
				s.logger.Error("jsonfile: restore backup failed", slog.String("error", rerr.Error()))
			}
		}
		return fmt.Errorf("jsonfile: replace data file: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func cloneDocument(d document) (document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return document{}, err
	}
	out := emptyDocument()
	if err := json.Unmarshal(raw, &out); err != nil {
		return document{}, err
	}
	out.normalize()
	return out, nil
}

// Positions returns the domain.PositionStore view of the document.
func (s *Store) Positions() *PositionStore { return &PositionStore{s: s} }

// Plans returns the domain.PlanStore view of the document.
func (s *Store) Plans() *PlanStore { return &PlanStore{s: s} }

// Trades returns the domain.TradeStore view of the document.
func (s *Store) Trades() *TradeStore { return &TradeStore{s: s} }

// Audit returns the domain.AuditStore view of the document.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// Prices returns the domain.PriceCache view over last_prices.
func (s *Store) Prices() *PriceCache { return &PriceCache{s: s} }
