package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/rosslabs/ross/internal/log"
)

// Store serves similarity search over the embedding snapshot.
//
// The snapshot lives behind an atomic pointer: Load builds a new slice and
// swaps it in, so concurrent FindSimilar calls always see a complete
// snapshot and never block on a reload. File access is guarded with an
// advisory flock so the index command and a running bot don't interleave
// partial reads and writes.
type Store struct {
	path     string
	embedder Embedder
	fallback FallbackLoader
	logger   log.Logger

	snapshot atomic.Pointer[[]Entry]
}

// NewStore creates a store over the snapshot file at path. fallback may be
// nil when no database fallback is configured.
func NewStore(path string, embedder Embedder, fallback FallbackLoader, logger log.Logger) *Store {
	return &Store{
		path:     path,
		embedder: embedder,
		fallback: fallback,
		logger:   logger,
	}
}

// Load reads the snapshot file and swaps it in. A missing, unreadable, or
// empty snapshot falls back to the database copy; if that also yields
// nothing the previous snapshot (if any) stays in place and ErrUnavailable
// is returned. An empty source never counts as a successful load.
func (s *Store) Load(ctx context.Context) error {
	entries, fileErr := s.loadFile()
	if fileErr == nil && len(entries) == 0 {
		fileErr = errors.New("snapshot has no usable entries")
	}
	if fileErr == nil {
		s.snapshot.Store(&entries)
		s.logger.Info("knowledge snapshot loaded", "path", s.path, "entries", len(entries))
		return nil
	}

	s.logger.Warn("knowledge snapshot unusable, trying fallback", "path", s.path, "error", fileErr)

	if s.fallback == nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, fileErr)
	}

	entries, dbErr := s.fallback.LoadAll(ctx)
	if dbErr == nil && len(entries) == 0 {
		dbErr = errors.New("fallback store is empty")
	}
	if dbErr != nil {
		return fmt.Errorf("%w: snapshot: %v; fallback: %v", ErrUnavailable, fileErr, dbErr)
	}

	s.snapshot.Store(&entries)
	s.logger.Info("knowledge loaded from fallback store", "entries", len(entries))
	return nil
}

func (s *Store) loadFile() ([]Entry, error) {
	lock := flock.New(s.path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("acquiring read lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("releasing knowledge file lock", "error", err)
		}
	}()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	// Entries with missing or mis-sized vectors would poison every
	// similarity pass; drop them at load time.
	entries := raw[:0]
	for _, e := range raw {
		if len(e.Embedding) == 0 {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Len returns the number of loaded entries. Zero before the first Load.
func (s *Store) Len() int {
	if p := s.snapshot.Load(); p != nil {
		return len(*p)
	}
	return 0
}

// FindSimilar embeds the query and returns the topK most similar entries
// above the relevance floor, best first. Loads the snapshot on first use
// if the caller didn't.
func (s *Store) FindSimilar(ctx context.Context, query string, topK int) ([]Match, error) {
	p := s.snapshot.Load()
	if p == nil || len(*p) == 0 {
		if err := s.Load(ctx); err != nil {
			return nil, err
		}
		p = s.snapshot.Load()
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return rank(*p, vec, topK), nil
}

// WriteSnapshot writes entries to the snapshot file under an exclusive
// lock and swaps them in. Used by the index command.
func (s *Store) WriteSnapshot(entries []Entry) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquiring write lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("releasing knowledge file lock", "error", err)
		}
	}()

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	s.snapshot.Store(&entries)
	s.logger.Info("knowledge snapshot written", "path", s.path, "entries", len(entries))
	return nil
}
