package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rupamthxt/facematch/internal/match"
)

var (
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrInvalidCandidate  = errors.New("candidate requires an id and an embedding")
)

const (
	walFile      = "gallery.wal"
	snapshotFile = "gallery.snap"
)

// Store is the gallery surface the service layer talks to. It is satisfied
// by a local Gallery and by a raft-replicated node.
type Store interface {
	Put(c match.Candidate) error
	Delete(id string) error
	Get(id string) (match.Candidate, bool)
	List() []match.Candidate
	Len() int
}

// Gallery holds reference candidates in registration order, which is the
// order they are fed to the ranker.
type Gallery struct {
	mu      sync.RWMutex
	index   map[string]int
	records []match.Candidate

	// nil when the gallery is purely in memory
	wal *WAL
	dir string
}

func NewGallery() *Gallery {
	return &Gallery{
		index:   make(map[string]int),
		records: make([]match.Candidate, 0),
	}
}

// OpenGallery loads the snapshot in dir if present, replays the WAL on top
// of it and keeps the WAL open for further writes.
func OpenGallery(dir string) (*Gallery, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	g := NewGallery()
	snapPath := filepath.Join(dir, snapshotFile)
	if _, err := os.Stat(snapPath); err == nil {
		loaded, err := LoadGallery(snapPath)
		if err != nil {
			return nil, err
		}
		g = loaded
	}

	wal, err := OpenWal(filepath.Join(dir, walFile))
	if err != nil {
		return nil, err
	}

	if err := wal.Recover(g.replayEntry); err != nil {
		wal.Close()
		return nil, fmt.Errorf("replay wal: %w", err)
	}

	g.wal = wal
	g.dir = dir
	return g, nil
}

// ReadGallery loads the snapshot and log in dir without writing anything.
// The result has no WAL, so it is meant for offline reads; a torn log tail
// is ignored rather than repaired.
func ReadGallery(dir string) (*Gallery, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	g := NewGallery()
	snapPath := filepath.Join(dir, snapshotFile)
	if _, err := os.Stat(snapPath); err == nil {
		loaded, err := LoadGallery(snapPath)
		if err != nil {
			return nil, err
		}
		g = loaded
	}

	if err := ReplayWAL(filepath.Join(dir, walFile), g.replayEntry); err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	return g, nil
}

func (g *Gallery) replayEntry(op byte, c match.Candidate) {
	switch op {
	case OpPut:
		g.apply(c)
	case OpDelete:
		g.remove(c.ID)
	}
}

// Put inserts c, or replaces the candidate with the same ID in place.
func (g *Gallery) Put(c match.Candidate) error {
	if c.ID == "" || len(c.Embedding) == 0 {
		return ErrInvalidCandidate
	}
	c.Embedding = append(match.Embedding(nil), c.Embedding...)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.wal != nil {
		if err := g.wal.WriteEntry(OpPut, c); err != nil {
			return fmt.Errorf("write wal: %w", err)
		}
	}
	g.apply(c)
	return nil
}

func (g *Gallery) Delete(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.index[id]; !ok {
		return ErrCandidateNotFound
	}
	if g.wal != nil {
		if err := g.wal.WriteEntry(OpDelete, match.Candidate{ID: id}); err != nil {
			return fmt.Errorf("write wal: %w", err)
		}
	}
	g.remove(id)
	return nil
}

func (g *Gallery) Get(id string) (match.Candidate, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pos, ok := g.index[id]
	if !ok {
		return match.Candidate{}, false
	}
	return g.records[pos], true
}

// List returns the candidates in registration order. The embeddings are
// shared with the gallery and must not be modified.
func (g *Gallery) List() []match.Candidate {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]match.Candidate, len(g.records))
	copy(out, g.records)
	return out
}

func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// Compact snapshots the gallery into its data dir and truncates the WAL.
func (g *Gallery) Compact() error {
	if g.wal == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.saveLocked(filepath.Join(g.dir, snapshotFile)); err != nil {
		return err
	}
	return g.wal.Truncate()
}

func (g *Gallery) Close() error {
	if g.wal == nil {
		return nil
	}
	return g.wal.Close()
}

// replace swaps the whole contents, keeping the given order.
func (g *Gallery) replace(candidates []match.Candidate) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.index = make(map[string]int, len(candidates))
	g.records = make([]match.Candidate, 0, len(candidates))
	for _, c := range candidates {
		g.apply(c)
	}
}

func (g *Gallery) apply(c match.Candidate) {
	if pos, ok := g.index[c.ID]; ok {
		g.records[pos] = c
		return
	}
	g.index[c.ID] = len(g.records)
	g.records = append(g.records, c)
}

func (g *Gallery) remove(id string) {
	pos, ok := g.index[id]
	if !ok {
		return
	}
	g.records = append(g.records[:pos], g.records[pos+1:]...)
	delete(g.index, id)
	for i := pos; i < len(g.records); i++ {
		g.index[g.records[i].ID] = i
	}
}
