package store

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/rupamthxt/facematch/internal/match"
)

type Snapshot struct {
	Candidates []match.Candidate
}

// Save writes a gob snapshot of the gallery to filepath.
func (g *Gallery) Save(filepath string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.saveLocked(filepath)
}

func (g *Gallery) saveLocked(filepath string) error {
	tmp := filepath + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := EncodeSnapshot(file, g.records); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath)
}

// WriteSnapshot streams the gallery contents to w.
func (g *Gallery) WriteSnapshot(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return EncodeSnapshot(w, g.records)
}

// EncodeSnapshot writes candidates in the format ReadSnapshot expects.
func EncodeSnapshot(w io.Writer, candidates []match.Candidate) error {
	if err := gob.NewEncoder(w).Encode(Snapshot{Candidates: candidates}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot replaces the gallery contents with the snapshot read from r.
// It does not touch the WAL.
func (g *Gallery) ReadSnapshot(r io.Reader) error {
	var snap Snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	g.replace(snap.Candidates)
	return nil
}

func LoadGallery(filepath string) (*Gallery, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	g := NewGallery()
	if err := g.ReadSnapshot(file); err != nil {
		return nil, err
	}
	return g, nil
}
