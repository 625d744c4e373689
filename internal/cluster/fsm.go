package cluster

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"

	"github.com/rupamthxt/facematch/internal/match"
	"github.com/rupamthxt/facematch/internal/store"
)

const (
	OpPut    = "put"
	OpDelete = "delete"
)

// Command is what we replicate across the network
type Command struct {
	Op        string          `json:"op"`
	Candidate match.Candidate `json:"candidate"`
}

// FSM applies replicated gallery writes to the local in-memory gallery.
type FSM struct {
	gallery *store.Gallery
}

func NewFSM(gallery *store.Gallery) *FSM {
	return &FSM{gallery: gallery}
}

// Apply returns nil or an error; the error travels back to the proposer
// through the ApplyFuture response.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	switch cmd.Op {
	case OpPut:
		return f.gallery.Put(cmd.Candidate)
	case OpDelete:
		return f.gallery.Delete(cmd.Candidate.ID)
	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot captures the gallery contents. Persist may run concurrently with
// later Apply calls, so the candidates are copied here.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &gallerySnapshot{candidates: f.gallery.List()}, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	return f.gallery.ReadSnapshot(rc)
}

type gallerySnapshot struct {
	candidates []match.Candidate
}

func (s *gallerySnapshot) Persist(sink raft.SnapshotSink) error {
	if err := store.EncodeSnapshot(sink, s.candidates); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *gallerySnapshot) Release() {}
