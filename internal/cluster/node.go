package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"github.com/rupamthxt/facematch/internal/config"
	"github.com/rupamthxt/facematch/internal/match"
	"github.com/rupamthxt/facematch/internal/metrics"
	"github.com/rupamthxt/facematch/internal/store"
)

var ErrNotLeader = errors.New("not the raft leader")

// RaftNode replicates gallery writes. Reads are served from the local
// gallery, so a follower may briefly lag the leader.
type RaftNode struct {
	Raft *raft.Raft
	FSM  *FSM
	// we keep a reference to the gallery for read only operations
	Gallery *store.Gallery

	id           raft.ServerID
	transport    raft.Transport
	closers      []func() error
	applyTimeout time.Duration
	stopObserve  chan struct{}
}

// NewRaftNode opens bolt-backed raft storage under dataDir/raft and starts
// a TCP transport on cfg.BindAddr.
func NewRaftNode(cfg config.RaftConfig, dataDir string, gallery *store.Gallery) (*RaftNode, error) {
	raftDir := filepath.Join(dataDir, "raft")
	if err := os.MkdirAll(raftDir, 0755); err != nil {
		return nil, err
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, err
	}
	// port 0 has nothing to advertise until the listener picks one
	var advertise net.Addr = tcpAddr
	if tcpAddr.Port == 0 {
		advertise = nil
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, advertise, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, err
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(raftDir, "logs.dat"))
	if err != nil {
		transport.Close()
		return nil, err
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(raftDir, "stable.dat"))
	if err != nil {
		transport.Close()
		logStore.Close()
		return nil, err
	}

	snapshotStore, err := raft.NewFileSnapshotStore(raftDir, 2, os.Stderr)
	if err != nil {
		transport.Close()
		logStore.Close()
		stableStore.Close()
		return nil, err
	}

	node, err := newNode(cfg, gallery, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		transport.Close()
		logStore.Close()
		stableStore.Close()
		return nil, err
	}
	node.closers = append(node.closers, transport.Close, logStore.Close, stableStore.Close)
	return node, nil
}

func newNode(cfg config.RaftConfig, gallery *store.Gallery, logs raft.LogStore, stable raft.StableStore,
	snaps raft.SnapshotStore, transport raft.Transport) (*RaftNode, error) {

	fsm := NewFSM(gallery)

	rc := raft.DefaultConfig()
	rc.LocalID = raft.ServerID(cfg.NodeID)
	rc.Logger = hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Warn,
		Output: os.Stderr,
	})

	r, err := raft.NewRaft(rc, fsm, logs, stable, snaps, transport)
	if err != nil {
		return nil, err
	}

	timeout := cfg.ApplyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rn := &RaftNode{
		Raft:         r,
		FSM:          fsm,
		Gallery:      gallery,
		id:           rc.LocalID,
		transport:    transport,
		applyTimeout: timeout,
		stopObserve:  make(chan struct{}),
	}
	rn.observeState()
	return rn, nil
}

// Bootstrap forms a single-voter cluster out of this node. It is a no-op
// when the node already has raft state.
func (rn *RaftNode) Bootstrap() error {
	cfg := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      rn.id,
				Address: rn.transport.LocalAddr(),
			},
		},
	}

	err := rn.Raft.BootstrapCluster(cfg).Error()
	if err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
		return err
	}
	return nil
}

// Join adds a voter. Only the leader can change membership.
func (rn *RaftNode) Join(nodeID, addr string) error {
	if !rn.IsLeader() {
		return ErrNotLeader
	}
	return rn.Raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, rn.applyTimeout).Error()
}

// WaitForLeader blocks until some node is leader or timeout elapses.
func (rn *RaftNode) WaitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if addr, _ := rn.Raft.LeaderWithID(); addr != "" {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("no raft leader after %s", timeout)
}

// Addr is the address peers reach this node on.
func (rn *RaftNode) Addr() string { return string(rn.transport.LocalAddr()) }

func (rn *RaftNode) IsLeader() bool { return rn.Raft.State() == raft.Leader }

func (rn *RaftNode) Put(c match.Candidate) error {
	if c.ID == "" || len(c.Embedding) == 0 {
		return store.ErrInvalidCandidate
	}
	return rn.apply(Command{Op: OpPut, Candidate: c})
}

func (rn *RaftNode) Delete(id string) error {
	return rn.apply(Command{Op: OpDelete, Candidate: match.Candidate{ID: id}})
}

func (rn *RaftNode) Get(id string) (match.Candidate, bool) { return rn.Gallery.Get(id) }
func (rn *RaftNode) List() []match.Candidate            { return rn.Gallery.List() }
func (rn *RaftNode) Len() int                           { return rn.Gallery.Len() }

func (rn *RaftNode) apply(cmd Command) error {
	if !rn.IsLeader() {
		return ErrNotLeader
	}

	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	future := rn.Raft.Apply(b, rn.applyTimeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return ErrNotLeader
		}
		return err
	}

	if fsmErr, ok := future.Response().(error); ok {
		return fsmErr
	}
	return nil
}

// Snapshot asks raft to snapshot the FSM and compact its log.
func (rn *RaftNode) Snapshot() error {
	return rn.Raft.Snapshot().Error()
}

func (rn *RaftNode) observeState() {
	ch := make(chan raft.Observation, 16)
	obs := raft.NewObserver(ch, false, func(o *raft.Observation) bool {
		_, ok := o.Data.(raft.RaftState)
		return ok
	})
	rn.Raft.RegisterObserver(obs)
	metrics.RaftState.Set(float64(rn.Raft.State()))

	go func() {
		defer rn.Raft.DeregisterObserver(obs)
		for {
			select {
			case o := <-ch:
				if state, ok := o.Data.(raft.RaftState); ok {
					metrics.RaftState.Set(float64(state))
				}
			case <-rn.stopObserve:
				return
			}
		}
	}()
}

func (rn *RaftNode) Shutdown() error {
	close(rn.stopObserve)
	err := rn.Raft.Shutdown().Error()
	for _, c := range rn.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
