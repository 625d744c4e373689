package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rupamthxt/facematch/internal/config"
	"github.com/rupamthxt/facematch/internal/match"
)

func raftConfig(t *testing.T, bootstrap bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Raft.Enabled = true
	cfg.Raft.NodeID = "node-test"
	cfg.Raft.BindAddr = "127.0.0.1:0"
	cfg.Raft.Bootstrap = bootstrap
	return &cfg
}

func TestStartRaft_BootstrapWaitsForLeader(t *testing.T) {
	cfg := raftConfig(t, true)
	core, logs := observer.New(zapcore.InfoLevel)

	node, err := startRaft(cfg, zap.New(core))
	require.NoError(t, err)
	defer node.Shutdown()

	assert.True(t, node.IsLeader())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	// first write goes through without retrying
	require.NoError(t, node.Put(match.Candidate{ID: "A", Embedding: match.Embedding{1, 0}}))
	assert.Equal(t, 1, node.Len())
}

func TestStartRaft_NoBootstrapStillStarts(t *testing.T) {
	cfg := raftConfig(t, false)
	cfg.Raft.ApplyTimeout = 200 * time.Millisecond
	core, logs := observer.New(zapcore.InfoLevel)

	node, err := startRaft(cfg, zap.New(core))
	require.NoError(t, err)
	defer node.Shutdown()

	assert.False(t, node.IsLeader())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}
