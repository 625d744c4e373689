package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rupamthxt/facematch/internal/cluster"
	"github.com/rupamthxt/facematch/internal/config"
	"github.com/rupamthxt/facematch/internal/embedder"
	matchHttp "github.com/rupamthxt/facematch/internal/http"
	"github.com/rupamthxt/facematch/internal/logging"
	"github.com/rupamthxt/facematch/internal/match"
	"github.com/rupamthxt/facematch/internal/service"
	"github.com/rupamthxt/facematch/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		st    store.Store
		admin matchHttp.Admin
	)

	if cfg.Raft.Enabled {
		node, err := startRaft(cfg, logger)
		if err != nil {
			return err
		}
		defer node.Shutdown()
		st, admin = node, node
	} else {
		gallery, err := store.OpenGallery(cfg.Store.DataDir)
		if err != nil {
			return fmt.Errorf("open gallery: %w", err)
		}
		defer gallery.Close()

		logger.Info("gallery loaded",
			zap.String("data_dir", cfg.Store.DataDir),
			zap.Int("candidates", gallery.Len()))
		go compactLoop(ctx, gallery, cfg.Store.SnapshotInterval, logger)
		st, admin = gallery, matchHttp.StandaloneAdmin{Gallery: gallery}
	}

	var emb embedder.Embedder
	if c := embedder.New(cfg.Embedder); c != nil {
		emb = c
	} else {
		logger.Warn("no embedding service configured; image matching disabled")
	}

	ranker := match.NewRanker(
		match.WithThreshold(cfg.Match.Threshold),
		match.WithTopN(cfg.Match.TopN),
	)
	svc := service.New(st, ranker, emb, logger)
	app := matchHttp.NewApp(matchHttp.NewHandler(svc, admin, logger), false)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("facematch listening", zap.String("addr", cfg.Server.HTTPAddr))
		errCh <- app.Listen(cfg.Server.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return app.ShutdownWithTimeout(10 * time.Second)
}

// startRaft opens the raft node, bootstraps it when configured and waits
// for an election so the first writes do not bounce with ErrNotLeader. A
// node that has not joined a cluster yet sees no leader; it is still
// returned and serves reads.
func startRaft(cfg *config.Config, logger *zap.Logger) (*cluster.RaftNode, error) {
	node, err := cluster.NewRaftNode(cfg.Raft, cfg.Store.DataDir, store.NewGallery())
	if err != nil {
		return nil, fmt.Errorf("start raft: %w", err)
	}

	if cfg.Raft.Bootstrap {
		if err := node.Bootstrap(); err != nil {
			node.Shutdown()
			return nil, fmt.Errorf("bootstrap raft: %w", err)
		}
	}

	if err := node.WaitForLeader(cfg.Raft.ApplyTimeout); err != nil {
		logger.Warn("raft has no leader yet; writes will fail until one is elected",
			zap.String("node_id", cfg.Raft.NodeID),
			zap.Error(err))
	}

	logger.Info("raft node started",
		zap.String("node_id", cfg.Raft.NodeID),
		zap.String("bind_addr", node.Addr()),
		zap.Bool("leader", node.IsLeader()))
	return node, nil
}

func compactLoop(ctx context.Context, g *store.Gallery, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.Compact(); err != nil {
				logger.Error("gallery compaction failed", zap.Error(err))
				continue
			}
			logger.Debug("gallery compacted", zap.Int("candidates", g.Len()))
		}
	}
}
