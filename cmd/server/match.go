package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rupamthxt/facematch/internal/config"
	"github.com/rupamthxt/facematch/internal/match"
	"github.com/rupamthxt/facematch/internal/store"
)

var (
	matchQueryPath string
	matchDataDir   string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank a query embedding against a gallery on disk",
	Long: `Reads a query embedding (either a JSON array or {"embedding": [...]})
and prints the ranked matches from the gallery in --data-dir as JSON.
The data dir is only read, so it is safe to point at a live server's store.`,
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().StringVarP(&matchQueryPath, "query", "q", "", "path to the query embedding JSON file")
	matchCmd.Flags().StringVar(&matchDataDir, "data-dir", "", "gallery data directory (defaults to store.data_dir)")
	matchCmd.MarkFlagRequired("query")
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if matchDataDir == "" {
		matchDataDir = cfg.Store.DataDir
	}

	query, err := readQuery(matchQueryPath)
	if err != nil {
		return err
	}

	gallery, err := store.ReadGallery(matchDataDir)
	if err != nil {
		return fmt.Errorf("read gallery: %w", err)
	}

	ranker := match.NewRanker(
		match.WithThreshold(cfg.Match.Threshold),
		match.WithTopN(cfg.Match.TopN),
	)
	results, err := ranker.Rank(query, gallery.List())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func readQuery(path string) (match.Embedding, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query: %w", err)
	}

	var vec match.Embedding
	if err := json.Unmarshal(raw, &vec); err == nil {
		return vec, nil
	}

	var wrapped struct {
		Embedding match.Embedding `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	return wrapped.Embedding, nil
}
