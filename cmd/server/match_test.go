package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupamthxt/facematch/internal/match"
	"github.com/rupamthxt/facematch/internal/store"
)

func TestReadQuery(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.json")
	require.NoError(t, os.WriteFile(plain, []byte(`[1, 0.5]`), 0600))
	vec, err := readQuery(plain)
	require.NoError(t, err)
	assert.Equal(t, match.Embedding{1, 0.5}, vec)

	wrapped := filepath.Join(dir, "wrapped.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"embedding": [0.25]}`), 0600))
	vec, err = readQuery(wrapped)
	require.NoError(t, err)
	assert.Equal(t, match.Embedding{0.25}, vec)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`nope`), 0600))
	_, err = readQuery(broken)
	assert.Error(t, err)
}

func TestMatchCommand(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	g, err := store.OpenGallery(dataDir)
	require.NoError(t, err)
	require.NoError(t, g.Put(match.Candidate{ID: "A", Name: "Asha", Embedding: match.Embedding{1, 0, 0}}))
	require.NoError(t, g.Put(match.Candidate{ID: "B", Name: "Bilal", Embedding: match.Embedding{0.8, 0.6, 0}}))
	require.NoError(t, g.Put(match.Candidate{ID: "C", Name: "Chitra", Embedding: match.Embedding{0, 1, 0}}))
	require.NoError(t, g.Close())

	queryPath := filepath.Join(dir, "query.json")
	require.NoError(t, os.WriteFile(queryPath, []byte(`[1, 0, 0]`), 0600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"match", "--query", queryPath, "--data-dir", dataDir})
	require.NoError(t, rootCmd.Execute())

	var results []match.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].ID)
	assert.Equal(t, "B", results[1].ID)
}
