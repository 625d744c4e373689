package main

import (
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rupamthxt/facematch/internal/match"
	"github.com/rupamthxt/facematch/internal/store"
)

const Dimension = 1024

func main() {
	galleryRows := flag.Int("gallery", 500, "candidates in the gallery")
	numQueries := flag.Int("queries", 2000, "queries to rank")
	workers := flag.Int("c", 8, "concurrent rankers")
	flag.Parse()
	if *galleryRows < 1 || *workers < 1 {
		fmt.Println("gallery and worker counts must be positive")
		return
	}

	fmt.Printf("Config: Dim=%d | Gallery=%d | Queries=%d | Workers=%d\n",
		Dimension, *galleryRows, *numQueries, *workers)

	g := store.NewGallery()
	start := time.Now()
	for i := 0; i < *galleryRows; i++ {
		g.Put(match.Candidate{
			ID:        fmt.Sprintf("cand-%d", i),
			Name:      fmt.Sprintf("Person %d", i),
			Embedding: randomVector(Dimension),
		})
	}
	fmt.Printf("Gallery built in %s\n", time.Since(start))

	// Near-duplicates of gallery rows so some queries clear the threshold.
	queries := make([]match.Embedding, *numQueries)
	candidates := g.List()
	for i := range queries {
		queries[i] = perturb(candidates[rand.Intn(len(candidates))].Embedding, 0.3)
	}

	ranker := match.NewRanker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		matched int
	)
	jobs := make(chan match.Embedding)

	startRank := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := 0
			for q := range jobs {
				results, _ := ranker.Rank(q, g.List())
				if len(results) > 0 {
					local++
				}
			}
			mu.Lock()
			matched += local
			mu.Unlock()
		}()
	}
	for _, q := range queries {
		jobs <- q
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(startRank)
	fmt.Printf("Ranked %d queries in %s (%.2f QPS), %d with at least one match\n",
		*numQueries, elapsed, float64(*numQueries)/elapsed.Seconds(), matched)
}

func randomVector(dim int) match.Embedding {
	vec := make(match.Embedding, dim)
	for i := range vec {
		vec[i] = float32(rand.NormFloat64())
	}
	return vec
}

func perturb(v match.Embedding, noise float64) match.Embedding {
	out := make(match.Embedding, len(v))
	for i := range v {
		out[i] = v[i] + float32(rand.NormFloat64()*noise)
	}
	return out
}
