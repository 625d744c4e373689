package main

import (
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const Dimension = 1024

type RegisterRequest struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ImageRef  string    `json:"imageRef"`
	Embedding []float32 `json:"embedding"`
}

type MatchRequest struct {
	Embedding []float32 `json:"embedding"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080/api/v1", "facematch API base URL")
	registerCount := flag.Int("register", 500, "candidates to register")
	matchCount := flag.Int("match", 5000, "match requests to send")
	concurrency := flag.Int("c", 10, "concurrent workers")
	flag.Parse()

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	fmt.Printf("Target: %s | Workers: %d\n", *baseURL, *concurrency)

	fmt.Println("\nPhase 1: registering gallery candidates")
	runTest("register", *registerCount, *concurrency, func(workerID, i int) error {
		return send(client, "/candidates", RegisterRequest{
			ID:        fmt.Sprintf("load-%d-%d", workerID, i),
			Name:      fmt.Sprintf("Person %d-%d", workerID, i),
			ImageRef:  fmt.Sprintf("loadtest/%d-%d.jpg", workerID, i),
			Embedding: randomVector(Dimension),
		})
	})

	fmt.Println("\nPhase 2: matching")
	runTest("match", *matchCount, *concurrency, func(workerID, i int) error {
		return send(client, "/match", MatchRequest{Embedding: randomVector(Dimension)})
	})

	fmt.Println("\nLoad test complete")
}

// runTest splits totalOps across workers and reports throughput.
func runTest(name string, totalOps, workers int, opFunc func(workerID, i int) error) {
	var wg sync.WaitGroup
	var failures sync.Map
	start := time.Now()

	opsPerWorker := totalOps / workers

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				if err := opFunc(workerID, i); err != nil {
					failures.Store(fmt.Sprintf("%d-%d", workerID, i), err)
				}
			}
		}(w)
	}

	wg.Wait()
	duration := time.Since(start)
	qps := float64(opsPerWorker*workers) / duration.Seconds()

	failed := 0
	failures.Range(func(_, v any) bool {
		if failed == 0 {
			fmt.Printf("%s first error: %v\n", name, v)
		}
		failed++
		return true
	})

	fmt.Printf("%s duration: %s | QPS: %.2f | errors: %d\n", name, duration, qps, failed)
}

func send(client *resty.Client, endpoint string, body any) error {
	resp, err := client.R().SetBody(body).Post(endpoint)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func randomVector(dim int) []float32 {
	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		vec[i] = rand.Float32()*2 - 1
	}
	return vec
}
