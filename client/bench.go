package client

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// BenchConfig configures a search load test.
type BenchConfig struct {
	Term string
	// Requests is the number of searches to fire.
	Requests int
	// Duration is the span over which launches are spread evenly. Zero
	// launches everything at once.
	Duration time.Duration
	// OnResult, if set, is called as each request finishes. It may be called
	// concurrently.
	OnResult func(index int, latency time.Duration, err error)
}

// BenchResult summarizes a load test.
type BenchResult struct {
	Requests int
	Failed   int
	// Latencies holds the client-observed time of each successful request,
	// in launch order.
	Latencies []time.Duration
	Average   time.Duration
	Min       time.Duration
	Max       time.Duration
	Wall      time.Duration
}

// Bench fires cfg.Requests concurrent searches, one every
// Duration/Requests, and measures each from connect to the final ack.
func (c *Client) Bench(ctx context.Context, cfg BenchConfig) (BenchResult, error) {
	if cfg.Requests <= 0 {
		return BenchResult{}, errors.New("client: bench needs at least one request")
	}
	interval := cfg.Duration / time.Duration(cfg.Requests)

	latencies := make([]time.Duration, cfg.Requests)
	failed := make([]bool, cfg.Requests)

	start := time.Now()
	var wg sync.WaitGroup
	launched := 0
launch:
	for i := range cfg.Requests {
		if i > 0 && interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				break launch
			}
		}
		launched++
		wg.Go(func() {
			began := time.Now()
			_, err := c.Search(ctx, cfg.Term, nil)
			latency := time.Since(began)
			if err != nil {
				failed[i] = true
			} else {
				latencies[i] = latency
			}
			if cfg.OnResult != nil {
				cfg.OnResult(i, latency, err)
			}
		})
	}
	wg.Wait()

	res := BenchResult{Requests: launched, Wall: time.Since(start)}
	var total time.Duration
	for i := range launched {
		if failed[i] {
			res.Failed++
			continue
		}
		res.Latencies = append(res.Latencies, latencies[i])
		total += latencies[i]
	}
	if n := len(res.Latencies); n > 0 {
		res.Average = total / time.Duration(n)
		res.Min = slices.Min(res.Latencies)
		res.Max = slices.Max(res.Latencies)
	}
	return res, ctx.Err()
}
