// main.go - Load generator for the engagely track endpoint
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/time/rate"

	v1 "engagely/api/v1"
)

// PerfConfig holds the configuration for the load test
type PerfConfig struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Rate        int
	Entities    int
	Timeout     time.Duration
	Output      string
}

// Result captures the outcome of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Tracked    bool
	Err        error
}

// Report aggregates results.
type Report struct {
	Requests    int64         `json:"requests"`
	Failed      int64         `json:"failed"`
	Tracked     int64         `json:"tracked"`
	StatusCodes map[int]int64 `json:"statusCodes"`
	Elapsed     time.Duration `json:"elapsedNs"`
	latencies   []time.Duration
}

func main() {
	cfg := PerfConfig{}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:3000", "Base URL of the server")
	flag.IntVar(&cfg.Concurrency, "c", 10, "Number of concurrent clients")
	flag.DurationVar(&cfg.Duration, "d", 30*time.Second, "Duration of the test")
	flag.IntVar(&cfg.Rate, "rate", 0, "Target requests per second across all clients (0 = unlimited)")
	flag.IntVar(&cfg.Entities, "entities", 50, "Number of distinct posts to spread views over")
	flag.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "Request timeout")
	flag.StringVar(&cfg.Output, "out", "perf_results.json", "JSON results file (empty to skip)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	logger.Info("Starting load test",
		slog.String("target", cfg.BaseURL+"/x/api/v1/track"),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Duration("duration", cfg.Duration),
		slog.Int("rate", cfg.Rate))

	started := time.Now()
	report := collect(run(ctx, cfg))
	report.Elapsed = time.Since(started)

	printReport(os.Stdout, report)
	if cfg.Output != "" {
		if err := exportReport(cfg.Output, report); err != nil {
			logger.Error("Failed to write results", slog.Any("error", err))
		}
	}
}

// run starts the workers and returns their results channel. A shared
// limiter paces all workers when a rate is set.
func run(ctx context.Context, cfg PerfConfig) <-chan Result {
	results := make(chan Result, cfg.Concurrency*10)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			client := &http.Client{Timeout: cfg.Timeout}
			rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)))
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				results <- send(ctx, client, cfg, trackParams(rng, cfg.Entities, worker))
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func trackParams(rng *rand.Rand, entities, worker int) v1.TrackParams {
	id := strconv.Itoa(rng.IntN(max(entities, 1)) + 1)
	referrers := []string{"", "https://google.com", "https://news.ycombinator.com", "https://twitter.com"}
	return v1.TrackParams{
		EntityType: "post",
		EntityID:   id,
		Action:     "show",
		URL:        "https://example.com/posts/" + id,
		Referrer:   referrers[rng.IntN(len(referrers))],
		SessionID:  fmt.Sprintf("perf-%d-%d", worker, rng.IntN(500)),
		UserAgent:  userAgents[rng.IntN(len(userAgents))],
	}
}

func send(ctx context.Context, client *http.Client, cfg PerfConfig, params v1.TrackParams) Result {
	body, err := json.Marshal(params)
	if err != nil {
		return Result{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/x/api/v1/track", bytes.NewReader(body))
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", params.UserAgent)

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Duration: elapsed, Err: err}
	}
	defer resp.Body.Close()

	var payload struct {
		Tracked bool `json:"tracked"`
	}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &payload)
	return Result{Duration: elapsed, StatusCode: resp.StatusCode, Tracked: payload.Tracked}
}

func collect(results <-chan Result) *Report {
	report := &Report{StatusCodes: make(map[int]int64)}
	for r := range results {
		// Requests interrupted by the end of the test are not counted
		if r.Err != nil && isCanceled(r.Err) {
			continue
		}
		report.Requests++
		if r.Err != nil {
			report.Failed++
			continue
		}
		report.StatusCodes[r.StatusCode]++
		report.latencies = append(report.latencies, r.Duration)
		if r.StatusCode != http.StatusAccepted {
			report.Failed++
		}
		if r.Tracked {
			report.Tracked++
		}
	}
	sort.Slice(report.latencies, func(i, j int) bool { return report.latencies[i] < report.latencies[j] })
	return report
}

// Percentile returns the latency below which p percent of requests completed.
func (r *Report) Percentile(p float64) time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	idx := int(float64(len(r.latencies)) * p / 100)
	if idx >= len(r.latencies) {
		idx = len(r.latencies) - 1
	}
	return r.latencies[idx]
}

func printReport(out io.Writer, r *Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\nMETRIC\tVALUE\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Duration\t%v\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests\t%d\n", r.Requests)
	if r.Elapsed > 0 {
		fmt.Fprintf(w, "Requests/sec\t%.1f\n", float64(r.Requests)/r.Elapsed.Seconds())
	}
	fmt.Fprintf(w, "Failed\t%d\n", r.Failed)
	fmt.Fprintf(w, "Tracked\t%d\n", r.Tracked)
	for _, p := range []float64{50, 90, 95, 99} {
		fmt.Fprintf(w, "p%.0f latency\t%v\n", p, r.Percentile(p))
	}
	w.Flush()

	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Fprintln(out, "\nSTATUS  COUNT")
	for _, code := range codes {
		fmt.Fprintf(out, "%-6d  %d\n", code, r.StatusCodes[code])
	}
}

func exportReport(path string, r *Report) error {
	data, err := json.MarshalIndent(map[string]any{
		"summary": r,
		"latencyMs": map[string]int64{
			"p50": r.Percentile(50).Milliseconds(),
			"p90": r.Percentile(90).Milliseconds(),
			"p95": r.Percentile(95).Milliseconds(),
			"p99": r.Percentile(99).Milliseconds(),
		},
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}
