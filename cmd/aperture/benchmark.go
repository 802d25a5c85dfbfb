package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"aperturegw/gateway/pkg/cli"
)

var benchmarkFlags struct {
	target      string
	credential  string
	path        string
	duration    time.Duration
	rate        int
	concurrency int
	model       string
	format      string
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Load test the gateway",
	Long: `Send synthetic chat-completion requests through a running gateway at
a fixed rate and report throughput, latency percentiles, and status
code counts.

The target ServiceAPI's upstream receives real traffic, so point the
gateway at a mock provider (or use a dedicated test tenant) before
running a long benchmark.

Examples:
  aperture benchmark --target http://localhost:8080 --credential agw_xxx
  aperture benchmark --duration 60s --rate 100 --concurrency 10 --format json`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().StringVar(&benchmarkFlags.target, "target", "http://localhost:8080", "gateway URL")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.credential, "credential", "", "inbound credential (sent as Bearer)")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.path, "path", "/v1/chat/completions", "request path")
	benchmarkCmd.Flags().DurationVar(&benchmarkFlags.duration, "duration", 30*time.Second, "test duration")
	benchmarkCmd.Flags().IntVar(&benchmarkFlags.rate, "rate", 10, "requests per second")
	benchmarkCmd.Flags().IntVar(&benchmarkFlags.concurrency, "concurrency", 4, "request workers")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.model, "model", "gpt-4o-mini", "model name in the request body")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.format, "format", "text", "output format: text, json")
}

type benchmarkResults struct {
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Duration   float64          `json:"duration_seconds"`
	Throughput float64          `json:"throughput_rps"`
	LatencyMS  map[string]int64 `json:"latency_ms"`
	Statuses   map[int]int      `json:"status_counts"`
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	fmt.Println("Aperture Benchmark")
	fmt.Printf("Target: %s%s\n", benchmarkFlags.target, benchmarkFlags.path)
	fmt.Printf("Rate: %d req/s for %s (%d workers)\n\n",
		benchmarkFlags.rate, benchmarkFlags.duration, benchmarkFlags.concurrency)

	results := runLoadTest()

	if benchmarkFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(cmd.OutOrStdout(), results)
	}
	displayResults(results)
	return nil
}

func runLoadTest() *benchmarkResults {
	total := int(benchmarkFlags.duration.Seconds()) * benchmarkFlags.rate
	body := []byte(fmt.Sprintf(
		`{"model":%q,"messages":[{"role":"user","content":"ping"}],"max_tokens":1}`,
		benchmarkFlags.model))

	client := &http.Client{Timeout: 30 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), benchmarkFlags.duration+10*time.Second)
	defer cancel()

	var (
		mu        sync.Mutex
		latencies []time.Duration
		statuses  = make(map[int]int)
		succeeded atomic.Int64
		failed    atomic.Int64
	)

	progress := cli.NewProgressReporter(nil)
	progress.Start(int64(total))

	jobs := make(chan struct{}, benchmarkFlags.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < benchmarkFlags.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				start := time.Now()
				status, err := sendOne(ctx, client, body)
				elapsed := time.Since(start)

				mu.Lock()
				latencies = append(latencies, elapsed)
				if err == nil {
					statuses[status]++
				}
				mu.Unlock()

				if err == nil && status < 400 {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
				progress.Update(succeeded.Load() + failed.Load())
			}
		}()
	}

	start := time.Now()
	ticker := time.NewTicker(time.Second / time.Duration(benchmarkFlags.rate))
	defer ticker.Stop()

feed:
	for sent := 0; sent < total; sent++ {
		select {
		case <-ctx.Done():
			break feed
		case <-ticker.C:
			jobs <- struct{}{}
		}
	}
	close(jobs)
	wg.Wait()
	progress.Finish()

	elapsed := time.Since(start)
	results := &benchmarkResults{
		Total:     total,
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Duration:  elapsed.Seconds(),
		Statuses:  statuses,
		LatencyMS: latencyStats(latencies),
	}
	if elapsed > 0 {
		results.Throughput = float64(results.Succeeded) / elapsed.Seconds()
	}
	return results
}

func sendOne(ctx context.Context, client *http.Client, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		benchmarkFlags.target+benchmarkFlags.path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if benchmarkFlags.credential != "" {
		req.Header.Set("Authorization", "Bearer "+benchmarkFlags.credential)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func latencyStats(latencies []time.Duration) map[string]int64 {
	if len(latencies) == 0 {
		return nil
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}

	at := func(q float64) int64 {
		idx := int(float64(len(sorted)) * q)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx].Milliseconds()
	}

	return map[string]int64{
		"min":    sorted[0].Milliseconds(),
		"mean":   (sum / time.Duration(len(sorted))).Milliseconds(),
		"median": at(0.5),
		"p95":    at(0.95),
		"p99":    at(0.99),
		"max":    sorted[len(sorted)-1].Milliseconds(),
	}
}

func displayResults(r *benchmarkResults) {
	fmt.Println("\nResults:")
	fmt.Printf("  Requests:   %d total, %d succeeded, %d failed\n", r.Total, r.Succeeded, r.Failed)
	fmt.Printf("  Duration:   %.1fs\n", r.Duration)
	fmt.Printf("  Throughput: %.2f req/s\n", r.Throughput)

	if r.LatencyMS != nil {
		fmt.Println("  Latency (ms):")
		for _, q := range []string{"min", "mean", "median", "p95", "p99", "max"} {
			fmt.Printf("    %-7s %d\n", q+":", r.LatencyMS[q])
		}
	}
	if len(r.Statuses) > 0 {
		fmt.Println("  Status codes:")
		for code, count := range r.Statuses {
			fmt.Printf("    %d: %d\n", code, count)
		}
	}
}
