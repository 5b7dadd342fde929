package loadtest

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/time/rate"
)

const maxSampleErrors = 5

type BenchConfig struct {
	Image    string
	Requests int
	Workers  int
	// RPS > 0 limita o ritmo global de disparo.
	RPS      float64
	Progress io.Writer
}

type Latency struct {
	Avg, Min, Max, P95 time.Duration
}

type BenchReport struct {
	Requests   int
	Workers    int
	Success    int
	Failed     int
	Total      time.Duration
	Throughput float64
	Latency    Latency
	Errors     []Result
}

// Bench dispara cfg.Requests uploads com cfg.Workers workers.
func Bench(ctx context.Context, c *Client, cfg BenchConfig) BenchReport {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	start := time.Now()
	jobs := make(chan struct{})
	results := make(chan Result)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						results <- Result{Status: StatusException, Error: err.Error()}
						continue
					}
				}
				results <- c.Upload(ctx, cfg.Image)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := 0; i < cfg.Requests; i++ {
			select {
			case jobs <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]Result, 0, cfg.Requests)
	for res := range results {
		collected = append(collected, res)
		if n := len(collected); n%5 == 0 || n == cfg.Requests {
			fmt.Fprintf(cfg.Progress, "Completed %d/%d requests\n", n, cfg.Requests)
		}
	}
	return summarize(cfg, collected, time.Since(start))
}

func summarize(cfg BenchConfig, results []Result, total time.Duration) BenchReport {
	rep := BenchReport{Requests: len(results), Workers: cfg.Workers, Total: total}
	var times []time.Duration
	for _, r := range results {
		if r.OK() {
			rep.Success++
			times = append(times, r.ResponseTime)
			continue
		}
		rep.Failed++
		if len(rep.Errors) < maxSampleErrors {
			rep.Errors = append(rep.Errors, r)
		}
	}
	if total > 0 {
		rep.Throughput = float64(len(results)) / total.Seconds()
	}
	rep.Latency = Summarize(times)
	return rep
}

// Summarize calcula média, mínimo, máximo e p95 (índice int(n*0.95) da lista
// ordenada). Lista vazia devolve zeros.
func Summarize(times []time.Duration) Latency {
	if len(times) == 0 {
		return Latency{}
	}
	sorted := slices.Clone(times)
	slices.Sort(sorted)
	var sum time.Duration
	for _, t := range sorted {
		sum += t
	}
	return Latency{
		Avg: sum / time.Duration(len(sorted)),
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		P95: sorted[int(float64(len(sorted))*0.95)],
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func (r BenchReport) Render() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Total requests", r.Requests},
		{"Concurrent workers", r.Workers},
		{"Successful requests", fmt.Sprintf("%d (%.2f%%)", r.Success, pct(r.Success, r.Requests))},
		{"Failed requests", fmt.Sprintf("%d (%.2f%%)", r.Failed, pct(r.Failed, r.Requests))},
		{"Total test time", fmt.Sprintf("%.2fs", r.Total.Seconds())},
		{"Throughput", fmt.Sprintf("%.2f req/s", r.Throughput)},
	})
	if r.Success > 0 {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Average", fmt.Sprintf("%.2fs", r.Latency.Avg.Seconds())},
			{"Minimum", fmt.Sprintf("%.2fs", r.Latency.Min.Seconds())},
			{"Maximum", fmt.Sprintf("%.2fs", r.Latency.Max.Seconds())},
			{"95th percentile", fmt.Sprintf("%.2fs", r.Latency.P95.Seconds())},
		})
	}
	out := t.Render()

	if len(r.Errors) > 0 {
		var sb strings.Builder
		sb.WriteString(out)
		sb.WriteString("\nSample errors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&sb, "  Status code: %d, Error: %s\n", e.StatusCode, truncate(e.Error, 100))
		}
		out = sb.String()
	}
	return out
}
