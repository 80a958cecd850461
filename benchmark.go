package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"voxkey/audio"
	"voxkey/transcriber"
)

// runBenchmark uploads an existing recording runs times and prints the
// network timings of each request plus percentiles over all of them.
// The file is never removed.
func runBenchmark(client transcriber.Client, path string, runs int) int {
	art, err := fileArtifact(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	fmt.Printf("Benchmark: %s (%.1f KB, %d runs)\n", path, float64(art.Size)/1024, runs)

	var totals, ttfbs []time.Duration
	for i := 1; i <= runs; i++ {
		fmt.Printf("=== Run %d ===\n", i)
		ctx, cancel := context.WithTimeout(context.Background(), 2*transcriber.DefaultTimeout)
		result, err := client.Transcribe(ctx, art, transcriber.ModeNormal)
		cancel()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return 1
		}

		text := result.Text
		if strings.TrimSpace(text) == "" {
			text = "(no speech detected)"
		}
		fmt.Printf("Text: %s\n", text)
		if m := result.Metrics; m != nil {
			conn := "new"
			if m.ConnReused {
				conn = "reused"
			}
			fmt.Printf("  dns=%s tls=%s ttfb=%s total=%s conn=%s %s\n",
				m.DNS.Round(time.Millisecond), m.TLS.Round(time.Millisecond),
				m.TTFB.Round(time.Millisecond), m.Total.Round(time.Millisecond),
				conn, m.TLSProtocol)
			totals = append(totals, m.Total)
			ttfbs = append(ttfbs, m.TTFB)
		}
		if result.RateLimit != "" {
			fmt.Printf("  requests remaining: %s\n", result.RateLimit)
		}
		fmt.Println()

		if i < runs {
			time.Sleep(500 * time.Millisecond)
		}
	}

	if len(totals) > 0 {
		fmt.Printf("total  %s\n", percentiles(totals))
		fmt.Printf("ttfb   %s\n", percentiles(ttfbs))
	}
	return 0
}

// fileArtifact wraps a file the caller owns. The format is taken from
// the extension.
func fileArtifact(path string) (*audio.Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return &audio.Artifact{
		Path:      path,
		Size:      info.Size(),
		Format:    audio.Format(ext),
		CreatedAt: info.ModTime(),
	}, nil
}

// percentiles formats min, p50, p90, p95 and max of vals.
func percentiles(vals []time.Duration) string {
	sorted := append([]time.Duration(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(p float64) time.Duration {
		return sorted[int(float64(len(sorted)-1)*p)].Round(time.Millisecond)
	}
	return fmt.Sprintf("min=%s p50=%s p90=%s p95=%s max=%s",
		at(0), at(0.50), at(0.90), at(0.95), at(1))
}
