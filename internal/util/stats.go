package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide serving counter.
var Stats = &stats{}

type stats struct {
	Requests  atomic.Int64 // cumulative count of requests handled since process start
	NotFound  atomic.Int64 // cumulative count of 404 responses since process start
	BytesSent atomic.Int64 // cumulative response body bytes written
}

func (s *stats) AddRequest()   { s.Requests.Add(1) }
func (s *stats) AddNotFound()  { s.NotFound.Add(1) }
func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs serving statistics
// every 10 seconds. It stays quiet while nothing is happening and stops
// when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevReqs, prevMiss, prevSent int64
		for {
			select {
			case <-ticker.C:
				reqs := Stats.Requests.Load()
				miss := Stats.NotFound.Load()
				sent := Stats.BytesSent.Load()

				outS := float64(sent-prevSent) / 10.0
				dReqs := reqs - prevReqs
				dMiss := miss - prevMiss

				if dReqs > 0 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(outS, dReqs, dMiss))
				}

				prevReqs = reqs
				prevMiss = miss
				prevSent = sent

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(outS float64, reqs, miss int64) string {
	return fmt.Sprintf("Out: %s/s | Req: %3d | 404: %2d",
		formatBytes(outS),
		reqs,
		miss,
	)
}
