package proxy

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/llmrelay/llmrelay/pkg/classifier"
)

// statsLogInterval is how often traffic stats are logged while requests are
// arriving.
const statsLogInterval = 30 * time.Second

// Stats counts translation traffic. All counters are safe for concurrent
// increment.
type Stats struct {
	started time.Time

	total  atomic.Int64
	cached atomic.Int64
	errors atomic.Int64

	title  atomic.Int64
	topic  atomic.Int64
	warmup atomic.Int64
	tools  atomic.Int64
	normal atomic.Int64

	lastLogged atomic.Int64 // total at the previous log tick
}

// NewStats creates a zeroed counter set.
func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

// Record counts one classified request.
func (s *Stats) Record(label classifier.Label) {
	s.total.Add(1)
	switch label {
	case classifier.LabelTitle:
		s.title.Add(1)
	case classifier.LabelTopic:
		s.topic.Add(1)
	case classifier.LabelWarmup:
		s.warmup.Add(1)
	case classifier.LabelTools:
		s.tools.Add(1)
	default:
		s.normal.Add(1)
	}
}

// RecordCacheHit counts one request served from cache.
func (s *Stats) RecordCacheHit() {
	s.cached.Add(1)
}

// RecordError counts one failed request.
func (s *Stats) RecordError() {
	s.errors.Add(1)
}

// Snapshot is the JSON shape served on /api/stats.
type Snapshot struct {
	UptimeSeconds int64            `json:"uptimeSeconds"`
	Total         int64            `json:"total"`
	Cached        int64            `json:"cached"`
	Errors        int64            `json:"errors"`
	ByLabel       map[string]int64 `json:"byClassification"`
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Total:         s.total.Load(),
		Cached:        s.cached.Load(),
		Errors:        s.errors.Load(),
		ByLabel: map[string]int64{
			string(classifier.LabelTitle):  s.title.Load(),
			string(classifier.LabelTopic):  s.topic.Load(),
			string(classifier.LabelWarmup): s.warmup.Load(),
			string(classifier.LabelTools):  s.tools.Load(),
			string(classifier.LabelNormal): s.normal.Load(),
		},
	}
}

// LogPeriodically logs the counters every 30s, but only while traffic is
// arriving; an idle gateway stays quiet. Blocks until ctx is cancelled.
func (s *Stats) LogPeriodically(ctx context.Context) {
	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := s.total.Load()
			if total == s.lastLogged.Swap(total) {
				continue
			}
			slog.Info("Traffic stats",
				"total", total,
				"cached", s.cached.Load(),
				"errors", s.errors.Load(),
				"title", s.title.Load(),
				"topic", s.topic.Load(),
				"warmup", s.warmup.Load(),
				"tools", s.tools.Load(),
				"normal", s.normal.Load())
		}
	}
}
