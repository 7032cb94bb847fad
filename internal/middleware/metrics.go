package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/2389/mcp-gateway/internal/frame"
)

// Snapshot is a point-in-time read of the Metrics middleware's counters.
type Snapshot struct {
	Total      int64
	Errors     int64
	TotalMS    int64 // sum of elapsed milliseconds, for computing an average
}

// MetricsSink accumulates per-method counters and a latency sum. Safe for
// concurrent use; recording and Snapshot share one mutex.
type MetricsSink struct {
	mu      sync.Mutex
	byMethod map[string]*Snapshot
}

// NewMetricsSink creates an empty sink.
func NewMetricsSink() *MetricsSink {
	return &MetricsSink{byMethod: make(map[string]*Snapshot)}
}

func (s *MetricsSink) record(method string, elapsed time.Duration, isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.byMethod[method]
	if !ok {
		snap = &Snapshot{}
		s.byMethod[method] = snap
	}
	snap.Total++
	snap.TotalMS += elapsed.Milliseconds()
	if isError {
		snap.Errors++
	}
}

// Snapshot returns a copy of the per-method counters.
func (s *MetricsSink) Snapshot() map[string]Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Snapshot, len(s.byMethod))
	for method, snap := range s.byMethod {
		out[method] = *snap
	}
	return out
}

// Metrics updates counter and histogram-equivalent (sum of elapsed time)
// state. Non-blocking; never transforms req or the response.
func Metrics(sink *MetricsSink) Middleware {
	return func(ctx context.Context, req *Request, next Next) *frame.Response {
		start := time.Now()
		resp := next(ctx, req)
		sink.record(req.Msg.Method, time.Since(start), resp != nil && resp.Error != nil)
		return resp
	}
}
