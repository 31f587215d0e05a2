package deblur

import (
	"log"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
)

// walkStats collects per-node visit latencies across a pass. The
// histogram isn't safe for concurrent writes, so recording takes the
// lock; the numerical work itself happens outside it.
type walkStats struct {
	mu sync.Mutex
	h  *hdrhistogram.Histogram
}

func newWalkStats() *walkStats {
	// Microseconds, up to a minute per node visit.
	return &walkStats{h: hdrhistogram.New(1, 60_000_000, 3)}
}

func (s *walkStats) record(d time.Duration) {
	us := d.Microseconds()
	if us < 1 {
		us = 1 // sub-microsecond leaf visits still count
	}
	s.mu.Lock()
	// Anything over the trackable maximum (a minute) is dropped.
	_ = s.h.RecordValue(us)
	s.mu.Unlock()
}

func (s *walkStats) logSummary(pass string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h.TotalCount() == 0 {
		return
	}
	log.Printf("%s: %d node visits, p50 %dus, p99 %dus, max %dus",
		pass, s.h.TotalCount(),
		s.h.ValueAtQuantile(50), s.h.ValueAtQuantile(99), s.h.Max())
	s.h.Reset()
}
