package eviction

import "sync/atomic"

// Counters is a Metrics implementation backed by atomics, exposed through
// cache stats.
type Counters struct {
	expired    int64
	quota      int64
	freed      int64
	shortfalls int64
}

type CounterSnapshot struct {
	Expired    int64 `json:"expired"`
	Quota      int64 `json:"quota"`
	FreedBytes int64 `json:"freed_bytes"`
	Shortfalls int64 `json:"shortfalls"`
}

func (c *Counters) Evicted(reason Reason, sizeBytes int64) {
	if reason == ReasonAge {
		atomic.AddInt64(&c.expired, 1)
	} else {
		atomic.AddInt64(&c.quota, 1)
	}
	atomic.AddInt64(&c.freed, sizeBytes)
}

func (c *Counters) Shortfall(int64) {
	atomic.AddInt64(&c.shortfalls, 1)
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Expired:    atomic.LoadInt64(&c.expired),
		Quota:      atomic.LoadInt64(&c.quota),
		FreedBytes: atomic.LoadInt64(&c.freed),
		Shortfalls: atomic.LoadInt64(&c.shortfalls),
	}
}
