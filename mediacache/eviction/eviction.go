// Package eviction decides which cache entries must go to respect the byte
// quota and the age ceiling.
//
// Entries past MaxAge are always removed first. If the remaining total plus
// the incoming write still exceeds MaxTotalBytes, the survivors are ranked by
//
//	score = AgeWeight*(now-CreatedAt) + AccessWeight*(now-LastAccessedAt)
//
// (milliseconds, higher = more evictable) and removed in that order until the
// total plus the incoming size fits under MaxTotalBytes*(1-SafetyMargin).
// This is a weighted tie-break, not an exact LRU.
package eviction

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultSafetyMargin is the headroom kept below the quota after a quota pass.
const DefaultSafetyMargin = 0.2

// Config holds the eviction knobs. MaxTotalBytes <= 0 disables quota
// eviction and MaxAge <= 0 disables age eviction.
type Config struct {
	MaxTotalBytes int64
	MaxAge        time.Duration
	AgeWeight     float64
	AccessWeight  float64
	SafetyMargin  float64
}

// DefaultConfig mirrors the client defaults: 50MB, 30 days, equal weights.
func DefaultConfig() Config {
	return Config{
		MaxTotalBytes: 50 * 1024 * 1024,
		MaxAge:        30 * 24 * time.Hour,
		AgeWeight:     0.5,
		AccessWeight:  0.5,
		SafetyMargin:  DefaultSafetyMargin,
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxTotalBytes, validation.Min(int64(0))),
		validation.Field(&c.MaxAge, validation.Min(time.Duration(0))),
		validation.Field(&c.AgeWeight, validation.Min(0.0)),
		validation.Field(&c.AccessWeight, validation.Min(0.0)),
		validation.Field(&c.SafetyMargin, validation.Min(0.0), validation.Max(0.95)),
	)
}

// Target is the total, incoming write included, that a quota pass aims for.
func (c Config) Target() int64 {
	return int64(float64(c.MaxTotalBytes) * (1 - c.SafetyMargin))
}

// Reason says why an entry was picked.
type Reason string

const (
	ReasonAge   Reason = "age"
	ReasonQuota Reason = "quota"
)

// Victim is one entry selected for removal.
type Victim struct {
	ID        string  `json:"id"`
	SizeBytes int64   `json:"size_bytes"`
	Reason    Reason  `json:"reason"`
	Score     float64 `json:"score,omitempty"`
}

// Plan is the outcome of a planning pass.
type Plan struct {
	Victims        []Victim `json:"victims"`
	CurrentTotal   int64    `json:"current_total"`
	Incoming       int64    `json:"incoming"`
	ProjectedTotal int64    `json:"projected_total"` // after evictions, incoming included
	Shortfall      bool     `json:"shortfall"`       // quota still exceeded once candidates ran out
}

// IDs lists the victims in eviction order.
func (p Plan) IDs() []string {
	out := make([]string, len(p.Victims))
	for i, v := range p.Victims {
		out[i] = v.ID
	}
	return out
}

func (p Plan) FreedBytes() int64 {
	var freed int64
	for _, v := range p.Victims {
		freed += v.SizeBytes
	}
	return freed
}

func (p Plan) count(reason Reason) int {
	n := 0
	for _, v := range p.Victims {
		if v.Reason == reason {
			n++
		}
	}
	return n
}

// Metrics observes eviction decisions.
type Metrics interface {
	Evicted(reason Reason, sizeBytes int64)
	Shortfall(overBy int64)
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) Evicted(Reason, int64) {}
func (NoopMetrics) Shortfall(int64)       {}
