package domain

import (
	"time"
)

// Entry is a single cached resource. Payload holds the local representation
// (a data URL), RemoteRef the authoritative copy when one is known.
type Entry struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	GroupID        string    `json:"group_id"`
	Payload        string    `json:"payload"`
	RemoteRef      string    `json:"remote_ref,omitempty"`
	Label          string    `json:"label"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	SizeBytes      int64     `json:"size_bytes"`
}

// HasRemote reports whether the entry can be rehydrated again.
func (e Entry) HasRemote() bool {
	return e.RemoteRef != ""
}

// Meta returns a copy of the entry without its payload, for listings.
func (e Entry) Meta() Entry {
	e.Payload = ""
	return e
}

// PayloadSize is the byte size accounted against the quota for a payload.
func PayloadSize(payload string) int64 {
	return int64(len(payload))
}

// Stats is a point-in-time summary of the whole cache.
type Stats struct {
	TotalEntries    int        `json:"total_entries"`
	TotalBytes      int64      `json:"total_bytes"`
	HumanSize       string     `json:"human_size"`
	MaxTotalBytes   int64      `json:"max_total_bytes"`
	OverQuota       bool       `json:"over_quota"`
	OldestCreatedAt *time.Time `json:"oldest_created_at,omitempty"`
	NewestCreatedAt *time.Time `json:"newest_created_at,omitempty"`
}

// Task is a pending rehydration: the local payload for ID is missing but
// RemoteRef is known.
type Task struct {
	ID        string `json:"id"`
	RemoteRef string `json:"remote_ref"`
	OwnerID   string `json:"owner_id"`
	GroupID   string `json:"group_id"`
}
