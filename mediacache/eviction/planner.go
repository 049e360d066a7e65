package eviction

import (
	"sort"
	"time"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
)

type candidate struct {
	entry domain.Entry
	score float64
}

// Plan computes which entries to remove before inserting incoming bytes.
// It is pure: nothing is deleted.
func (c Config) Plan(entries []domain.Entry, incoming int64, now time.Time) Plan {
	return c.PlanReplacing(entries, "", incoming, now)
}

// PlanReplacing is Plan for a write that overwrites the entry with id
// replacing. That entry is neither counted nor evicted since the write
// supersedes it.
func (c Config) PlanReplacing(entries []domain.Entry, replacing string, incoming int64, now time.Time) Plan {
	plan := Plan{Incoming: incoming}

	survivors := make([]domain.Entry, 0, len(entries))
	var total int64
	for _, e := range entries {
		if replacing != "" && e.ID == replacing {
			continue
		}
		plan.CurrentTotal += e.SizeBytes
		if c.MaxAge > 0 && now.Sub(e.CreatedAt) > c.MaxAge {
			plan.Victims = append(plan.Victims, Victim{ID: e.ID, SizeBytes: e.SizeBytes, Reason: ReasonAge})
			continue
		}
		survivors = append(survivors, e)
		total += e.SizeBytes
	}

	if c.MaxTotalBytes <= 0 || total+incoming <= c.MaxTotalBytes {
		plan.ProjectedTotal = total + incoming
		return plan
	}

	ranked := make([]candidate, len(survivors))
	for i, e := range survivors {
		ranked[i] = candidate{entry: e, score: c.Score(e, now)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].entry.CreatedAt.Equal(ranked[j].entry.CreatedAt) {
			return ranked[i].entry.CreatedAt.Before(ranked[j].entry.CreatedAt)
		}
		return ranked[i].entry.ID < ranked[j].entry.ID
	})

	target := c.Target()
	for _, cand := range ranked {
		if total+incoming <= target {
			break
		}
		plan.Victims = append(plan.Victims, Victim{
			ID:        cand.entry.ID,
			SizeBytes: cand.entry.SizeBytes,
			Reason:    ReasonQuota,
			Score:     cand.score,
		})
		total -= cand.entry.SizeBytes
	}

	plan.ProjectedTotal = total + incoming
	plan.Shortfall = plan.ProjectedTotal > c.MaxTotalBytes
	return plan
}

// Score ranks an entry for quota eviction; higher is evicted first.
// Timestamps in the future count as zero age.
func (c Config) Score(e domain.Entry, now time.Time) float64 {
	age := max(now.Sub(e.CreatedAt), 0)
	idle := max(now.Sub(e.LastAccessedAt), 0)
	return c.AgeWeight*float64(age.Milliseconds()) + c.AccessWeight*float64(idle.Milliseconds())
}
