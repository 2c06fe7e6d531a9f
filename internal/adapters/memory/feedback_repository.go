// Package memory provides in-process repositories used for local mode and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/longregen/promptforge/internal/domain/models"
)

// FeedbackRepository keeps an append-only feedback log per prompt
type FeedbackRepository struct {
	mu      sync.RWMutex
	records map[string][]*models.FeedbackRecord
}

// NewFeedbackRepository creates an empty feedback repository
func NewFeedbackRepository() *FeedbackRepository {
	return &FeedbackRepository{records: make(map[string][]*models.FeedbackRecord)}
}

func cloneRecord(r *models.FeedbackRecord) *models.FeedbackRecord {
	c := *r
	if r.Value != nil {
		v := *r.Value
		c.Value = &v
	}
	return &c
}

func (r *FeedbackRepository) Append(ctx context.Context, record *models.FeedbackRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.PromptID] = append(r.records[record.PromptID], cloneRecord(record))
	return nil
}

// Counts aggregates under a single read lock, so a concurrent purge sees either
// all or none of the summary's records
func (r *FeedbackRepository) Counts(ctx context.Context, promptID string, since time.Time) (models.FeedbackCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var c models.FeedbackCounts
	for _, rec := range r.records[promptID] {
		if rec.Timestamp.Before(since) {
			continue
		}
		c.Total++
		switch rec.Kind {
		case models.FeedbackRating:
			c.Ratings++
		case models.FeedbackError:
			c.Errors++
		case models.FeedbackSuccess:
			c.Successes++
		case models.FeedbackSuggestion:
			c.Suggestions++
		}
		if rec.Value != nil {
			c.RatedCount++
			c.RatingSum += *rec.Value
		}
	}
	return c, nil
}

func (r *FeedbackRepository) ListByKind(ctx context.Context, promptID string, kind models.FeedbackKind, since time.Time, limit int) ([]*models.FeedbackRecord, error) {
	r.mu.RLock()
	var out []*models.FeedbackRecord
	for _, rec := range r.records[promptID] {
		if rec.Kind == kind && !rec.Timestamp.Before(since) {
			out = append(out, cloneRecord(rec))
		}
	}
	r.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *models.FeedbackRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListTopRated returns non-blank records of one kind, highest value first
func (r *FeedbackRepository) ListTopRated(ctx context.Context, promptID string, kind models.FeedbackKind, since time.Time, limit int) ([]*models.FeedbackRecord, error) {
	r.mu.RLock()
	var out []*models.FeedbackRecord
	for _, rec := range r.records[promptID] {
		if rec.Kind == kind && !rec.Timestamp.Before(since) && strings.TrimSpace(rec.Detail) != "" {
			out = append(out, cloneRecord(rec))
		}
	}
	r.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *models.FeedbackRecord) int {
		switch {
		case a.Value != nil && b.Value == nil:
			return -1
		case a.Value == nil && b.Value != nil:
			return 1
		case a.Value != nil && *a.Value != *b.Value:
			return cmp.Compare(*b.Value, *a.Value)
		}
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FeedbackRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for promptID, recs := range r.records {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(r.records, promptID)
			continue
		}
		r.records[promptID] = kept
	}
	return deleted, nil
}

func (r *FeedbackRepository) PromptIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids, nil
}
