package history

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/snapdoc/snapdoc/internal/medium"
)

// SearchFilter narrows a version search. Zero-valued fields are
// ignored; set fields must all match.
type SearchFilter struct {
	// Author matches either the author name or email exactly.
	Author string
	// Since and Until bound the version timestamp inclusively.
	Since time.Time
	Until time.Time
	// MessageContains matches the version message without case.
	MessageContains string
}

// SearchVersions scans the whole log and returns the versions matching
// the filter, newest first.
func (e *Engine) SearchVersions(ctx context.Context, filter SearchFilter) ([]medium.VersionRecord, error) {
	versions, err := e.store.ListVersions(ctx, 0)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	needle := fold.String(filter.MessageContains)

	out := []medium.VersionRecord{}
	for _, v := range versions {
		if filter.Author != "" && v.Author.Name != filter.Author && v.Author.Email != filter.Author {
			continue
		}
		if !filter.Since.IsZero() && v.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && v.Timestamp.After(filter.Until) {
			continue
		}
		if needle != "" && !strings.Contains(fold.String(v.Message), needle) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Stats summarizes the version log.
type Stats struct {
	TotalVersions int
	// Authors counts versions per author name.
	Authors map[string]int
	First   time.Time
	Last    time.Time
	// AveragePerDay is TotalVersions over the spanned days, never
	// dividing by less than one day.
	AveragePerDay float64
}

// Stats computes log-wide statistics in one scan.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	versions, err := e.store.ListVersions(ctx, 0)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalVersions: len(versions),
		Authors:       map[string]int{},
	}
	if len(versions) == 0 {
		return stats, nil
	}

	// newest first
	stats.Last = versions[0].Timestamp
	stats.First = versions[len(versions)-1].Timestamp
	for _, v := range versions {
		stats.Authors[v.Author.Name]++
	}

	days := stats.Last.Sub(stats.First).Hours() / 24
	if days < 1 {
		days = 1
	}
	stats.AveragePerDay = float64(stats.TotalVersions) / days
	return stats, nil
}
