package history

import (
	"context"

	"github.com/snapdoc/snapdoc/internal/medium"
	"github.com/snapdoc/snapdoc/internal/value"
)

// ChangeKind labels what happened to a record between two snapshots.
type ChangeKind string

const (
	Created   ChangeKind = "created"
	Updated   ChangeKind = "updated"
	Unchanged ChangeKind = "unchanged"
	Deleted   ChangeKind = "deleted"
)

// Entry is one point in a record's reconstructed history. Record is
// the state at that version, nil for a deletion.
type Entry struct {
	Version medium.VersionRecord
	Kind    ChangeKind
	Record  value.Record
}

// FieldChange is one transition of a single field. Old is nil when the
// field first appeared, New is nil when it was removed.
type FieldChange struct {
	Version medium.VersionRecord
	Old     value.Value
	New     value.Value
}

// TimelineEntry tracks a collection's size through one version.
type TimelineEntry struct {
	Version medium.VersionRecord
	Count   int
	Delta   int
}

// RecordHistory reconstructs the life of one record by scanning up to
// limit versions (limit <= 0 scans the whole log) and diffing the
// record's state between consecutive snapshots. Entries come back in
// chronological order: a creation, then updates where the record
// actually changed, an unchanged marker where a version touched other
// data, and a final deletion entry when the record disappeared.
func (e *Engine) RecordHistory(ctx context.Context, collection, id string, limit int) ([]Entry, error) {
	versions, err := e.store.ListVersions(ctx, limit)
	if err != nil {
		return nil, err
	}
	states, err := e.snapshotStates(ctx, versions)
	if err != nil {
		return nil, err
	}

	// versions arrive newest first; walk oldest first.
	entries := []Entry{}
	var prev value.Record
	for i := len(versions) - 1; i >= 0; i-- {
		if states[i] == nil {
			continue
		}
		cur, _, found := states[i].FindRecord(collection, id)
		switch {
		case !found && prev == nil:
			// not born yet
		case found && prev == nil:
			entries = append(entries, Entry{Version: versions[i], Kind: Created, Record: cur.Clone()})
		case found && prev != nil:
			kind := Unchanged
			if !cur.Equal(prev) {
				kind = Updated
			}
			entries = append(entries, Entry{Version: versions[i], Kind: kind, Record: cur.Clone()})
		case !found && prev != nil:
			entries = append(entries, Entry{Version: versions[i], Kind: Deleted})
		}
		if found {
			prev = cur
		} else {
			prev = nil
		}
	}
	return entries, nil
}

// FieldHistory narrows RecordHistory to the transitions of one field.
func (e *Engine) FieldHistory(ctx context.Context, collection, id, field string, limit int) ([]FieldChange, error) {
	entries, err := e.RecordHistory(ctx, collection, id, limit)
	if err != nil {
		return nil, err
	}

	changes := []FieldChange{}
	var prev value.Value
	havePrev := false
	for _, entry := range entries {
		if entry.Kind == Deleted {
			if havePrev && prev != nil {
				changes = append(changes, FieldChange{Version: entry.Version, Old: prev})
			}
			prev = nil
			havePrev = false
			continue
		}
		cur := entry.Record[field]
		if !havePrev {
			if cur != nil {
				changes = append(changes, FieldChange{Version: entry.Version, New: value.Clone(cur)})
			}
		} else if !sameValue(prev, cur) {
			change := FieldChange{Version: entry.Version}
			if prev != nil {
				change.Old = value.Clone(prev)
			}
			if cur != nil {
				change.New = value.Clone(cur)
			}
			changes = append(changes, change)
		}
		prev = cur
		havePrev = true
	}
	return changes, nil
}

func sameValue(a, b value.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return value.Equal(a, b)
}

// CollectionTimeline reports how a collection's record count moved
// across up to limit versions, oldest first.
func (e *Engine) CollectionTimeline(ctx context.Context, collection string, limit int) ([]TimelineEntry, error) {
	versions, err := e.store.ListVersions(ctx, limit)
	if err != nil {
		return nil, err
	}
	states, err := e.snapshotStates(ctx, versions)
	if err != nil {
		return nil, err
	}

	timeline := []TimelineEntry{}
	prev := 0
	for i := len(versions) - 1; i >= 0; i-- {
		if states[i] == nil {
			continue
		}
		count := len(states[i][collection])
		timeline = append(timeline, TimelineEntry{
			Version: versions[i],
			Count:   count,
			Delta:   count - prev,
		})
		prev = count
	}
	return timeline, nil
}
