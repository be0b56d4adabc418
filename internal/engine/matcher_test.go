package engine

import (
	"context"
	"testing"
	"time"

	"calsync/internal/model"
)

func matcherFixture(st Settings) (*Matcher, *MetaStore) {
	store := NewMetaStore()
	if st.ActiveRightCollectionID == "" {
		st.ActiveRightCollectionID = "right-cal"
	}
	return NewMatcher(st, store, NewRightMetaStore(), &mockLogger{}), store
}

func TestMatch(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("Complete Link Pairs By ID", func(t *testing.T) {
		m, store := matcherFixture(DefaultSettings())
		li := testEvent("L1", "Standup", start, time.Hour)
		ri := testEvent("R1", "Standup", start, time.Hour)
		store.SetLink(li, "R1", "right-cal")

		ms, err := m.Match(ctx, []*model.Event{li}, []*model.Event{ri})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ms.Paired) != 1 || ms.Paired[0].Right.ID != "R1" {
			t.Fatalf("expected one pair with R1, got %+v", ms.Paired)
		}
		if len(ms.LeftOnly) != 0 || len(ms.RightOnly) != 0 {
			t.Errorf("expected no leftovers, got %d/%d", len(ms.LeftOnly), len(ms.RightOnly))
		}
	})

	t.Run("Partial Link Is Enhanced", func(t *testing.T) {
		m, store := matcherFixture(DefaultSettings())
		li := testEvent("L1", "Standup", start, time.Hour)
		ri := testEvent("R1", "Standup", start, time.Hour)
		store.SetLink(li, "R1", "")

		ms, _ := m.Match(ctx, []*model.Event{li}, []*model.Event{ri})
		if ms.MetadataEnhanced != 1 {
			t.Errorf("expected 1 enhanced item, got %d", ms.MetadataEnhanced)
		}
		link, _ := store.GetLink(li)
		if link.RightCollectionID != "right-cal" {
			t.Errorf("expected backfilled collection id, got %q", link.RightCollectionID)
		}
		if !store.ForceResync(li) {
			t.Errorf("expected force-resync flag after enhancement")
		}
		if len(ms.Paired) != 1 {
			t.Errorf("expected enhanced item to pair, got %d pairs", len(ms.Paired))
		}
	})

	t.Run("Signature Reclaim Writes Link But Does Not Pair", func(t *testing.T) {
		m, store := matcherFixture(DefaultSettings())
		li := testEvent("L1", "Lunch", start, time.Hour)
		ri := testEvent("R1", "Lunch", start, time.Hour)

		ms, _ := m.Match(ctx, []*model.Event{li}, []*model.Event{ri})
		if len(ms.Paired) != 0 {
			t.Errorf("reclaim must not pair in the same pass, got %d pairs", len(ms.Paired))
		}
		if len(ms.Reclaimed) != 1 {
			t.Fatalf("expected 1 reclaimed item, got %d", len(ms.Reclaimed))
		}
		link, ok := store.GetLink(li)
		if !ok || link.RightID != "R1" || link.RightCollectionID != "right-cal" {
			t.Errorf("expected reclaimed link to R1, got %+v", link)
		}
		if len(ms.LeftOnly) != 0 || len(ms.RightOnly) != 0 {
			t.Errorf("reclaimed items must leave both lists, got %d/%d", len(ms.LeftOnly), len(ms.RightOnly))
		}
	})

	t.Run("Merge Mode Protects Linkless Items", func(t *testing.T) {
		st := DefaultSettings()
		st.MergeItems = true
		m, _ := matcherFixture(st)
		li := testEvent("L1", "Personal", start, time.Hour)

		ms, _ := m.Match(ctx, []*model.Event{li}, nil)
		if len(ms.LeftOnly) != 0 {
			t.Errorf("merge mode item must not be a deletion candidate")
		}
		if len(ms.Reclaimed) != 0 {
			t.Errorf("merge mode item must not be reclaimed")
		}
	})

	t.Run("Unmatched Items Fall Through", func(t *testing.T) {
		m, store := matcherFixture(DefaultSettings())
		li := testEvent("L1", "Gone on right", start, time.Hour)
		store.SetLink(li, "R-missing", "right-cal")
		ri := testEvent("R9", "New on right", start.Add(48*time.Hour), time.Hour)

		ms, _ := m.Match(ctx, []*model.Event{li}, []*model.Event{ri})
		if len(ms.LeftOnly) != 1 || ms.LeftOnly[0].ID != "L1" {
			t.Errorf("expected L1 in leftOnly")
		}
		if len(ms.RightOnly) != 1 || ms.RightOnly[0].ID != "R9" {
			t.Errorf("expected R9 in rightOnly")
		}
	})

	t.Run("Disable Delete Empties LeftOnly", func(t *testing.T) {
		st := DefaultSettings()
		st.DisableDelete = true
		m, store := matcherFixture(st)
		li := testEvent("L1", "Gone on right", start, time.Hour)
		store.SetLink(li, "R-missing", "right-cal")

		ms, _ := m.Match(ctx, []*model.Event{li}, nil)
		if len(ms.LeftOnly) != 0 {
			t.Errorf("expected leftOnly emptied")
		}
		if ms.SuppressedDeletes != 1 {
			t.Errorf("expected suppressed count 1, got %d", ms.SuppressedDeletes)
		}
	})

	t.Run("Bidirectional Exclusions", func(t *testing.T) {
		st := DefaultSettings()
		st.Direction = model.DirectionBidirectional
		st.MergeItems = false
		st.LastSyncAt = start.Add(-time.Hour)
		m, store := matcherFixture(st)

		// Linked left item, deleted on right, modified after last sync:
		// excluded from deletion.
		li := testEvent("L1", "Edited recently", start, time.Hour)
		store.SetLink(li, "R-missing", "right-cal")
		li.Updated = start

		// Right item bearing a reverse link: was deleted on the left,
		// must not be recreated.
		ri := testEvent("R1", "Deleted on left", start.Add(24*time.Hour), time.Hour)
		ri.Meta = map[string]string{MetaLeftEventID: "L-old"}

		ms, _ := m.Match(ctx, []*model.Event{li}, []*model.Event{ri})
		if len(ms.LeftOnly) != 0 {
			t.Errorf("recently modified left item must not be deleted")
		}
		if len(ms.RightOnly) != 0 {
			t.Errorf("reverse-linked right item must not be recreated")
		}
	})

	t.Run("Unreadable Left Item Skipped", func(t *testing.T) {
		m, _ := matcherFixture(DefaultSettings())
		li := testEvent("", "No id", start, time.Hour)

		ms, _ := m.Match(ctx, []*model.Event{li}, nil)
		if len(ms.LeftOnly) != 0 || len(ms.Paired) != 0 {
			t.Errorf("unreadable item must be excluded from all groups")
		}
	})
}
