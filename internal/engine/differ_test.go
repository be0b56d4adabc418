package engine

import (
	"context"
	"testing"
	"time"

	"calsync/internal/model"
	"calsync/pkg/obfuscate"
)

func differFixture(st Settings) *Differ {
	store := NewMetaStore()
	l := &mockLogger{}
	rec := NewReconciler(st, store, l)
	obf := obfuscate.New(st.Direction, nil, nil)
	return NewDiffer(st, store, NewRightMetaStore(), rec, obf, l)
}

func TestDiffPair(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("Idempotent Compare", func(t *testing.T) {
		d := differFixture(DefaultSettings())
		left := testEvent("L1", "Old subject", start, time.Hour)
		right := testEvent("R1", "New subject", start.Add(30*time.Minute), time.Hour)
		right.Location = "Room 4"
		right.Updated = start
		left.Updated = start.Add(-time.Hour)

		res, err := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.MutationCount == 0 {
			t.Fatalf("expected mutations on first diff")
		}

		again, err := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.MutationCount != 0 {
			t.Errorf("expected zero mutations on second diff, got %d: %v", again.MutationCount, again.ChangeLog)
		}
	})

	t.Run("Unidirectional Recency Skip", func(t *testing.T) {
		d := differFixture(DefaultSettings())
		left := testEvent("L1", "Edited locally", start, time.Hour)
		right := testEvent("R1", "Stale truth", start, time.Hour)
		right.Updated = start
		left.Updated = start.Add(time.Minute)

		res, _ := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, false)
		if !res.Skipped {
			t.Errorf("expected skip when left is newer than right")
		}
		if left.Subject != "Edited locally" {
			t.Errorf("skipped diff must not mutate the left item")
		}
	})

	t.Run("Engine Echo Skip In Bidirectional", func(t *testing.T) {
		st := DefaultSettings()
		st.Direction = model.DirectionBidirectional
		d := differFixture(st)

		tt := start
		left := testEvent("L1", "Subject", start, time.Hour)
		left.Updated = tt.Add(-20 * time.Second)
		right := testEvent("R1", "Changed subject", start, time.Hour)
		right.Updated = tt.Add(-10 * time.Second)
		right.Meta = map[string]string{
			MetaEngineModified: tt.Add(-12 * time.Second).UTC().Format(time.RFC3339),
		}

		res, _ := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, false)
		if !res.Skipped {
			t.Errorf("expected skip: prior engine write within grace window of right update")
		}
	})

	t.Run("Force Compare Overrides Guard", func(t *testing.T) {
		d := differFixture(DefaultSettings())
		left := testEvent("L1", "Old", start, time.Hour)
		right := testEvent("R1", "New", start, time.Hour)
		left.Updated = start.Add(time.Minute)
		right.Updated = start

		res, _ := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, true)
		if res.Skipped {
			t.Errorf("force compare must bypass the staleness guard")
		}
		if left.Subject != "New" {
			t.Errorf("expected subject applied, got %q", left.Subject)
		}
	})

	t.Run("Reminder Added And Updated", func(t *testing.T) {
		d := differFixture(DefaultSettings())
		left := testEvent("L1", "Subject", start, time.Hour)
		right := testEvent("R1", "Subject", start, time.Hour)
		right.Updated = start
		right.Reminders = []model.Reminder{
			{Method: model.ReminderEmail, MinutesBefore: 60}, // ignored kind
			{Method: model.ReminderPopup, MinutesBefore: 10},
		}

		res, _ := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, false)
		if res.MutationCount != 1 {
			t.Fatalf("expected 1 mutation (reminder add), got %d: %v", res.MutationCount, res.ChangeLog)
		}
		if p := popupReminder(left.Reminders); p == nil || p.MinutesBefore != 10 {
			t.Fatalf("expected popup reminder at 10 minutes, got %+v", left.Reminders)
		}

		right.Reminders[1].MinutesBefore = 30
		res, _ = d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, true)
		if res.MutationCount != 1 {
			t.Fatalf("expected 1 mutation (minutes update), got %d", res.MutationCount)
		}
		if left.Reminders[0].MinutesBefore != 30 {
			t.Errorf("expected minutes updated to 30, got %d", left.Reminders[0].MinutesBefore)
		}
	})

	t.Run("Reminder Removal Honors DND Window", func(t *testing.T) {
		st := DefaultSettings()
		st.ReminderDND = true
		st.DNDStart = 22 * time.Hour
		st.DNDEnd = 6 * time.Hour
		d := differFixture(st)

		// Event at 23:45, reminder 15 minutes before: alarm at 23:30,
		// inside the wrapping window, so the removal is suppressed.
		evening := time.Date(2026, 3, 2, 23, 45, 0, 0, time.UTC)
		left := testEvent("L1", "Late call", evening, time.Hour)
		left.Reminders = []model.Reminder{{Method: model.ReminderPopup, MinutesBefore: 15}}
		right := testEvent("R1", "Late call", evening, time.Hour)
		right.Updated = evening

		res, _ := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, false)
		if res.MutationCount != 0 || len(left.Reminders) != 1 {
			t.Errorf("expected reminder left alone inside DND window")
		}

		// Alarm at 12:00 is outside the window: removal proceeds.
		noon := time.Date(2026, 3, 2, 12, 15, 0, 0, time.UTC)
		left2 := testEvent("L2", "Midday call", noon, time.Hour)
		left2.Reminders = []model.Reminder{{Method: model.ReminderPopup, MinutesBefore: 15}}
		right2 := testEvent("R2", "Midday call", noon, time.Hour)
		right2.Updated = noon

		res, _ = d.DiffPair(ctx, MatchedPair{Left: left2, Right: right2}, false)
		if res.MutationCount != 1 || len(left2.Reminders) != 0 {
			t.Errorf("expected reminder removed outside DND window, got %+v", left2.Reminders)
		}
	})

	t.Run("Description Sync Disabled Leaves Field", func(t *testing.T) {
		st := DefaultSettings()
		st.SyncDescriptions = false
		d := differFixture(st)
		left := testEvent("L1", "Subject", start, time.Hour)
		left.Description = "keep me"
		right := testEvent("R1", "Subject", start, time.Hour)
		right.Description = "truth text"
		right.Updated = start

		res, _ := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, false)
		if res.MutationCount != 0 || left.Description != "keep me" {
			t.Errorf("disabled description sync must leave the field untouched")
		}
	})

	t.Run("Attendee Reconciliation", func(t *testing.T) {
		d := differFixture(DefaultSettings())
		left := testEvent("L1", "Planning", start, time.Hour)
		left.Organizer = "boss@example.com"
		left.Attendees = []model.Attendee{
			{Email: "boss@example.com", DisplayName: "Boss"},
			{Email: "Alice@Example.com", DisplayName: "Alice", Optional: false},
			{Email: "gone@example.com", DisplayName: "Gone"},
		}
		right := testEvent("R1", "Planning", start, time.Hour)
		right.Updated = start
		right.Attendees = []model.Attendee{
			{Email: "alice@example.com", DisplayName: "Alice", Optional: true, ResponseStatus: "accepted"},
			{Email: "new@example.com", DisplayName: "New"},
		}

		res, _ := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, false)
		// Optional flip + removal + addition.
		if res.MutationCount != 3 {
			t.Fatalf("expected 3 mutations, got %d: %v", res.MutationCount, res.ChangeLog)
		}
		if len(left.Attendees) != 3 {
			t.Fatalf("expected organizer+alice+new, got %+v", left.Attendees)
		}
		for _, att := range left.Attendees {
			switch canonicalAddress(att.Email) {
			case "alice@example.com":
				if !att.Optional {
					t.Errorf("expected alice flipped to optional")
				}
				if att.ResponseStatus != "" {
					t.Errorf("response status must never be written")
				}
			case "gone@example.com":
				t.Errorf("expected gone@example.com removed")
			}
		}
	})

	t.Run("Attendee Teardown Capped", func(t *testing.T) {
		st := DefaultSettings()
		st.Direction = model.DirectionBidirectional
		st.MaxAttendees = 3
		d := differFixture(st)
		left := testEvent("L1", "All hands", start, time.Hour)
		for i := 0; i < 5; i++ {
			left.Attendees = append(left.Attendees, model.Attendee{Email: string(rune('a'+i)) + "@example.com"})
		}
		right := testEvent("R1", "All hands", start, time.Hour)
		right.Updated = start
		left.Updated = start.Add(-time.Hour)

		res, _ := d.DiffPair(ctx, MatchedPair{Left: left, Right: right}, false)
		if res.MutationCount != 0 || len(left.Attendees) != 5 {
			t.Errorf("expected overflowing attendee list left untouched")
		}
	})
}

func TestResolvePrivacy(t *testing.T) {
	priv := model.VisibilityPrivate
	pub := model.VisibilityPublic

	t.Run("Plain Mapping Without Enforcement", func(t *testing.T) {
		d := differFixture(DefaultSettings())
		if got := d.resolvePrivacy(priv, &pub); got != priv {
			t.Errorf("expected private mirrored, got %v", got)
		}
	})

	t.Run("Unidirectional Enforcement Forces Private", func(t *testing.T) {
		st := DefaultSettings()
		st.EnforcePrivate = true
		d := differFixture(st)
		if got := d.resolvePrivacy(pub, &pub); got != priv {
			t.Errorf("expected forced private, got %v", got)
		}
	})

	t.Run("Bidirectional Ratchet", func(t *testing.T) {
		st := DefaultSettings()
		st.Direction = model.DirectionBidirectional
		st.EnforcePrivate = true
		st.EnforcementSide = SideRight
		d := differFixture(st)

		// Other side already private, this side private: no change.
		if got := d.resolvePrivacy(priv, &priv); got != priv {
			t.Errorf("expected no change, got %v", got)
		}
		// Other side not private, this side private: undo the ratchet.
		if got := d.resolvePrivacy(pub, &priv); got != pub {
			t.Errorf("expected flip to non-private, got %v", got)
		}
		// New item: plain mapping.
		if got := d.resolvePrivacy(pub, nil); got != pub {
			t.Errorf("expected plain mapping for new item, got %v", got)
		}
	})

	t.Run("Bidirectional Enforcement On This Side", func(t *testing.T) {
		st := DefaultSettings()
		st.Direction = model.DirectionBidirectional
		st.EnforcePrivate = true
		st.EnforcementSide = SideLeft
		d := differFixture(st)

		if got := d.resolvePrivacy(pub, &pub); got != priv {
			t.Errorf("expected forced private, got %v", got)
		}

		st.CreatedItemsOnly = true
		d = differFixture(st)
		if got := d.resolvePrivacy(pub, &pub); got != pub {
			t.Errorf("created-items-only must keep plain mapping for existing items, got %v", got)
		}
		if got := d.resolvePrivacy(pub, nil); got != priv {
			t.Errorf("created-items-only must still force new items private, got %v", got)
		}
	})
}
