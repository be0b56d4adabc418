package engine

import (
	"context"
	"testing"
	"time"

	"calsync/internal/model"
)

func reconcilerFixture() *Reconciler {
	return NewReconciler(DefaultSettings(), NewMetaStore(), &mockLogger{})
}

func weeklyRule(days ...time.Weekday) *model.RecurrenceRule {
	return &model.RecurrenceRule{
		Frequency: model.FreqWeekly,
		Interval:  1,
		ByWeekday: days,
	}
}

func TestReconcileRecurrence(t *testing.T) {
	ctx := context.Background()
	// A Monday.
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("Series Comes Into Existence With Exceptions", func(t *testing.T) {
		r := reconcilerFixture()
		left := testEvent("L1", "Weekly review", start, time.Hour)
		right := testEvent("R1", "Weekly review", start, time.Hour)
		right.Recurrence = weeklyRule(time.Monday)

		second := start.AddDate(0, 0, 7)
		third := start.AddDate(0, 0, 14)
		moved := second.Add(2 * time.Hour)
		right.Exceptions = []model.Exception{
			{OriginalStart: second, Override: &model.Event{
				ID: "R1-2", Subject: "Weekly review", Start: moved, End: moved.Add(time.Hour),
			}},
			{OriginalStart: third, Cancelled: true},
		}

		n, err := r.ReconcileRecurrence(ctx, MatchedPair{Left: left, Right: right})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !left.IsSeriesMaster() {
			t.Fatalf("expected left to become a series master")
		}
		if !left.Recurrence.Equal(right.Recurrence) {
			t.Errorf("expected pattern to match the rule, got %+v", left.Recurrence)
		}
		if len(left.Exceptions) != 2 {
			t.Fatalf("expected exactly two exceptions, got %d", len(left.Exceptions))
		}
		if ex := left.FindException(second); ex == nil || ex.Override == nil || !ex.Override.Start.Equal(moved) {
			t.Errorf("expected moved exception keyed by original start %s", second)
		}
		if ex := left.FindException(third); ex == nil || !ex.Cancelled {
			t.Errorf("expected cancelled exception keyed by original start %s", third)
		}
		// Transition + two exceptions.
		if n != 3 {
			t.Errorf("expected 3 mutations, got %d", n)
		}
	})

	t.Run("Series Reverts To Non-Recurring", func(t *testing.T) {
		r := reconcilerFixture()
		left := testEvent("L1", "Was weekly", start, time.Hour)
		left.Recurrence = weeklyRule(time.Monday)
		left.Exceptions = []model.Exception{{OriginalStart: start.AddDate(0, 0, 7), Cancelled: true}}
		right := testEvent("R1", "Was weekly", start, time.Hour)

		n, err := r.ReconcileRecurrence(ctx, MatchedPair{Left: left, Right: right})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if left.Recurrence != nil || len(left.Exceptions) != 0 {
			t.Errorf("expected pattern and exceptions cleared")
		}
		if n != 1 {
			t.Errorf("expected clearing to count one mutation, got %d", n)
		}
	})

	t.Run("Occurrence Never Becomes A Master", func(t *testing.T) {
		r := reconcilerFixture()
		left := testEvent("L1", "Instance", start, time.Hour)
		right := testEvent("R1", "Instance", start, time.Hour)
		right.Recurrence = weeklyRule(time.Monday)
		right.SeriesID = "R-master"

		n, _ := r.ReconcileRecurrence(ctx, MatchedPair{Left: left, Right: right})
		if left.Recurrence != nil || n != 0 {
			t.Errorf("a generated occurrence must not create a series")
		}
	})

	t.Run("Pattern Field Diff", func(t *testing.T) {
		r := reconcilerFixture()
		left := testEvent("L1", "Cadence", start, time.Hour)
		left.Recurrence = weeklyRule(time.Monday)
		right := testEvent("R1", "Cadence", start, 90*time.Minute)
		right.Recurrence = &model.RecurrenceRule{
			Frequency: model.FreqWeekly,
			Interval:  2,
			ByWeekday: []time.Weekday{time.Monday, time.Thursday},
			Count:     10,
		}

		n, _ := r.ReconcileRecurrence(ctx, MatchedPair{Left: left, Right: right})
		if n != 3 {
			t.Errorf("expected interval+weekdays+count mutations, got %d", n)
		}
		if !left.Recurrence.Equal(right.Recurrence) {
			t.Errorf("expected pattern applied, got %+v", left.Recurrence)
		}
		// Duration recomputed from the master, silently.
		if !left.End.Equal(left.Start.Add(90 * time.Minute)) {
			t.Errorf("expected duration recomputed to 90m, got end %s", left.End)
		}
	})

	t.Run("Reverted Exception Removed", func(t *testing.T) {
		r := reconcilerFixture()
		second := start.AddDate(0, 0, 7)
		left := testEvent("L1", "Weekly", start, time.Hour)
		left.Recurrence = weeklyRule(time.Monday)
		left.Exceptions = []model.Exception{{OriginalStart: second, Cancelled: true}}
		right := testEvent("R1", "Weekly", start, time.Hour)
		right.Recurrence = weeklyRule(time.Monday)

		n, _ := r.ReconcileRecurrence(ctx, MatchedPair{Left: left, Right: right})
		if len(left.Exceptions) != 0 {
			t.Errorf("expected reverted exception removed")
		}
		if n != 1 {
			t.Errorf("expected 1 mutation, got %d", n)
		}
	})

	t.Run("Exception Matched By Original Start Not Current", func(t *testing.T) {
		r := reconcilerFixture()
		second := start.AddDate(0, 0, 7)
		moved := second.Add(3 * time.Hour)
		left := testEvent("L1", "Weekly", start, time.Hour)
		left.Recurrence = weeklyRule(time.Monday)
		left.Exceptions = []model.Exception{
			{OriginalStart: second, Override: &model.Event{Subject: "Weekly", Start: second.Add(time.Hour), End: second.Add(2 * time.Hour)}},
		}
		right := testEvent("R1", "Weekly", start, time.Hour)
		right.Recurrence = weeklyRule(time.Monday)
		right.Exceptions = []model.Exception{
			{OriginalStart: second, Override: &model.Event{Subject: "Weekly", Start: moved, End: moved.Add(time.Hour)}},
		}

		n, _ := r.ReconcileRecurrence(ctx, MatchedPair{Left: left, Right: right})
		if n != 1 {
			t.Fatalf("expected the existing exception updated in place, got %d mutations", n)
		}
		if len(left.Exceptions) != 1 || !left.Exceptions[0].Override.Start.Equal(moved) {
			t.Errorf("expected override updated, got %+v", left.Exceptions)
		}
	})
}

func TestBuildRRule(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("Weekly Occurrences", func(t *testing.T) {
		rr, err := BuildRRule(weeklyRule(time.Monday), start)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		occ := rr.Between(start.Add(-time.Second), start.AddDate(0, 0, 15), true)
		if len(occ) != 3 {
			t.Fatalf("expected 3 Mondays in window, got %d", len(occ))
		}
		if !occursAt(rr, start.AddDate(0, 0, 7)) {
			t.Errorf("expected second Monday on pattern")
		}
		if occursAt(rr, start.AddDate(0, 0, 3)) {
			t.Errorf("Thursday must not be on a Monday pattern")
		}
	})

	t.Run("Unsupported Frequency", func(t *testing.T) {
		if _, err := BuildRRule(&model.RecurrenceRule{Frequency: "hourly"}, start); err == nil {
			t.Errorf("expected error for unsupported frequency")
		}
	})

	t.Run("No Rule", func(t *testing.T) {
		if _, err := BuildRRule(nil, start); err == nil {
			t.Errorf("expected error for nil rule")
		}
	})
}
