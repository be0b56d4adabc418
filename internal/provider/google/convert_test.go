package google

import (
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"

	"calsync/internal/engine"
	"calsync/internal/model"
)

func TestEventRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("Timed Event With Metadata", func(t *testing.T) {
		src := &model.Event{
			ID:           "g1",
			Start:        start,
			End:          start.Add(time.Hour),
			Timezone:     "Europe/Paris",
			Subject:      "Planning",
			Description:  "Quarterly planning",
			Location:     "Room 4",
			Visibility:   model.VisibilityPrivate,
			Transparency: model.TransparencyFree,
			Attendees: []model.Attendee{
				{Email: "alice@example.com", DisplayName: "Alice", Optional: true, ResponseStatus: "accepted"},
			},
			Reminders: []model.Reminder{{Method: model.ReminderPopup, MinutesBefore: 10}},
			Meta: map[string]string{
				engine.MetaLeftEventID:    "L1",
				engine.MetaEngineModified: start.Format(time.RFC3339),
			},
		}

		item := toGoogleEvent(src)
		item.Id = "g1"
		got, err := fromGoogleEvent(item, "primary")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != "g1" || got.CollectionID != "primary" {
			t.Errorf("identity mismatch: %q in %q", got.ID, got.CollectionID)
		}
		if !got.Start.Equal(src.Start) || !got.End.Equal(src.End) {
			t.Errorf("instants changed: %s - %s", got.Start, got.End)
		}
		if got.Subject != src.Subject || got.Description != src.Description || got.Location != src.Location {
			t.Errorf("text fields changed: %+v", got)
		}
		if got.Visibility != model.VisibilityPrivate || got.Transparency != model.TransparencyFree {
			t.Errorf("visibility/transparency changed: %v/%v", got.Visibility, got.Transparency)
		}
		if len(got.Attendees) != 1 || !got.Attendees[0].Optional || got.Attendees[0].ResponseStatus != "accepted" {
			t.Errorf("attendees changed: %+v", got.Attendees)
		}
		if len(got.Reminders) != 1 || got.Reminders[0].MinutesBefore != 10 {
			t.Errorf("reminders changed: %+v", got.Reminders)
		}
		for k, want := range src.Meta {
			if got.Meta[k] != want {
				t.Errorf("meta %s: want %q, got %q", k, want, got.Meta[k])
			}
		}
	})

	t.Run("All Day Event", func(t *testing.T) {
		day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		src := &model.Event{ID: "g2", Subject: "Offsite", AllDay: true, Start: day, End: day.AddDate(0, 0, 2)}

		item := toGoogleEvent(src)
		if item.Start.Date != "2026-03-02" || item.Start.DateTime != "" {
			t.Fatalf("expected bare date boundary, got %+v", item.Start)
		}
		got, err := fromGoogleEvent(item, "primary")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.AllDay || !got.Start.Equal(day) || !got.End.Equal(day.AddDate(0, 0, 2)) {
			t.Errorf("all-day boundaries changed: %+v", got)
		}
	})

	t.Run("Recurrence Rule", func(t *testing.T) {
		src := &model.Event{
			ID: "g3", Subject: "Weekly", Start: start, End: start.Add(time.Hour),
			Recurrence: &model.RecurrenceRule{
				Frequency: model.FreqWeekly,
				Interval:  2,
				ByWeekday: []time.Weekday{time.Monday, time.Thursday},
				Count:     10,
			},
		}

		item := toGoogleEvent(src)
		if len(item.Recurrence) != 1 || item.Recurrence[0] != "RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH;COUNT=10" {
			t.Fatalf("unexpected recurrence lines: %v", item.Recurrence)
		}
		got, err := fromGoogleEvent(item, "primary")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Recurrence.Equal(src.Recurrence) {
			t.Errorf("pattern changed: %+v", got.Recurrence)
		}
	})

	t.Run("Unknown Reminder Methods Dropped", func(t *testing.T) {
		item := &calendar.Event{
			Id:      "g4",
			Summary: "Call",
			Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
			End:     &calendar.EventDateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
			Reminders: &calendar.EventReminders{Overrides: []*calendar.EventReminder{
				{Method: "sms", Minutes: 5},
				{Method: "popup", Minutes: 10},
			}},
		}
		got, err := fromGoogleEvent(item, "primary")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.Reminders) != 1 || got.Reminders[0].Method != model.ReminderPopup {
			t.Errorf("expected only the popup reminder, got %+v", got.Reminders)
		}
	})
}

func TestParseEventTime(t *testing.T) {
	t.Run("Missing Boundary", func(t *testing.T) {
		if _, _, _, err := parseEventTime(nil); err == nil {
			t.Errorf("expected error for nil boundary")
		}
	})

	t.Run("Zone Name Carried", func(t *testing.T) {
		got, allDay, tzName, err := parseEventTime(&calendar.EventDateTime{
			DateTime: "2026-03-02T10:00:00+01:00",
			TimeZone: "Europe/Paris",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if allDay || tzName != "Europe/Paris" {
			t.Errorf("expected timed boundary in Europe/Paris, got allDay=%v tz=%q", allDay, tzName)
		}
		want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("expected instant %s, got %s", want, got)
		}
	})
}
