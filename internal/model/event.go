package model

import (
	"strings"
	"time"
)

// Visibility of an event to other people on the same provider.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Transparency is whether the event blocks the owner's free/busy time.
type Transparency string

const (
	TransparencyFree Transparency = "free"
	TransparencyBusy Transparency = "busy"
)

// ReminderMethod is the delivery mechanism of a reminder. Only popup
// reminders are reconciled; every other method is ignored.
type ReminderMethod string

const (
	ReminderPopup ReminderMethod = "popup"
	ReminderEmail ReminderMethod = "email"
)

// Frequency of a recurrence rule.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// Attendee is one invitee on an event. ResponseStatus is read-only on
// every provider we talk to and is never written back.
type Attendee struct {
	Email          string
	DisplayName    string
	Optional       bool
	ResponseStatus string
}

// Reminder is a single alarm rule.
type Reminder struct {
	Method        ReminderMethod
	MinutesBefore int
}

// RecurrenceRule is the provider-neutral recurrence pattern of a series
// master. Exactly one of Count/Until is set when the series has an end
// condition; both zero means the series is open-ended.
type RecurrenceRule struct {
	Frequency Frequency
	Interval  int
	ByWeekday []time.Weekday
	Count     int
	Until     time.Time
}

// Exception is one occurrence of a series that diverges from the
// pattern. OriginalStart is the pattern-computed start of the occurrence
// and is the only stable join key across providers. A cancelled
// exception carries no override.
type Exception struct {
	OriginalStart time.Time
	Cancelled     bool
	Override      *Event
}

// Event is the provider-neutral view of a calendar item. Events are
// read fresh from both providers on every pass and never cached.
type Event struct {
	ID           string
	CollectionID string

	// SeriesID is set only on a generated occurrence of a recurring
	// series; empty for standalone events and series masters.
	SeriesID string

	Start    time.Time
	End      time.Time
	AllDay   bool
	Timezone string

	Subject     string
	Description string
	Location    string

	Visibility   Visibility
	Transparency Transparency

	Organizer string
	Attendees []Attendee
	Reminders []Reminder

	// Updated is the provider's authoritative last-modified instant.
	Updated time.Time

	// Meta is opaque key/value metadata persisted in the provider's own
	// storage (extended properties, X- properties). The engine's
	// identity link lives here.
	Meta map[string]string

	Recurrence *RecurrenceRule

	// Exceptions is populated only on a series master.
	Exceptions []Exception
}

// IsSeriesMaster reports whether the event is the canonical record of a
// recurring series.
func (e *Event) IsSeriesMaster() bool {
	return e.Recurrence != nil && e.SeriesID == ""
}

// IsOccurrence reports whether the event is a generated instance of a
// series owned by another item.
func (e *Event) IsOccurrence() bool {
	return e.SeriesID != ""
}

// Duration of a single occurrence.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Summary renders a short human-readable identification of the event
// for log and change-report lines.
func (e *Event) Summary() string {
	var sb strings.Builder
	if e.AllDay {
		sb.WriteString(e.Start.Format("2006-01-02"))
	} else {
		sb.WriteString(e.Start.Format("2006-01-02 15:04"))
	}
	if e.Recurrence != nil {
		sb.WriteString(" (R)")
	}
	sb.WriteString(` => "`)
	sb.WriteString(e.Subject)
	sb.WriteString(`"`)
	return sb.String()
}

// FindException returns the exception keyed by the given original start,
// or nil. Comparison is by instant, not wall clock.
func (e *Event) FindException(originalStart time.Time) *Exception {
	for i := range e.Exceptions {
		if e.Exceptions[i].OriginalStart.Equal(originalStart) {
			return &e.Exceptions[i]
		}
	}
	return nil
}

// Equal reports whether two recurrence rules describe the same pattern.
func (r *RecurrenceRule) Equal(other *RecurrenceRule) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Frequency != other.Frequency || r.Interval != other.Interval ||
		r.Count != other.Count || !r.Until.Equal(other.Until) {
		return false
	}
	if len(r.ByWeekday) != len(other.ByWeekday) {
		return false
	}
	set := make(map[time.Weekday]bool, len(r.ByWeekday))
	for _, d := range r.ByWeekday {
		set[d] = true
	}
	for _, d := range other.ByWeekday {
		if !set[d] {
			return false
		}
	}
	return true
}
