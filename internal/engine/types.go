package engine

import (
	"time"

	"calsync/internal/model"
)

// Side names one of the two providers.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Settings is the engine policy configuration, threaded explicitly into
// the Matcher, Differ and Reconciler constructors.
type Settings struct {
	Direction model.Direction

	// ActiveRightCollectionID is the id of the right-side calendar the
	// current pass runs against. Link confirmation checks against it.
	ActiveRightCollectionID string

	// MergeItems treats linkless left items as independent content:
	// they are never reclaimed and never deleted.
	MergeItems bool

	// DisableDelete suppresses every left-side deletion.
	DisableDelete bool

	SyncDescriptions        bool
	DescriptionsToRightOnly bool
	SyncAttendees           bool
	SyncReminders           bool

	// EnforcePrivate and EnforceAvailable turn the plain value mirror
	// for visibility/transparency into an enforcement policy.
	EnforcePrivate   bool
	EnforceAvailable bool

	// EnforcementSide is the side enforced values are imposed on.
	EnforcementSide Side

	// CreatedItemsOnly restricts enforcement to items the engine
	// creates; pre-existing items keep the plain mapping.
	CreatedItemsOnly bool

	// ReminderDND suppresses reminder removal when the target's alarm
	// falls inside the quiet-hours window. Start/End are offsets into
	// the day; the window wraps midnight when Start > End.
	ReminderDND bool
	DNDStart    time.Duration
	DNDEnd      time.Duration

	// EchoGraceWindow absorbs the round-trip latency between an engine
	// write and the provider's recorded update instant.
	EchoGraceWindow time.Duration

	// ManualForceCompare bypasses the staleness guards for every pair.
	ManualForceCompare bool

	// LastSyncAt is the end of the last successful pass.
	LastSyncAt time.Time

	// MaxAttendees is the recipient count above which a full attendee
	// teardown is refused.
	MaxAttendees int
}

// DefaultSettings returns the baseline policy set.
func DefaultSettings() Settings {
	return Settings{
		Direction:        model.DirectionRightToLeft,
		SyncDescriptions: true,
		SyncAttendees:    true,
		SyncReminders:    true,
		EnforcementSide:  SideLeft,
		EchoGraceWindow:  5 * time.Second,
		MaxAttendees:     150,
	}
}

// MatchedPair is one confirmed left/right pairing.
type MatchedPair struct {
	Left  *model.Event
	Right *model.Event
}

// MatchSet is the transient outcome of one matching pass. Every input
// item lands in exactly one of Paired, LeftOnly, RightOnly, Reclaimed
// or the unreadable/merge-suppressed discard.
type MatchSet struct {
	Paired    []MatchedPair
	LeftOnly  []*model.Event
	RightOnly []*model.Event

	// Reclaimed left items had a link backfilled from a signature match
	// and need a metadata-only save; they pair by id on the next pass.
	Reclaimed []*model.Event

	MetadataEnhanced  int
	SuppressedDeletes int
}

// DiffResult is the outcome of diffing one confirmed pair.
type DiffResult struct {
	// Skipped means the staleness guard decided no compare was needed.
	Skipped bool

	MutationCount int
	ChangeLog     []string

	// RecurrenceTouched is set when the pair transitioned between
	// recurring and non-recurring, or the pattern was rebuilt.
	RecurrenceTouched bool
}

func (r *DiffResult) logChange(name, oldVal, newVal string) {
	r.note(name + ": " + oldVal + " => " + newVal)
}

func (r *DiffResult) note(line string) {
	r.ChangeLog = append(r.ChangeLog, line)
	r.MutationCount++
}
