package engine

import (
	"context"
	"fmt"
	"time"

	"calsync/internal/model"
	pkgLog "calsync/pkg/log"
	"calsync/pkg/obfuscate"
)

// Differ computes and applies the field-by-field delta of a confirmed
// pair, writing right-side truth onto the left item in memory. The
// caller persists the left item when the mutation count is non-zero.
type Differ struct {
	st    Settings
	store IdentityStore
	rmeta RightMeta
	rec   *Reconciler
	obf   *obfuscate.Engine
	l     pkgLog.Logger
}

func NewDiffer(st Settings, store IdentityStore, rmeta RightMeta, rec *Reconciler, obf *obfuscate.Engine, l pkgLog.Logger) *Differ {
	return &Differ{
		st:    st,
		store: store,
		rmeta: rmeta,
		rec:   rec,
		obf:   obf,
		l:     l,
	}
}

// DiffPair diffs one confirmed pair. forceCompare bypasses the
// staleness guards, needed when an exception has just been created and
// must be compared regardless of timestamps.
func (d *Differ) DiffPair(ctx context.Context, pair MatchedPair, forceCompare bool) (DiffResult, error) {
	left, right := pair.Left, pair.Right
	if !readable(left) || !readable(right) {
		return DiffResult{}, ErrUnreadableItem
	}

	if !d.st.ManualForceCompare && !forceCompare && d.shouldSkip(ctx, left, right) {
		return DiffResult{Skipped: true}, nil
	}

	if left.IsSeriesMaster() {
		d.l.Debugf(ctx, "differ: processing recurring master %s", left.Summary())
	} else {
		d.l.Debugf(ctx, "differ: processing %s", left.Summary())
	}

	res := DiffResult{}

	// Series masters carry all-day-ness in the pattern, not the item.
	if !left.IsSeriesMaster() {
		if left.AllDay != right.AllDay {
			res.logChange("All-Day", fmt.Sprint(left.AllDay), fmt.Sprint(right.AllDay))
			left.AllDay = right.AllDay
		}
	}

	tzChanged := compareAttribute(&res, "Timezone", right.Timezone, left.Timezone)
	startChanged := d.compareTime(&res, "Start time", right.Start, left.Start, left.AllDay)
	endChanged := d.compareTime(&res, "End time", right.End, left.End, left.AllDay)

	if startChanged || endChanged || tzChanged {
		left.Start = right.Start
		left.End = right.End
		if tzChanged {
			left.Timezone = right.Timezone
			if left.IsSeriesMaster() {
				// The pattern representation cannot express a timezone
				// change incrementally.
				d.rec.RebuildPattern(ctx, left, right, &res)
			}
		}
	}

	if left.IsSeriesMaster() && right.IsSeriesMaster() {
		d.rec.ComparePattern(ctx, left, right, &res)
	}
	d.rec.ApplyTransitions(ctx, left, right, &res)

	subject := d.obf.Apply(right.Subject, d.st.Direction)
	if compareAttribute(&res, "Subject", subject, left.Subject) {
		left.Subject = subject
	}

	if d.st.SyncDescriptions {
		// The to-right-only restriction is a bidirectional refinement; a
		// one-way pass writes toward a single side anyway.
		if d.st.Direction != model.DirectionBidirectional || !d.st.DescriptionsToRightOnly {
			if compareAttribute(&res, "Description", right.Description, left.Description) {
				left.Description = right.Description
			}
		}
	}

	if compareAttribute(&res, "Location", right.Location, left.Location) {
		left.Location = right.Location
	}

	if !left.IsOccurrence() {
		privacy := d.resolvePrivacy(right.Visibility, &left.Visibility)
		if compareAttribute(&res, "Privacy", string(privacy), string(left.Visibility)) {
			left.Visibility = privacy
		}
	}

	avail := d.resolveAvailability(right.Transparency, &left.Transparency)
	if compareAttribute(&res, "Free/Busy", string(avail), string(left.Transparency)) {
		left.Transparency = avail
	}

	d.reconcileAttendees(ctx, left, right, &res)
	d.reconcileReminders(ctx, left, right, &res)

	if res.MutationCount > 0 {
		for _, line := range res.ChangeLog {
			d.l.Infof(ctx, "differ: %s | %s", left.Summary(), line)
		}
		d.l.Infof(ctx, "differ: %d attributes updated", res.MutationCount)
	}
	return res, nil
}

// NewLeftFromRight builds a fresh left item from right-side truth,
// applying the creation-path policies (obfuscation, enforcement with no
// pre-existing value).
func (d *Differ) NewLeftFromRight(right *model.Event) *model.Event {
	ev := &model.Event{
		Start:        right.Start,
		End:          right.End,
		AllDay:       right.AllDay,
		Timezone:     right.Timezone,
		Subject:      d.obf.Apply(right.Subject, d.st.Direction),
		Location:     right.Location,
		Visibility:   d.resolvePrivacy(right.Visibility, nil),
		Transparency: d.resolveAvailability(right.Transparency, nil),
		Organizer:    right.Organizer,
		Updated:      right.Updated,
	}
	if d.st.SyncDescriptions {
		ev.Description = right.Description
	}
	if d.st.SyncAttendees {
		for _, att := range right.Attendees {
			att.ResponseStatus = ""
			ev.Attendees = append(ev.Attendees, att)
		}
	}
	if d.st.SyncReminders {
		if popup := popupReminder(right.Reminders); popup != nil {
			ev.Reminders = []model.Reminder{*popup}
		}
	}
	if right.IsSeriesMaster() {
		rule := *right.Recurrence
		rule.ByWeekday = append([]time.Weekday(nil), right.Recurrence.ByWeekday...)
		ev.Recurrence = &rule
	}
	return ev
}

// shouldSkip is the staleness guard: decide whether a compare is needed
// at all. Both rules exist to avoid infinite change loops and to avoid
// re-applying an engine-caused update as if it were a user edit.
func (d *Differ) shouldSkip(ctx context.Context, left, right *model.Event) bool {
	if d.st.Direction != model.DirectionBidirectional {
		// Left wins by recency.
		return left.Updated.After(right.Updated)
	}
	if stamp, ok := d.rmeta.EngineLastModified(right); ok {
		if !stamp.Add(d.st.EchoGraceWindow).Before(right.Updated) {
			// The right item's last change was the engine's own write
			// echoing back.
			d.l.Debugf(ctx, "differ: %s last modified by engine, skipping", left.Summary())
			return true
		}
	}
	return left.Updated.After(right.Updated)
}

// resolvePrivacy maps right-side visibility onto the left item under
// the enforcement policy. current is nil for newly created items.
func (d *Differ) resolvePrivacy(truth model.Visibility, current *model.Visibility) model.Visibility {
	simple := func() model.Visibility {
		if truth == model.VisibilityPrivate {
			return model.VisibilityPrivate
		}
		return model.VisibilityPublic
	}
	if !d.st.EnforcePrivate {
		return simple()
	}
	if d.st.Direction != model.DirectionBidirectional {
		return model.VisibilityPrivate
	}
	if d.st.EnforcementSide == SideRight {
		// Enforcement is imposed on the other side; this side holds the
		// ratchet. Private can be undone only from here: when this side
		// dropped out of private on the other side, sync that back.
		if current == nil {
			return simple()
		}
		if *current == model.VisibilityPrivate && truth != model.VisibilityPrivate {
			return model.VisibilityPublic
		}
		return *current
	}
	if !d.st.CreatedItemsOnly || current == nil {
		return model.VisibilityPrivate
	}
	return simple()
}

// resolveAvailability is the free/busy twin of resolvePrivacy.
func (d *Differ) resolveAvailability(truth model.Transparency, current *model.Transparency) model.Transparency {
	simple := func() model.Transparency {
		if truth == model.TransparencyFree {
			return model.TransparencyFree
		}
		// Providers default an absent transparency to busy.
		return model.TransparencyBusy
	}
	if !d.st.EnforceAvailable {
		return simple()
	}
	if d.st.Direction != model.DirectionBidirectional {
		return model.TransparencyFree
	}
	if d.st.EnforcementSide == SideRight {
		if current == nil {
			return simple()
		}
		if *current == model.TransparencyFree && truth != model.TransparencyFree {
			return model.TransparencyBusy
		}
		return *current
	}
	if !d.st.CreatedItemsOnly || current == nil {
		return model.TransparencyFree
	}
	return simple()
}

func (d *Differ) reconcileReminders(ctx context.Context, left, right *model.Event, res *DiffResult) {
	if !d.st.SyncReminders {
		return
	}
	src := popupReminder(right.Reminders)
	tgt := popupIndex(left.Reminders)

	if src != nil {
		if tgt >= 0 {
			if compareAttribute(res, "Reminder", itoa(src.MinutesBefore), itoa(left.Reminders[tgt].MinutesBefore)) {
				left.Reminders[tgt].MinutesBefore = src.MinutesBefore
			}
		} else {
			res.logChange("Reminder", "nothing", itoa(src.MinutesBefore))
			left.Reminders = append(left.Reminders, model.Reminder{
				Method:        model.ReminderPopup,
				MinutesBefore: src.MinutesBefore,
			})
		}
		return
	}
	if tgt >= 0 {
		minutes := left.Reminders[tgt].MinutesBefore
		if !d.okToSyncReminder(ctx, left.Start, minutes) {
			// Suppression of the removal is itself suppressed: the
			// reminder is left alone.
			return
		}
		res.logChange("Reminder", itoa(minutes), "removed")
		left.Reminders = append(left.Reminders[:tgt], left.Reminders[tgt+1:]...)
	}
}

// okToSyncReminder checks the do-not-disturb window against the actual
// alarm time. The window wraps midnight when its start-of-day offset is
// later than its end-of-day offset.
func (d *Differ) okToSyncReminder(ctx context.Context, start time.Time, minutesBefore int) bool {
	if !d.st.ReminderDND {
		return true
	}
	alarm := start.Add(-time.Duration(minutesBefore) * time.Minute)
	dayStart := time.Date(alarm.Year(), alarm.Month(), alarm.Day(), 0, 0, 0, 0, alarm.Location())
	offset := alarm.Sub(dayStart)

	var inWindow bool
	if d.st.DNDStart > d.st.DNDEnd {
		inWindow = offset >= d.st.DNDStart || offset <= d.st.DNDEnd
	} else {
		inWindow = offset >= d.st.DNDStart && offset <= d.st.DNDEnd
	}
	if inWindow {
		d.l.Debugf(ctx, "differ: reminder @%s falls in DND range, not synced", alarm.Format("15:04"))
	}
	return !inWindow
}

// compareTime treats equal instants as unchanged regardless of zone or
// formatting; all-day items compare by calendar date.
func (d *Differ) compareTime(res *DiffResult, name string, newT, oldT time.Time, allDay bool) bool {
	if allDay {
		if newT.Format("2006-01-02") == oldT.Format("2006-01-02") {
			return false
		}
		res.logChange(name, oldT.Format("2006-01-02"), newT.Format("2006-01-02"))
		return true
	}
	if newT.Truncate(time.Second).Equal(oldT.Truncate(time.Second)) {
		return false
	}
	res.logChange(name, oldT.UTC().Format(time.RFC3339), newT.UTC().Format(time.RFC3339))
	return true
}

// compareAttribute is the generic diff primitive: unchanged values
// return false; changed values append an "old => new" line and bump the
// mutation counter.
func compareAttribute(res *DiffResult, name, newVal, oldVal string) bool {
	if newVal == oldVal {
		return false
	}
	res.logChange(name, oldVal, newVal)
	return true
}

func popupReminder(reminders []model.Reminder) *model.Reminder {
	for i := range reminders {
		if reminders[i].Method == model.ReminderPopup {
			return &reminders[i]
		}
	}
	return nil
}

func popupIndex(reminders []model.Reminder) int {
	for i := range reminders {
		if reminders[i].Method == model.ReminderPopup {
			return i
		}
	}
	return -1
}
