package engine

import (
	"context"
	"strings"

	"calsync/internal/model"
)

// reconcileAttendees aligns the left recipient list with the right
// attendee set. The organizer is never touched, and attendance response
// status is read-only on the left provider so it is never compared or
// written.
func (d *Differ) reconcileAttendees(ctx context.Context, left, right *model.Event, res *DiffResult) {
	if !d.st.SyncAttendees {
		return
	}
	// Some providers cap attendee counts: better to leave an
	// overflowing list untouched than attempt a full teardown.
	if d.st.Direction == model.DirectionBidirectional &&
		len(right.Attendees) == 0 && len(left.Attendees) > d.st.MaxAttendees {
		d.l.Infof(ctx, "differ: attendees not being synced - there are too many (%d)", len(left.Attendees))
		return
	}

	// Any right attendee still remaining after scanning the existing
	// recipients must be added.
	remaining := append([]model.Attendee(nil), right.Attendees...)

	kept := make([]model.Attendee, 0, len(left.Attendees))
	for _, rec := range left.Attendees {
		if d.isOrganizer(left, rec) {
			kept = append(kept, rec)
			continue
		}
		addr := canonicalAddress(rec.Email)

		found := -1
		for i := range remaining {
			if canonicalAddress(remaining[i].Email) == addr {
				found = i
				break
			}
		}
		if found < 0 {
			res.note("Recipient removed: " + displayName(rec))
			continue
		}
		att := remaining[found]
		if compareAttribute(res, "Recipient "+displayName(rec)+" - Optional Check",
			boolString(att.Optional), boolString(rec.Optional)) {
			rec.Optional = att.Optional
		}
		remaining = append(remaining[:found], remaining[found+1:]...)
		kept = append(kept, rec)
	}

	for _, att := range remaining {
		if d.isOrganizer(left, att) {
			// The right-side attendee is the owner on the left, so it
			// cannot also be added as a recipient.
			continue
		}
		res.note("Recipient added: " + displayName(att))
		att.ResponseStatus = ""
		kept = append(kept, att)
	}
	left.Attendees = kept
}

func (d *Differ) isOrganizer(ev *model.Event, att model.Attendee) bool {
	if ev.Organizer == "" {
		return false
	}
	return canonicalAddress(att.Email) == canonicalAddress(ev.Organizer) ||
		strings.EqualFold(att.DisplayName, ev.Organizer)
}

// canonicalAddress resolves an address to its comparable form.
func canonicalAddress(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func displayName(att model.Attendee) string {
	if att.DisplayName != "" {
		return att.DisplayName
	}
	return att.Email
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
