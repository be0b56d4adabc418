package engine

import (
	"strings"
	"time"

	"calsync/internal/model"
)

// Signature derives the fallback matching key for an event: subject
// plus canonically formatted start and end. Providers round timestamps
// differently, so both instants are normalized to whole seconds in UTC
// before concatenation; without that, signatures silently fail to match
// across providers.
//
// An empty string means the event is unmatchable and must be skipped by
// callers, never matched against another empty signature.
func Signature(ev *model.Event) string {
	if ev == nil || ev.Start.IsZero() || ev.End.IsZero() {
		return ""
	}
	return strings.TrimSpace(ev.Subject + ";" + canonicalTime(ev.Start) + ";" + canonicalTime(ev.End))
}

// SignaturesMatch reports whether two signatures identify the same
// logical event. Empty signatures never match anything.
func SignaturesMatch(a, b string) bool {
	return a != "" && b != "" && a == b
}

func canonicalTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
