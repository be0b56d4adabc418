package engine

import (
	"context"

	"calsync/internal/model"
	pkgLog "calsync/pkg/log"
)

// Matcher pairs left items with right items for one sync pass.
type Matcher struct {
	st    Settings
	store IdentityStore
	rmeta RightMeta
	l     pkgLog.Logger
}

func NewMatcher(st Settings, store IdentityStore, rmeta RightMeta, l pkgLog.Logger) *Matcher {
	return &Matcher{
		st:    st,
		store: store,
		rmeta: rmeta,
		l:     l,
	}
}

// Match buckets the full left and right item sets into paired, leftOnly
// and rightOnly groups. Linked items pair by id; linkless left items
// may have a link reclaimed from a signature match (a metadata repair
// only — the pair is not compared this pass). Both input slices are
// consumed: items are removed as they are claimed so nothing is
// compared twice.
func (m *Matcher) Match(ctx context.Context, left, right []*model.Event) (*MatchSet, error) {
	m.l.Debugf(ctx, "matcher: comparing %d left items against %d right items", len(left), len(right))
	ms := &MatchSet{}

	// Iterate from the end so in-place removal does not perturb the
	// indices still to be visited.
	for o := len(left) - 1; o >= 0; o-- {
		li := left[o]
		if !readable(li) {
			m.l.Warnf(ctx, "matcher: skipping unreadable left item at index %d", o)
			left = removeAt(left, o)
			continue
		}

		link, linked := m.store.GetLink(li)
		if linked {
			for g := len(right) - 1; g >= 0; g-- {
				ri := right[g]
				if !readable(ri) {
					continue
				}
				if link.RightID != ri.ID {
					continue
				}
				if link.RightCollectionID == "" {
					// Backfill the missing half of the link and flag
					// the item for a metadata-only resave.
					m.l.Infof(ctx, "matcher: enhancing metadata of %s", li.Summary())
					m.store.SetLink(li, ri.ID, m.st.ActiveRightCollectionID)
					m.store.MarkForceResync(li)
					ms.MetadataEnhanced++
				}
				if m.itemIDsMatch(ctx, li, ri) {
					ms.Paired = append(ms.Paired, MatchedPair{Left: li, Right: ri})
					left = removeAt(left, o)
					right = removeAt(right, g)
					break
				}
			}
			continue
		}

		if m.st.MergeItems {
			// Independent content: never reclaimed, never deleted.
			left = removeAt(left, o)
			continue
		}

		// Orphan reclamation: items created outside the engine (or
		// migrated from another tool) carry no link. A signature match
		// backfills one so the next pass pairs them by id.
		sigL := Signature(li)
		for g := len(right) - 1; g >= 0; g-- {
			ri := right[g]
			sigR := Signature(ri)
			if sigR == "" {
				continue
			}
			if SignaturesMatch(sigL, sigR) {
				m.store.SetLink(li, ri.ID, ri.CollectionID)
				ms.Reclaimed = append(ms.Reclaimed, li)
				m.l.Infof(ctx, "matcher: reclaimed %s", li.Summary())
				left = removeAt(left, o)
				right = removeAt(right, g)
				break
			}
		}
	}
	if ms.MetadataEnhanced > 0 {
		m.l.Infof(ctx, "matcher: %d item's metadata enhanced", ms.MetadataEnhanced)
	}

	ms.LeftOnly = left
	ms.RightOnly = right
	m.applyDeletionPolicies(ctx, ms)
	return ms, nil
}

// applyDeletionPolicies trims LeftOnly and RightOnly per the configured
// suppression rules.
func (m *Matcher) applyDeletionPolicies(ctx context.Context, ms *MatchSet) {
	if m.st.DisableDelete && len(ms.LeftOnly) > 0 {
		m.l.Warnf(ctx, "matcher: %d left items would have been deleted, but deletions are disabled", len(ms.LeftOnly))
		ms.SuppressedDeletes = len(ms.LeftOnly)
		ms.LeftOnly = nil
	}

	if m.st.Direction != model.DirectionBidirectional {
		return
	}

	// Don't recreate right items that were deliberately deleted on the
	// left: a reverse link proves they were propagated before.
	for g := len(ms.RightOnly) - 1; g >= 0; g-- {
		if m.rmeta.HasLeftLink(ms.RightOnly[g]) {
			ms.RightOnly = removeAt(ms.RightOnly, g)
		}
	}

	// Don't delete left items that are not on the right yet: anything
	// linkless, or modified since the last successful pass, may simply
	// not have propagated.
	for o := len(ms.LeftOnly) - 1; o >= 0; o-- {
		li := ms.LeftOnly[o]
		if !m.store.HasAnyLink(li) || li.Updated.After(m.st.LastSyncAt) {
			ms.LeftOnly = removeAt(ms.LeftOnly, o)
		}
	}
}

// itemIDsMatch confirms a pairing: the stored link must agree with the
// right item's id and the collection in use. A missing collection id is
// non-fatal ambiguity: warn and accept the id-only match.
func (m *Matcher) itemIDsMatch(ctx context.Context, li, ri *model.Event) bool {
	link, ok := m.store.GetLink(li)
	if !ok || link.RightID != ri.ID {
		m.l.Warnf(ctx, "matcher: could not find right event id against left item %s", li.Summary())
		return false
	}
	if link.RightCollectionID == m.st.ActiveRightCollectionID {
		return true
	}
	if link.RightCollectionID == "" {
		m.l.Warnf(ctx, "matcher: could not find right collection id against left item %s", li.Summary())
		return true
	}
	return false
}

func readable(ev *model.Event) bool {
	return ev != nil && ev.ID != "" && !ev.Start.IsZero() && !ev.End.IsZero()
}

func removeAt(items []*model.Event, i int) []*model.Event {
	return append(items[:i], items[i+1:]...)
}
