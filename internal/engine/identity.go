package engine

import (
	"time"

	"calsync/internal/model"
)

// Metadata keys attached to a left item. Providers persist them in
// their own storage so linkage survives restarts.
const (
	MetaRightEventID    = "rightEventId"
	MetaRightCollection = "rightCalendarId"
	MetaEngineModified  = "engineModified"
	MetaForceResync     = "forceResync"

	// MetaLeftEventID is the reverse link stamped on a right item in
	// bidirectional mode.
	MetaLeftEventID = "leftEventId"
)

// Link is the cross-reference stored on a left item. It may be partial:
// RightCollectionID can be absent for items written by older tooling.
type Link struct {
	RightID           string
	RightCollectionID string
}

// Complete reports whether both link fields are present.
func (l Link) Complete() bool {
	return l.RightID != "" && l.RightCollectionID != ""
}

// IdentityStore reads and writes cross-reference metadata on left
// items. Missing metadata is a normal state, not an error: it marks an
// item created by a human or another tool. All writes are idempotent;
// setting an already-identical value must not dirty the item.
type IdentityStore interface {
	GetLink(item *model.Event) (Link, bool)
	SetLink(item *model.Event, rightID, rightCollectionID string)
	ClearLink(item *model.Event)
	HasAnyLink(item *model.Event) bool

	MarkForceResync(item *model.Event)
	ClearForceResync(item *model.Event)
	ForceResync(item *model.Event) bool

	EngineLastModified(item *model.Event) (time.Time, bool)
	SetEngineLastModified(item *model.Event, now time.Time)
}

// RightMeta reads engine metadata stamped on right items: the reverse
// link and the engine's own last-write instant used by the echo guard.
type RightMeta interface {
	HasLeftLink(item *model.Event) bool
	EngineLastModified(item *model.Event) (time.Time, bool)
}

// MetaStore is the IdentityStore over the event's provider-persisted
// metadata map. Mutations take effect in memory; they reach the
// provider when the item is next saved.
type MetaStore struct{}

func NewMetaStore() *MetaStore { return &MetaStore{} }

func (s *MetaStore) GetLink(item *model.Event) (Link, bool) {
	if item.Meta == nil {
		return Link{}, false
	}
	link := Link{
		RightID:           item.Meta[MetaRightEventID],
		RightCollectionID: item.Meta[MetaRightCollection],
	}
	return link, link.RightID != ""
}

func (s *MetaStore) SetLink(item *model.Event, rightID, rightCollectionID string) {
	s.set(item, MetaRightEventID, rightID)
	s.set(item, MetaRightCollection, rightCollectionID)
}

func (s *MetaStore) ClearLink(item *model.Event) {
	delete(item.Meta, MetaRightEventID)
	delete(item.Meta, MetaRightCollection)
}

func (s *MetaStore) HasAnyLink(item *model.Event) bool {
	return item.Meta[MetaRightEventID] != "" || item.Meta[MetaRightCollection] != ""
}

func (s *MetaStore) MarkForceResync(item *model.Event)  { s.set(item, MetaForceResync, "true") }
func (s *MetaStore) ClearForceResync(item *model.Event) { delete(item.Meta, MetaForceResync) }

func (s *MetaStore) ForceResync(item *model.Event) bool {
	return item.Meta[MetaForceResync] == "true"
}

func (s *MetaStore) EngineLastModified(item *model.Event) (time.Time, bool) {
	return parseStamp(item.Meta[MetaEngineModified])
}

func (s *MetaStore) SetEngineLastModified(item *model.Event, now time.Time) {
	s.set(item, MetaEngineModified, now.UTC().Format(time.RFC3339))
}

func (s *MetaStore) set(item *model.Event, key, value string) {
	if value == "" || item.Meta[key] == value {
		return
	}
	if item.Meta == nil {
		item.Meta = make(map[string]string)
	}
	item.Meta[key] = value
}

// RightMetaStore reads the reverse-link metadata on right items.
type RightMetaStore struct{}

func NewRightMetaStore() *RightMetaStore { return &RightMetaStore{} }

func (s *RightMetaStore) HasLeftLink(item *model.Event) bool {
	return item.Meta[MetaLeftEventID] != ""
}

func (s *RightMetaStore) EngineLastModified(item *model.Event) (time.Time, bool) {
	return parseStamp(item.Meta[MetaEngineModified])
}

// SetLeftLink stamps the reverse link used in bidirectional mode to
// recognize right items whose left twin was deliberately deleted.
func (s *RightMetaStore) SetLeftLink(item *model.Event, leftID string) {
	(&MetaStore{}).set(item, MetaLeftEventID, leftID)
}

func (s *RightMetaStore) SetEngineLastModified(item *model.Event, now time.Time) {
	(&MetaStore{}).set(item, MetaEngineModified, now.UTC().Format(time.RFC3339))
}

func parseStamp(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
