package app

import "quiz-engine/internal/domain"

type entityKey struct {
	kind domain.EntityKind
	id   string
}

// VersionFilter keeps per-entity delivery ordered for one subscriber: an event
// whose version is not newer than the last one delivered for the same entity is
// dropped. This also absorbs duplicate at-least-once deliveries.
// It is not safe for concurrent use.
type VersionFilter struct {
	seen map[entityKey]int64
}

func NewVersionFilter() *VersionFilter {
	return &VersionFilter{seen: make(map[entityKey]int64)}
}

// Accept reports whether ev should be delivered and records its version.
func (f *VersionFilter) Accept(ev domain.Event) bool {
	key := entityKey{kind: ev.Entity, id: ev.EntityID}
	if last, ok := f.seen[key]; ok && ev.Version <= last {
		return false
	}
	f.seen[key] = ev.Version
	return true
}
