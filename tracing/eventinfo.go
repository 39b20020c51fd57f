package tracing

import (
	"sync/atomic"
	"unsafe"
)

// EventInfo is compile-time-ish metadata attached to a span or log call.
// Identity is referential: two EventInfo values with identical fields
// are still distinct for caching purposes unless they are the same
// pointer, matching a C struct's pointer-identity semantics.
type EventInfo struct {
	Name       string
	Target     string
	Scope      string
	FileName   string
	LineNumber uint32
	Level      Level
}

// NewEventInfo allocates a fresh, uniquely-identified EventInfo.
func NewEventInfo(name, target, scope, fileName string, line uint32, level Level) *EventInfo {
	return &EventInfo{Name: name, Target: target, Scope: scope, FileName: fileName, LineNumber: line, Level: level}
}

const eventInfoCacheSize = 4096

// eventInfoCache is a hash-indexed array of atomic pointers used to
// decide, once per observed EventInfo, whether subscribers have already
// been told about it via a declare_event_info event.
type eventInfoCache struct {
	slots [eventInfoCacheSize]atomic.Pointer[EventInfo]
}

func newEventInfoCache() *eventInfoCache {
	return &eventInfoCache{}
}

func (c *eventInfoCache) hash(info *EventInfo) uint32 {
	p := uintptr(unsafe.Pointer(info))
	// Fibonacci hashing on the pointer value to spread cache-line-aligned
	// allocations across the table.
	h := uint64(p) * 11400714819323198485
	return uint32(h>>32) % eventInfoCacheSize
}

// cacheInfo reports whether info has not previously been stored at its
// hash slot, storing it if so. A hash collision with a different
// pointer simply overwrites the slot, causing that other EventInfo to
// be redeclared on its own next emission — never incorrect, only an
// extra declare_event_info event.
func (c *eventInfoCache) cacheInfo(info *EventInfo) (newlyCached bool) {
	slot := &c.slots[c.hash(info)]
	for {
		cur := slot.Load()
		if cur == info {
			return false
		}
		if slot.CompareAndSwap(cur, info) {
			return true
		}
	}
}
