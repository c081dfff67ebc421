package overlay

import (
	iface "ViewfinderOverlay/interface"
	"sync"
)

// Snapshot is one installed overlay set. Version increases by one per Replace.
type Snapshot struct {
	Version  uint64                   `json:"version"`
	Overlays []iface.OverlayPrimitive `json:"overlays"`
}

// Surface is an in-memory render surface. It keeps the overlay set that is
// currently shown and hands every replacement to its subscribers.
//
// Subscribers get a single-slot mailbox: when a subscriber has not taken the
// previous set yet, the new one overwrites it, so a slow reader only ever
// sees the latest set.
type Surface struct {
	mu       sync.RWMutex
	viewport iface.Size
	current  Snapshot
	subs     map[string]chan Snapshot
}

func NewSurface(viewport iface.Size) *Surface {
	return &Surface{
		viewport: viewport,
		current:  Snapshot{Overlays: []iface.OverlayPrimitive{}},
		subs:     make(map[string]chan Snapshot),
	}
}

func (s *Surface) Viewport() iface.Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

func (s *Surface) SetViewport(viewport iface.Size) {
	s.mu.Lock()
	s.viewport = viewport
	s.mu.Unlock()
}

// Replace installs a copy of overlays as the whole current set.
func (s *Surface) Replace(overlays []iface.OverlayPrimitive) {
	set := make([]iface.OverlayPrimitive, len(overlays))
	copy(set, overlays)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Snapshot{Version: s.current.Version + 1, Overlays: set}
	for _, ch := range s.subs {
		deliver(ch, s.current)
	}
}

func deliver(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	// Slot taken: drop the unread set and retry. Replace holds the write
	// lock, so nothing else can refill the slot in between.
	select {
	case <-ch:
	default:
	}
	ch <- snap
}

// Current returns the installed set. Callers must not modify the slice.
func (s *Surface) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Surface) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Version
}

// Subscribe registers id and returns its mailbox. Subscribing an id twice
// replaces the old mailbox, which is closed.
func (s *Surface) Subscribe(id string) <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.subs[id]; ok {
		close(old)
	}
	s.subs[id] = ch
	return ch
}

// Unsubscribe closes the mailbox of id.
func (s *Surface) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Surface) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
