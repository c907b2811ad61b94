package pss

import (
	"fmt"

	"github.com/pthm/hxrender"
	"github.com/pthm/hxrender/lib/encoding"
)

type frozenEntry struct {
	Key          string   `msgpack:"k"`
	State        string   `msgpack:"s,omitempty"`
	HasState     bool     `msgpack:"hs,omitempty"`
	Never        bool     `msgpack:"n,omitempty"`
	Head         string   `msgpack:"h,omitempty"`
	HasHead      bool     `msgpack:"hh,omitempty"`
	Widget       bool     `msgpack:"w,omitempty"`
	Dependencies []string `msgpack:"deps,omitempty"`
	Dependents   []string `msgpack:"dependents,omitempty"`
}

type snapshot struct {
	Max     int           `msgpack:"max"`
	Entries []frozenEntry `msgpack:"entries"`
	Order   []string      `msgpack:"order"`
	Keep    []string      `msgpack:"keep,omitempty"`
}

// Freeze serializes the cache into a sealed string, for restoring it with
// Thaw after a restart. Preloaded pages are not included. The snapshot is
// signed, or encrypted when the store was created WithSealMode(Encrypted).
func (s *Store) Freeze(enc *encoding.Encoder) (string, error) {
	s.mu.Lock()
	snap := snapshot{Max: s.max, Order: append([]string(nil), s.order...)}
	for key, e := range s.entries {
		fe := frozenEntry{
			Key:          key,
			HasState:     e.hasState,
			Never:        e.never,
			Head:         e.head,
			HasHead:      e.hasHead,
			Widget:       e.widget,
			Dependencies: append([]string(nil), e.dependencies...),
			Dependents:   append([]string(nil), e.dependents...),
		}
		if e.hasState {
			fe.State = e.state.String()
		}
		snap.Entries = append(snap.Entries, fe)
	}
	for key := range s.keep {
		snap.Keep = append(snap.Keep, key)
	}
	s.mu.Unlock()

	return enc.Seal(snap, s.sealMode)
}

// Thaw replaces the cache contents with a snapshot made by Freeze under the
// same seal mode. On error the store is left unchanged.
func (s *Store) Thaw(enc *encoding.Encoder, frozen string) error {
	var snap snapshot
	if err := enc.Open(frozen, s.sealMode, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrThawCorrupt, err)
	}

	entries := make(map[string]*entry, len(snap.Entries))
	for _, fe := range snap.Entries {
		e := &entry{
			hasState:     fe.HasState,
			never:        fe.Never,
			head:         fe.Head,
			hasHead:      fe.HasHead,
			widget:       fe.Widget,
			dependencies: fe.Dependencies,
			dependents:   fe.Dependents,
		}
		if fe.HasState {
			st, err := hxrender.ParseState(fe.State)
			if err != nil {
				return fmt.Errorf("%w: entry %q: %v", ErrThawCorrupt, fe.Key, err)
			}
			e.state = st
		}
		entries[fe.Key] = e
	}
	for _, key := range snap.Order {
		if _, ok := entries[key]; !ok {
			return fmt.Errorf("%w: order lists unknown entry %q", ErrThawCorrupt, key)
		}
	}
	keep := make(map[string]struct{}, len(snap.Keep))
	for _, key := range snap.Keep {
		keep[key] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.order = snap.Order
	s.keep = keep
	for len(s.order) > s.max {
		s.evictPageIfNeeded()
	}
	return nil
}
