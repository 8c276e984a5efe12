package client

import (
	"sort"
	"sync"
)

// channelSet tracks subscribed channel names by exact string equality.
type channelSet struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func newChannelSet() *channelSet {
	return &channelSet{set: make(map[string]struct{})}
}

// add reports whether the channel was newly tracked.
func (s *channelSet) add(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[name]; ok {
		return false
	}
	s.set[name] = struct{}{}
	return true
}

// remove reports whether the channel was tracked.
func (s *channelSet) remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[name]; !ok {
		return false
	}
	delete(s.set, name)
	return true
}

func (s *channelSet) contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[name]
	return ok
}

// snapshot returns the tracked channels in sorted order so resubscribe
// traffic is stable across reconnects.
func (s *channelSet) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.set))
	for name := range s.set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
