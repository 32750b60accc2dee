package client

import (
	"sort"
	"sync"
	"time"
)

// TypingSet holds the usernames currently typing. Each entry expires on its
// own timer; refreshing an entry replaces its timer.
type TypingSet struct {
	mu        sync.Mutex
	entries   map[string]*typingEntry
	timeout   time.Duration
	afterFunc AfterFunc
	onChange  func([]string)
}

type typingEntry struct {
	timer Timer
}

func NewTypingSet(timeout time.Duration, afterFunc AfterFunc, onChange func([]string)) *TypingSet {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &TypingSet{
		entries:   make(map[string]*typingEntry),
		timeout:   timeout,
		afterFunc: afterFunc,
		onChange:  onChange,
	}
}

// Add marks username as typing, restarting its expiry.
func (s *TypingSet) Add(username string) {
	s.mu.Lock()
	if prev, ok := s.entries[username]; ok {
		prev.timer.Stop()
	}
	entry := &typingEntry{}
	s.entries[username] = entry
	entry.timer = s.afterFunc(s.timeout, func() { s.expire(username, entry) })
	users := s.usersLocked()
	s.mu.Unlock()

	s.changed(users)
}

// Remove clears username.
func (s *TypingSet) Remove(username string) {
	s.mu.Lock()
	entry, ok := s.entries[username]
	if !ok {
		s.mu.Unlock()
		return
	}
	entry.timer.Stop()
	delete(s.entries, username)
	users := s.usersLocked()
	s.mu.Unlock()

	s.changed(users)
}

// Clear drops every entry and stops their timers.
func (s *TypingSet) Clear() {
	s.mu.Lock()
	if len(s.entries) == 0 {
		s.mu.Unlock()
		return
	}
	for name, entry := range s.entries {
		entry.timer.Stop()
		delete(s.entries, name)
	}
	s.mu.Unlock()

	s.changed([]string{})
}

// Users returns the typing usernames sorted.
func (s *TypingSet) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usersLocked()
}

// expire removes username only if entry is still the live one; a timer that
// lost a race with a refresh is ignored.
func (s *TypingSet) expire(username string, entry *typingEntry) {
	s.mu.Lock()
	if s.entries[username] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.entries, username)
	users := s.usersLocked()
	s.mu.Unlock()

	s.changed(users)
}

func (s *TypingSet) usersLocked() []string {
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *TypingSet) changed(users []string) {
	if s.onChange != nil {
		s.onChange(users)
	}
}
