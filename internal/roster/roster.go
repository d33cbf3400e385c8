// Package roster provides an in-memory implementation of the roster
// contract used by the session core. Entries are the locally visible
// contacts materialized for remote users with an open DM channel.
package roster

import (
	"sync"

	"github.com/teaglass/rtmchat/internal/rtm"
)

// Entry is one visible contact.
type Entry struct {
	key string

	mu   sync.Mutex
	name string
}

// Name returns the entry's current display name.
func (e *Entry) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

func (e *Entry) setName(name string) {
	e.mu.Lock()
	e.name = name
	e.mu.Unlock()
}

// List is a mutex-guarded set of entries keyed by DM channel id. It
// satisfies the session's Roster contract and never calls back into the
// session.
type List struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty List.
func New() *List {
	return &List{entries: make(map[string]*Entry)}
}

// FindEntry returns the entry cached under key, or nil.
func (l *List) FindEntry(key string) rtm.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.entries[key]; ok {
		return e
	}
	return nil
}

// CreateEntry materializes a new entry under key.
func (l *List) CreateEntry(key, name string) rtm.Entry {
	e := &Entry{key: key, name: name}
	l.mu.Lock()
	l.entries[key] = e
	l.mu.Unlock()
	return e
}

// RemoveEntry removes a previously materialized entry.
func (l *List) RemoveEntry(e rtm.Entry) {
	entry, ok := e.(*Entry)
	if !ok {
		return
	}
	l.mu.Lock()
	delete(l.entries, entry.key)
	l.mu.Unlock()
}

// RenameEntry updates an entry's display name.
func (l *List) RenameEntry(e rtm.Entry, name string) {
	if entry, ok := e.(*Entry); ok {
		entry.setName(name)
	}
}

// Len returns the number of materialized entries.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
