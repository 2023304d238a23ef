// Package presence tracks which identities hold a live connection in this process.
package presence

import (
	"sync"
	"time"
)

// Entry is the single live connection retained for an identity.
type Entry struct {
	ConnID     string
	IsProvider bool
	Since      time.Time
}

// Directory maps identity to its current connection. A newer connection
// replaces the older one; only the owner of a slot can remove it.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]Entry)}
}

// Register stores connID for identity and returns the connection it replaced, if any.
func (d *Directory) Register(identity, connID string, isProvider bool) (replaced string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.entries[identity]; ok && prev.ConnID != connID {
		replaced = prev.ConnID
	}
	d.entries[identity] = Entry{ConnID: connID, IsProvider: isProvider, Since: time.Now()}
	return replaced
}

// Unregister removes identity only while the slot still belongs to connID.
// It reports whether an entry was removed, so redundant disconnects are no-ops.
func (d *Directory) Unregister(identity, connID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, ok := d.entries[identity]
	if !ok || cur.ConnID != connID {
		return false
	}
	delete(d.entries, identity)
	return true
}

func (d *Directory) IsOnline(identity string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[identity]
	return ok
}

func (d *Directory) Lookup(identity string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[identity]
	return e, ok
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Identities returns a snapshot of everyone online.
func (d *Directory) Identities() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.entries))
	for id := range d.entries {
		out = append(out, id)
	}
	return out
}
