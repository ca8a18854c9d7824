package pipeline

import "sync"

// DocLocks serializes runs that share a document id. Entries are dropped once
// no run holds or waits for them.
type DocLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func NewDocLocks() *DocLocks {
	return &DocLocks{locks: make(map[string]*docLock)}
}

// Lock blocks until id is free and returns the matching unlock func.
func (d *DocLocks) Lock(id string) func() {
	d.mu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &docLock{}
		d.locks[id] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, id)
		}
		d.mu.Unlock()
	}
}

func (d *DocLocks) held() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}
