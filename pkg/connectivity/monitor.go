// Package connectivity decides when the syncer runs: on offline to online
// transitions, on a fixed interval, and on explicit request.
package connectivity

import (
	"sync"
)

// Monitor delivers connectivity changes.
type Monitor interface {
	// Subscribe registers fn for every change and returns a function that
	// removes it.
	Subscribe(fn func(online bool)) (unsubscribe func())
	// Online reports the last known state.
	Online() bool
}

// listeners is the subscription bookkeeping shared by the monitors.
type listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(bool)
}

func (l *listeners) add(fn func(bool)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(bool))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
		})
	}
}

func (l *listeners) notify(online bool) {
	l.mu.Lock()
	fns := make([]func(bool), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

// Manual is a Monitor driven by Set, for hosts whose platform already
// delivers connectivity events.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   listeners
}

// NewManual returns a monitor with the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

func (m *Manual) Subscribe(fn func(online bool)) func() {
	return m.subs.add(fn)
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the state and notifies subscribers when it changed.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()
	if changed {
		m.subs.notify(online)
	}
}
