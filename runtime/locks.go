package runtime

import (
	"eventmaster/domain"
	"sync"
)

// Locks hands out one mutex per namespace so that every read-modify-write
// on a namespace is serialized inside the process.
type Locks struct {
	mu    sync.Mutex
	locks map[domain.Namespace]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{locks: make(map[domain.Namespace]*sync.Mutex)}
}

// Lock blocks until ns is free and returns the matching unlock function.
// Mutexes are kept for the life of Locks since namespaces are few.
func (l *Locks) Lock(ns domain.Namespace) func() {
	l.mu.Lock()
	m, ok := l.locks[ns]
	if !ok {
		m = &sync.Mutex{}
		l.locks[ns] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

