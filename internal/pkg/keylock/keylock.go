// Package keylock provides per-key mutual exclusion. The pipeline uses it to
// guarantee a single writer per process element during rescoring.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *KeyLock {
	return &KeyLock{locks: map[string]*entry{}}
}

func (k *KeyLock) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()
	e.mu.Lock()
}

func (k *KeyLock) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("keylock: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
	e.mu.Unlock()
}
