// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import "sync"

// arena maps opaque device handles to native objects. Handles are
// assigned from a counter and never reused, so a stale handle misses
// instead of aliasing a newer object.
type arena[H ~uint64, T any] struct {
	mu    sync.RWMutex
	next  uint64
	items map[H]T
}

func newArena[H ~uint64, T any]() *arena[H, T] {
	return &arena[H, T]{items: make(map[H]T)}
}

func (a *arena[H, T]) put(v T) H {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := H(a.next)
	a.items[h] = v
	return h
}

func (a *arena[H, T]) get(h H) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.items[h]
	return v, ok
}

// must returns the object of h, or the zero value when h is null or
// unknown. Native calls treat the zero value as the null handle.
func (a *arena[H, T]) must(h H) T {
	v, _ := a.get(h)
	return v
}

func (a *arena[H, T]) take(h H) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.items[h]
	if ok {
		delete(a.items, h)
	}
	return v, ok
}

func (a *arena[H, T]) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.items)
}
