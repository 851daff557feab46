// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package timetravel is a linear undo/redo history.  Pushing while the cursor is not at the
// end discards the states after the cursor.
package timetravel

import "sync"

type History[T any] struct {
	lock     sync.Mutex
	states   []T
	cursor   int
	setState func(state T)
	maxLen   int
}

// MakeHistory returns an empty history.  setState is called (outside the lock) whenever
// navigation lands on a state.  maxLen <= 0 means unbounded; otherwise the oldest states are
// dropped once the history grows past it.
func MakeHistory[T any](setState func(state T), maxLen int) *History[T] {
	return &History[T]{cursor: -1, setState: setState, maxLen: maxLen}
}

func (h *History[T]) Push(state T) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.cursor != len(h.states)-1 {
		clear(h.states[h.cursor+1:])
		h.states = h.states[:h.cursor+1]
	}
	h.states = append(h.states, state)
	if h.maxLen > 0 && len(h.states) > h.maxLen {
		drop := len(h.states) - h.maxLen
		h.states = append([]T(nil), h.states[drop:]...)
	}
	h.cursor = len(h.states) - 1
}

// Goto moves the cursor to idx and installs that state.  Out of range indexes are ignored;
// the return value reports whether the cursor moved.
func (h *History[T]) Goto(idx int) bool {
	h.lock.Lock()
	if idx < 0 || idx >= len(h.states) {
		h.lock.Unlock()
		return false
	}
	h.cursor = idx
	state := h.states[idx]
	h.lock.Unlock()
	if h.setState != nil {
		h.setState(state)
	}
	return true
}

func (h *History[T]) Start() bool {
	return h.Goto(0)
}

func (h *History[T]) End() bool {
	return h.Goto(h.Len() - 1)
}

func (h *History[T]) Next() bool {
	return h.Goto(h.Cursor() + 1)
}

func (h *History[T]) Prev() bool {
	return h.Goto(h.Cursor() - 1)
}

// Seek goes to the last state matching pred.
func (h *History[T]) Seek(pred func(state T) bool) bool {
	h.lock.Lock()
	found := -1
	for idx, state := range h.states {
		if pred(state) {
			found = idx
		}
	}
	h.lock.Unlock()
	if found < 0 {
		return false
	}
	return h.Goto(found)
}

func (h *History[T]) Cursor() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.cursor
}

func (h *History[T]) Len() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.states)
}

// Current returns the state at the cursor (false when empty).
func (h *History[T]) Current() (T, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.cursor < 0 {
		var zero T
		return zero, false
	}
	return h.states[h.cursor], true
}

// States returns a copy of every state, oldest first.
func (h *History[T]) States() []T {
	h.lock.Lock()
	defer h.lock.Unlock()
	return append([]T(nil), h.states...)
}

func (h *History[T]) Reset() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.states = nil
	h.cursor = -1
}
