// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package utilds

import (
	"sync"

	"github.com/google/uuid"
)

type idListEntry[T any] struct {
	id  string
	val T
}

// IdList is an ordered, concurrency-safe list of registrations (listeners, clients) that can
// be removed by the id handed out at registration.
type IdList[T any] struct {
	lock    sync.Mutex
	entries []idListEntry[T]
}

func (il *IdList[T]) Register(val T) string {
	id := uuid.New().String()
	il.RegisterWithId(id, val)
	return id
}

// RegisterWithId replaces any existing entry with the same id (the new entry goes last).
func (il *IdList[T]) RegisterWithId(id string, val T) {
	il.lock.Lock()
	defer il.lock.Unlock()
	il.unregister_nolock(id)
	il.entries = append(il.entries, idListEntry[T]{id: id, val: val})
}

func (il *IdList[T]) Unregister(id string) bool {
	il.lock.Lock()
	defer il.lock.Unlock()
	return il.unregister_nolock(id)
}

func (il *IdList[T]) unregister_nolock(id string) bool {
	for i, entry := range il.entries {
		if entry.id == id {
			il.entries = append(il.entries[:i:i], il.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (il *IdList[T]) Len() int {
	il.lock.Lock()
	defer il.lock.Unlock()
	return len(il.entries)
}

// GetList returns a snapshot, safe to range over while other goroutines register.
func (il *IdList[T]) GetList() []T {
	il.lock.Lock()
	defer il.lock.Unlock()
	result := make([]T, len(il.entries))
	for i, entry := range il.entries {
		result[i] = entry.val
	}
	return result
}
