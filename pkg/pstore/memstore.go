// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package pstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

const BackendName_Memory = "memory"

// MemBackend keeps values in a sorted map, so Keys comes back in key order like the sqlite
// backend's.
type MemBackend struct {
	lock   sync.Mutex
	data   *treemap.Map
	closed bool
}

func MakeMemBackend() *MemBackend {
	return &MemBackend{data: treemap.NewWithStringComparator()}
}

func (m *MemBackend) Name() string {
	return BackendName_Memory
}

func (m *MemBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	found, ok := m.data.Get(key)
	if !ok {
		return nil, fmt.Errorf("memory %q: %w", key, ErrNotFound)
	}
	val := found.([]byte)
	rtn := make([]byte, len(val))
	copy(rtn, val)
	return rtn, nil
}

func (m *MemBackend) Put(ctx context.Context, key string, val []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return ErrClosed
	}
	stored := make([]byte, len(val))
	copy(stored, val)
	m.data.Put(key, stored)
	return nil
}

func (m *MemBackend) Delete(ctx context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data.Remove(key)
	return nil
}

func (m *MemBackend) Keys() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	keys := make([]string, 0, m.data.Size())
	for _, key := range m.data.Keys() {
		keys = append(keys, key.(string))
	}
	return keys
}

func (m *MemBackend) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	return nil
}
