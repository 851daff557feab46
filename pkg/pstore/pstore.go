// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pstore persists serialized application state under a string key.
//
// A Storage pairs a Backend (memory, sqlite, bolt) with serialize/deserialize callbacks.  Next
// to the data it keeps an autosave flag (stored under "<key>-autosave") which decides whether
// ModeAuto loads and saves actually happen.
package pstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/wavetermdev/pickle/pkg/metrics"
	"github.com/wavetermdev/pickle/pkg/utilds"
)

const AutosaveSuffix = "-autosave"

const (
	ErrCode_NotFound    = "pstore:notfound"
	ErrCode_Backend     = "pstore:backend"
	ErrCode_Serialize   = "pstore:serialize"
	ErrCode_Deserialize = "pstore:deserialize"
	ErrCode_Closed      = "pstore:closed"
)

var ErrNotFound = utilds.MakeCodedError(ErrCode_NotFound, errors.New("key not found"))
var ErrClosed = utilds.MakeCodedError(ErrCode_Closed, errors.New("backend closed"))

// Mode is the tri-state load/save flag.  ModeAuto follows the persisted autosave flag,
// ModeForce always runs, ModeSkip never does.
type Mode int

const (
	ModeAuto Mode = iota
	ModeForce
	ModeSkip
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeForce:
		return "force"
	case ModeSkip:
		return "skip"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Backend is a flat byte store.  Get returns ErrNotFound (possibly wrapped) for missing keys.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type SerializeFn func() ([]byte, error)
type DeserializeFn func(data []byte) error

type Storage struct {
	lock        sync.Mutex
	backend     Backend
	key         string
	serialize   SerializeFn
	deserialize DeserializeFn
}

func MakeStorage(backend Backend, key string, serialize SerializeFn, deserialize DeserializeFn) *Storage {
	if backend == nil {
		panic("pstore.MakeStorage: nil backend")
	}
	return &Storage{
		backend:     backend,
		key:         key,
		serialize:   serialize,
		deserialize: deserialize,
	}
}

func (s *Storage) Key() string {
	return s.key
}

func (s *Storage) Backend() Backend {
	return s.backend
}

func (s *Storage) shouldRun(ctx context.Context, mode Mode) (bool, error) {
	switch mode {
	case ModeForce:
		return true, nil
	case ModeSkip:
		return false, nil
	}
	return s.autosaveLocked(ctx)
}

// Load reads the stored data and hands it to the deserializer.  It reports whether anything was
// loaded; a missing key is not an error.
func (s *Storage) Load(ctx context.Context, mode Mode) (bool, error) {
	s.lock.Lock()
	run, err := s.shouldRun(ctx, mode)
	if err != nil || !run {
		s.lock.Unlock()
		return false, err
	}
	data, err := s.backend.Get(ctx, s.key)
	s.lock.Unlock()
	metrics.IncStorageOp(s.backend.Name(), "load")
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, utilds.MakeCodedError(ErrCode_Backend, fmt.Errorf("loading %q: %w", s.key, err))
	}
	if s.deserialize == nil {
		return false, nil
	}
	// deserialize may install state that triggers another Save, so it runs unlocked
	if err := s.deserialize(data); err != nil {
		return false, utilds.MakeCodedError(ErrCode_Deserialize, fmt.Errorf("loading %q: %w", s.key, err))
	}
	return true, nil
}

// Save writes data (or, when data is nil, the serializer's output).  It reports whether
// anything was written.
func (s *Storage) Save(ctx context.Context, mode Mode, data []byte) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	run, err := s.shouldRun(ctx, mode)
	if err != nil || !run {
		return false, err
	}
	if data == nil {
		if s.serialize == nil {
			return false, nil
		}
		data, err = s.serialize()
		if err != nil {
			return false, utilds.MakeCodedError(ErrCode_Serialize, fmt.Errorf("saving %q: %w", s.key, err))
		}
	}
	metrics.IncStorageOp(s.backend.Name(), "save")
	if err := s.backend.Put(ctx, s.key, data); err != nil {
		return false, utilds.MakeCodedError(ErrCode_Backend, fmt.Errorf("saving %q: %w", s.key, err))
	}
	return true, nil
}

// Clear removes the stored data.  The autosave flag is kept.
func (s *Storage) Clear(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	metrics.IncStorageOp(s.backend.Name(), "clear")
	err := s.backend.Delete(ctx, s.key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return utilds.MakeCodedError(ErrCode_Backend, fmt.Errorf("clearing %q: %w", s.key, err))
	}
	return nil
}

func (s *Storage) Autosave(ctx context.Context) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.autosaveLocked(ctx)
}

func (s *Storage) autosaveLocked(ctx context.Context) (bool, error) {
	val, err := s.backend.Get(ctx, s.key+AutosaveSuffix)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, utilds.MakeCodedError(ErrCode_Backend, fmt.Errorf("reading autosave flag for %q: %w", s.key, err))
	}
	return string(val) == "true", nil
}

// SetAutosave persists the flag.  Turning autosave on saves the current state right away.
func (s *Storage) SetAutosave(ctx context.Context, on bool) error {
	s.lock.Lock()
	var err error
	if on {
		err = s.backend.Put(ctx, s.key+AutosaveSuffix, []byte("true"))
	} else {
		err = s.backend.Delete(ctx, s.key+AutosaveSuffix)
		if errors.Is(err, ErrNotFound) {
			err = nil
		}
	}
	s.lock.Unlock()
	if err != nil {
		return utilds.MakeCodedError(ErrCode_Backend, fmt.Errorf("writing autosave flag for %q: %w", s.key, err))
	}
	log.Printf("[pstore] %s autosave %q: %v\n", s.backend.Name(), s.key, on)
	if on {
		_, err = s.Save(ctx, ModeForce, nil)
	}
	return err
}
