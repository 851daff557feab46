// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package pconfig

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/wavetermdev/pickle/pkg/panichandler"
	"github.com/wavetermdev/pickle/pkg/util/valutil"
	"github.com/wavetermdev/pickle/pkg/utilds"
)

// Watcher reloads the config file when it changes and hands the new config to subscribers.
// A file that fails to load keeps the previous config.
type Watcher struct {
	mutex       sync.Mutex
	opts        LoadOpts
	configPath  string
	watcher     *fsnotify.Watcher
	config      *Config
	subscribers utilds.IdList[func(*Config)]
}

func MakeWatcher(opts LoadOpts) (*Watcher, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath
	}
	config, err := Load(opts)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	configPath := filepath.Clean(valutil.ExpandHomeDir(opts.ConfigPath))
	// watch the directory: editors replace files, which drops a watch on the file itself
	dir := filepath.Dir(configPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return &Watcher{
		opts:       opts,
		configPath: configPath,
		watcher:    fsw,
		config:     config,
	}, nil
}

func (w *Watcher) Start() {
	w.mutex.Lock()
	fsw := w.watcher
	w.mutex.Unlock()
	if fsw == nil {
		return
	}
	log.Printf("[config] watching %s\n", w.configPath)
	go func() {
		defer func() {
			panichandler.PanicHandler("config watcher", recover())
		}()
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Printf("[config] watcher error: %v\n", err)
			}
		}
	}()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if filepath.Clean(event.Name) != w.configPath {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.Reload()
}

// Reload reads the config file now and notifies subscribers on success.
func (w *Watcher) Reload() error {
	config, err := Load(w.opts)
	if err != nil {
		log.Printf("[config] reload failed, keeping previous config: %v\n", err)
		return err
	}
	w.mutex.Lock()
	w.config = config
	w.mutex.Unlock()
	for _, fn := range w.subscribers.GetList() {
		panichandler.Call("config subscriber", func() {
			fn(config)
		})
	}
	return nil
}

func (w *Watcher) Config() *Config {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.config
}

// Subscribe registers fn for future reloads.  Returns an unsubscribe func.
func (w *Watcher) Subscribe(fn func(*Config)) func() {
	id := w.subscribers.Register(fn)
	return func() {
		w.subscribers.Unregister(id)
	}
}

func (w *Watcher) Close() {
	w.mutex.Lock()
	fsw := w.watcher
	w.watcher = nil
	w.mutex.Unlock()
	if fsw == nil {
		return
	}
	fsw.Close()
	log.Printf("[config] file watcher closed\n")
}
