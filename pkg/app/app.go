// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app ties a component tree to a document.
//
// Every App owns one loop goroutine.  Component updates, renders and async-removal completions
// all run there, so component state and the document are never touched concurrently.  Updates
// schedule a render (Refresh) which is coalesced: any number of updates before the render
// fires produce a single View() and a single patch.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/outrigdev/goid"
	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/engine"
	"github.com/wavetermdev/pickle/pkg/metrics"
	"github.com/wavetermdev/pickle/pkg/panichandler"
	"github.com/wavetermdev/pickle/pkg/pstore"
	"github.com/wavetermdev/pickle/pkg/serial"
	"github.com/wavetermdev/pickle/pkg/timetravel"
	"github.com/wavetermdev/pickle/pkg/utilds"
	"github.com/wavetermdev/pickle/pkg/vdom"
)

const DefaultHistoryLimit = 500
const StorageTimeout = 2 * time.Second

var ErrAppClosed = errors.New("app closed")

type AppOpts struct {
	// RenderDelay postpones renders; zero renders on the next loop task.
	RenderDelay time.Duration
	TimeTravel  bool
	// HistoryLimit caps the time travel history (DefaultHistoryLimit when zero).
	HistoryLimit int
	// Registry serializes the tree for time travel and storage (serial.DefaultRegistry when nil).
	Registry *serial.Registry
	// StorageBackend enables persistence under StorageKey.  Stored state is loaded on start
	// when autosave is on.
	StorageBackend pstore.Backend
	StorageKey     string
	// Hydrate reuses markup already in the container instead of mounting a fresh tree.
	Hydrate bool
	OnError func(err error)
}

type App struct {
	AppId string

	opts       AppOpts
	doc        *dom.Document
	container  *dom.Node
	reconciler *engine.Reconciler
	registry   *serial.Registry
	history    *timetravel.History[[]byte]
	storage    *pstore.Storage
	loop       *utilds.WorkQueue[func()]
	loopGoId   atomic.Uint64
	ctx        context.Context
	cancelFn   context.CancelFunc
	closeOnce  sync.Once

	// loop-owned
	root          Component
	rootNode      *dom.Node
	rootElem      *vdom.VDomElem
	renderPending bool

	activeUpdates   atomic.Int32
	renderCount     atomic.Int64
	renderListeners utilds.IdList[func()]

	schedLock      sync.Mutex
	schedCond      *sync.Cond
	pendingRenders int
}

func MakeApp(root Component, container *dom.Node, opts *AppOpts) (*App, error) {
	if isNilComponent(root) {
		return nil, fmt.Errorf("app: nil root component")
	}
	if container == nil {
		return nil, fmt.Errorf("app: nil container")
	}
	if opts == nil {
		opts = &AppOpts{}
	}
	a := &App{
		AppId:     uuid.New().String(),
		opts:      *opts,
		doc:       container.Document(),
		container: container,
		registry:  opts.Registry,
		root:      root,
	}
	if a.registry == nil {
		a.registry = serial.DefaultRegistry
	}
	a.schedCond = sync.NewCond(&a.schedLock)
	a.ctx, a.cancelFn = context.WithCancel(context.Background())
	a.loop = utilds.NewWorkQueue(a.runTask)
	a.reconciler = engine.MakeReconciler(a.doc, &engine.ReconcilerOpts{
		Dispatch: func(fn func()) {
			if !a.Dispatch(fn) {
				// loop is gone, nothing else can touch the document any more
				fn()
			}
		},
	})
	if opts.TimeTravel {
		limit := opts.HistoryLimit
		if limit <= 0 {
			limit = DefaultHistoryLimit
		}
		a.history = timetravel.MakeHistory(a.installState, limit)
	}
	if opts.StorageBackend != nil {
		key := opts.StorageKey
		if key == "" {
			key = "app"
		}
		a.storage = pstore.MakeStorage(opts.StorageBackend, key, a.serializeRoot, func(data []byte) error {
			return a.deserializeRoot(data)
		})
	}
	err := a.Sync(func() {
		Attach(a, root, nil, false)
		if a.storage != nil {
			ctx, cancelFn := context.WithTimeout(a.ctx, StorageTimeout)
			defer cancelFn()
			if _, err := a.storage.Load(ctx, pstore.ModeAuto); err != nil {
				a.reportError(fmt.Errorf("loading stored state: %w", err))
			}
		}
		a.Snapshot()
		a.Refresh()
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[app] %s started\n", a.AppId)
	return a, nil
}

func (a *App) runTask(fn func()) {
	a.loopGoId.Store(goid.Get())
	if err := panichandler.Call("app task", fn); err != nil {
		a.reportError(err)
	}
}

func (a *App) onLoop() bool {
	return goid.Get() == a.loopGoId.Load()
}

func (a *App) checkLoop(op string) {
	if !a.onLoop() {
		log.Printf("[app] warning: %s called outside the app loop (use Dispatch or Sync)\n", op)
	}
}

func (a *App) reportError(err error) {
	log.Printf("[app] %s error: %v\n", a.AppId, err)
	if a.opts.OnError != nil {
		a.opts.OnError(err)
	}
}

// Dispatch queues fn on the app loop.  Returns false once the app is closed.
func (a *App) Dispatch(fn func()) bool {
	return a.loop.Enqueue(fn)
}

// Sync runs fn on the app loop and waits for it.  Called from the loop it runs fn inline.
func (a *App) Sync(fn func()) error {
	if a.onLoop() {
		return panichandler.Call("app sync", fn)
	}
	doneCh := make(chan error, 1)
	ok := a.loop.Enqueue(func() {
		doneCh <- panichandler.Call("app sync", fn)
	})
	if !ok {
		return ErrAppClosed
	}
	return <-doneCh
}

// Flush waits until all queued work, including a scheduled render, has run.  Must not be
// called from the loop.
func (a *App) Flush() {
	if a.onLoop() {
		log.Printf("[app] Flush called on the app loop, ignoring\n")
		return
	}
	for {
		a.loop.Flush()
		a.schedLock.Lock()
		for a.pendingRenders > 0 {
			a.schedCond.Wait()
		}
		a.schedLock.Unlock()
		if a.loop.Len() == 0 {
			return
		}
	}
}

func (a *App) addPendingRender(delta int) {
	a.schedLock.Lock()
	defer a.schedLock.Unlock()
	a.pendingRenders += delta
	if a.pendingRenders <= 0 {
		a.pendingRenders = 0
		a.schedCond.Broadcast()
	}
}

// Refresh schedules a render.  Calls made while one is already scheduled are absorbed.
func (a *App) Refresh() {
	if !a.onLoop() {
		a.Dispatch(a.Refresh)
		return
	}
	if a.renderPending {
		return
	}
	a.renderPending = true
	a.addPendingRender(1)
	if a.opts.RenderDelay > 0 {
		time.AfterFunc(a.opts.RenderDelay, func() {
			if !a.Dispatch(a.render) {
				a.addPendingRender(-1)
			}
		})
		return
	}
	if !a.Dispatch(a.render) {
		a.addPendingRender(-1)
	}
}

func (a *App) render() {
	defer a.addPendingRender(-1)
	a.renderPending = false
	root := a.root
	next, err := panichandler.CallRtn("View", root.View)
	if err == nil && next == nil {
		err = fmt.Errorf("%T.View returned nil", root)
	}
	if err != nil {
		metrics.IncRender(metrics.RenderError)
		a.reportError(err)
		return
	}
	if a.renderPending {
		// an update during View() scheduled another render, which will see its state
		metrics.IncRender(metrics.RenderSuperseded)
		return
	}
	err = panichandler.Call("patch", func() {
		a.patch(next)
	})
	if err != nil {
		metrics.IncRender(metrics.RenderError)
		a.resync()
		a.reportError(err)
		return
	}
	a.rootElem = next
	runRefreshes(root)
	a.renderCount.Add(1)
	metrics.IncRender(metrics.RenderOk)
	for _, fn := range a.renderListeners.GetList() {
		panichandler.Call("render listener", fn)
	}
}

func (a *App) patch(next *vdom.VDomElem) {
	if a.rootNode == nil {
		if a.opts.Hydrate {
			if existing := firstElementChild(a.container); existing != nil {
				a.rootNode = a.reconciler.Patch(nil, existing, next)
				return
			}
		}
		a.rootNode = a.reconciler.Mount(a.container, next)
		return
	}
	a.rootNode = a.reconciler.Patch(a.rootElem, a.rootNode, next)
}

// resync forgets the descriptors of a half-applied patch.  The next render rebuilds its old
// tree from the live markup, which is the only reliable record of what was applied.
func (a *App) resync() {
	if a.rootNode == nil {
		return
	}
	clearShadows(a.rootNode)
	a.rootElem = nil
}

func clearShadows(node *dom.Node) {
	node.Shadow = nil
	for _, child := range node.ChildNodes() {
		clearShadows(child)
	}
}

func firstElementChild(node *dom.Node) *dom.Node {
	for _, child := range node.ChildNodes() {
		if child.IsElement() {
			return child
		}
	}
	return nil
}

// Snapshot records the current state: a history entry when time travel is on, and an
// autosave when storage is configured.  No-op inside an update.
func (a *App) Snapshot() {
	if a.activeUpdates.Load() > 0 {
		return
	}
	if a.history == nil && a.storage == nil {
		return
	}
	data, err := a.serializeRoot()
	if err != nil {
		a.reportError(fmt.Errorf("snapshot: %w", err))
		return
	}
	metrics.IncSnapshots()
	if a.history != nil {
		a.history.Push(data)
	}
	if a.storage != nil {
		ctx, cancelFn := context.WithTimeout(a.ctx, StorageTimeout)
		defer cancelFn()
		if _, err := a.storage.Save(ctx, pstore.ModeAuto, data); err != nil {
			a.reportError(fmt.Errorf("autosave: %w", err))
		}
	}
}

func (a *App) serializeRoot() ([]byte, error) {
	return a.registry.Marshal(a.root)
}

// MarshalState serializes the current tree (on the loop).
func (a *App) MarshalState() ([]byte, error) {
	var data []byte
	var err error
	syncErr := a.Sync(func() {
		data, err = a.serializeRoot()
	})
	if syncErr != nil {
		return nil, syncErr
	}
	return data, err
}

func (a *App) deserializeRoot(data []byte) error {
	obj, err := a.registry.Unmarshal(data)
	if err != nil {
		return err
	}
	c, ok := obj.(Component)
	if !ok {
		return fmt.Errorf("stored state is a %T, not a component", obj)
	}
	a.SetRoot(c, true)
	return nil
}

// installState is the time travel callback: the state is already in the history, so it is
// not snapshotted again.
func (a *App) installState(data []byte) {
	if err := a.deserializeRoot(data); err != nil {
		a.reportError(fmt.Errorf("time travel: %w", err))
	}
}

// SetRoot replaces the root component and schedules a render.
func (a *App) SetRoot(c Component, deserialized bool) {
	a.checkLoop("SetRoot")
	if isNilComponent(c) {
		return
	}
	if old := a.root; old != nil && old != c {
		Detach(old)
	}
	Attach(a, c, nil, deserialized)
	a.root = c
	a.Refresh()
}

func (a *App) Root() Component {
	return a.root
}

func (a *App) Document() *dom.Document {
	return a.doc
}

func (a *App) Container() *dom.Node {
	return a.container
}

// RootNode is the node the root component's view is patched into (nil before the first render).
func (a *App) RootNode() *dom.Node {
	return a.rootNode
}

func (a *App) Reconciler() *engine.Reconciler {
	return a.reconciler
}

func (a *App) Storage() *pstore.Storage {
	return a.storage
}

// Time is the time travel history, nil unless AppOpts.TimeTravel is set.
func (a *App) Time() *timetravel.History[[]byte] {
	return a.history
}

func (a *App) RenderCount() int64 {
	return a.renderCount.Load()
}

// OnRender registers fn to run on the loop after every successful render.  Returns an
// unregister func.
func (a *App) OnRender(fn func()) func() {
	id := a.renderListeners.Register(fn)
	return func() {
		a.renderListeners.Unregister(id)
	}
}

func (a *App) travel(move func() bool) bool {
	if a.history == nil {
		return false
	}
	var moved bool
	a.Sync(func() {
		moved = move()
	})
	return moved
}

func (a *App) Undo() bool {
	return a.travel(func() bool { return a.history.Prev() })
}

func (a *App) Redo() bool {
	return a.travel(func() bool { return a.history.Next() })
}

// Close stops the loop after the queued work has run and waits for outstanding removals.
// Must not be called from the loop.
func (a *App) Close(ctx context.Context) error {
	if a.onLoop() {
		return fmt.Errorf("app: Close called on the app loop")
	}
	var rtnErr error
	a.closeOnce.Do(func() {
		a.Flush()
		rtnErr = a.reconciler.Close(ctx)
		a.loop.Close(false)
		a.loop.Wait()
		a.cancelFn()
		log.Printf("[app] %s closed\n", a.AppId)
	})
	return rtnErr
}
