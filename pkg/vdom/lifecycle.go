// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package vdom

import (
	"context"
	"errors"
	"strconv"

	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/panichandler"
)

// Combine merges two hook sets so decorators can add lifecycle behavior without displacing the
// hooks a node already carries.  For every event a's hook runs first, then b's.  OnBeforeRemove
// is chained sequentially: b is called (on the loop) only after a's wait has returned, and its
// own wait is awaited after that.  b still runs if a failed, and both errors are returned; a
// cancelled ctx skips b.
func Combine(a, b *Lifecycle) *Lifecycle {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &Lifecycle{
		OnAttached:     combineElemFn(a.OnAttached, b.OnAttached),
		OnBeforeUpdate: combineElemFn(a.OnBeforeUpdate, b.OnBeforeUpdate),
		OnUpdated:      combineElemFn(a.OnUpdated, b.OnUpdated),
		OnBeforeRemove: combineRemoveFn(a.OnBeforeRemove, b.OnBeforeRemove),
		OnRemoved:      combineNodeFn(a.OnRemoved, b.OnRemoved),
	}
}

func combineElemFn(a, b func(*dom.Node, map[string]any)) func(*dom.Node, map[string]any) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(el *dom.Node, props map[string]any) {
		a(el, props)
		b(el, props)
	}
}

func combineNodeFn(a, b func(*dom.Node)) func(*dom.Node) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(el *dom.Node) {
		a(el)
		b(el)
	}
}

func combineRemoveFn(a, b func(*dom.Node) RemoveWait) func(*dom.Node) RemoveWait {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(el *dom.Node) RemoveWait {
		waitA := a(el)
		if waitA == nil {
			return b(el)
		}
		return func(ctx context.Context) error {
			errA := waitA(ctx)
			var waitB RemoveWait
			if err := RunOnLoop(ctx, func() { waitB = b(el) }); err != nil {
				return errors.Join(errA, err)
			}
			var errB error
			if waitB != nil {
				errB = waitB(ctx)
			}
			return errors.Join(errA, errB)
		}
	}
}

type loopCtxKey struct{}

// WithLoop records the dispatcher of the loop that owns the document.  The reconciler hands
// such a context to every RemoveWait.
func WithLoop(ctx context.Context, dispatch func(fn func())) context.Context {
	if dispatch == nil {
		return ctx
	}
	return context.WithValue(ctx, loopCtxKey{}, dispatch)
}

// RunOnLoop runs fn on the loop recorded in ctx and waits for it to finish.  Without a loop fn
// runs on the calling goroutine.  fn is skipped once ctx is done.
func RunOnLoop(ctx context.Context, fn func()) error {
	dispatch, _ := ctx.Value(loopCtxKey{}).(func(fn func()))
	if dispatch == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return runProtected(fn)
	}
	doneCh := make(chan struct{})
	var rtnErr error
	dispatch(func() {
		defer close(doneCh)
		if err := ctx.Err(); err != nil {
			rtnErr = err
			return
		}
		rtnErr = runProtected(fn)
	})
	select {
	case <-doneCh:
		return rtnErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runProtected(fn func()) (rtnErr error) {
	defer func() {
		if panicErr := panichandler.PanicHandler("RunOnLoop", recover()); panicErr != nil {
			rtnErr = panicErr
		}
	}()
	fn()
	return nil
}

// Listener is a per-element object created when the element is attached.  Its methods mirror
// the lifecycle events; all are optional (implement the ones you need).
type Listener any

type beforeUpdateListener interface{ BeforeUpdate() }
type afterUpdateListener interface{ AfterUpdate() }
type removeListener interface {
	Remove() RemoveWait
}
type destroyListener interface{ Destroy() }

// WithListener attaches a listener factory to e.  create runs once, when the element is
// attached; the listener then receives BeforeUpdate/AfterUpdate/Remove/Destroy calls ahead
// of any hooks e already had.
func WithListener(e *VDomElem, create func(el *dom.Node) Listener) *VDomElem {
	if e == nil {
		return nil
	}
	// the listener lives on the element (descriptors are rebuilt every render), keyed by how
	// many listeners this descriptor already carries
	lid := "lifecycle-listener-" + strconv.Itoa(e.listeners+1)
	get := func(el *dom.Node) Listener {
		return el.Data(lid)
	}
	l := &Lifecycle{
		OnAttached: func(el *dom.Node, props map[string]any) {
			el.SetData(lid, create(el))
		},
		OnBeforeUpdate: func(el *dom.Node, props map[string]any) {
			if bl, ok := get(el).(beforeUpdateListener); ok {
				bl.BeforeUpdate()
			}
		},
		OnUpdated: func(el *dom.Node, props map[string]any) {
			if al, ok := get(el).(afterUpdateListener); ok {
				al.AfterUpdate()
			}
		},
		OnBeforeRemove: func(el *dom.Node) RemoveWait {
			if rl, ok := get(el).(removeListener); ok {
				return rl.Remove()
			}
			return nil
		},
		OnRemoved: func(el *dom.Node) {
			if dl, ok := get(el).(destroyListener); ok {
				dl.Destroy()
			}
		},
	}
	rtn := *e
	rtn.listeners = e.listeners + 1
	rtn.Hooks = Combine(l, e.Hooks)
	return &rtn
}
