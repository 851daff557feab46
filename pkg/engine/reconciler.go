// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package engine reconciles descriptor trees (pkg/vdom) against the live document (pkg/dom).
//
// A patch pass walks the old and new descriptor trees together, applies the minimal set of
// DOM mutations, and queues attached/updated callbacks which run (in queue order) once every
// mutation of the pass has been applied.  Removals may be asynchronous: a node whose
// descriptor carries an OnBeforeRemove hook is marked Removing and stays in the document
// until the hook returns.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/metrics"
	"github.com/wavetermdev/pickle/pkg/panichandler"
	"github.com/wavetermdev/pickle/pkg/vdom"
)

type ReconcilerOpts struct {
	// Dispatch runs fn on the goroutine that owns the document.  Async removal completions
	// are delivered through it.  When nil, completions run on the hook's goroutine, which is
	// only safe if nothing else touches the document concurrently.
	Dispatch func(fn func())
}

// Stats counts the DOM operations of the most recent patch pass.
type Stats struct {
	Created     int
	Moved       int
	Removed     int
	TextUpdates int
	AttrUpdates int
}

type Reconciler struct {
	doc       *dom.Document
	dispatch  func(fn func())
	callbacks []func()
	recycling bool
	stats     Stats

	lock    sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	pending map[*dom.Node]*pendingRemoval
}

func MakeReconciler(doc *dom.Document, opts *ReconcilerOpts) *Reconciler {
	if opts == nil {
		opts = &ReconcilerOpts{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		doc:      doc,
		dispatch: opts.Dispatch,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[*dom.Node]*pendingRemoval),
	}
}

func (r *Reconciler) Document() *dom.Document {
	return r.doc
}

// LastStats returns the operation counts of the last Patch call.
func (r *Reconciler) LastStats() Stats {
	return r.stats
}

// Patch makes live match next and returns the resulting node (a new node when live was nil
// or had to be replaced).
//
// old is the descriptor live was last patched with.  When old is nil and live carries a shadow
// descriptor from an earlier pass, that descriptor is used.  When live has no shadow (markup
// that came from elsewhere, e.g. server rendered HTML) a descriptor is recovered from the
// markup and the pass runs in recycling mode: keys are ignored, no OnBeforeUpdate fires, and
// OnAttached is queued where OnUpdated would be.
func (r *Reconciler) Patch(old *vdom.VDomElem, live *dom.Node, next *vdom.VDomElem) *dom.Node {
	if live == nil {
		// nothing to update; old only matters alongside the node it produced
		return r.runPass(nil, nil, nil, next, false)
	}
	recycling := false
	if old == nil {
		if shadow, ok := live.Shadow.(*vdom.VDomElem); ok {
			old = shadow
		} else {
			old = recycleElement(live)
			recycling = true
		}
	}
	return r.runPass(live.Parent(), live, old, next, recycling)
}

// Mount creates the node for next, appends it to container, then runs the attached callbacks
// (so they see the node in the document).
func (r *Reconciler) Mount(container *dom.Node, next *vdom.VDomElem) *dom.Node {
	if container == nil {
		panic("engine.Mount: nil container")
	}
	return r.runPass(container, nil, nil, next, false)
}

func (r *Reconciler) runPass(parent *dom.Node, live *dom.Node, old *vdom.VDomElem, next *vdom.VDomElem, recycling bool) *dom.Node {
	if next == nil {
		panic("engine: nil descriptor")
	}
	startTs := time.Now()
	r.stats = Stats{}
	isSVG := parent != nil && parent.IsSVG()
	var rtn *dom.Node
	func() {
		r.recycling = recycling
		defer func() {
			r.recycling = false
			if panicErr := recover(); panicErr != nil {
				// a half-finished pass must not leak its callbacks into the next one
				r.callbacks = nil
				panic(panicErr)
			}
		}()
		rtn = r.patchNode(parent, live, old, next, isSVG)
	}()
	r.runCallbacks()
	metrics.ObservePatch(time.Since(startTs))
	metrics.AddDomOps(metrics.DomOpCreate, r.stats.Created)
	metrics.AddDomOps(metrics.DomOpMove, r.stats.Moved)
	metrics.AddDomOps(metrics.DomOpRemove, r.stats.Removed)
	metrics.AddDomOps(metrics.DomOpText, r.stats.TextUpdates)
	metrics.AddDomOps(metrics.DomOpAttr, r.stats.AttrUpdates)
	return rtn
}

func (r *Reconciler) queueCallback(fn func()) {
	r.callbacks = append(r.callbacks, fn)
}

// callbacks queued while running callbacks (a hook that patches a subtree) run in the same drain
func (r *Reconciler) runCallbacks() {
	for len(r.callbacks) > 0 {
		cb := r.callbacks[0]
		r.callbacks = r.callbacks[1:]
		runHook("lifecycle callback", cb)
	}
	r.callbacks = nil
}

func runHook(debugStr string, fn func()) {
	defer func() {
		panichandler.PanicHandler(debugStr, recover())
	}()
	fn()
}

// recycleElement rebuilds a descriptor from live markup.  Attributes are not recovered, so the
// first pass sets every attribute the new descriptor carries.
func recycleElement(node *dom.Node) *vdom.VDomElem {
	if node.IsText() {
		return vdom.TextElem(node.NodeValue())
	}
	rtn := &vdom.VDomElem{Tag: node.NodeName()}
	for _, child := range node.ChildNodes() {
		if !child.IsText() && !child.IsElement() {
			continue
		}
		rtn.Children = append(rtn.Children, recycleElement(child))
	}
	return rtn
}
