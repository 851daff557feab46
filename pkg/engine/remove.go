// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/metrics"
	"github.com/wavetermdev/pickle/pkg/panichandler"
	"github.com/wavetermdev/pickle/pkg/vdom"
	"golang.org/x/sync/errgroup"
)

type pendingRemoval struct {
	cancel context.CancelFunc
	doneCh chan struct{}
}

// removeElement detaches node.  An OnBeforeRemove hook runs right here, on the owning goroutine.
// When it hands back a RemoveWait the node is marked Removing and the wait runs on its own
// goroutine; the patch does not wait for it.  Errors (and cancellation) are logged and removal
// proceeds, so a node is never left stuck in the document.
func (r *Reconciler) removeElement(parent *dom.Node, node *dom.Node, elem *vdom.VDomElem) {
	if node == nil {
		return
	}
	node.Removing = true
	r.stats.Removed++
	var wait vdom.RemoveWait
	if elem != nil && elem.Hooks != nil && elem.Hooks.OnBeforeRemove != nil {
		onBeforeRemove := elem.Hooks.OnBeforeRemove
		runHook("OnBeforeRemove", func() {
			wait = onBeforeRemove(node)
		})
	}
	if wait == nil {
		r.finishRemove(node, elem)
		return
	}
	nodeName := node.NodeName()
	ctx, cancel := context.WithCancel(vdom.WithLoop(r.ctx, r.dispatch))
	pr := &pendingRemoval{cancel: cancel, doneCh: make(chan struct{})}
	r.lock.Lock()
	r.pending[node] = pr
	metrics.SetPendingRemovals(len(r.pending))
	r.lock.Unlock()
	go func() {
		defer close(pr.doneCh)
		defer cancel()
		err := runRemoveWait(ctx, wait)
		if err != nil {
			metrics.IncRemovalErrors()
			log.Printf("[engine] before-remove hook on <%s>: %v (removing anyway)\n", nodeName, err)
		}
		r.lock.Lock()
		delete(r.pending, node)
		metrics.SetPendingRemovals(len(r.pending))
		r.lock.Unlock()
		r.runOnOwner(func() {
			r.finishRemove(node, elem)
		})
	}()
}

func runRemoveWait(ctx context.Context, wait vdom.RemoveWait) (rtnErr error) {
	defer func() {
		panicErr := panichandler.PanicHandler("OnBeforeRemove", recover())
		if panicErr != nil {
			rtnErr = panicErr
		}
	}()
	err := wait(ctx)
	if err == nil && ctx.Err() != nil {
		return fmt.Errorf("cancelled: %w", ctx.Err())
	}
	return err
}

func (r *Reconciler) runOnOwner(fn func()) {
	if r.dispatch == nil {
		fn()
		return
	}
	r.dispatch(fn)
}

// finishRemove detaches node, fires OnRemoved depth first (children before their parent), and
// lets the document forget the subtree.
func (r *Reconciler) finishRemove(node *dom.Node, elem *vdom.VDomElem) {
	if parent := node.Parent(); parent != nil {
		parent.RemoveChild(node)
	}
	fireRemoved(node, elem)
	r.doc.Release(node)
}

func fireRemoved(node *dom.Node, elem *vdom.VDomElem) {
	if elem == nil {
		elem, _ = node.Shadow.(*vdom.VDomElem)
	}
	for _, child := range node.ChildNodes() {
		fireRemoved(child, nil)
	}
	if elem != nil && elem.Hooks != nil && elem.Hooks.OnRemoved != nil {
		onRemoved := elem.Hooks.OnRemoved
		runHook("OnRemoved", func() {
			onRemoved(node)
		})
	}
}

// PendingRemovals returns the number of removals still waiting on a RemoveWait.
func (r *Reconciler) PendingRemovals() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.pending)
}

// CancelRemovals cancels the context handed to every pending RemoveWait.  The nodes are
// still removed once their hooks return.
func (r *Reconciler) CancelRemovals() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, pr := range r.pending {
		pr.cancel()
	}
}

// Drain waits for every pending RemoveWait to return.  Completions are handed to Dispatch, and
// the final detach runs once the owning loop gets to them.  A wait that calls vdom.RunOnLoop
// (combined hooks do) needs the loop, so Drain from the loop itself only works after
// CancelRemovals.
func (r *Reconciler) Drain(ctx context.Context) error {
	r.lock.Lock()
	doneChs := make([]chan struct{}, 0, len(r.pending))
	for _, pr := range r.pending {
		doneChs = append(doneChs, pr.doneCh)
	}
	r.lock.Unlock()
	g, gctx := errgroup.WithContext(ctx)
	for _, doneCh := range doneChs {
		g.Go(func() error {
			select {
			case <-doneCh:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

// Close cancels outstanding removals and waits for their hooks to return.
func (r *Reconciler) Close(ctx context.Context) error {
	r.CancelRemovals()
	err := r.Drain(ctx)
	r.cancel()
	return err
}
