// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package vdom

import (
	"context"

	"github.com/wavetermdev/pickle/pkg/dom"
)

const TextTag = "#text"
const SVGTag = "svg"

const KeyPropKey = "key"
const HooksPropKey = "hooks"
const StylePropKey = "style"

// VDomElem is an immutable node descriptor.  A render produces a fresh tree of these; the
// reconciler never modifies one it has been handed.
type VDomElem struct {
	Tag      string         `json:"tag"`
	Props    map[string]any `json:"props,omitempty"`
	Children []*VDomElem    `json:"children,omitempty"`
	Text     string         `json:"text,omitempty"`
	Hooks    *Lifecycle     `json:"-"`

	listeners int
}

// FuncComponent is a functional component: invoked immediately by CreateNode.
type FuncComponent func(props map[string]any, children []*VDomElem) *VDomElem

// Lifecycle holds the hooks fired by the reconciler for the element it is attached to.
//
// OnAttached, OnUpdated and OnRemoved are queued and run after the whole patch pass.
// OnBeforeUpdate runs synchronously, before the element's children are reconciled.
// OnBeforeRemove also runs synchronously, on the loop that owns the document, so it may touch
// el.  When it returns a RemoveWait the element stays in the document (marked Removing) until
// the wait returns or its ctx is cancelled; a nil RemoveWait removes the element right away.
type Lifecycle struct {
	OnAttached     func(el *dom.Node, props map[string]any)
	OnBeforeUpdate func(el *dom.Node, props map[string]any)
	OnUpdated      func(el *dom.Node, oldProps map[string]any)
	OnBeforeRemove func(el *dom.Node) RemoveWait
	OnRemoved      func(el *dom.Node)
}

// RemoveWait delays the removal of an element.  It runs on its own goroutine and must not
// touch the document; use RunOnLoop for that.
type RemoveWait func(ctx context.Context) error
