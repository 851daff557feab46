// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"log"
	"sort"

	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/vdom"
)

func (r *Reconciler) patchNode(parent *dom.Node, node *dom.Node, old *vdom.VDomElem, next *vdom.VDomElem, isSVG bool) *dom.Node {
	if node == nil {
		// the live tree lost the node (or never had it); nothing to diff against
		old = nil
	}
	if old == next && old != nil {
		// Pattern 1: memoized descriptor, nothing to do
		return node
	}
	if old == nil || old.Tag != next.Tag {
		// Pattern 2: replace
		newNode := r.createNode(next, isSVG)
		if parent != nil {
			parent.InsertBefore(newNode, node)
			if old != nil {
				r.removeElement(parent, node, old)
			}
		} else if old != nil && node != nil {
			// a detached node has no position to replace; its removal hooks never run
			log.Printf("[engine] replacing detached <%s> with <%s>, removal hooks skipped\n", node.NodeName(), next.Tag)
		}
		return newNode
	}
	if next.IsText() {
		// Pattern 3: text leaf, updated in place
		if node.NodeValue() != next.Text {
			node.SetNodeValue(next.Text)
			r.stats.TextUpdates++
		}
		node.Shadow = next
		return node
	}
	// Pattern 4: same tag
	isSVG = isSVG || next.Tag == vdom.SVGTag
	r.updateElement(node, old, next)
	r.patchChildren(node, old, next, isSVG)
	r.queueUpdated(node, old, next)
	node.Shadow = next
	return node
}

func (r *Reconciler) createNode(elem *vdom.VDomElem, isSVG bool) *dom.Node {
	r.stats.Created++
	if elem.IsText() {
		node := r.doc.CreateTextNode(elem.Text)
		node.Shadow = elem
		return node
	}
	if elem.Tag == "" {
		panic(fmt.Sprintf("engine: descriptor without a tag (props %v)", elem.Props))
	}
	var node *dom.Node
	isSVG = isSVG || elem.Tag == vdom.SVGTag
	if isSVG {
		node = r.doc.CreateElementNS(dom.SVGNamespace, elem.Tag)
	} else {
		node = r.doc.CreateElement(elem.Tag)
	}
	if elem.Hooks != nil && elem.Hooks.OnAttached != nil {
		onAttached := elem.Hooks.OnAttached
		props := elem.Props
		r.queueCallback(func() {
			onAttached(node, props)
		})
	}
	for _, child := range elem.Children {
		if child == nil {
			continue
		}
		node.AppendChild(r.createNode(child, isSVG))
	}
	for _, name := range sortedPropNames(elem.Props, nil) {
		r.updateAttribute(node, name, elem.Props[name], nil)
	}
	node.Shadow = elem
	return node
}

func sortedPropNames(a map[string]any, b map[string]any) []string {
	names := make([]string, 0, len(a)+len(b))
	for name := range a {
		names = append(names, name)
	}
	for name := range b {
		if _, ok := a[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Reconciler) updateElement(node *dom.Node, old *vdom.VDomElem, next *vdom.VDomElem) {
	for _, name := range sortedPropNames(next.Props, old.Props) {
		newVal := next.Props[name]
		oldVal := old.Props[name]
		if !attrChanged(node, name, newVal, oldVal) {
			continue
		}
		r.updateAttribute(node, name, newVal, oldVal)
	}
	if !r.recycling && next.Hooks != nil && next.Hooks.OnBeforeUpdate != nil {
		// synchronous, before the children are touched
		onBeforeUpdate := next.Hooks.OnBeforeUpdate
		runHook("OnBeforeUpdate", func() {
			onBeforeUpdate(node, next.Props)
		})
	}
}

func (r *Reconciler) queueUpdated(node *dom.Node, old *vdom.VDomElem, next *vdom.VDomElem) {
	if next.Hooks == nil {
		return
	}
	if r.recycling {
		if onAttached := next.Hooks.OnAttached; onAttached != nil {
			props := next.Props
			r.queueCallback(func() {
				onAttached(node, props)
			})
		}
		return
	}
	if onUpdated := next.Hooks.OnUpdated; onUpdated != nil {
		oldProps := old.Props
		r.queueCallback(func() {
			onUpdated(node, oldProps)
		})
	}
}

// attrChanged compares value/checked against the live properties (user input moves them away
// from the attributes), handlers are always reassigned, everything else compares against the
// previous descriptor.
func attrChanged(node *dom.Node, name string, newVal any, oldVal any) bool {
	if name == vdom.KeyPropKey {
		return false
	}
	switch name {
	case "value":
		newStr, _ := vdom.AttrString(newVal)
		return newStr != node.Value() || (newVal == nil) != (oldVal == nil)
	case "checked":
		return isTruthy(newVal) != node.Checked()
	}
	if vdom.IsFuncProp(newVal) || vdom.IsFuncProp(oldVal) {
		return true
	}
	newStr, newOk := vdom.AttrString(newVal)
	oldStr, oldOk := vdom.AttrString(oldVal)
	return newOk != oldOk || newStr != oldStr
}

func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "false"
	}
	return true
}

func (r *Reconciler) updateAttribute(node *dom.Node, name string, newVal any, oldVal any) {
	if name == vdom.KeyPropKey {
		return
	}
	r.stats.AttrUpdates++
	if vdom.IsFuncProp(newVal) {
		handler := vdom.ToHandler(newVal)
		if handler == nil {
			log.Printf("[engine] unsupported handler type %T for %q on <%s>\n", newVal, name, node.NodeName())
			return
		}
		node.SetHandler(name, handler)
		return
	}
	if vdom.IsFuncProp(oldVal) {
		node.SetHandler(name, nil)
	}
	if name == "checked" {
		if isTruthy(newVal) {
			node.SetAttribute(name, "")
		} else {
			node.RemoveAttribute(name)
		}
		node.SetChecked(isTruthy(newVal))
		return
	}
	attrStr, ok := vdom.AttrString(newVal)
	if !ok {
		node.RemoveAttribute(name)
		return
	}
	node.SetAttribute(name, attrStr)
}
