// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/vdom"
)

type keyedEntry struct {
	node *dom.Node
	elem *vdom.VDomElem
}

func childKey(children []*vdom.VDomElem, idx int) string {
	if idx >= len(children) || children[idx] == nil {
		return ""
	}
	return children[idx].Key()
}

func childAt(children []*vdom.VDomElem, idx int) *vdom.VDomElem {
	if idx >= len(children) {
		return nil
	}
	return children[idx]
}

func nodeAt(nodes []*dom.Node, idx int) *dom.Node {
	if idx >= len(nodes) {
		return nil
	}
	return nodes[idx]
}

// patchChildren reconciles node's children with two cursors: i over the old children, k over
// the new ones.  Keyed children are matched by key wherever they sit, unkeyed children by
// position.  Nodes in the middle of an async removal are invisible to the positional index.
func (r *Reconciler) patchChildren(node *dom.Node, old *vdom.VDomElem, next *vdom.VDomElem, isSVG bool) {
	oldChildren := compactChildren(old.Children)
	children := compactChildren(next.Children)
	active := node.ActiveChildNodes()

	oldNodes := make([]*dom.Node, len(oldChildren))
	oldKeyed := make(map[string]keyedEntry)
	var oldKeyOrder []string
	for idx, oldChild := range oldChildren {
		oldNodes[idx] = nodeAt(active, idx)
		if key := oldChild.Key(); key != "" {
			if _, dup := oldKeyed[key]; !dup {
				oldKeyOrder = append(oldKeyOrder, key)
			}
			oldKeyed[key] = keyedEntry{node: oldNodes[idx], elem: oldChild}
		}
	}
	newKeyed := make(map[string]bool)

	i, k := 0, 0
	for k < len(children) {
		oldKey := childKey(oldChildren, i)
		newKey := childKey(children, k)

		if oldKey != "" && newKeyed[oldKey] {
			// already consumed by an earlier keyed match
			i++
			continue
		}

		if newKey == "" || r.recycling {
			if oldKey == "" {
				r.patchNode(node, nodeAt(oldNodes, i), childAt(oldChildren, i), children[k], isSVG)
				k++
			}
			i++
			continue
		}

		keyed, found := oldKeyed[newKey]
		if oldKey == newKey {
			r.patchNode(node, keyed.node, keyed.elem, children[k], isSVG)
			i++
		} else if found && keyed.node != nil {
			// reuse the keyed node from elsewhere: move it into place, then patch it
			node.InsertBefore(keyed.node, nodeAt(oldNodes, i))
			r.stats.Moved++
			r.patchNode(node, keyed.node, keyed.elem, children[k], isSVG)
		} else {
			r.patchNode(node, nodeAt(oldNodes, i), nil, children[k], isSVG)
		}
		newKeyed[newKey] = true
		k++
	}

	for ; i < len(oldChildren); i++ {
		if oldChildren[i].Key() == "" {
			r.removeElement(node, oldNodes[i], oldChildren[i])
		}
	}
	for _, key := range oldKeyOrder {
		if !newKeyed[key] {
			entry := oldKeyed[key]
			r.removeElement(node, entry.node, entry.elem)
		}
	}
}

func compactChildren(children []*vdom.VDomElem) []*vdom.VDomElem {
	for _, c := range children {
		if c == nil {
			return vdom.PartToElems(children)
		}
	}
	return children
}
