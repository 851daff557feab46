// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package dom is the live, headless document the reconciler patches.
// It wraps golang.org/x/net/html nodes and adds the state a browser DOM would carry:
// event handler properties, the value/checked properties of form controls, and the
// reconciler's per-node bookkeeping (Shadow, Removing).
//
// A Document is not safe for concurrent use.  All mutations are expected to happen on
// the owning app's loop goroutine.
package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const SVGNamespace = "http://www.w3.org/2000/svg"
const TextNodeName = "#text"

const (
	MutationCreate = "create"
	MutationInsert = "insert"
	MutationRemove = "remove"
	MutationAttr   = "attr"
	MutationText   = "text"
)

type Mutation struct {
	Kind   string
	Target *Node
	Child  *Node  // set for insert/remove
	Name   string // attribute name for attr mutations
}

type Document struct {
	root      *Node
	body      *Node
	nextId    int64
	nodes     map[*html.Node]*Node
	byId      map[int64]*Node
	observers map[int]func(Mutation)
	nextObsId int
}

type Node struct {
	doc *Document
	h   *html.Node
	id  int64

	// Shadow is the descriptor that produced this node (owned by the reconciler).
	Shadow any
	// Removing is set while an asynchronous removal is pending.
	Removing bool

	handlers map[string]EventHandler
	value    string
	checked  bool
	data     map[string]any
}

func MakeDocument() *Document {
	d := &Document{
		nodes:     make(map[*html.Node]*Node),
		byId:      make(map[int64]*Node),
		observers: make(map[int]func(Mutation)),
	}
	d.root = d.register(&html.Node{Type: html.DocumentNode})
	d.body = d.register(&html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body})
	d.root.h.AppendChild(d.body.h)
	return d
}

func (d *Document) register(h *html.Node) *Node {
	if n := d.nodes[h]; n != nil {
		return n
	}
	d.nextId++
	n := &Node{doc: d, h: h, id: d.nextId}
	d.nodes[h] = n
	d.byId[n.id] = n
	return n
}

func (d *Document) wrap(h *html.Node) *Node {
	if h == nil {
		return nil
	}
	if n := d.nodes[h]; n != nil {
		return n
	}
	// nodes that entered the tree through the html parser
	n := d.register(h)
	for _, attr := range h.Attr {
		switch attr.Key {
		case "value":
			n.value = attr.Val
		case "checked":
			n.checked = true
		}
	}
	return n
}

func (d *Document) notify(m Mutation) {
	for _, fn := range d.observers {
		fn(m)
	}
}

// Observe registers fn to be called for every mutation. The returned func unregisters it.
func (d *Document) Observe(fn func(Mutation)) func() {
	d.nextObsId++
	id := d.nextObsId
	d.observers[id] = fn
	return func() {
		delete(d.observers, id)
	}
}

func (d *Document) Root() *Node {
	return d.root
}

func (d *Document) Body() *Node {
	return d.body
}

func (d *Document) NodeById(id int64) *Node {
	return d.byId[id]
}

func (d *Document) NumNodes() int {
	return len(d.nodes)
}

// Release drops the document's bookkeeping for a detached subtree.  Released nodes must not be
// inserted again.
func (d *Document) Release(n *Node) {
	if n == nil || n.h.Parent != nil {
		return
	}
	var walk func(h *html.Node)
	walk = func(h *html.Node) {
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if wn := d.nodes[h]; wn != nil {
			delete(d.byId, wn.id)
		}
		delete(d.nodes, h)
	}
	walk(n.h)
}

func (d *Document) CreateElement(tag string) *Node {
	return d.CreateElementNS("", tag)
}

func (d *Document) CreateElementNS(namespace string, tag string) *Node {
	if tag == "" {
		panic("dom: cannot create element with an empty tag")
	}
	ns := ""
	if namespace == SVGNamespace {
		// x/net/html keeps foreign content namespaces as short names
		ns = "svg"
	} else if namespace != "" {
		ns = namespace
	}
	// html.ParseFragment checks DataAtom against Data on the context node
	lowerTag := strings.ToLower(tag)
	n := d.register(&html.Node{Type: html.ElementNode, Data: lowerTag, DataAtom: atom.Lookup([]byte(lowerTag)), Namespace: ns})
	d.notify(Mutation{Kind: MutationCreate, Target: n})
	return n
}

func (d *Document) CreateTextNode(text string) *Node {
	n := d.register(&html.Node{Type: html.TextNode, Data: text})
	d.notify(Mutation{Kind: MutationCreate, Target: n})
	return n
}

func (n *Node) ID() int64 {
	return n.id
}

func (n *Node) Document() *Document {
	return n.doc
}

// NodeName returns the lower-case tag name, or "#text" for text nodes.
func (n *Node) NodeName() string {
	switch n.h.Type {
	case html.TextNode:
		return TextNodeName
	case html.DocumentNode:
		return "#document"
	case html.CommentNode:
		return "#comment"
	}
	return n.h.Data
}

func (n *Node) IsText() bool {
	return n.h.Type == html.TextNode
}

func (n *Node) IsElement() bool {
	return n.h.Type == html.ElementNode
}

func (n *Node) IsSVG() bool {
	return n.h.Namespace == "svg"
}

func (n *Node) Parent() *Node {
	return n.doc.wrap(n.h.Parent)
}

func (n *Node) FirstChild() *Node {
	return n.doc.wrap(n.h.FirstChild)
}

func (n *Node) NextSibling() *Node {
	return n.doc.wrap(n.h.NextSibling)
}

func (n *Node) ChildNodes() []*Node {
	var rtn []*Node
	for c := n.h.FirstChild; c != nil; c = c.NextSibling {
		rtn = append(rtn, n.doc.wrap(c))
	}
	return rtn
}

// ActiveChildNodes returns the children that are not in the middle of an asynchronous removal.
func (n *Node) ActiveChildNodes() []*Node {
	var rtn []*Node
	for c := n.h.FirstChild; c != nil; c = c.NextSibling {
		wc := n.doc.wrap(c)
		if wc.Removing {
			continue
		}
		rtn = append(rtn, wc)
	}
	return rtn
}

// InsertBefore inserts child before ref (appends when ref is nil).  A child that is already in
// the tree is moved.
func (n *Node) InsertBefore(child *Node, ref *Node) *Node {
	if child == nil {
		panic("dom: InsertBefore with nil child")
	}
	if child == ref {
		return child
	}
	if ref != nil && ref.h.Parent != n.h {
		panic(fmt.Sprintf("dom: InsertBefore reference node is not a child of <%s>", n.NodeName()))
	}
	if child.h.Parent != nil {
		child.h.Parent.RemoveChild(child.h)
	}
	if ref == nil {
		n.h.AppendChild(child.h)
	} else {
		n.h.InsertBefore(child.h, ref.h)
	}
	n.doc.notify(Mutation{Kind: MutationInsert, Target: n, Child: child})
	return child
}

func (n *Node) AppendChild(child *Node) *Node {
	return n.InsertBefore(child, nil)
}

func (n *Node) RemoveChild(child *Node) *Node {
	if child == nil || child.h.Parent != n.h {
		panic("dom: RemoveChild node is not a child")
	}
	n.h.RemoveChild(child.h)
	n.doc.notify(Mutation{Kind: MutationRemove, Target: n, Child: child})
	return child
}

func (n *Node) NodeValue() string {
	if n.h.Type != html.TextNode {
		return ""
	}
	return n.h.Data
}

func (n *Node) SetNodeValue(text string) {
	if n.h.Type != html.TextNode {
		return
	}
	n.h.Data = text
	n.doc.notify(Mutation{Kind: MutationText, Target: n})
}

func (n *Node) GetAttribute(name string) (string, bool) {
	for _, attr := range n.h.Attr {
		if attr.Key == name {
			return attr.Val, true
		}
	}
	return "", false
}

func (n *Node) HasAttribute(name string) bool {
	_, ok := n.GetAttribute(name)
	return ok
}

// Attributes returns a copy of the element's attributes as a map.
func (n *Node) Attributes() map[string]string {
	if len(n.h.Attr) == 0 {
		return nil
	}
	rtn := make(map[string]string, len(n.h.Attr))
	for _, attr := range n.h.Attr {
		rtn[attr.Key] = attr.Val
	}
	return rtn
}

func (n *Node) SetAttribute(name string, val string) {
	if n.h.Type != html.ElementNode {
		return
	}
	found := false
	for idx := range n.h.Attr {
		if n.h.Attr[idx].Key == name {
			n.h.Attr[idx].Val = val
			found = true
			break
		}
	}
	if !found {
		n.h.Attr = append(n.h.Attr, html.Attribute{Key: name, Val: val})
	}
	switch name {
	case "value":
		n.value = val
	case "checked":
		n.checked = true
	}
	n.doc.notify(Mutation{Kind: MutationAttr, Target: n, Name: name})
}

func (n *Node) RemoveAttribute(name string) {
	for idx := range n.h.Attr {
		if n.h.Attr[idx].Key == name {
			n.h.Attr = append(n.h.Attr[:idx], n.h.Attr[idx+1:]...)
			n.doc.notify(Mutation{Kind: MutationAttr, Target: n, Name: name})
			break
		}
	}
	switch name {
	case "value":
		n.value = ""
	case "checked":
		n.checked = false
	}
}

// Value is the live value property (diverges from the attribute once the user types).
func (n *Node) Value() string {
	return n.value
}

func (n *Node) SetValue(val string) {
	n.value = val
}

func (n *Node) Checked() bool {
	return n.checked
}

func (n *Node) SetChecked(checked bool) {
	n.checked = checked
}

// TextContent concatenates the text of all descendant text nodes.
func (n *Node) TextContent() string {
	var sb strings.Builder
	var walk func(h *html.Node)
	walk = func(h *html.Node) {
		if h.Type == html.TextNode {
			sb.WriteString(h.Data)
			return
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n.h)
	return sb.String()
}

// Data returns a value previously stored on the node with SetData.
func (n *Node) Data(key string) any {
	return n.data[key]
}

func (n *Node) SetData(key string, val any) {
	if n.data == nil {
		n.data = make(map[string]any)
	}
	n.data[key] = val
}
