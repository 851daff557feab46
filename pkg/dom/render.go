// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package dom

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const IdAttrName = "data-pid"

type RenderOpts struct {
	IncludeIds bool // emit data-pid attributes (used by the live view bridge)
	Inner      bool // render only the children of the node
}

// Render writes the node as HTML.
func (n *Node) Render(w io.Writer, opts *RenderOpts) error {
	if opts == nil {
		opts = &RenderOpts{}
	}
	var roots []*html.Node
	if opts.Inner || n.h.Type == html.DocumentNode {
		for c := n.h.FirstChild; c != nil; c = c.NextSibling {
			roots = append(roots, n.cloneForRender(c, opts))
		}
	} else {
		roots = append(roots, n.cloneForRender(n.h, opts))
	}
	for _, r := range roots {
		if err := html.Render(w, r); err != nil {
			return fmt.Errorf("rendering <%s>: %w", n.NodeName(), err)
		}
	}
	return nil
}

func (n *Node) OuterHTML() string {
	var buf bytes.Buffer
	if err := n.Render(&buf, nil); err != nil {
		return ""
	}
	return buf.String()
}

func (n *Node) InnerHTML() string {
	var buf bytes.Buffer
	if err := n.Render(&buf, &RenderOpts{Inner: true}); err != nil {
		return ""
	}
	return buf.String()
}

// html.Render refuses detached trees with parents/siblings set, and we never want to
// decorate the live tree, so rendering always goes through a copy.
func (n *Node) cloneForRender(h *html.Node, opts *RenderOpts) *html.Node {
	rtn := &html.Node{Type: h.Type, Data: h.Data, DataAtom: h.DataAtom, Namespace: h.Namespace}
	if len(h.Attr) > 0 {
		rtn.Attr = append([]html.Attribute(nil), h.Attr...)
	}
	if opts.IncludeIds && h.Type == html.ElementNode {
		if wn := n.doc.nodes[h]; wn != nil {
			rtn.Attr = append(rtn.Attr, html.Attribute{Key: IdAttrName, Val: strconv.FormatInt(wn.id, 10)})
		}
	}
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		rtn.AppendChild(n.cloneForRender(c, opts))
	}
	return rtn
}

// SetInnerHTML replaces the children of n with parsed markup.  Parsed nodes carry no shadow
// descriptor, so the next patch against them runs in recycling mode.
func (n *Node) SetInnerHTML(markup string) error {
	if n.h.Type != html.ElementNode {
		return fmt.Errorf("SetInnerHTML on non-element %s", n.NodeName())
	}
	context := &html.Node{Type: html.ElementNode, Data: n.h.Data, DataAtom: n.h.DataAtom, Namespace: n.h.Namespace}
	parsed, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return fmt.Errorf("parsing fragment: %w", err)
	}
	for _, child := range n.ChildNodes() {
		n.RemoveChild(child)
		n.doc.Release(child)
	}
	for _, p := range parsed {
		if p.Type == html.CommentNode {
			continue
		}
		if p.Type == html.TextNode && strings.TrimSpace(p.Data) == "" {
			continue
		}
		n.AppendChild(n.doc.wrap(p))
	}
	return nil
}
