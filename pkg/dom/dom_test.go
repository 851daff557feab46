// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package dom

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func childNames(n *Node) []string {
	var rtn []string
	for _, c := range n.ChildNodes() {
		rtn = append(rtn, c.TextContent())
	}
	return rtn
}

func makeList(doc *Document, items ...string) *Node {
	ul := doc.CreateElement("ul")
	for _, item := range items {
		li := doc.CreateElement("li")
		li.AppendChild(doc.CreateTextNode(item))
		ul.AppendChild(li)
	}
	return ul
}

func TestTreeOps(t *testing.T) {
	doc := MakeDocument()
	require.Equal(t, "#document", doc.Root().NodeName())
	require.Equal(t, "body", doc.Body().NodeName())
	require.Equal(t, doc.Root(), doc.Body().Parent())

	ul := makeList(doc, "a", "b", "c")
	doc.Body().AppendChild(ul)
	require.Equal(t, []string{"a", "b", "c"}, childNames(ul))

	kids := ul.ChildNodes()
	// inserting an attached node moves it
	ul.InsertBefore(kids[2], kids[0])
	require.Equal(t, []string{"c", "a", "b"}, childNames(ul))
	ul.AppendChild(kids[2])
	require.Equal(t, []string{"a", "b", "c"}, childNames(ul))

	ul.RemoveChild(kids[1])
	require.Nil(t, kids[1].Parent())
	require.Equal(t, "ac", ul.TextContent())
	require.Equal(t, kids[0], ul.FirstChild())
	require.Equal(t, kids[2], kids[0].NextSibling())

	require.Panics(t, func() { ul.RemoveChild(kids[1]) })
	require.Panics(t, func() { ul.InsertBefore(doc.CreateElement("li"), kids[1]) })
	require.Panics(t, func() { doc.CreateElement("") })
}

func TestActiveChildNodes(t *testing.T) {
	doc := MakeDocument()
	ul := makeList(doc, "a", "b", "c")
	ul.ChildNodes()[1].Removing = true
	require.Len(t, ul.ChildNodes(), 3)
	active := ul.ActiveChildNodes()
	require.Len(t, active, 2)
	require.Equal(t, "c", active[1].TextContent())
}

func TestObserve(t *testing.T) {
	doc := MakeDocument()
	var kinds []string
	unobserve := doc.Observe(func(m Mutation) {
		kinds = append(kinds, m.Kind)
	})
	div := doc.CreateElement("div")
	text := doc.CreateTextNode("x")
	div.AppendChild(text)
	div.SetAttribute("class", "a")
	text.SetNodeValue("y")
	div.RemoveChild(text)
	require.Equal(t, []string{MutationCreate, MutationCreate, MutationInsert, MutationAttr, MutationText, MutationRemove}, kinds)

	unobserve()
	div.SetAttribute("class", "b")
	require.Len(t, kinds, 6)
}

func TestNodeIdsAndRelease(t *testing.T) {
	doc := MakeDocument()
	base := doc.NumNodes()
	ul := makeList(doc, "a", "b")
	doc.Body().AppendChild(ul)
	require.Equal(t, base+5, doc.NumNodes())
	require.Equal(t, ul, doc.NodeById(ul.ID()))
	require.Equal(t, doc, ul.Document())

	// attached subtrees are not released
	doc.Release(ul)
	require.Equal(t, ul, doc.NodeById(ul.ID()))

	li := ul.FirstChild()
	doc.Body().RemoveChild(ul)
	doc.Release(ul)
	require.Equal(t, base, doc.NumNodes())
	require.Nil(t, doc.NodeById(ul.ID()))
	require.Nil(t, doc.NodeById(li.ID()))
}

func TestAttributesAndProps(t *testing.T) {
	doc := MakeDocument()
	input := doc.CreateElement("INPUT")
	require.Equal(t, "input", input.NodeName())
	require.Nil(t, input.Attributes())

	input.SetAttribute("type", "checkbox")
	input.SetAttribute("value", "v1")
	input.SetAttribute("checked", "")
	val, ok := input.GetAttribute("type")
	require.True(t, ok)
	require.Equal(t, "checkbox", val)
	require.Equal(t, "v1", input.Value())
	require.True(t, input.Checked())
	require.Equal(t, map[string]string{"type": "checkbox", "value": "v1", "checked": ""}, input.Attributes())

	// live properties diverge from attributes
	input.SetValue("typed")
	input.SetChecked(false)
	attrVal, _ := input.GetAttribute("value")
	require.Equal(t, "v1", attrVal)
	require.Equal(t, "typed", input.Value())

	input.RemoveAttribute("value")
	input.RemoveAttribute("checked")
	require.False(t, input.HasAttribute("value"))
	require.Equal(t, "", input.Value())
	require.False(t, input.Checked())

	input.SetData("k", 5)
	require.Equal(t, 5, input.Data("k"))
	require.Nil(t, input.Data("missing"))

	circle := doc.CreateElementNS(SVGNamespace, "circle")
	require.True(t, circle.IsSVG())
	require.False(t, input.IsSVG())
	text := doc.CreateTextNode("t")
	require.True(t, text.IsText())
	require.False(t, text.IsElement())
	require.Equal(t, TextNodeName, text.NodeName())
	require.Equal(t, "t", text.NodeValue())
}

func TestDispatchBubbles(t *testing.T) {
	doc := MakeDocument()
	ul := makeList(doc, "a", "b")
	doc.Body().AppendChild(ul)
	li := ul.FirstChild()

	var log []string
	ul.SetHandler("onclick", func(e *Event) {
		log = append(log, "ul:"+e.Target.TextContent())
		require.Equal(t, ul, e.CurrentTarget)
	})
	doc.Body().SetHandler("onClick", func(e *Event) {
		log = append(log, "body")
	})
	require.True(t, li.Dispatch(&Event{Type: "click"}))
	require.Equal(t, []string{"ul:a", "body"}, log)

	log = nil
	li.SetHandler("onclick", func(e *Event) {
		log = append(log, "li")
		e.StopPropagation()
	})
	require.True(t, li.Dispatch(&Event{Type: "click"}))
	require.Equal(t, []string{"li"}, log)

	li.SetHandler("onclick", nil)
	require.Nil(t, li.Handler("onclick"))
	require.False(t, li.Dispatch(&Event{Type: "keydown"}))
	require.False(t, li.Dispatch(nil))
}

func TestDispatchInputUpdatesProps(t *testing.T) {
	doc := MakeDocument()
	input := doc.CreateElement("input")
	input.SetAttribute("type", "checkbox")
	var seen string
	input.SetHandler(HandlerPropName("change"), func(e *Event) {
		seen = e.Target.Value()
	})
	require.True(t, input.Dispatch(&Event{Type: "change", Value: "on", Checked: true}))
	require.Equal(t, "on", seen)
	require.True(t, input.Checked())

	text := doc.CreateElement("input")
	text.Dispatch(&Event{Type: "input", Value: "hello", Checked: true})
	require.Equal(t, "hello", text.Value())
	require.False(t, text.Checked())
}

func TestSetInnerHTML(t *testing.T) {
	doc := MakeDocument()
	div := doc.CreateElement("div")
	div.AppendChild(doc.CreateTextNode("old"))
	err := div.SetInnerHTML("  <p class=\"x\">a<b>b</b></p><!-- c -->\n<input value=\"v\" checked>")
	require.NoError(t, err)
	kids := div.ChildNodes()
	require.Len(t, kids, 2)
	require.Equal(t, "p", kids[0].NodeName())
	require.Nil(t, kids[0].Shadow)
	require.Equal(t, "v", kids[1].Value())
	require.True(t, kids[1].Checked())
	require.Equal(t, `<p class="x">a<b>b</b></p><input value="v" checked=""/>`, div.InnerHTML())

	require.Error(t, doc.CreateTextNode("t").SetInnerHTML("<p></p>"))
}

func TestSetInnerHTMLContexts(t *testing.T) {
	doc := MakeDocument()
	require.NoError(t, doc.Body().SetInnerHTML("<p>hi</p>"))
	require.Equal(t, "<p>hi</p>", doc.Body().InnerHTML())

	for _, tag := range []string{"SECTION", "ul", "my-widget"} {
		el := doc.CreateElement(tag)
		require.NoError(t, el.SetInnerHTML("<li>x</li>"), tag)
		require.Len(t, el.ChildNodes(), 1, tag)
	}
	svg := doc.CreateElementNS(SVGNamespace, "svg")
	require.NoError(t, svg.SetInnerHTML(`<circle r="2"></circle>`))
	require.Equal(t, "circle", svg.FirstChild().NodeName())
}

func buildGoldenTree(doc *Document) *Node {
	div := doc.CreateElement("div")
	div.SetAttribute("id", "app")
	div.SetAttribute("class", "main")
	h1 := doc.CreateElement("h1")
	h1.AppendChild(doc.CreateTextNode("Tom & Jerry"))
	ul := doc.CreateElement("ul")
	li1 := doc.CreateElement("li")
	li1.AppendChild(doc.CreateTextNode("one"))
	li2 := doc.CreateElement("li")
	input := doc.CreateElement("input")
	input.SetAttribute("type", "checkbox")
	input.SetAttribute("checked", "")
	li2.AppendChild(input)
	svg := doc.CreateElementNS(SVGNamespace, "svg")
	circle := doc.CreateElementNS(SVGNamespace, "circle")
	circle.SetAttribute("r", "4")
	svg.AppendChild(circle)
	ul.AppendChild(li1)
	ul.AppendChild(li2)
	div.AppendChild(h1)
	div.AppendChild(ul)
	div.AppendChild(svg)
	doc.Body().AppendChild(div)
	return div
}

func TestRenderGolden(t *testing.T) {
	doc := MakeDocument()
	div := buildGoldenTree(doc)
	g := goldie.New(t)

	g.Assert(t, "render", []byte(div.OuterHTML()))

	var sb strings.Builder
	require.NoError(t, div.Render(&sb, &RenderOpts{IncludeIds: true}))
	g.Assert(t, "render_ids", []byte(sb.String()))

	require.Equal(t, div.OuterHTML(), doc.Body().InnerHTML())
	require.Equal(t, "<body>"+div.OuterHTML()+"</body>", doc.Root().OuterHTML())
}
