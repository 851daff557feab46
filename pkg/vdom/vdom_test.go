// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package vdom

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"github.com/wavetermdev/pickle/pkg/dom"
)

var elemCmpOpts = []cmp.Option{
	cmpopts.IgnoreFields(VDomElem{}, "Hooks"),
	cmpopts.IgnoreUnexported(VDomElem{}),
	cmpopts.EquateEmpty(),
}

func TestPartToElemsFlattens(t *testing.T) {
	b := H("b", nil)
	parts := []any{
		"a",
		nil,
		true,
		[]any{b, []any{1, nil, 2.5}},
		[]*VDomElem{nil, H("i", nil)},
		[]string{"x", "y"},
	}
	got := PartToElems(parts)
	want := []*VDomElem{
		TextElem("a"),
		b,
		TextElem("1"),
		TextElem("2.5"),
		H("i", nil),
		TextElem("x"),
		TextElem("y"),
	}
	if diff := cmp.Diff(want, got, elemCmpOpts...); diff != "" {
		t.Fatalf("PartToElems mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateNode(t *testing.T) {
	var gotProps map[string]any
	var gotChildren []*VDomElem
	comp := FuncComponent(func(props map[string]any, children []*VDomElem) *VDomElem {
		gotProps = props
		gotChildren = children
		return H("section", map[string]any{"class": props["class"]}, children)
	})
	elem := CreateNode(comp, map[string]any{"class": "card"}, "hi", []any{H("p", nil)})
	require.Equal(t, "section", elem.Tag)
	require.Equal(t, "card", gotProps["class"])
	require.Len(t, gotChildren, 2)
	require.True(t, gotChildren[0].IsText())
	require.Equal(t, "p", elem.Children[1].Tag)

	// nil props are handed to components as an empty map
	CreateNode(comp, nil)
	require.NotNil(t, gotProps)

	require.Panics(t, func() { CreateNode(42, nil) })
}

func TestKeys(t *testing.T) {
	require.Equal(t, "", H("li", nil).Key())
	require.Equal(t, "7", H("li", map[string]any{"key": 7}).Key())
	require.Equal(t, "x", H("li", map[string]any{"key": "x"}).Key())

	orig := H("li", map[string]any{"class": "a"})
	keyed := orig.WithKey("k1")
	require.Equal(t, "k1", keyed.Key())
	require.Equal(t, "", orig.Key())
	require.Equal(t, "a", keyed.Props["class"])
}

func TestHooksProp(t *testing.T) {
	var order []string
	elem := H("div", map[string]any{
		"hooks": &Lifecycle{OnAttached: func(*dom.Node, map[string]any) { order = append(order, "prop") }},
		"id":    "x",
	})
	_, hasHooks := elem.Props[HooksPropKey]
	require.False(t, hasHooks)
	elem = elem.WithHooks(&Lifecycle{OnAttached: func(*dom.Node, map[string]any) { order = append(order, "with") }})
	elem.Hooks.OnAttached(nil, nil)
	require.Equal(t, []string{"prop", "with"}, order)
}

func TestCombine(t *testing.T) {
	var order []string
	rec := func(name string) *Lifecycle {
		return &Lifecycle{
			OnAttached:     func(*dom.Node, map[string]any) { order = append(order, name+":attached") },
			OnBeforeUpdate: func(*dom.Node, map[string]any) { order = append(order, name+":before") },
			OnUpdated:      func(*dom.Node, map[string]any) { order = append(order, name+":updated") },
			OnRemoved:      func(*dom.Node) { order = append(order, name+":removed") },
			OnBeforeRemove: func(*dom.Node) RemoveWait {
				order = append(order, name+":beforeremove")
				return func(ctx context.Context) error {
					order = append(order, name+":wait")
					return errors.New(name)
				}
			},
		}
	}
	l := Combine(rec("a"), rec("b"))
	l.OnAttached(nil, nil)
	l.OnBeforeUpdate(nil, nil)
	l.OnUpdated(nil, nil)
	err := l.OnBeforeRemove(nil)(context.Background())
	l.OnRemoved(nil)
	require.Equal(t, []string{
		"a:attached", "b:attached",
		"a:before", "b:before",
		"a:updated", "b:updated",
		"a:beforeremove", "a:wait", "b:beforeremove", "b:wait",
		"a:removed", "b:removed",
	}, order)
	require.ErrorContains(t, err, "a")
	require.ErrorContains(t, err, "b")

	only := &Lifecycle{}
	require.Same(t, only, Combine(only, nil))
	require.Same(t, only, Combine(nil, only))
}

func TestRunOnLoop(t *testing.T) {
	loopCh := make(chan func(), 1)
	ctx := WithLoop(context.Background(), func(fn func()) { loopCh <- fn })
	ran := false
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunOnLoop(ctx, func() { ran = true })
	}()
	(<-loopCh)()
	require.NoError(t, <-errCh)
	require.True(t, ran)

	go func() {
		errCh <- RunOnLoop(ctx, func() { panic("boom") })
	}()
	(<-loopCh)()
	require.Error(t, <-errCh)

	cancelled, cancelFn := context.WithCancel(ctx)
	cancelFn()
	ran = false
	require.ErrorIs(t, RunOnLoop(cancelled, func() { ran = true }), context.Canceled)
	if len(loopCh) > 0 {
		(<-loopCh)()
	}
	require.False(t, ran)

	// without a loop fn runs in place
	require.NoError(t, RunOnLoop(context.Background(), func() { ran = true }))
	require.True(t, ran)
}

type countingListener struct {
	updates   int
	destroyed bool
}

func (l *countingListener) AfterUpdate() { l.updates++ }
func (l *countingListener) Destroy()     { l.destroyed = true }

func TestWithListenerSurvivesRebuild(t *testing.T) {
	doc := dom.MakeDocument()
	el := doc.CreateElement("div")
	var created []*countingListener
	build := func() *VDomElem {
		return WithListener(H("div", nil), func(el *dom.Node) Listener {
			l := &countingListener{}
			created = append(created, l)
			return l
		})
	}
	build().Hooks.OnAttached(el, nil)
	// a later render produces a new descriptor; the listener is found on the element
	build().Hooks.OnUpdated(el, nil)
	build().Hooks.OnUpdated(el, nil)
	build().Hooks.OnRemoved(el)
	require.Len(t, created, 1)
	require.Equal(t, 2, created[0].updates)
	require.True(t, created[0].destroyed)
}

func TestStyle(t *testing.T) {
	style, err := ParseStyle("color: red; margin: 0 auto")
	require.NoError(t, err)
	require.Equal(t, "color: red; margin: 0 auto;", style.String())

	s, ok := AttrString(map[string]any{"width": 10})
	require.True(t, ok)
	require.Equal(t, "width: 10;", s)
	_, ok = AttrString(false)
	require.False(t, ok)
	_, ok = AttrString(nil)
	require.False(t, ok)
	s, _ = AttrString(1.5)
	require.Equal(t, "1.5", s)
}

func TestBind(t *testing.T) {
	clicked := false
	onClick := func() { clicked = true }
	elem := Bind(`
		<div class="box" style="color: red">
			<button onclick="#param:click">go</button>
			<bindparam key="items"/>
		</div>
	`, map[string]any{
		"click": onClick,
		"items": []any{H("span", nil, "one"), "two"},
	})
	require.NotNil(t, elem)
	require.Equal(t, "div", elem.Tag)
	require.Equal(t, Style{"color": "red"}, elem.Props["style"])
	require.Len(t, elem.Children, 3)
	btn := elem.Children[0]
	require.Equal(t, "button", btn.Tag)
	ToHandler(btn.Props["onclick"])(nil)
	require.True(t, clicked)
	require.Equal(t, "span", elem.Children[1].Tag)
	require.Equal(t, "two", elem.Children[2].Text)
}

func TestBindErrors(t *testing.T) {
	elems := BindFragment(`<div><span></div>`, nil)
	require.Len(t, elems, 1)
	// the error lands inside the innermost open element
	span := elems[0].Children[0]
	require.Equal(t, "span", span.Tag)
	last := span.Children[len(span.Children)-1]
	require.True(t, last.IsText())
	require.Contains(t, last.Text, "does not match")

	multi := Bind(`<p>a</p><p>b</p>`, nil)
	require.Equal(t, "div", multi.Tag)
	require.Len(t, multi.Children, 2)
}
