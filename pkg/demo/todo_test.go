// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package demo

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wavetermdev/pickle/pkg/app"
	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/pstore"
)

func makeTestApp(t *testing.T, root *TodoApp, opts *app.AppOpts) *app.App {
	doc := dom.MakeDocument()
	container := doc.CreateElement("main")
	doc.Body().AppendChild(container)
	if opts == nil {
		opts = &app.AppOpts{TimeTravel: true}
	}
	a, err := app.MakeApp(root, container, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), time.Second)
		defer cancelFn()
		a.Close(ctx)
	})
	a.Flush()
	return a
}

func findByClass(n *dom.Node, class string) []*dom.Node {
	var rtn []*dom.Node
	for _, c := range n.ChildNodes() {
		if cls, ok := c.GetAttribute("class"); ok && slices.Contains(strings.Fields(cls), class) {
			rtn = append(rtn, c)
		}
		rtn = append(rtn, findByClass(c, class)...)
	}
	return rtn
}

func query(t *testing.T, a *app.App, class string) []*dom.Node {
	t.Helper()
	var rtn []*dom.Node
	require.NoError(t, a.Sync(func() {
		rtn = findByClass(a.Container(), class)
	}))
	return rtn
}

func texts(t *testing.T, a *app.App, class string) []string {
	t.Helper()
	var rtn []string
	require.NoError(t, a.Sync(func() {
		for _, n := range findByClass(a.Container(), class) {
			rtn = append(rtn, n.TextContent())
		}
	}))
	return rtn
}

func dispatch(t *testing.T, a *app.App, node *dom.Node, event dom.Event) {
	t.Helper()
	require.NoError(t, a.Sync(func() {
		node.Dispatch(&event)
	}))
	a.Flush()
}

func typeTodo(t *testing.T, a *app.App, text string) {
	t.Helper()
	input := query(t, a, "new-todo")[0]
	dispatch(t, a, input, dom.Event{Type: "input", Value: text})
	dispatch(t, a, input, dom.Event{Type: "keydown", Key: "Enter"})
}

func root(a *app.App) *TodoApp {
	return a.Root().(*TodoApp)
}

func TestAddToggleRemove(t *testing.T) {
	todos := MakeTodoApp("groceries")
	todos.FadeMs = 0
	a := makeTestApp(t, todos, nil)
	require.True(t, strings.HasPrefix(texts(t, a, "todoapp")[0], "groceries"))

	typeTodo(t, a, "  milk ")
	typeTodo(t, a, "eggs")
	require.Equal(t, "", query(t, a, "new-todo")[0].Value())
	typeTodo(t, a, "   ")
	require.Equal(t, []string{"milk", "eggs"}, texts(t, a, "text"))
	require.Equal(t, []string{"2 items left"}, texts(t, a, "count"))
	require.Equal(t, 2, todos.NextId)

	toggles := query(t, a, "toggle")
	dispatch(t, a, toggles[0], dom.Event{Type: "change", Checked: true})
	require.True(t, todos.Items[0].Done)
	require.True(t, toggles[0].Checked())
	require.Equal(t, []string{"1 item left"}, texts(t, a, "count"))
	require.Len(t, query(t, a, "done"), 1)

	removes := query(t, a, "remove")
	dispatch(t, a, removes[1], dom.Event{Type: "click"})
	require.Equal(t, []string{"milk"}, texts(t, a, "text"))
	require.Len(t, todos.Items, 1)

	dispatch(t, a, query(t, a, "clear")[0], dom.Event{Type: "click"})
	require.Empty(t, todos.Items)
	require.Empty(t, query(t, a, "todo"))
	require.Equal(t, []string{"0 items left"}, texts(t, a, "count"))
}

func TestFadeOutRemoval(t *testing.T) {
	todos := MakeTodoApp("fade")
	todos.FadeMs = 50
	a := makeTestApp(t, todos, nil)
	typeTodo(t, a, "a")
	typeTodo(t, a, "b")

	dispatch(t, a, query(t, a, "remove")[0], dom.Event{Type: "click"})
	// the keyed pass moves "b" in front of the row still fading out
	require.Equal(t, []string{"b", "a"}, texts(t, a, "text"))
	var leaving, staying bool
	require.NoError(t, a.Sync(func() {
		for _, row := range findByClass(a.Container(), "todo") {
			text := findByClass(row, "text")[0].TextContent()
			cls, _ := row.GetAttribute("class")
			isLeaving := slices.Contains(strings.Fields(cls), LeavingClass)
			switch text {
			case "a":
				leaving = row.Removing && isLeaving
			case "b":
				staying = !row.Removing && !isLeaving
			}
		}
	}))
	require.True(t, leaving)
	require.True(t, staying)
	require.Equal(t, 1, a.Reconciler().PendingRemovals())

	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()
	require.NoError(t, a.Reconciler().Drain(ctx))
	a.Flush()
	require.Equal(t, []string{"b"}, texts(t, a, "text"))
}

func TestUndoRedo(t *testing.T) {
	todos := MakeTodoApp("travel")
	todos.FadeMs = 0
	a := makeTestApp(t, todos, nil)
	typeTodo(t, a, "first")
	dispatch(t, a, query(t, a, "remove")[0], dom.Event{Type: "click"})
	require.Empty(t, texts(t, a, "text"))

	dispatch(t, a, query(t, a, "undo")[0], dom.Event{Type: "click"})
	require.Equal(t, []string{"first"}, texts(t, a, "text"))
	restored := root(a)
	require.NotSame(t, todos, restored)
	require.True(t, restored.IsAttached())
	require.Same(t, restored, restored.Items[0].Parent())

	// handlers in the restored tree act on the restored components
	dispatch(t, a, query(t, a, "toggle")[0], dom.Event{Type: "change", Checked: true})
	require.True(t, root(a).Items[0].Done)

	dispatch(t, a, query(t, a, "undo")[0], dom.Event{Type: "click"})
	require.False(t, root(a).Items[0].Done)
	dispatch(t, a, query(t, a, "redo")[0], dom.Event{Type: "click"})
	require.True(t, root(a).Items[0].Done)
}

func TestReadOnlyVetoesUpdates(t *testing.T) {
	todos := MakeTodoApp("locked")
	a := makeTestApp(t, todos, nil)
	typeTodo(t, a, "keep")
	lock := query(t, a, "lock")[0].FirstChild()
	dispatch(t, a, lock, dom.Event{Type: "change", Checked: true})
	require.True(t, todos.ReadOnly)
	require.Len(t, query(t, a, "readonly"), 1)
	require.True(t, query(t, a, "new-todo")[0].HasAttribute("disabled"))

	var added, toggled bool
	edits := todos.Edits
	require.NoError(t, a.Sync(func() {
		added = todos.Add("blocked")
		toggled = todos.Items[0].Toggle()
	}))
	require.False(t, added)
	require.False(t, toggled)
	require.Equal(t, edits, todos.Edits)
	require.Len(t, todos.Items, 1)

	dispatch(t, a, lock, dom.Event{Type: "change", Checked: false})
	require.False(t, todos.ReadOnly)
	require.False(t, query(t, a, "new-todo")[0].HasAttribute("disabled"))
}

func TestFilters(t *testing.T) {
	todos := MakeTodoApp("filters")
	todos.FadeMs = 0
	a := makeTestApp(t, todos, nil)
	typeTodo(t, a, "one")
	typeTodo(t, a, "two")
	dispatch(t, a, query(t, a, "toggle")[1], dom.Event{Type: "change", Checked: true})

	filterButton := func(name string) *dom.Node {
		for _, n := range query(t, a, "filter") {
			if n.TextContent() == name {
				return n
			}
		}
		t.Fatalf("no filter button %q", name)
		return nil
	}
	dispatch(t, a, filterButton(FilterDone), dom.Event{Type: "click"})
	require.Equal(t, []string{"two"}, texts(t, a, "text"))
	require.Equal(t, []string{FilterDone}, texts(t, a, "selected"))
	dispatch(t, a, filterButton(FilterActive), dom.Event{Type: "click"})
	require.Equal(t, []string{"one"}, texts(t, a, "text"))
	dispatch(t, a, filterButton(FilterAll), dom.Event{Type: "click"})
	require.Equal(t, []string{"one", "two"}, texts(t, a, "text"))

	var ok bool
	require.NoError(t, a.Sync(func() { ok = todos.SetFilter("bogus") }))
	require.False(t, ok)
}

func TestPersistence(t *testing.T) {
	backend, err := pstore.OpenBoltBackend(filepath.Join(t.TempDir(), "todos.db"))
	require.NoError(t, err)
	defer backend.Close()

	todos := MakeTodoApp("saved")
	a := makeTestApp(t, todos, &app.AppOpts{StorageBackend: backend, StorageKey: "todos"})
	require.NoError(t, a.Sync(func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), time.Second)
		defer cancelFn()
		require.NoError(t, a.Storage().SetAutosave(ctx, true))
	}))
	typeTodo(t, a, "persist me")
	ctx, cancelFn := context.WithTimeout(context.Background(), time.Second)
	defer cancelFn()
	require.NoError(t, a.Close(ctx))

	a2 := makeTestApp(t, MakeTodoApp("fresh"), &app.AppOpts{StorageBackend: backend, StorageKey: "todos"})
	loaded := root(a2)
	require.Equal(t, "saved", loaded.Title)
	require.Equal(t, []string{"persist me"}, texts(t, a2, "text"))
	require.Equal(t, 1, loaded.NextId)
	require.Same(t, loaded, loaded.Items[0].Parent())
}
