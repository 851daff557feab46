// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/pstore"
	"github.com/wavetermdev/pickle/pkg/serial"
	"github.com/wavetermdev/pickle/pkg/vdom"
)

type counter struct {
	Base
	Label string `json:"label"`
	Count int    `json:"count"`
	Done  bool   `json:"done"`

	views     int
	attached  []bool
	panicOnce bool
}

func (c *counter) View() *vdom.VDomElem {
	c.views++
	if c.panicOnce {
		c.panicOnce = false
		panic("view exploded")
	}
	return vdom.H("div", map[string]any{"class": "counter"}, fmt.Sprintf("%s:%d", c.Label, c.Count))
}

func (c *counter) Attached(deserialized bool) {
	c.attached = append(c.attached, deserialized)
}

type panel struct {
	Base
	Title string     `json:"title"`
	Items []*counter `json:"items"`

	views   int
	blocked bool
}

func (p *panel) View() *vdom.VDomElem {
	p.views++
	var items []any
	for _, item := range p.Items {
		items = append(items, item.View())
	}
	return vdom.H("section", nil, vdom.H("h1", nil, p.Title), items)
}

func (p *panel) Children() []Component {
	return ChildList(p.Items)
}

func (p *panel) BeforeUpdate(payload Payload) bool {
	return !p.blocked
}

type listeningCounter struct {
	counter
	events *[]string
}

func (lc *listeningCounter) Updated(payload Payload) {
	*lc.events = append(*lc.events, fmt.Sprintf("counter:%v", payload[PayloadKey]))
}

func testRegistry() *serial.Registry {
	r := serial.MakeRegistry()
	r.Register("counter", &counter{})
	r.Register("panel", &panel{})
	return r
}

func makeTestApp(t *testing.T, root Component, opts *AppOpts) (*App, *dom.Node) {
	doc := dom.MakeDocument()
	container := doc.CreateElement("main")
	doc.Body().AppendChild(container)
	if opts == nil {
		opts = &AppOpts{}
	}
	if opts.Registry == nil {
		opts.Registry = testRegistry()
	}
	a, err := MakeApp(root, container, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), time.Second)
		defer cancelFn()
		a.Close(ctx)
	})
	a.Flush()
	return a, container
}

func inc(c *counter) func() {
	return func() { c.Count++ }
}

func TestFirstRender(t *testing.T) {
	c := &counter{Label: "a"}
	a, container := makeTestApp(t, c, nil)
	require.Equal(t, `<div class="counter">a:0</div>`, container.InnerHTML())
	require.Equal(t, int64(1), a.RenderCount())
	require.Equal(t, 1, c.views)
	require.Equal(t, []bool{false}, c.attached)
	require.True(t, c.IsAttached())
	require.Same(t, a, c.App())
}

func TestRenderCoalescing(t *testing.T) {
	c := &counter{Label: "a"}
	a, container := makeTestApp(t, c, &AppOpts{TimeTravel: true})
	states := a.Time().Len()
	a.Sync(func() {
		require.True(t, Update(c, inc(c), nil))
		require.True(t, Update(c, inc(c), nil))
		require.True(t, Update(c, inc(c), nil))
	})
	a.Flush()
	require.Equal(t, 2, c.views)
	require.Equal(t, int64(2), a.RenderCount())
	// renders coalesce, snapshots do not: every outermost update is one undo step
	require.Equal(t, states+3, a.Time().Len())
	require.Equal(t, `<div class="counter">a:3</div>`, container.InnerHTML())
}

func TestRenderDelayCoalescing(t *testing.T) {
	c := &counter{Label: "d"}
	a, container := makeTestApp(t, c, &AppOpts{RenderDelay: 200 * time.Millisecond})
	for i := 0; i < 5; i++ {
		a.Sync(func() { Update(c, inc(c), nil) })
	}
	a.Flush()
	require.Equal(t, 2, c.views)
	require.Equal(t, `<div class="counter">d:5</div>`, container.InnerHTML())
}

func TestNestedUpdateRendersOnce(t *testing.T) {
	item := &counter{Label: "x"}
	p := &panel{Title: "t", Items: []*counter{item}}
	a, container := makeTestApp(t, p, &AppOpts{TimeTravel: true})
	require.Same(t, p, item.Parent())
	states := a.Time().Len()
	a.Sync(func() {
		Update(p, func() {
			p.Title = "t2"
			Update(item, inc(item), nil)
			Update(item, inc(item), nil)
		}, nil)
	})
	a.Flush()
	require.Equal(t, 2, p.views)
	require.Equal(t, states+1, a.Time().Len())
	require.Equal(t, `<section><h1>t2</h1><div class="counter">x:2</div></section>`, container.InnerHTML())
}

type selfFixing struct {
	Base
	Fixed bool
	views int
}

func (s *selfFixing) View() *vdom.VDomElem {
	s.views++
	if !s.Fixed {
		Update(s, func() { s.Fixed = true }, nil)
	}
	return vdom.H("p", nil, fmt.Sprint(s.Fixed))
}

func TestUpdateDuringViewSupersedesRender(t *testing.T) {
	s := &selfFixing{}
	a, container := makeTestApp(t, s, nil)
	require.Equal(t, 2, s.views)
	require.Equal(t, int64(1), a.RenderCount())
	require.Equal(t, "<p>true</p>", container.InnerHTML())
}

func TestBeforeUpdateVeto(t *testing.T) {
	item := &counter{Label: "x"}
	p := &panel{Title: "t", Items: []*counter{item}, blocked: true}
	a, _ := makeTestApp(t, p, nil)
	var ok bool
	a.Sync(func() {
		ok = Update(item, inc(item), nil)
	})
	a.Flush()
	require.False(t, ok)
	require.Equal(t, 0, item.Count)
	require.Equal(t, int64(1), a.RenderCount())
	require.Equal(t, int32(0), a.activeUpdates.Load())
}

type wrapper struct {
	Base
	inner Component
}

func (w *wrapper) View() *vdom.VDomElem {
	return vdom.H("div", nil, w.inner.View())
}

func (w *wrapper) Children() []Component {
	return ChildList(w.inner)
}

type recordingParent struct {
	wrapper
	events *[]string
	last   Payload
}

func (rp *recordingParent) Updated(payload Payload) {
	rp.last = payload
	*rp.events = append(*rp.events, fmt.Sprintf("parent:%v", payload[PayloadKey]))
}

func TestUpdatedListenersClosestFirst(t *testing.T) {
	var events []string
	item := &listeningCounter{counter: counter{Label: "x"}, events: &events}
	root := &recordingParent{wrapper: wrapper{inner: item}, events: &events}
	a, container := makeTestApp(t, root, nil)
	require.Same(t, root, item.Parent())
	a.Sync(func() {
		Update(item, inc(&item.counter), Payload{PayloadKey: "count"})
	})
	a.Flush()
	require.Equal(t, []string{"counter:count", "parent:count"}, events)
	require.Same(t, item, root.last.Source())
	require.Equal(t, `<div><div class="counter">x:1</div></div>`, container.InnerHTML())
}

func TestAttachIsOneShot(t *testing.T) {
	c := &counter{}
	Attach(nil, c, nil, false)
	Attach(nil, c, nil, true)
	require.Equal(t, []bool{false}, c.attached)
	Detach(c)
	require.Nil(t, c.Parent())
	Attach(nil, c, nil, false)
	require.Equal(t, []bool{false}, c.attached)

	// children attach before their parent's hook and see the link
	item := &counter{}
	p := &panel{Items: []*counter{item}}
	Attach(nil, p, nil, true)
	require.Same(t, p, item.Parent())
	require.Equal(t, []bool{true}, item.attached)
	require.Same(t, p, Root(item))
	require.Equal(t, []Component{item, p}, Branch(item))
}

func TestChildList(t *testing.T) {
	c1, c2, c3 := &counter{Label: "1"}, &counter{Label: "2"}, &counter{Label: "3"}
	var nilCounter *counter
	got := ChildList(c1, nil, nilCounter, []Component{c2, nil}, c3, []*counter{nilCounter})
	require.Equal(t, []Component{c1, c3, c2}, got)
}

type backRef struct {
	Base
	child *backRef
	up    *backRef
}

func (b *backRef) View() *vdom.VDomElem { return vdom.H("i", nil) }
func (b *backRef) Children() []Component {
	return ChildList(b.child, b.up)
}

func TestChildrenSkipsParent(t *testing.T) {
	top := &backRef{}
	bottom := &backRef{up: top}
	top.child = bottom
	Attach(nil, top, nil, false)
	require.Equal(t, []Component{bottom}, Children(top))
	require.Empty(t, Children(bottom))
}

func TestViewPanicIsolation(t *testing.T) {
	var errs []error
	var errLock sync.Mutex
	c := &counter{Label: "p"}
	a, container := makeTestApp(t, c, &AppOpts{OnError: func(err error) {
		errLock.Lock()
		defer errLock.Unlock()
		errs = append(errs, err)
	}})
	before := container.InnerHTML()
	a.Sync(func() {
		Update(c, func() {
			c.Count = 5
			c.panicOnce = true
		}, nil)
	})
	a.Flush()
	require.Equal(t, before, container.InnerHTML())
	errLock.Lock()
	require.Len(t, errs, 1)
	require.ErrorContains(t, errs[0], "view exploded")
	errLock.Unlock()

	a.Sync(func() { Update(c, inc(c), nil) })
	a.Flush()
	require.Equal(t, `<div class="counter">p:6</div>`, container.InnerHTML())
}

func TestOnRefreshedAfterPatch(t *testing.T) {
	var log []string
	item := &counter{Label: "x"}
	p := &panel{Title: "t", Items: []*counter{item}}
	a, container := makeTestApp(t, p, nil)
	a.Sync(func() {
		Update(item, func() {
			item.Count = 1
			p.OnRefreshed(func() { log = append(log, "panel") })
			item.OnRefreshed(func() {
				log = append(log, "item:"+container.TextContent())
			})
		}, nil)
	})
	a.Flush()
	require.Equal(t, []string{"item:tx:1", "panel"}, log)

	// queues are one-shot
	a.Sync(func() { Update(item, inc(item), nil) })
	a.Flush()
	require.Len(t, log, 2)
}

func TestOnRenderListener(t *testing.T) {
	c := &counter{}
	a, _ := makeTestApp(t, c, nil)
	renders := 0
	unregister := a.OnRender(func() { renders++ })
	a.Sync(func() { Update(c, inc(c), nil) })
	a.Flush()
	unregister()
	a.Sync(func() { Update(c, inc(c), nil) })
	a.Flush()
	require.Equal(t, 1, renders)
}

func TestUpdateProperty(t *testing.T) {
	c := &counter{Label: "a"}
	a, container := makeTestApp(t, c, nil)
	a.Sync(func() {
		require.NoError(t, UpdateProperty(c, "COUNT", "42"))
		require.NoError(t, UpdateProperty(c, "label", "b"))
		require.NoError(t, UpdateProperty(c, "Done", "true"))
		require.NoError(t, UpdateProperty(c, "count", "7.9"))
		require.ErrorContains(t, UpdateProperty(c, "missing", "1"), "no field")
		require.Error(t, UpdateProperty(c, "done", "maybe"))
	})
	a.Flush()
	require.Equal(t, 7, c.Count)
	require.Equal(t, "b", c.Label)
	require.True(t, c.Done)
	require.Equal(t, `<div class="counter">b:7</div>`, container.InnerHTML())
}

func TestUndoRedo(t *testing.T) {
	c := &counter{Label: "u"}
	a, container := makeTestApp(t, c, &AppOpts{TimeTravel: true})
	for i := 0; i < 2; i++ {
		a.Sync(func() { Update(c, inc(c), nil) })
	}
	a.Flush()
	require.Equal(t, 3, a.Time().Len())
	require.Equal(t, `<div class="counter">u:2</div>`, container.InnerHTML())

	require.True(t, a.Undo())
	a.Flush()
	require.Equal(t, `<div class="counter">u:1</div>`, container.InnerHTML())
	restored := a.Root().(*counter)
	require.NotSame(t, c, restored)
	require.Equal(t, []bool{true}, restored.attached)

	require.True(t, a.Redo())
	require.False(t, a.Redo())
	a.Flush()
	require.Equal(t, `<div class="counter">u:2</div>`, container.InnerHTML())

	// a new update after undo drops the redo branch
	require.True(t, a.Undo())
	a.Sync(func() {
		cur := a.Root().(*counter)
		Update(cur, func() { cur.Count = 10 }, nil)
	})
	a.Flush()
	require.Equal(t, 3, a.Time().Len())
	require.False(t, a.Redo())
	require.Equal(t, `<div class="counter">u:10</div>`, container.InnerHTML())
}

func TestStorageRoundTrip(t *testing.T) {
	backend := pstore.MakeMemBackend()
	c := &counter{Label: "s"}
	a, _ := makeTestApp(t, c, &AppOpts{StorageBackend: backend, StorageKey: "counter"})
	a.Sync(func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), time.Second)
		defer cancelFn()
		require.NoError(t, a.Storage().SetAutosave(ctx, true))
		Update(c, func() { c.Count = 9 }, nil)
	})
	a.Flush()

	c2 := &counter{Label: "fresh"}
	a2, container2 := makeTestApp(t, c2, &AppOpts{StorageBackend: backend, StorageKey: "counter"})
	require.Equal(t, `<div class="counter">s:9</div>`, container2.InnerHTML())
	loaded := a2.Root().(*counter)
	require.Equal(t, []bool{true}, loaded.attached)
	require.Equal(t, []bool{false}, c2.attached)
}

func TestHydrateReusesMarkup(t *testing.T) {
	doc := dom.MakeDocument()
	container := doc.CreateElement("main")
	doc.Body().AppendChild(container)
	require.NoError(t, container.SetInnerHTML(`<div class="counter">stale</div>`))
	existing := container.FirstChild()

	c := &counter{Label: "h"}
	a, err := MakeApp(c, container, &AppOpts{Hydrate: true, Registry: testRegistry()})
	require.NoError(t, err)
	defer a.Close(context.Background())
	a.Flush()
	require.Same(t, existing, a.RootNode())
	require.Equal(t, `<div class="counter">h:0</div>`, container.InnerHTML())
}

type fadeList struct {
	Base
	Items   []string
	release chan struct{}
}

func (f *fadeList) View() *vdom.VDomElem {
	var lis []any
	for _, item := range f.Items {
		lis = append(lis, vdom.H("li", map[string]any{
			"key": item,
			"hooks": &vdom.Lifecycle{
				OnBeforeRemove: func(node *dom.Node) vdom.RemoveWait {
					node.SetAttribute("class", "leaving")
					return func(ctx context.Context) error {
						select {
						case <-f.release:
							return nil
						case <-ctx.Done():
							return ctx.Err()
						}
					}
				},
			},
		}, item))
	}
	return vdom.H("ul", nil, lis)
}

func TestAsyncRemovalCompletesOnLoop(t *testing.T) {
	f := &fadeList{Items: []string{"a", "b"}, release: make(chan struct{})}
	a, container := makeTestApp(t, f, nil)
	a.Sync(func() {
		Update(f, func() { f.Items = []string{"a"} }, nil)
	})
	a.Flush()
	require.Equal(t, `<ul><li>a</li><li class="leaving">b</li></ul>`, container.InnerHTML())
	require.Equal(t, 1, a.Reconciler().PendingRemovals())

	close(f.release)
	ctx, cancelFn := context.WithTimeout(context.Background(), time.Second)
	defer cancelFn()
	require.NoError(t, a.Reconciler().Drain(ctx))
	a.Flush()
	require.Equal(t, "<ul><li>a</li></ul>", container.InnerHTML())
}

// Run with -race: the before-remove hooks mutate their elements while other goroutines keep
// rendering the document through the loop.
func TestBeforeRemoveTouchesNodeOnLoop(t *testing.T) {
	f := &fadeList{Items: []string{"a", "b", "c", "d"}, release: make(chan struct{})}
	a, container := makeTestApp(t, f, nil)

	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stopCh:
					return
				default:
				}
				a.Sync(func() { _ = container.OuterHTML() })
			}
		}()
	}
	for _, items := range [][]string{{"a", "b", "c"}, {"a", "c"}, {"c"}} {
		a.Sync(func() {
			Update(f, func() { f.Items = items }, nil)
		})
		a.Flush()
	}
	close(stopCh)
	wg.Wait()

	var html string
	a.Sync(func() { html = container.InnerHTML() })
	require.Equal(t, `<ul><li>c</li><li class="leaving">a</li><li class="leaving">b</li><li class="leaving">d</li></ul>`, html)
	require.Equal(t, 3, a.Reconciler().PendingRemovals())

	close(f.release)
	ctx, cancelFn := context.WithTimeout(context.Background(), time.Second)
	defer cancelFn()
	require.NoError(t, a.Reconciler().Drain(ctx))
	a.Flush()
	a.Sync(func() { html = container.InnerHTML() })
	require.Equal(t, "<ul><li>c</li></ul>", html)
}

func TestMakeAppErrors(t *testing.T) {
	doc := dom.MakeDocument()
	_, err := MakeApp(nil, doc.Body(), nil)
	require.Error(t, err)
	_, err = MakeApp(&counter{}, nil, nil)
	require.Error(t, err)
}

func TestClosedApp(t *testing.T) {
	doc := dom.MakeDocument()
	a, err := MakeApp(&counter{}, doc.Body(), &AppOpts{Registry: testRegistry()})
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))
	require.False(t, a.Dispatch(func() {}))
	require.True(t, errors.Is(a.Sync(func() {}), ErrAppClosed))
	require.False(t, a.Undo())
}
