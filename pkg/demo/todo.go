// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package demo is a small todo list built on pkg/app.  It is what "pickle serve" runs, and
// it exercises keyed lists, asynchronous removal, input binding, persistence and time travel.
package demo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wavetermdev/pickle/pkg/app"
	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/serial"
	"github.com/wavetermdev/pickle/pkg/vdom"
)

const (
	FilterAll    = "all"
	FilterActive = "active"
	FilterDone   = "done"
)

const DefaultFadeMs = 150

const (
	TypeName_TodoApp  = "todoapp"
	TypeName_TodoItem = "todoitem"
)

var AllFilters = []string{FilterAll, FilterActive, FilterDone}

func init() {
	RegisterTypes(serial.DefaultRegistry)
}

func RegisterTypes(r *serial.Registry) {
	r.Register(TypeName_TodoApp, &TodoApp{})
	r.Register(TypeName_TodoItem, &TodoItem{})
}

type TodoApp struct {
	app.Base
	Title    string      `json:"title"`
	Draft    string      `json:"draft"`
	Filter   string      `json:"filter"`
	ReadOnly bool        `json:"readonly"`
	NextId   int         `json:"nextid"`
	Edits    int         `json:"edits"`
	FadeMs   int         `json:"fadems"`
	Items    []*TodoItem `json:"items"`
}

type TodoItem struct {
	app.Base
	Id   int    `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

func MakeTodoApp(title string) *TodoApp {
	return &TodoApp{Title: title, Filter: FilterAll, FadeMs: DefaultFadeMs}
}

func (t *TodoApp) Children() []app.Component {
	return app.ChildList(t.Items)
}

func (t *TodoApp) Attached(deserialized bool) {
	if t.Filter == "" {
		t.Filter = FilterAll
	}
}

// BeforeUpdate blocks every change except unlocking while the list is read-only.
func (t *TodoApp) BeforeUpdate(payload app.Payload) bool {
	if !t.ReadOnly {
		return true
	}
	return payload[app.PayloadKey] == "readonly"
}

func (t *TodoApp) Updated(payload app.Payload) {
	t.Edits++
}

func (t *TodoApp) Add(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	return app.Update(t, func() {
		t.NextId++
		item := &TodoItem{Id: t.NextId, Text: text}
		t.Items = append(t.Items, item)
		t.Draft = ""
		app.Attach(t.App(), item, t, false)
	}, app.Payload{app.PayloadKey: "add", app.PayloadValue: text})
}

func (t *TodoApp) Find(id int) *TodoItem {
	for _, item := range t.Items {
		if item.Id == id {
			return item
		}
	}
	return nil
}

func (t *TodoApp) Remove(id int) bool {
	item := t.Find(id)
	if item == nil {
		return false
	}
	return app.Update(t, func() {
		t.Items = removeItems(t.Items, func(i *TodoItem) bool { return i == item })
		app.Detach(item)
	}, app.Payload{app.PayloadKey: "remove", app.PayloadValue: id})
}

func (t *TodoApp) ClearDone() bool {
	if t.NumDone() == 0 {
		return false
	}
	return app.Update(t, func() {
		var removed []*TodoItem
		t.Items = removeItems(t.Items, func(i *TodoItem) bool {
			if i.Done {
				removed = append(removed, i)
			}
			return i.Done
		})
		for _, item := range removed {
			app.Detach(item)
		}
	}, app.Payload{app.PayloadKey: "clear"})
}

func (t *TodoApp) SetFilter(filter string) bool {
	switch filter {
	case FilterAll, FilterActive, FilterDone:
	default:
		return false
	}
	return app.Update(t, func() { t.Filter = filter }, app.Payload{app.PayloadKey: "filter", app.PayloadValue: filter})
}

func removeItems(items []*TodoItem, pred func(*TodoItem) bool) []*TodoItem {
	var rtn []*TodoItem
	for _, item := range items {
		if !pred(item) {
			rtn = append(rtn, item)
		}
	}
	return rtn
}

func (t *TodoApp) NumDone() int {
	count := 0
	for _, item := range t.Items {
		if item.Done {
			count++
		}
	}
	return count
}

func (t *TodoApp) Visible() []*TodoItem {
	var rtn []*TodoItem
	for _, item := range t.Items {
		switch {
		case t.Filter == FilterActive && item.Done:
		case t.Filter == FilterDone && !item.Done:
		default:
			rtn = append(rtn, item)
		}
	}
	return rtn
}

func (t *TodoApp) onInput(e *dom.Event) {
	app.UpdateProperty(t, "draft", e.Value)
}

func (t *TodoApp) onKeyDown(e *dom.Event) {
	if e.Key == "Enter" {
		t.Add(t.Draft)
	}
}

func (t *TodoApp) travel(undo bool) {
	a := t.App()
	if a == nil {
		return
	}
	if undo {
		a.Undo()
	} else {
		a.Redo()
	}
}

func (t *TodoApp) View() *vdom.VDomElem {
	var rows []any
	for _, item := range t.Visible() {
		rows = append(rows, item.row(t.FadeMs))
	}
	return vdom.H("div", map[string]any{"class": vdom.Classes("todoapp", vdom.IfElse(t.ReadOnly, "readonly", ""))},
		vdom.H("h1", nil, t.Title),
		vdom.H("div", map[string]any{"class": "entry"},
			vdom.H("input", map[string]any{
				"class":       "new-todo",
				"placeholder": "What needs to be done?",
				"value":       t.Draft,
				"disabled":    t.ReadOnly,
				"oninput":     t.onInput,
				"onkeydown":   t.onKeyDown,
			}),
			vdom.H("button", map[string]any{"class": "add", "onclick": func() { t.Add(t.Draft) }}, "add"),
		),
		vdom.H("ul", map[string]any{"class": "todo-list"}, rows),
		t.footer(),
	)
}

func (t *TodoApp) footer() *vdom.VDomElem {
	left := len(t.Items) - t.NumDone()
	leftStr := fmt.Sprintf("%d items left", left)
	if left == 1 {
		leftStr = "1 item left"
	}
	filters := vdom.ForEach(AllFilters, func(filter string, _ int) any {
		return vdom.H("button", map[string]any{
			"key":     filter,
			"class":   vdom.Classes("filter", vdom.IfElse(filter == t.Filter, "selected", "")),
			"onclick": func() { t.SetFilter(filter) },
		}, filter)
	})
	return vdom.Bind(`
		<footer class="footer">
			<span class="count"><bindparam key="left"/></span>
			<span class="filters"><bindparam key="filters"/></span>
			<button class="clear" onclick="#param:clear">clear done</button>
			<label class="lock"><input type="checkbox" checked="#param:readonly" onchange="#param:lock"/>read-only</label>
			<button class="undo" onclick="#param:undo">undo</button>
			<button class="redo" onclick="#param:redo">redo</button>
			<span class="edits"><bindparam key="edits"/></span>
		</footer>
	`, map[string]any{
		"left":     leftStr,
		"filters":  filters,
		"clear":    func() { t.ClearDone() },
		"readonly": t.ReadOnly,
		"lock": func(e *dom.Event) {
			app.Update(t, func() { t.ReadOnly = e.Checked }, app.Payload{app.PayloadKey: "readonly"})
		},
		"undo":  func() { t.travel(true) },
		"redo":  func() { t.travel(false) },
		"edits": fmt.Sprintf("edits:%d", t.Edits),
	})
}

func (item *TodoItem) Toggle() bool {
	return app.Update(item, func() { item.Done = !item.Done }, app.Payload{app.PayloadKey: "done"})
}

func (item *TodoItem) owner() *TodoApp {
	t, _ := item.Parent().(*TodoApp)
	return t
}

func (item *TodoItem) View() *vdom.VDomElem {
	return item.row(0)
}

func (item *TodoItem) row(fadeMs int) *vdom.VDomElem {
	li := vdom.H("li", map[string]any{
		"key":   fmt.Sprintf("todo-%d", item.Id),
		"class": vdom.Classes("todo", vdom.IfElse(item.Done, "done", "")),
	},
		vdom.H("input", map[string]any{
			"type":     "checkbox",
			"class":    "toggle",
			"checked":  item.Done,
			"onchange": func() { item.Toggle() },
		}),
		vdom.H("span", map[string]any{"class": "text"}, item.Text),
		vdom.H("button", map[string]any{
			"class": "remove",
			"onclick": func() {
				if t := item.owner(); t != nil {
					t.Remove(item.Id)
				}
			},
		}, "x"),
	)
	if fadeMs <= 0 {
		return li
	}
	return vdom.WithListener(li, func(el *dom.Node) vdom.Listener {
		return &fadeOut{el: el, delay: time.Duration(fadeMs) * time.Millisecond}
	})
}

const LeavingClass = "leaving"

// fadeOut keeps a removed row in the document for delay, marked with LeavingClass so the client
// can animate it.
type fadeOut struct {
	el    *dom.Node
	delay time.Duration
}

func (f *fadeOut) Remove() vdom.RemoveWait {
	cls, _ := f.el.GetAttribute("class")
	f.el.SetAttribute("class", vdom.Classes(cls, LeavingClass))
	return func(ctx context.Context) error {
		timer := time.NewTimer(f.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
