// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"log"
	"reflect"
	"strings"

	"github.com/wavetermdev/pickle/pkg/metrics"
	"github.com/wavetermdev/pickle/pkg/panichandler"
	"github.com/wavetermdev/pickle/pkg/serial"
	"github.com/wavetermdev/pickle/pkg/util/valutil"
	"github.com/wavetermdev/pickle/pkg/vdom"
)

const (
	PayloadSource = "source"
	PayloadKey    = "key"
	PayloadValue  = "value"
)

// Payload describes an update.  "source" is always set to the component Update was called on.
type Payload map[string]any

func (p Payload) Source() Component {
	c, _ := p[PayloadSource].(Component)
	return c
}

// Component is a stateful node of the application tree.  Implementations embed Base and are
// used by pointer.
type Component interface {
	View() *vdom.VDomElem
	Children() []Component
	CompBase() *Base
}

// Attacher is notified the first time a component instance joins an app.  deserialized is
// true when the instance was rebuilt from stored state.
type Attacher interface {
	Attached(deserialized bool)
}

// UpdateGuard can veto an update of itself or any descendant by returning false.
type UpdateGuard interface {
	BeforeUpdate(payload Payload) bool
}

// UpdateListener observes every completed update of itself or any descendant.
type UpdateListener interface {
	Updated(payload Payload)
}

// Base carries the framework links of a component.  None of it is serialized; Attach restores
// the links after a load.
type Base struct {
	parent       Component
	app          *App
	attached     bool
	refreshQueue []func()
}

func init() {
	serial.ExcludeType(reflect.TypeOf(Base{}))
}

func (b *Base) CompBase() *Base {
	return b
}

// Children default: a leaf.
func (b *Base) Children() []Component {
	return nil
}

func (b *Base) Parent() Component {
	return b.parent
}

func (b *Base) App() *App {
	return b.app
}

func (b *Base) IsAttached() bool {
	return b.attached
}

// OnRefreshed runs fn once, after the next render that patches the document.
func (b *Base) OnRefreshed(fn func()) {
	if fn == nil {
		return
	}
	b.refreshQueue = append(b.refreshQueue, fn)
}

func isNilComponent(c Component) bool {
	if c == nil {
		return true
	}
	rv := reflect.ValueOf(c)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// ChildList builds a Children() result: individual components first, then the contents of
// any slices, nils dropped.
func ChildList(parts ...any) []Component {
	var singles []Component
	var fromSlices []Component
	for _, part := range parts {
		switch v := part.(type) {
		case nil:
			continue
		case Component:
			if !isNilComponent(v) {
				singles = append(singles, v)
			}
		case []Component:
			for _, c := range v {
				if !isNilComponent(c) {
					fromSlices = append(fromSlices, c)
				}
			}
		default:
			rv := reflect.ValueOf(part)
			if rv.Kind() != reflect.Slice {
				continue
			}
			for i := 0; i < rv.Len(); i++ {
				if c, ok := rv.Index(i).Interface().(Component); ok && !isNilComponent(c) {
					fromSlices = append(fromSlices, c)
				}
			}
		}
	}
	return append(singles, fromSlices...)
}

// Children returns c's children without nils and without c's own parent (a component may
// list its parent among its references).
func Children(c Component) []Component {
	parent := c.CompBase().parent
	var rtn []Component
	for _, child := range c.Children() {
		if isNilComponent(child) || child == c {
			continue
		}
		if parent != nil && child == parent {
			continue
		}
		rtn = append(rtn, child)
	}
	return rtn
}

// Branch returns c and its ancestors, closest first.
func Branch(c Component) []Component {
	var rtn []Component
	for cur := c; !isNilComponent(cur); cur = cur.CompBase().parent {
		rtn = append(rtn, cur)
	}
	return rtn
}

func Root(c Component) Component {
	branch := Branch(c)
	if len(branch) == 0 {
		return nil
	}
	return branch[len(branch)-1]
}

// Attach links c (and, recursively, its children) into app a below parent.  Attached fires
// after the children are attached, and only the first time an instance is attached.
func Attach(a *App, c Component, parent Component, deserialized bool) {
	b := c.CompBase()
	firstTime := !b.attached
	b.parent = parent
	b.app = a
	for _, child := range Children(c) {
		Attach(a, child, c, deserialized)
	}
	if !firstTime {
		return
	}
	b.attached = true
	if at, ok := c.(Attacher); ok {
		panichandler.Call("Attached", func() {
			at.Attached(deserialized)
		})
	}
}

// Detach clears the framework links of c and its children.  A later Attach does not fire
// Attached again.
func Detach(c Component) {
	for _, child := range Children(c) {
		Detach(child)
	}
	b := c.CompBase()
	b.parent = nil
	b.app = nil
	b.refreshQueue = nil
}

// Update runs mutator as an update of c.  Guards along c's branch may veto it (Update then
// returns false and mutator never runs).  Listeners along the branch are told afterwards.  The
// outermost update of an attached component snapshots the app and schedules a render; nested
// updates only change state.
func Update(c Component, mutator func(), payload Payload) bool {
	if payload == nil {
		payload = Payload{}
	}
	payload[PayloadSource] = c
	a := c.CompBase().app
	if a != nil {
		a.checkLoop("Update")
		a.activeUpdates.Add(1)
	}
	ok := func() bool {
		if a != nil {
			defer a.activeUpdates.Add(-1)
		}
		for _, bc := range Branch(c) {
			if guard, ok := bc.(UpdateGuard); ok && !guard.BeforeUpdate(payload) {
				return false
			}
		}
		if mutator != nil {
			mutator()
		}
		for _, bc := range Branch(c) {
			if listener, ok := bc.(UpdateListener); ok {
				listener.Updated(payload)
			}
		}
		return true
	}()
	if !ok {
		return false
	}
	if a != nil && a.activeUpdates.Load() == 0 {
		metrics.IncUpdates()
		a.Snapshot()
		a.Refresh()
	}
	return true
}

func findField(c Component, key string) (reflect.Value, error) {
	rv := reflect.ValueOf(c)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("component %T is not a struct pointer", c)
	}
	sv := rv.Elem()
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" && strings.EqualFold(tagName, key) {
				return sv.Field(i), nil
			}
		}
		if strings.EqualFold(name, key) {
			return sv.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("component %T has no field %q", c, key)
}

// UpdateProperty sets the field named key (json tag or field name, case-insensitive) to value
// parsed against the field's type, as an Update with a key/value payload.
func UpdateProperty(c Component, key string, value string) error {
	field, err := findField(c, key)
	if err != nil {
		return err
	}
	parsed, err := valutil.ParseTyped(value, field.Type())
	if err != nil {
		return fmt.Errorf("setting %T.%s: %w", c, key, err)
	}
	if !parsed.Type().AssignableTo(field.Type()) {
		if !parsed.Type().ConvertibleTo(field.Type()) {
			return fmt.Errorf("setting %T.%s: cannot assign %s", c, key, parsed.Type())
		}
		parsed = parsed.Convert(field.Type())
	}
	if !Update(c, func() { field.Set(parsed) }, Payload{PayloadKey: key, PayloadValue: value}) {
		log.Printf("[app] update of %T.%s vetoed\n", c, key)
	}
	return nil
}

// runRefreshes drains the OnRefreshed queues, children before parents.
func runRefreshes(c Component) {
	for _, child := range Children(c) {
		runRefreshes(child)
	}
	b := c.CompBase()
	for len(b.refreshQueue) > 0 {
		fn := b.refreshQueue[0]
		b.refreshQueue = b.refreshQueue[1:]
		panichandler.Call("OnRefreshed", fn)
	}
	b.refreshQueue = nil
}
