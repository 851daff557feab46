// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package vdom

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/wavetermdev/pickle/pkg/dom"
)

// Node types = nil | string | number | *VDomElem | VDomElem | []any (any depth)

func (e *VDomElem) IsText() bool {
	return e != nil && e.Tag == TextTag
}

func (e *VDomElem) Key() string {
	if e == nil || e.Tag == TextTag {
		return ""
	}
	keyVal, ok := e.Props[KeyPropKey]
	if !ok || keyVal == nil {
		return ""
	}
	switch k := keyVal.(type) {
	case string:
		return k
	case int:
		return strconv.Itoa(k)
	}
	return fmt.Sprint(keyVal)
}

// WithKey returns a copy of e with the given key.
func (e *VDomElem) WithKey(key string) *VDomElem {
	if e == nil {
		return nil
	}
	rtn := *e
	rtn.Props = copyProps(e.Props)
	rtn.Props[KeyPropKey] = key
	return &rtn
}

// WithHooks returns a copy of e whose hooks are the existing hooks combined with l
// (existing hooks fire first).
func (e *VDomElem) WithHooks(l *Lifecycle) *VDomElem {
	if e == nil {
		return nil
	}
	rtn := *e
	rtn.Hooks = Combine(e.Hooks, l)
	return &rtn
}

func copyProps(props map[string]any) map[string]any {
	rtn := make(map[string]any, len(props)+1)
	for k, v := range props {
		rtn[k] = v
	}
	return rtn
}

func TextElem(text string) *VDomElem {
	return &VDomElem{Tag: TextTag, Text: text}
}

// H builds an element descriptor for a tag.
func H(tag string, props map[string]any, children ...any) *VDomElem {
	rtn := &VDomElem{Tag: tag}
	if len(props) > 0 {
		rtn.Props = make(map[string]any, len(props))
		for k, v := range props {
			if k == HooksPropKey {
				rtn.Hooks = Combine(rtn.Hooks, toLifecycle(v))
				continue
			}
			rtn.Props[k] = v
		}
	}
	for _, part := range children {
		rtn.Children = append(rtn.Children, PartToElems(part)...)
	}
	return rtn
}

// CreateNode builds a descriptor from a tag name or invokes a functional component with the
// props and the flattened children.  Any other tagOrFn type is a programmer error.
func CreateNode(tagOrFn any, props map[string]any, children ...any) *VDomElem {
	switch t := tagOrFn.(type) {
	case string:
		return H(t, props, children...)
	case FuncComponent:
		return t(nonNilProps(props), flattenParts(children))
	case func(map[string]any, []*VDomElem) *VDomElem:
		return t(nonNilProps(props), flattenParts(children))
	}
	panic(fmt.Sprintf("vdom.CreateNode: invalid tag type %T", tagOrFn))
}

func nonNilProps(props map[string]any) map[string]any {
	if props == nil {
		return make(map[string]any)
	}
	return props
}

func flattenParts(parts []any) []*VDomElem {
	var rtn []*VDomElem
	for _, part := range parts {
		rtn = append(rtn, PartToElems(part)...)
	}
	return rtn
}

func toLifecycle(v any) *Lifecycle {
	switch l := v.(type) {
	case *Lifecycle:
		return l
	case Lifecycle:
		return &l
	}
	panic(fmt.Sprintf("vdom: %q prop must be a Lifecycle, got %T", HooksPropKey, v))
}

func If(cond bool, part any) any {
	if cond {
		return part
	}
	return nil
}

func IfElse(cond bool, part any, elsePart any) any {
	if cond {
		return part
	}
	return elsePart
}

func ForEach[T any](items []T, fn func(T, int) any) []any {
	elems := make([]any, 0, len(items))
	for idx, item := range items {
		elems = append(elems, fn(item, idx))
	}
	return elems
}

func Classes(classes ...any) string {
	var parts []string
	for _, class := range classes {
		if c, ok := class.(string); ok && c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// MergeAttrs returns a new props map with recessive's entries overridden by dominant's.
func MergeAttrs(dominant map[string]any, recessive map[string]any) map[string]any {
	rtn := make(map[string]any, len(dominant)+len(recessive))
	for k, v := range recessive {
		rtn[k] = v
	}
	for k, v := range dominant {
		rtn[k] = v
	}
	return rtn
}

// PartToElems flattens a child part into descriptors.  Slices are flattened recursively and in
// order; nil entries and booleans are dropped; strings and numbers become text leaves.
func PartToElems(part any) []*VDomElem {
	if part == nil {
		return nil
	}
	switch p := part.(type) {
	case string:
		return []*VDomElem{TextElem(p)}
	case bool:
		return nil
	case *VDomElem:
		if p == nil {
			return nil
		}
		return []*VDomElem{p}
	case VDomElem:
		return []*VDomElem{&p}
	case []*VDomElem:
		var rtn []*VDomElem
		for _, e := range p {
			if e != nil {
				rtn = append(rtn, e)
			}
		}
		return rtn
	case []any:
		return flattenParts(p)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return []*VDomElem{TextElem(fmt.Sprint(p))}
	}
	partVal := reflect.ValueOf(part)
	switch partVal.Kind() {
	case reflect.Slice, reflect.Array:
		var rtn []*VDomElem
		for i := 0; i < partVal.Len(); i++ {
			rtn = append(rtn, PartToElems(partVal.Index(i).Interface())...)
		}
		return rtn
	case reflect.Pointer, reflect.Interface:
		if partVal.IsNil() {
			return nil
		}
	}
	return []*VDomElem{TextElem(fmt.Sprint(part))}
}

// ToHandler converts the supported event handler shapes to a dom.EventHandler.
// Returns nil if v is not a handler.
func ToHandler(v any) dom.EventHandler {
	switch fn := v.(type) {
	case dom.EventHandler:
		return fn
	case func(*dom.Event):
		return fn
	case func():
		return func(*dom.Event) { fn() }
	}
	return nil
}

// IsFuncProp reports whether a prop value is function valued (assigned as a handler
// property instead of an attribute).
func IsFuncProp(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Kind() == reflect.Func
}
