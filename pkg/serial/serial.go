// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package serial converts trees of registered struct types to plain values (maps, slices,
// scalars) and back.  Every registered struct is written with a "$type" tag so interface and
// pointer fields come back as the right concrete type.
package serial

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
)

const TypeKeyName = "$type"

var excludeLock = &sync.Mutex{}
var excludedTypes = make(map[reflect.Type]bool)

// ExcludeType marks a type whose fields are never serialized (framework-owned state embedded
// in user structs).
func ExcludeType(t reflect.Type) {
	excludeLock.Lock()
	defer excludeLock.Unlock()
	excludedTypes[derefType(t)] = true
}

func isExcluded(t reflect.Type) bool {
	excludeLock.Lock()
	defer excludeLock.Unlock()
	return excludedTypes[derefType(t)]
}

func derefType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

type Registry struct {
	lock   sync.Mutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

func MakeRegistry() *Registry {
	return &Registry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
}

var DefaultRegistry = MakeRegistry()

func Register(name string, sample any) {
	DefaultRegistry.Register(name, sample)
}

// Register maps name to the struct type of sample (a struct or pointer to struct).
// Registering a name or type twice panics.
func (r *Registry) Register(name string, sample any) {
	rtype := derefType(reflect.TypeOf(sample))
	if rtype == nil || rtype.Kind() != reflect.Struct {
		panic(fmt.Sprintf("serial: can only register struct types, got %T", sample))
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.byName[name] != nil {
		panic(fmt.Sprintf("serial: duplicate registration of %q", name))
	}
	if existing, ok := r.byType[rtype]; ok {
		panic(fmt.Sprintf("serial: %v already registered as %q", rtype, existing))
	}
	r.byName[name] = rtype
	r.byType[rtype] = name
}

func (r *Registry) TypeName(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	name, ok := r.byType[derefType(reflect.TypeOf(v))]
	return name, ok
}

func (r *Registry) lookupName(name string) reflect.Type {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.byName[name]
}

func (r *Registry) lookupType(t reflect.Type) (string, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	name, ok := r.byType[t]
	return name, ok
}

func (r *Registry) Marshal(v any) ([]byte, error) {
	plain, err := r.ToPlain(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(plain)
}

func (r *Registry) Unmarshal(data []byte) (any, error) {
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("parsing serialized state: %w", err)
	}
	return r.FromPlain(plain)
}

// UnmarshalAs unmarshals and checks the result type.
func UnmarshalAs[T any](r *Registry, data []byte) (T, error) {
	var zero T
	obj, err := r.Unmarshal(data)
	if err != nil {
		return zero, err
	}
	rtn, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("type mismatch got %T, expected %T", obj, zero)
	}
	return rtn, nil
}

// ToPlain converts v into maps/slices/scalars.  Pointers already on the current path are
// reported as an error instead of recursing forever.
func (r *Registry) ToPlain(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return r.toPlain(reflect.ValueOf(v), make(map[uintptr]bool))
}

func (r *Registry) toPlain(val reflect.Value, path map[uintptr]bool) (any, error) {
	switch val.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Pointer:
		if val.IsNil() {
			return nil, nil
		}
		ptr := val.Pointer()
		if path[ptr] {
			return nil, fmt.Errorf("cycle through %v", val.Type())
		}
		path[ptr] = true
		defer delete(path, ptr)
		return r.toPlain(val.Elem(), path)
	case reflect.Interface:
		if val.IsNil() {
			return nil, nil
		}
		return r.toPlain(val.Elem(), path)
	case reflect.Struct:
		return r.structToPlain(val, path)
	case reflect.Slice:
		if val.IsNil() {
			return nil, nil
		}
		fallthrough
	case reflect.Array:
		rtn := make([]any, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			elem, err := r.toPlain(val.Index(i), path)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			rtn = append(rtn, elem)
		}
		return rtn, nil
	case reflect.Map:
		if val.IsNil() {
			return nil, nil
		}
		if val.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %v is not a string", val.Type().Key())
		}
		rtn := make(map[string]any, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			elem, err := r.toPlain(iter.Value(), path)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			rtn[iter.Key().String()] = elem
		}
		return rtn, nil
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, nil
	}
	return val.Interface(), nil
}

func (r *Registry) structToPlain(val reflect.Value, path map[uintptr]bool) (map[string]any, error) {
	rtype := val.Type()
	rtn := make(map[string]any)
	if name, ok := r.lookupType(rtype); ok {
		rtn[TypeKeyName] = name
	}
	for idx := 0; idx < rtype.NumField(); idx++ {
		field := rtype.Field(idx)
		if field.PkgPath != "" {
			// private
			continue
		}
		fieldName := getFieldName(field)
		if fieldName == "" || isExcluded(field.Type) {
			continue
		}
		switch derefType(field.Type).Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue
		}
		plain, err := r.toPlain(val.Field(idx), path)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", rtype.Name(), field.Name, err)
		}
		rtn[fieldName] = plain
	}
	return rtn, nil
}

func getFieldName(field reflect.StructField) string {
	jsonTag := field.Tag.Get("json")
	if jsonTag != "" {
		namePart, _, _ := strings.Cut(jsonTag, ",")
		if namePart == "-" {
			return ""
		}
		if namePart != "" {
			return namePart
		}
	}
	return field.Name
}

// FromPlain rebuilds values produced by ToPlain.  Maps carrying a registered "$type" become
// pointers to that struct type; everything else is returned as is.
func (r *Registry) FromPlain(plain any) (any, error) {
	switch p := plain.(type) {
	case map[string]any:
		if _, ok := p[TypeKeyName]; ok {
			return r.decodeTyped(p)
		}
		rtn := make(map[string]any, len(p))
		for k, v := range p {
			elem, err := r.FromPlain(v)
			if err != nil {
				return nil, err
			}
			rtn[k] = elem
		}
		return rtn, nil
	case []any:
		rtn := make([]any, len(p))
		for i, v := range p {
			elem, err := r.FromPlain(v)
			if err != nil {
				return nil, err
			}
			rtn[i] = elem
		}
		return rtn, nil
	}
	return plain, nil
}

func (r *Registry) decodeTyped(m map[string]any) (any, error) {
	typeName, ok := m[TypeKeyName].(string)
	if !ok {
		return nil, fmt.Errorf("%s is not a string", TypeKeyName)
	}
	rtype := r.lookupName(typeName)
	if rtype == nil {
		return nil, fmt.Errorf("unknown type %q", typeName)
	}
	objVal := reflect.New(rtype)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: r.decodeHook,
		Result:     objVal.Interface(),
		TagName:    "json",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(m); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", typeName, err)
	}
	return objVal.Interface(), nil
}

// decodeHook turns tagged maps into concrete registered values wherever the destination is a
// pointer or interface (struct-valued destinations are decoded in place by mapstructure).
func (r *Registry) decodeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	if _, hasType := m[TypeKeyName]; !hasType {
		return data, nil
	}
	if to.Kind() != reflect.Pointer && to.Kind() != reflect.Interface {
		return data, nil
	}
	obj, err := r.decodeTyped(m)
	if err != nil {
		return nil, err
	}
	if !reflect.TypeOf(obj).AssignableTo(to) {
		return nil, fmt.Errorf("%s %q cannot be assigned to %v", TypeKeyName, m[TypeKeyName], to)
	}
	return obj, nil
}
