// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package valutil holds loosely typed value helpers: numeric comparison across Go number types
// and parsing user-entered strings against the type of an existing value.
package valutil

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

// ValEqual is a shallow equal where numbers of different Go types compare by value and
// slices/maps compare by identity.
func ValEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	typeA := reflect.TypeOf(a)
	typeB := reflect.TypeOf(b)
	if typeA == typeB && typeA.Comparable() {
		return a == b
	}
	if fa, ok := ToFloat64(a); ok {
		fb, ok := ToFloat64(b)
		return ok && fa == fb
	}
	if typeA != typeB {
		return false
	}
	valA := reflect.ValueOf(a)
	valB := reflect.ValueOf(b)
	switch valA.Kind() {
	case reflect.Slice, reflect.Map, reflect.Func, reflect.Pointer:
		return valA.Pointer() == valB.Pointer()
	}
	return false
}

func IsNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func IsNumeric(val any) bool {
	return val != nil && IsNumericKind(reflect.TypeOf(val).Kind())
}

func ToFloat64(val any) (float64, bool) {
	if val == nil {
		return 0, false
	}
	rv := reflect.ValueOf(val)
	switch {
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	case rv.CanFloat():
		return rv.Float(), true
	}
	return 0, false
}

func ToInt64(val any) (int64, bool) {
	if val == nil {
		return 0, false
	}
	rv := reflect.ValueOf(val)
	switch {
	case rv.CanInt():
		return rv.Int(), true
	case rv.CanUint():
		return int64(rv.Uint()), true
	case rv.CanFloat():
		return int64(rv.Float()), true
	}
	return 0, false
}

// FuzzyEquals treats nil and "" as equal, and numeric strings as equal when they parse to the
// same number ("1" and "1.0").
func FuzzyEquals(x, y any) bool {
	if ValEqual(x, y) {
		return true
	}
	if isNullOrEmpty(x) && isNullOrEmpty(y) {
		return true
	}
	xs, xok := x.(string)
	ys, yok := y.(string)
	if !xok || !yok {
		return false
	}
	xf, xerr := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	yf, yerr := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	return xerr == nil && yerr == nil && xf == yf
}

func isNullOrEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// ParseTyped converts s to a value of type guide: numbers are parsed, bools accept anything
// strconv.ParseBool does (plus "" as false), strings pass through.  Pointer guides parse
// into a newly allocated element.
func ParseTyped(s string, guide reflect.Type) (reflect.Value, error) {
	if guide == nil {
		return reflect.ValueOf(s), nil
	}
	if guide.Kind() == reflect.Pointer {
		elem, err := ParseTyped(s, guide.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(guide.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}
	rtn := reflect.New(guide).Elem()
	s = strings.TrimSpace(s)
	switch guide.Kind() {
	case reflect.String:
		rtn.SetString(s)
	case reflect.Bool:
		if s == "" {
			return rtn, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot parse %q as bool", s)
		}
		rtn.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, guide.Bits())
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return reflect.Value{}, fmt.Errorf("cannot parse %q as %s", s, guide)
			}
			n = int64(f)
		}
		rtn.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, guide.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot parse %q as %s", s, guide)
		}
		rtn.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, guide.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot parse %q as %s", s, guide)
		}
		rtn.SetFloat(f)
	case reflect.Interface:
		return reflect.ValueOf(s), nil
	default:
		return reflect.Value{}, fmt.Errorf("cannot assign a string to a %s", guide)
	}
	return rtn, nil
}

// ExpandHomeDir expands a leading "~" to the user's home directory.
func ExpandHomeDir(pathStr string) string {
	if pathStr != "~" && !strings.HasPrefix(pathStr, "~/") {
		return pathStr
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return pathStr
	}
	if pathStr == "~" {
		return homeDir
	}
	return filepath.Join(homeDir, pathStr[2:])
}
