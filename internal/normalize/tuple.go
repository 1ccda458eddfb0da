// Package normalize decodes raw ledger tuples into domain records.
//
// A ledger response may arrive as a plain positional list, as a struct whose
// exported fields act as named accessors (the shape go-ethereum's ABI decoder
// produces for tuple outputs), as a string-keyed map, or any mix of these.
// Every field is resolved independently: the named accessor first, then the
// positional index, then a documented default. Decoding never fails; a value
// that cannot be coerced to the field's type falls through to the next
// candidate and finally to the default.
package normalize

import (
	"reflect"
	"strings"
)

// Tuple is a raw record viewed both positionally and by name.
type Tuple struct {
	values []any
	named  map[string]any
}

// TupleOf wraps raw in a Tuple. Slices and arrays contribute positional
// values, maps contribute named values, and structs contribute both (field
// order for positions, field names and json/abi tags for names). Anything else
// yields an empty Tuple.
func TupleOf(raw any) Tuple {
	if t, ok := raw.(Tuple); ok {
		return t
	}
	if t, ok := raw.(*Tuple); ok && t != nil {
		return *t
	}

	v := indirect(reflect.ValueOf(raw))
	if !v.IsValid() {
		return Tuple{}
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return Tuple{} // raw bytes are a value, not a record
		}
		t := Tuple{values: make([]any, v.Len())}
		for i := 0; i < v.Len(); i++ {
			t.values[i] = v.Index(i).Interface()
		}
		return t

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return Tuple{}
		}
		t := Tuple{named: make(map[string]any, v.Len())}
		iter := v.MapRange()
		for iter.Next() {
			t.named[accessorKey(iter.Key().String())] = iter.Value().Interface()
		}
		return t

	case reflect.Struct:
		typ := v.Type()
		t := Tuple{named: make(map[string]any, typ.NumField())}
		for i := 0; i < typ.NumField(); i++ {
			sf := typ.Field(i)
			if !sf.IsExported() {
				continue
			}
			fv := v.Field(i).Interface()
			t.values = append(t.values, fv)
			t.named[accessorKey(sf.Name)] = fv
			for _, tag := range []string{"json", "abi"} {
				if name, _, _ := strings.Cut(sf.Tag.Get(tag), ","); name != "" && name != "-" {
					t.named[accessorKey(name)] = fv
				}
			}
		}
		return t
	}
	return Tuple{}
}

// Len returns the number of positional values.
func (t Tuple) Len() int { return len(t.values) }

// Named returns the value of the named accessor, if present and non-nil.
// Names are matched case-insensitively and ignore a leading underscore, so
// "_propertyTitle", "propertyTitle" and "PropertyTitle" are the same accessor.
func (t Tuple) Named(name string) (any, bool) {
	if t.named == nil || name == "" {
		return nil, false
	}
	v, ok := t.named[accessorKey(name)]
	if !ok || isNil(v) {
		return nil, false
	}
	return v, true
}

// At returns the positional value at i, if present and non-nil.
func (t Tuple) At(i int) (any, bool) {
	if i < 0 || i >= len(t.values) {
		return nil, false
	}
	v := t.values[i]
	if isNil(v) {
		return nil, false
	}
	return v, true
}

// Items flattens a list-shaped raw value (a slice of tuples, as returned for
// tuple[] outputs) into its elements. Non-list input yields nil.
func Items(raw any) []any {
	v := indirect(reflect.ValueOf(raw))
	if !v.IsValid() {
		return nil
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil
	}
	if v.Type().Elem().Kind() == reflect.Uint8 {
		return nil
	}
	out := make([]any, v.Len())
	for i := range out {
		out[i] = v.Index(i).Interface()
	}
	return out
}

func accessorKey(name string) string {
	return strings.ToLower(strings.TrimLeft(name, "_"))
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
