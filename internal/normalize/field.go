package normalize

import (
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Field describes where a record field may be found in a raw tuple.
type Field struct {
	Name    string   // primary named accessor
	Aliases []string // alternative accessor names, tried after Name
	Index   int      // positional index; -1 when the field has no position
}

// Coercer converts a raw value into T, reporting false when it cannot.
type Coercer[T any] func(v any) (T, bool)

// Resolve returns the first candidate for f that coerces to T, trying the
// named accessors before the positional index, and def when none does.
func Resolve[T any](t Tuple, f Field, coerce Coercer[T], def T) T {
	for _, name := range append([]string{f.Name}, f.Aliases...) {
		if raw, ok := t.Named(name); ok {
			if v, ok := coerce(raw); ok {
				return v
			}
		}
	}
	if f.Index >= 0 {
		if raw, ok := t.At(f.Index); ok {
			if v, ok := coerce(raw); ok {
				return v
			}
		}
	}
	return def
}

// String accepts any string-kinded value.
func String(v any) (string, bool) {
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

// BigInt accepts *big.Int, big.Int, Go integers, and decimal or 0x-prefixed
// hex strings. Floats are rejected since they cannot be converted exactly.
func BigInt(v any) (*big.Int, bool) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, false
		}
		return new(big.Int).Set(x), true
	case big.Int:
		return new(big.Int).Set(&x), true
	case json.Number:
		return parseIntString(string(x))
	}

	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Int).SetUint64(rv.Uint()), true
	case reflect.String:
		return parseIntString(rv.String())
	}
	return nil, false
}

// NonNegativeBigInt is BigInt restricted to values >= 0.
func NonNegativeBigInt(v any) (*big.Int, bool) {
	b, ok := BigInt(v)
	if !ok || b.Sign() < 0 {
		return nil, false
	}
	return b, true
}

// Uint64 accepts anything BigInt does that fits in a uint64.
func Uint64(v any) (uint64, bool) {
	b, ok := BigInt(v)
	if !ok || !b.IsUint64() {
		return 0, false
	}
	return b.Uint64(), true
}

// Int accepts anything BigInt does that fits in an int.
func Int(v any) (int, bool) {
	b, ok := BigInt(v)
	if !ok || !b.IsInt64() {
		return 0, false
	}
	n := b.Int64()
	if n > math.MaxInt || n < math.MinInt {
		return 0, false
	}
	return int(n), true
}

// Address accepts common.Address values and well-formed hex address strings,
// returning the EIP-55 checksummed form.
func Address(v any) (string, bool) {
	switch x := v.(type) {
	case common.Address:
		return x.Hex(), true
	case *common.Address:
		if x == nil {
			return "", false
		}
		return x.Hex(), true
	case [common.AddressLength]byte:
		return common.Address(x).Hex(), true
	}
	s, ok := String(v)
	if !ok || !common.IsHexAddress(s) {
		return "", false
	}
	return common.HexToAddress(s).Hex(), true
}

// StringList accepts a list whose every element coerces with String.
func StringList(v any) ([]string, bool) {
	return listOf(v, String)
}

// AddressList accepts a list whose every element coerces with Address.
func AddressList(v any) ([]string, bool) {
	return listOf(v, Address)
}

func listOf(v any, elem Coercer[string]) ([]string, bool) {
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, ok := elem(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func parseIntString(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	base := 10
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base, s = 16, s[2:]
	}
	b, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, false
	}
	if neg {
		b.Neg(b)
	}
	return b, true
}
