package hoststore

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Key is a record key. Valid keys are strings and float64 numbers; compound
// keys are not supported.
type Key = any

// NormalizeKey returns k as a string or float64, converting integer kinds
// and json.Number.
func NormalizeKey(k Key) (Key, error) {
	switch v := k.(type) {
	case string:
		return v, nil
	case float64:
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: NaN", ErrInvalidKey)
		}
		return v, nil
	case float32:
		return NormalizeKey(float64(v))
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return f, nil
	case nil:
		return nil, fmt.Errorf("%w: null", ErrInvalidKey)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidKey, k)
	}
}

// CompareKeys orders normalized keys: numbers before strings, numbers
// numerically, strings bytewise.
func CompareKeys(a, b Key) int {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	switch {
	case aNum && bNum:
		return cmp.Compare(af, bf)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return strings.Compare(as, bs)
}

// KeyString returns the display form of k, the one used to filter records.
func KeyString(k Key) string {
	switch v := k.(type) {
	case nil:
		return "null"
	case string:
		return v
	case float64:
		if math.IsInf(v, 1) {
			return "Infinity"
		}
		if math.IsInf(v, -1) {
			return "-Infinity"
		}
		if a := math.Abs(v); a != 0 && (a >= 1e21 || a < 1e-6) {
			s := strconv.FormatFloat(v, 'e', -1, 64)
			return strings.NewReplacer("e-0", "e-", "e+0", "e+").Replace(s)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// ExtractKey reads the key at the dotted keyPath inside value.
func ExtractKey(value any, keyPath string) (Key, error) {
	cur := value
	for _, part := range strings.Split(keyPath, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyPathMissing, keyPath)
		}
		if cur, ok = m[part]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyPathMissing, keyPath)
		}
	}
	k, err := NormalizeKey(cur)
	if err != nil {
		return nil, fmt.Errorf("key path %q: %w", keyPath, err)
	}
	return k, nil
}

// ResolvePutKey applies the key supply rules of a store: with a key path the
// key must be omitted and is read from value, without one it is mandatory.
func ResolvePutKey(keyPath string, value any, key Key) (Key, error) {
	if keyPath != "" {
		if key != nil {
			return nil, ErrKeyProvided
		}
		return ExtractKey(value, keyPath)
	}
	if key == nil {
		return nil, ErrMissingKey
	}
	return NormalizeKey(key)
}

// CloneValue returns a deep copy of a JSON-shaped value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = CloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = CloneValue(e)
		}
		return s
	default:
		return v
	}
}
