// Package catalog builds the record list of a store from a cursor stream and
// filters it by key.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strings"

	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/models"
)

// TypeOf returns the type tag of a record value.
func TypeOf(v any) models.TypeTag {
	switch v.(type) {
	case nil:
		return models.TypeNull
	case []any:
		return models.TypeArray
	case map[string]any:
		return models.TypeObject
	case string:
		return models.TypeString
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return models.TypeNumber
	case bool:
		return models.TypeBoolean
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return models.TypeArray
	case reflect.Map, reflect.Struct:
		return models.TypeObject
	}
	return models.TypeUndefined
}

// marshal encodes v as compact JSON without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// SizeOf returns the length of the compact JSON encoding of v, or an unknown
// size when v cannot be encoded.
func SizeOf(v any) models.Size {
	b, err := marshal(v)
	if err != nil {
		return models.Size{}
	}
	return models.KnownSize(len(b))
}

// NewRecord tags a cursor entry.
func NewRecord(e hoststore.Entry) models.Record {
	return models.Record{
		PrimaryKey: e.PrimaryKey,
		Key:        e.Key,
		Value:      e.Value,
		Type:       TypeOf(e.Value),
		Size:       SizeOf(e.Value),
	}
}

// Load consumes a scan and returns its records in order. On error it returns
// the records read so far along with the error.
func Load(seq iter.Seq2[hoststore.Entry, error]) ([]models.Record, error) {
	var out []models.Record
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, NewRecord(e))
	}
	return out, nil
}

// Matches reports whether the key of r contains query, ignoring case.
func Matches(r models.Record, query string) bool {
	return strings.Contains(strings.ToLower(hoststore.KeyString(r.Key)), strings.ToLower(query))
}

// Filter returns the records whose key contains query, in their original
// order. An empty query returns every record.
func Filter(records []models.Record, query string) []models.Record {
	if query == "" {
		return slices.Clone(records)
	}
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if Matches(r, query) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the index of the record with key, or -1.
func Find(records []models.Record, key hoststore.Key) int {
	k, err := hoststore.NormalizeKey(key)
	if err != nil {
		return -1
	}
	return slices.IndexFunc(records, func(r models.Record) bool {
		return hoststore.CompareKeys(r.Key, k) == 0
	})
}

// Summary returns the record count line shown above the list.
func Summary(filtered, total int) string {
	return fmt.Sprintf("%d of %d records", filtered, total)
}

// DetailJSON renders a value for the detail view: indented JSON with the
// top-level keys of an object sorted and "data" moved last.
func DetailJSON(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	if len(m) == 0 {
		return "{}", nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == "data":
			return 1
		case b == "data":
			return -1
		}
		return strings.Compare(a, b)
	})
	var buf strings.Builder
	buf.WriteString("{\n")
	for i, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		val, err := json.MarshalIndent(m[k], "  ", "  ")
		if err != nil {
			return "", err
		}
		buf.WriteString("  ")
		buf.Write(name)
		buf.WriteString(": ")
		buf.Write(val)
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	return buf.String(), nil
}
