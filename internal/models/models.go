// Package models defines the core data structures used throughout the application.
package models

import (
	"encoding/json"
	"strconv"
)

// DatabaseDescriptor describes a database on the host. It may be stale as
// soon as it is returned.
type DatabaseDescriptor struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// StoreDescriptor describes an object store of the selected database.
type StoreDescriptor struct {
	Name string `json:"name"`
	// KeyPath is the dotted property path of inline keys, "" for out-of-line keys.
	KeyPath string `json:"key_path,omitempty"`
}

// Inline reports whether records of the store carry their own key.
func (s StoreDescriptor) Inline() bool {
	return s.KeyPath != ""
}

// TypeTag is the runtime type of a record value.
type TypeTag string

const (
	// TypeNull is the null value.
	TypeNull TypeTag = "null"
	// TypeArray is a JSON array.
	TypeArray TypeTag = "array"
	// TypeObject is a JSON object.
	TypeObject TypeTag = "object"
	// TypeString is a string.
	TypeString TypeTag = "string"
	// TypeNumber is a number.
	TypeNumber TypeTag = "number"
	// TypeBoolean is true or false.
	TypeBoolean TypeTag = "boolean"
	// TypeUndefined is anything else.
	TypeUndefined TypeTag = "undefined"
)

// Size is the serialized size of a value in bytes, when it could be computed.
type Size struct {
	Bytes int
	Known bool
}

// KnownSize returns a known size of n bytes.
func KnownSize(n int) Size {
	return Size{Bytes: n, Known: true}
}

func (s Size) String() string {
	if !s.Known {
		return "unknown"
	}
	return strconv.Itoa(s.Bytes) + " bytes"
}

// MarshalJSON encodes a known size as a number and an unknown one as "unknown".
func (s Size) MarshalJSON() ([]byte, error) {
	if !s.Known {
		return []byte(`"unknown"`), nil
	}
	return []byte(strconv.Itoa(s.Bytes)), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Size) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		*s = Size{}
		return nil
	}
	*s = KnownSize(n)
	return nil
}

// Record is one entry of the selected store. Records are rebuilt on every
// scan and never updated in place.
type Record struct {
	PrimaryKey any     `json:"primary_key"`
	Key        any     `json:"key"`
	Value      any     `json:"value"`
	Type       TypeTag `json:"type"`
	Size       Size    `json:"size"`
}
