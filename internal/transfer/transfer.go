// Package transfer validates text entering the edit buffer and serializes the
// buffer back out as a file.
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/hoststore"
)

// Artifact is an exported file.
type Artifact struct {
	Name string
	Data []byte
}

// Parse decodes text as a single JSON document.
func Parse(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apierrors.InvalidFormat(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, apierrors.InvalidFormat(fmt.Errorf("unexpected data after JSON value at offset %d", dec.InputOffset()))
	}
	return v, nil
}

// Format returns the canonical form of v: indented by two spaces, without
// HTML escaping or trailing newline.
func Format(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// FileName returns the export file name of a record; a record without a key
// gets a placeholder.
func FileName(key hoststore.Key) string {
	if key == nil {
		return "record_new.json"
	}
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(hoststore.KeyString(key))
	return "record_" + name + ".json"
}

// Export validates buffer and returns it as a downloadable file named after key.
func Export(buffer string, key hoststore.Key) (Artifact, error) {
	v, err := Parse(buffer)
	if err != nil {
		return Artifact{}, err
	}
	text, err := Format(v)
	if err != nil {
		return Artifact{}, apierrors.InvalidFormat(err)
	}
	return Artifact{Name: FileName(key), Data: []byte(text)}, nil
}

// Import validates the content of a file and returns the text that replaces
// the edit buffer.
func Import(text string) (string, error) {
	v, err := Parse(text)
	if err != nil {
		return "", err
	}
	out, err := Format(v)
	if err != nil {
		return "", apierrors.InvalidFormat(err)
	}
	return out, nil
}
