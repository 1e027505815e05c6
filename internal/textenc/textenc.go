// Package textenc detects and applies the text encoding of test artifacts.
// Reduction works on decoded text; candidates are re-encoded with the same
// codec before they are handed to the system under test.
package textenc

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Detect guesses the encoding of data and returns its canonical name. A byte
// order mark or an HTML meta declaration wins, then UTF-8 validity (plain
// ASCII included); anything else is windows-1252.
func Detect(data []byte) string {
	_, name, _ := charset.DetermineEncoding(data, "text/plain")
	if name == "windows-1252" && utf8.Valid(data) {
		return "utf-8"
	}
	return name
}

// Lookup resolves an encoding label (e.g. "utf-8", "latin1", "utf-16le").
func Lookup(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", name, err)
	}
	return enc, nil
}

// Canonical returns the canonical name of an encoding label.
func Canonical(name string) (string, error) {
	enc, err := Lookup(name)
	if err != nil {
		return "", err
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		return "", fmt.Errorf("encoding %q has no canonical name: %w", name, err)
	}
	return canonical, nil
}

// Decode converts data from the named encoding to UTF-8. An empty name
// triggers detection.
func Decode(data []byte, name string) ([]byte, error) {
	if name == "" {
		name = Detect(data)
	}
	enc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return out, nil
}

// Encode converts UTF-8 text to the named encoding.
func Encode(text []byte, name string) ([]byte, error) {
	if name == "" {
		name = "utf-8"
	}
	enc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	out, err := enc.NewEncoder().Bytes(text)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	return out, nil
}
