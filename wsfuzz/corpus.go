package wsfuzz

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// EscapeFunc makes a raw payload safe to splice into a message template
type EscapeFunc func(payload string) string

// JSONEscape escapes double quotes so payloads fit inside JSON string values
func JSONEscape(payload string) string {
	return strings.ReplaceAll(payload, `"`, `\"`)
}

// NoEscape passes payloads through unchanged
func NoEscape(payload string) string {
	return payload
}

var escapers = map[string]EscapeFunc{
	"json": JSONEscape,
	"none": NoEscape,
}

// EscapeByName looks up a registered escape transform
func EscapeByName(name string) (EscapeFunc, error) {
	if fn, ok := escapers[strings.ToLower(name)]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("%w: unknown escape %q (available: %s)", ErrConfig, name, strings.Join(EscapeNames(), ", "))
}

// EscapeNames lists the registered escape transforms
func EscapeNames() []string {
	names := make([]string, 0, len(escapers))
	for name := range escapers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseCorpus reads one payload per line, keeping order and duplicates.
// Only the line terminator is removed; surrounding whitespace is payload content.
// A CRLF terminator is removed whole, so a single trailing carriage return is
// never part of a payload. A line longer than MaxLineSize fails the whole load
// with ErrIO.
func ParseCorpus(r io.Reader, escape EscapeFunc) ([]string, error) {
	if escape == nil {
		escape = JSONEscape
	}

	var payloads []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for scanner.Scan() {
		payloads = append(payloads, escape(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	return payloads, nil
}

// LoadCorpus reads and escapes a payload file
func LoadCorpus(path string, escape EscapeFunc) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: payload file: %v", ErrIO, err)
	}
	defer f.Close()

	return ParseCorpus(f, escape)
}
