package wsfuzz

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// PreMessageTag prefixes a line that is sent unmodified before the next fuzzable line
	PreMessageTag = "PRE_MESSAGE"
	// Placeholder is replaced with each payload in a fuzzable line
	Placeholder = "FUZZ_VALUE"

	MaxLineSize = 4 * 1024 * 1024 // 4MB max line in message and payload files
)

// MessageKind tells preconditions and fuzzable lines apart
type MessageKind int

const (
	KindPrecondition MessageKind = iota
	KindFuzzable
)

func (k MessageKind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindFuzzable:
		return "fuzzable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one line of a message file
type Message struct {
	Kind MessageKind
	Text string
	Line int // 1-based, counted over every line of the source
}

// FuzzTemplate is a fuzzable line together with the preconditions that precede it.
// Preconditions is a private snapshot and is never shared between templates.
type FuzzTemplate struct {
	Text          string
	Line          int
	Preconditions []string
}

// HasPlaceholder reports whether the template contains the placeholder token
func (t FuzzTemplate) HasPlaceholder() bool {
	return strings.Contains(t.Text, Placeholder)
}

// Render substitutes payload for every occurrence of the placeholder
func (t FuzzTemplate) Render(payload string) string {
	return strings.ReplaceAll(t.Text, Placeholder, payload)
}

// TemplateSet is the parsed content of a message file
type TemplateSet struct {
	Templates []FuzzTemplate
	// Trailing holds preconditions after the last fuzzable line; they are never sent
	Trailing []string
}

// ParseMessages reads a line-oriented message source into typed records.
// Every line not tagged PRE_MESSAGE is fuzzable, a blank line included: it is
// sent as an empty message and ends the current precondition run.
func ParseMessages(r io.Reader) ([]Message, error) {
	var messages []Message

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(text, PreMessageTag) {
			messages = append(messages, Message{
				Kind: KindPrecondition,
				Text: strings.TrimSpace(strings.TrimPrefix(text, PreMessageTag)),
				Line: line,
			})
			continue
		}

		messages = append(messages, Message{Kind: KindFuzzable, Text: text, Line: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	return messages, nil
}

// GroupTemplates attaches every run of preconditions to the fuzzable line that follows it
func GroupTemplates(messages []Message) *TemplateSet {
	set := &TemplateSet{}
	var pending []string

	for _, msg := range messages {
		switch msg.Kind {
		case KindPrecondition:
			pending = append(pending, msg.Text)
		case KindFuzzable:
			set.Templates = append(set.Templates, FuzzTemplate{
				Text:          msg.Text,
				Line:          msg.Line,
				Preconditions: pending,
			})
			pending = nil
		}
	}
	set.Trailing = pending

	return set
}

// ParseTemplates parses a message source and groups it into templates
func ParseTemplates(r io.Reader) (*TemplateSet, error) {
	messages, err := ParseMessages(r)
	if err != nil {
		return nil, err
	}
	return GroupTemplates(messages), nil
}

// LoadTemplates reads and parses a message file
func LoadTemplates(path string) (*TemplateSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: message file: %v", ErrIO, err)
	}
	defer f.Close()

	return ParseTemplates(f)
}
