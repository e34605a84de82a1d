package template

import (
	"fmt"
	"strings"
)

// Nesting selects how examples are grouped.
type Nesting int

const (
	// NestingFlat: examples are single interactions.
	NestingFlat Nesting = iota
	// NestingConversation: examples are conversations of interactions.
	NestingConversation
)

// Colon selects how a label is joined to its utterance.
type Colon int

const (
	// ColonSpace renders "Label: utterance\n".
	ColonSpace Colon = iota
	// ColonNone renders "Labelutterance\n"; the label carries its own punctuation.
	ColonNone
	// ColonNewline renders "Label:\nutterance\n".
	ColonNewline
)

// SeparatorPlacement selects where example_separator goes.
type SeparatorPlacement int

const (
	// SeparatorPerExample prefixes every example; no examples, no separator.
	SeparatorPerExample SeparatorPlacement = iota
	// SeparatorLeading emits one leading separator, then one between
	// examples. The leading separator is written even with no examples.
	SeparatorLeading
)

// FormattingStyle is the layout strategy of a template.
type FormattingStyle struct {
	Nesting   Nesting            `json:"nesting" yaml:"nesting"`
	Colon     Colon              `json:"colon" yaml:"colon"`
	Separator SeparatorPlacement `json:"separator" yaml:"separator"`
}

var (
	// ChatStyle lays out nested example conversations as "Label: utterance".
	ChatStyle = FormattingStyle{Nesting: NestingConversation, Colon: ColonSpace, Separator: SeparatorLeading}
	// StartStyle lays out flat user/bot turns as "Label: utterance".
	StartStyle = FormattingStyle{Nesting: NestingFlat, Colon: ColonSpace, Separator: SeparatorPerExample}
	// ExampleStyle lays out flat examples with bare header labels.
	ExampleStyle = FormattingStyle{Nesting: NestingFlat, Colon: ColonNone, Separator: SeparatorPerExample}
)

var stylePresets = map[string]FormattingStyle{
	"chat":     ChatStyle,
	"start":    StartStyle,
	"examples": ExampleStyle,
}

// StyleByName returns a preset style.
func StyleByName(name string) (FormattingStyle, error) {
	s, ok := stylePresets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return FormattingStyle{}, fmt.Errorf("unknown formatting style %q", name)
	}
	return s, nil
}

// Name returns the preset name of s, or "" for a custom combination.
func (s FormattingStyle) Name() string {
	for name, preset := range stylePresets {
		if preset == s {
			return name
		}
	}
	return ""
}

func (s FormattingStyle) join(label, text string) string {
	switch s.Colon {
	case ColonNone:
		return label + text + "\n"
	case ColonNewline:
		return label + ":\n" + text + "\n"
	default:
		return label + ": " + text + "\n"
	}
}

func (s FormattingStyle) stopMarker(label string) string {
	if s.Colon == ColonNone {
		return "\n" + strings.TrimRight(label, " \t\n")
	}
	return "\n" + label + ":"
}

var (
	nestingNames   = []string{"flat", "conversation"}
	colonNames     = []string{"space", "none", "newline"}
	separatorNames = []string{"per_example", "leading"}
)

func enumText(names []string, v int) ([]byte, error) {
	if v < 0 || v >= len(names) {
		return nil, fmt.Errorf("invalid value %d", v)
	}
	return []byte(names[v]), nil
}

func enumParse(names []string, text []byte) (int, error) {
	for i, n := range names {
		if n == string(text) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("invalid value %q, expected one of %s", text, strings.Join(names, ", "))
}

func (n Nesting) MarshalText() ([]byte, error) { return enumText(nestingNames, int(n)) }

func (n *Nesting) UnmarshalText(text []byte) error {
	v, err := enumParse(nestingNames, text)
	*n = Nesting(v)
	return err
}

func (c Colon) MarshalText() ([]byte, error) { return enumText(colonNames, int(c)) }

func (c *Colon) UnmarshalText(text []byte) error {
	v, err := enumParse(colonNames, text)
	*c = Colon(v)
	return err
}

func (p SeparatorPlacement) MarshalText() ([]byte, error) { return enumText(separatorNames, int(p)) }

func (p *SeparatorPlacement) UnmarshalText(text []byte) error {
	v, err := enumParse(separatorNames, text)
	*p = SeparatorPlacement(v)
	return err
}
