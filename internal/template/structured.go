package template

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"
)

// Examples is the serialized form of template examples. Flat examples are
// a list of interactions; nested ones are a list of conversations.
type Examples struct {
	Conversations []Conversation
	Flat          bool
}

func (e Examples) flatten() ([]Interaction, error) {
	out := make([]Interaction, 0, len(e.Conversations))
	for i, c := range e.Conversations {
		if len(c) != 1 {
			return nil, fmt.Errorf("flat example %d holds %d interactions", i, len(c))
		}
		out = append(out, c[0])
	}
	return out, nil
}

func nestFlat(flat []Interaction) []Conversation {
	out := make([]Conversation, len(flat))
	for i, in := range flat {
		out[i] = Conversation{in}
	}
	return out
}

func (e Examples) MarshalJSON() ([]byte, error) {
	if e.Flat {
		flat, err := e.flatten()
		if err != nil {
			return nil, err
		}
		return json.Marshal(flat)
	}
	if e.Conversations == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.Conversations)
}

func (e *Examples) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		*e = Examples{Conversations: []Conversation{}}
		return nil
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw[0]), []byte("{")) {
		var flat []Interaction
		if err := json.Unmarshal(data, &flat); err != nil {
			return err
		}
		*e = Examples{Conversations: nestFlat(flat), Flat: true}
		return nil
	}
	var nested []Conversation
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	*e = Examples{Conversations: nested}
	return nil
}

func (e Examples) MarshalYAML() (interface{}, error) {
	if e.Flat {
		return e.flatten()
	}
	if e.Conversations == nil {
		return []Conversation{}, nil
	}
	return e.Conversations, nil
}

func (e *Examples) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: examples must be a list", value.Line)
	}
	if len(value.Content) == 0 {
		*e = Examples{Conversations: []Conversation{}}
		return nil
	}
	if value.Content[0].Kind == yaml.MappingNode {
		var flat []Interaction
		if err := value.Decode(&flat); err != nil {
			return err
		}
		*e = Examples{Conversations: nestFlat(flat), Flat: true}
		return nil
	}
	var nested []Conversation
	if err := value.Decode(&nested); err != nil {
		return err
	}
	*e = Examples{Conversations: nested}
	return nil
}

// Structured is the plain-data form of a template used for persistence.
type Structured struct {
	Preamble         string   `json:"preamble" yaml:"preamble"`
	ExampleSeparator string   `json:"example_separator" yaml:"example_separator"`
	Headers          Headers  `json:"headers" yaml:"headers"`
	Examples         Examples `json:"examples" yaml:"examples"`
	// Style is a preset name. Format is set instead for custom layouts.
	Style  string           `json:"style,omitempty" yaml:"style,omitempty"`
	Format *FormattingStyle `json:"format,omitempty" yaml:"format,omitempty"`
	Rules  *Rules           `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// ToStructured captures every field needed to rebuild t exactly.
func (t *Template) ToStructured() Structured {
	s := Structured{
		Preamble:         t.Preamble,
		ExampleSeparator: t.ExampleSeparator,
		Headers:          t.Headers.Clone(),
		Examples: Examples{
			Conversations: cloneExamples(t.Examples),
			Flat:          t.Style.Nesting == NestingFlat,
		},
	}
	if name := t.Style.Name(); name != "" {
		s.Style = name
	} else {
		style := t.Style
		s.Format = &style
	}
	rules := t.Rules
	rules.RequiredRoles = append([]string(nil), t.Rules.RequiredRoles...)
	s.Rules = &rules
	return s
}

// FromStructured rebuilds and validates a template. Without a style the
// layout follows the shape of the examples; without rules the style's
// default rules apply.
func FromStructured(s Structured) (*Template, error) {
	style, err := s.resolveStyle()
	if err != nil {
		return nil, err
	}
	if style.Nesting == NestingFlat {
		if _, err := s.Examples.flatten(); err != nil {
			return nil, structural("examples", "%v", err)
		}
	}

	rules := RulesFor(style)
	if s.Rules != nil {
		rules = *s.Rules
	}
	return New(Config{
		Preamble:         s.Preamble,
		ExampleSeparator: s.ExampleSeparator,
		Headers:          s.Headers,
		Examples:         s.Examples.Conversations,
	}, style, rules)
}

func (s Structured) resolveStyle() (FormattingStyle, error) {
	switch {
	case s.Format != nil:
		return *s.Format, nil
	case s.Style != "":
		style, err := StyleByName(s.Style)
		if err != nil {
			return FormattingStyle{}, structural("style", "%v", err)
		}
		return style, nil
	case s.Examples.Flat:
		return ExampleStyle, nil
	default:
		return ChatStyle, nil
	}
}

var templateCmpOpts = []cmp.Option{
	cmpopts.EquateEmpty(),
}

// Equal reports whether two templates hold the same content, layout and rules.
func (t *Template) Equal(other *Template) bool {
	if t == nil || other == nil {
		return t == other
	}
	return cmp.Equal(*t, *other, templateCmpOpts...)
}
