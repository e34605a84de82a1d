package template

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Patch is a partial template update. Nil fields are left untouched.
type Patch struct {
	Preamble         *string
	ExampleSeparator *string
	Headers          Headers
	Examples         []Conversation
	Style            *FormattingStyle
}

// Update applies p and re-validates. On failure the previous state is
// restored and the validation error returned.
func (t *Template) Update(p Patch) error {
	prev := *t
	prev.Headers = t.Headers.Clone()
	prev.Examples = cloneExamples(t.Examples)

	if p.Preamble != nil {
		t.Preamble = *p.Preamble
	}
	if p.ExampleSeparator != nil {
		t.ExampleSeparator = *p.ExampleSeparator
	}
	if p.Headers != nil {
		t.Headers = p.Headers.Clone()
	}
	if p.Examples != nil {
		t.Examples = cloneExamples(p.Examples)
	}
	if p.Style != nil {
		t.Style = *p.Style
	}

	if err := t.Validate(); err != nil {
		*t = prev
		return err
	}
	if t.Style.Nesting == NestingFlat {
		if _, err := (Examples{Conversations: t.Examples, Flat: true}).flatten(); err != nil {
			*t = prev
			return structural("examples", "%v", err)
		}
	}
	return nil
}

type jsonPatch struct {
	Preamble         *string   `json:"preamble"`
	ExampleSeparator *string   `json:"example_separator"`
	Headers          Headers   `json:"headers"`
	Examples         *Examples `json:"examples"`
	Style            *string   `json:"style"`
}

// UpdateJSON applies a JSON object patch. Unknown keys are ignored; a value
// of the wrong type is reported as a *StructuralError on that field.
func (t *Template) UpdateJSON(data []byte) error {
	var jp jsonPatch
	if err := json.Unmarshal(data, &jp); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return structural(typeErr.Field, "must be %s, got %s", goKind(typeErr.Type.Kind().String()), typeErr.Value)
		}
		return structural("patch", "%v", err)
	}

	p := Patch{
		Preamble:         jp.Preamble,
		ExampleSeparator: jp.ExampleSeparator,
		Headers:          jp.Headers,
	}
	if jp.Examples != nil {
		p.Examples = jp.Examples.Conversations
		if p.Examples == nil {
			p.Examples = []Conversation{}
		}
	}
	if jp.Style != nil {
		style, err := StyleByName(*jp.Style)
		if err != nil {
			return structural("style", "%v", err)
		}
		p.Style = &style
	}
	return t.Update(p)
}

// UpdateFromMap applies a loosely typed patch such as one decoded from a
// form or CLI flags. Header order follows the map's sorted key order.
func (t *Template) UpdateFromMap(fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	return t.UpdateJSON(data)
}

func goKind(kind string) string {
	switch kind {
	case "string":
		return "text"
	case "slice":
		return "a list"
	case "map", "struct":
		return "an object"
	default:
		return kind
	}
}
