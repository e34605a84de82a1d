package template

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// Utterance is what one role said within an interaction.
type Utterance struct {
	Role string
	Text string
}

// Interaction maps roles to utterances. Order is significant: an
// interaction is formatted in its own insertion order, not in header
// order, so callers control layout by how they build it.
type Interaction []Utterance

// Conversation is an ordered run of interactions.
type Conversation []Interaction

// Get returns the utterance for role.
func (in Interaction) Get(role string) (string, bool) {
	for _, u := range in {
		if u.Role == role {
			return u.Text, true
		}
	}
	return "", false
}

// Set replaces the utterance for role in place, or appends it.
func (in *Interaction) Set(role, text string) {
	for i := range *in {
		if (*in)[i].Role == role {
			(*in)[i].Text = text
			return
		}
	}
	*in = append(*in, Utterance{Role: role, Text: text})
}

// Roles lists the roles present, in order.
func (in Interaction) Roles() []string {
	roles := make([]string, len(in))
	for i, u := range in {
		roles[i] = u.Role
	}
	return roles
}

func (in Interaction) Clone() Interaction {
	if in == nil {
		return nil
	}
	out := make(Interaction, len(in))
	copy(out, in)
	return out
}

func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	for i, in := range c {
		out[i] = in.Clone()
	}
	return out
}

// BuildInteraction fills roles in order from positional values. Roles
// beyond the positional values get "", extra positional values are
// ignored, and overrides win over positional values. Override keys that
// are not in roles are appended in sorted order.
func BuildInteraction(roles []string, positional []string, overrides map[string]string) Interaction {
	in := make(Interaction, 0, len(roles)+len(overrides))
	for i, role := range roles {
		text := ""
		if i < len(positional) {
			text = positional[i]
		}
		in = append(in, Utterance{Role: role, Text: text})
	}

	if len(overrides) == 0 {
		return in
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		in.Set(k, overrides[k])
	}
	return in
}

func (in Interaction) pairs() []pair {
	out := make([]pair, len(in))
	for i, u := range in {
		out[i] = pair{key: u.Role, value: u.Text}
	}
	return out
}

func interactionFromPairs(pairs []pair) Interaction {
	in := make(Interaction, len(pairs))
	for i, p := range pairs {
		in[i] = Utterance{Role: p.key, Text: p.value}
	}
	return in
}

func (in Interaction) MarshalJSON() ([]byte, error) {
	return encodePairsJSON(in.pairs())
}

func (in *Interaction) UnmarshalJSON(data []byte) error {
	pairs, err := decodePairsJSON(data)
	if err != nil {
		return err
	}
	*in = interactionFromPairs(pairs)
	return nil
}

func (in Interaction) MarshalYAML() (interface{}, error) {
	return encodePairsYAML(in.pairs()), nil
}

func (in *Interaction) UnmarshalYAML(value *yaml.Node) error {
	pairs, err := decodePairs(value)
	if err != nil {
		return err
	}
	*in = interactionFromPairs(pairs)
	return nil
}
