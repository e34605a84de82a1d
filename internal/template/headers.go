package template

import "gopkg.in/yaml.v3"

// Header labels one role, e.g. {Role: "user", Label: "User"}.
type Header struct {
	Role  string
	Label string
}

// Headers is an ordered role -> label mapping. Declaration order decides
// positional filling in CreateInteraction and the order of stop sequences.
type Headers []Header

// Label returns the label for role, or the role itself when unlabeled.
func (h Headers) Label(role string) string {
	for _, hd := range h {
		if hd.Role == role {
			return hd.Label
		}
	}
	return role
}

func (h Headers) Has(role string) bool {
	for _, hd := range h {
		if hd.Role == role {
			return true
		}
	}
	return false
}

func (h Headers) Roles() []string {
	roles := make([]string, len(h))
	for i, hd := range h {
		roles[i] = hd.Role
	}
	return roles
}

func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

func (h Headers) pairs() []pair {
	out := make([]pair, len(h))
	for i, hd := range h {
		out[i] = pair{key: hd.Role, value: hd.Label}
	}
	return out
}

func headersFromPairs(pairs []pair) Headers {
	h := make(Headers, len(pairs))
	for i, p := range pairs {
		h[i] = Header{Role: p.key, Label: p.value}
	}
	return h
}

func (h Headers) MarshalJSON() ([]byte, error) {
	return encodePairsJSON(h.pairs())
}

func (h *Headers) UnmarshalJSON(data []byte) error {
	pairs, err := decodePairsJSON(data)
	if err != nil {
		return err
	}
	*h = headersFromPairs(pairs)
	return nil
}

func (h Headers) MarshalYAML() (interface{}, error) {
	return encodePairsYAML(h.pairs()), nil
}

func (h *Headers) UnmarshalYAML(value *yaml.Node) error {
	pairs, err := decodePairs(value)
	if err != nil {
		return err
	}
	*h = headersFromPairs(pairs)
	return nil
}
