package template

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// pair is one key/value entry of an ordered string mapping.
type pair struct {
	key   string
	value string
}

// decodePairs reads a mapping node whose values are scalars, keeping
// document order.
func decodePairs(node *yaml.Node) ([]pair, error) {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	pairs := make([]pair, 0, len(node.Content)/2)
	seen := make(map[string]struct{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if _, dup := seen[k.Value]; dup {
			return nil, fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
		}
		seen[k.Value] = struct{}{}
		if v.Kind != yaml.ScalarNode || v.Tag == "!!null" {
			return nil, fmt.Errorf("line %d: value of %q must be text", v.Line, k.Value)
		}
		pairs = append(pairs, pair{key: k.Value, value: v.Value})
	}
	return pairs, nil
}

func encodePairsYAML(pairs []pair) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, p := range pairs {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.value},
		)
	}
	return node
}

func encodePairsJSON(pairs []pair) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodePairsJSON reads a JSON object of strings token by token so that
// key order survives.
func decodePairsJSON(data []byte) ([]pair, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("offset %d: expected an object", dec.InputOffset())
	}

	pairs := []pair{}
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("offset %d: duplicate key %q", dec.InputOffset(), key)
		}
		seen[key] = struct{}{}

		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		value, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("offset %d: value of %q must be text", dec.InputOffset(), key)
		}
		pairs = append(pairs, pair{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pairs, nil
}
