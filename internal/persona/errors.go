package persona

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a source has no document for a persona.
var ErrNotFound = errors.New("persona not found")

// SchemaError reports a document that does not match the persona schema.
// Path is the JSON pointer of the offending value.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("persona schema violation at %s: %s", e.Path, e.Reason)
}

// ConfigError reports a well-formed but unacceptable config value.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("persona config %s: %s", e.Key, e.Reason)
}
