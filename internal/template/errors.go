package template

import (
	"errors"
	"fmt"
)

// ErrStructural matches every *StructuralError via errors.Is.
var ErrStructural = errors.New("malformed template")

// StructuralError reports a template that breaks its structural rules.
type StructuralError struct {
	Field  string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("template %s: %s", e.Field, e.Reason)
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

func structural(field, format string, args ...any) *StructuralError {
	return &StructuralError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
