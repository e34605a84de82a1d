package persona

import (
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Prompt config keys. A document holds exactly one of them.
const (
	KeyChatPrompt    = "chat_prompt_config"
	KeyStartPrompt   = "start_prompt_config"
	KeyExamplePrompt = "prompt_config"
)

var promptKeys = []string{KeyChatPrompt, KeyStartPrompt, KeyExamplePrompt}

func textMap() *openapi3.Schema {
	return openapi3.NewObjectSchema().WithAdditionalProperties(openapi3.NewStringSchema())
}

func promptSchema(nested bool) *openapi3.Schema {
	example := textMap()
	if nested {
		example = openapi3.NewArraySchema().WithItems(textMap())
	}
	return openapi3.NewObjectSchema().
		WithProperty("preamble", openapi3.NewStringSchema()).
		WithProperty("example_separator", openapi3.NewStringSchema()).
		WithProperty("headers", textMap()).
		WithProperty("examples", openapi3.NewArraySchema().WithItems(example)).
		WithProperty("style", openapi3.NewStringSchema()).
		WithRequired([]string{"preamble", "example_separator", "headers", "examples"})
}

var documentSchema = openapi3.NewObjectSchema().
	WithProperty(KeyChatPrompt, promptSchema(true)).
	WithProperty(KeyStartPrompt, promptSchema(false)).
	WithProperty(KeyExamplePrompt, promptSchema(false)).
	WithProperty("chatbot_config", openapi3.NewObjectSchema().
		WithProperty("max_context_examples", openapi3.NewIntegerSchema()).
		WithProperty("avatar", openapi3.NewStringSchema())).
	WithProperty("client_config", openapi3.NewObjectSchema().
		WithProperty("model", openapi3.NewStringSchema()).
		WithProperty("max_tokens", openapi3.NewIntegerSchema()).
		WithProperty("temperature", openapi3.NewFloat64Schema()).
		WithProperty("frequency_penalty", openapi3.NewFloat64Schema()).
		WithProperty("presence_penalty", openapi3.NewFloat64Schema()).
		WithProperty("stop_sequences", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))).
	WithRequired([]string{"chatbot_config", "client_config"})

// validateSchema checks a generic JSON value against the persona schema.
func validateSchema(doc any) error {
	if err := documentSchema.VisitJSON(doc); err != nil {
		var se *openapi3.SchemaError
		if errors.As(err, &se) {
			return &SchemaError{Path: pointer(se.JSONPointer()), Reason: se.Reason}
		}
		return &SchemaError{Path: "/", Reason: err.Error()}
	}

	obj, _ := doc.(map[string]any)
	var present []string
	for _, key := range promptKeys {
		if _, ok := obj[key]; ok {
			present = append(present, key)
		}
	}
	if len(present) != 1 {
		return &SchemaError{
			Path: "/",
			Reason: fmt.Sprintf("exactly one of %s is required, found %d",
				strings.Join(promptKeys, ", "), len(present)),
		}
	}
	return nil
}

func pointer(parts []string) string {
	if len(parts) == 0 {
		return "/"
	}
	escaped := make([]string, len(parts))
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~", "~0")
		escaped[i] = strings.ReplaceAll(p, "/", "~1")
	}
	return "/" + strings.Join(escaped, "/")
}
