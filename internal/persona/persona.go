// Package persona loads persona documents: a prompt template plus the
// engine and generation settings a chat session runs with.
package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/kayz/promptbot/internal/logger"
	"github.com/kayz/promptbot/internal/template"
)

// Persona is a validated persona ready to start sessions.
type Persona struct {
	Name     string
	Template *template.Template
	Chatbot  ChatbotConfig
	Client   ClientConfig
	// Warnings collects non-fatal findings from loading.
	Warnings []string
}

type document struct {
	ChatPrompt    *template.Structured `json:"chat_prompt_config,omitempty" yaml:"chat_prompt_config,omitempty"`
	StartPrompt   *template.Structured `json:"start_prompt_config,omitempty" yaml:"start_prompt_config,omitempty"`
	ExamplePrompt *template.Structured `json:"prompt_config,omitempty" yaml:"prompt_config,omitempty"`
	Chatbot       ChatbotPatch         `json:"chatbot_config" yaml:"chatbot_config"`
	Client        ClientPatch          `json:"client_config" yaml:"client_config"`
}

// prompt returns the prompt config with the style its key implies.
func (d *document) prompt() template.Structured {
	var (
		s     template.Structured
		style template.FormattingStyle
	)
	switch {
	case d.ChatPrompt != nil:
		s, style = *d.ChatPrompt, template.ChatStyle
	case d.StartPrompt != nil:
		s, style = *d.StartPrompt, template.StartStyle
	default:
		s, style = *d.ExamplePrompt, template.ExampleStyle
	}
	if s.Style == "" && s.Format == nil {
		s.Style = style.Name()
	}
	return s
}

// Load reads the named persona from src and parses it.
func Load(ctx context.Context, name string, src Source) (*Persona, error) {
	data, err := src.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	p, err := Parse(name, data)
	if err != nil {
		return nil, err
	}
	logger.Info("[PERSONA] loaded %s (%d examples)", name, len(p.Template.Examples))
	return p, nil
}

// Parse validates a JSON or YAML persona document and builds the persona.
// Template validation errors are returned unwrapped.
func Parse(name string, data []byte) (*Persona, error) {
	generic, err := decodeGeneric(data)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(generic); err != nil {
		return nil, err
	}

	var doc document
	if err := decodeDocument(data, &doc); err != nil {
		return nil, &SchemaError{Path: "/", Reason: err.Error()}
	}

	p := &Persona{
		Name:    name,
		Chatbot: MergeChatbot(DefaultChatbotConfig(), doc.Chatbot),
		Client:  MergeClient(DefaultClientConfig(), doc.Client),
	}
	if err := CheckChatbot(p.Chatbot); err != nil {
		return nil, err
	}
	warning, err := CheckClient(p.Client)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		logger.Warn("[PERSONA] %s: %s", name, warning)
		p.Warnings = append(p.Warnings, warning)
	}

	tpl, err := template.FromStructured(doc.prompt())
	if err != nil {
		return nil, err
	}
	p.Template = tpl
	return p, nil
}

// Validate reports whether data is a loadable persona document.
func Validate(data []byte) error {
	_, err := Parse("", data)
	return err
}

// Document serializes p back into the persona document schema.
func (p *Persona) Document() ([]byte, error) {
	style := p.Template.Style
	s := p.Template.ToStructured()
	// The document key implies a preset style.
	if s.Format == nil {
		s.Style = ""
	}
	if s.Rules != nil && reflect.DeepEqual(*s.Rules, template.RulesFor(style)) {
		s.Rules = nil
	}

	var doc document
	switch {
	case style == template.ChatStyle || s.Format != nil && style.Nesting == template.NestingConversation:
		doc.ChatPrompt = &s
	case style == template.StartStyle:
		doc.StartPrompt = &s
	default:
		doc.ExamplePrompt = &s
	}

	chatbot, client := p.Chatbot, p.Client
	doc.Chatbot = ChatbotPatch{MaxContextExamples: &chatbot.MaxContextExamples, Avatar: &chatbot.Avatar}
	doc.Client = ClientPatch{
		Model:            &client.Model,
		MaxTokens:        &client.MaxTokens,
		Temperature:      &client.Temperature,
		FrequencyPenalty: &client.FrequencyPenalty,
		PresencePenalty:  &client.PresencePenalty,
		StopSequences:    client.StopSequences,
	}
	return json.MarshalIndent(doc, "", "  ")
}

func isJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// decodeGeneric decodes data into plain JSON values for schema validation.
func decodeGeneric(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &SchemaError{Path: "/", Reason: "empty document"}
	}

	var raw any
	if isJSON(data) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &SchemaError{Path: "/", Reason: fmt.Sprintf("malformed JSON: %v", err)}
		}
		return raw, nil
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &SchemaError{Path: "/", Reason: fmt.Sprintf("malformed YAML: %v", err)}
	}
	// Normalize YAML scalars to the types encoding/json produces.
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, &SchemaError{Path: "/", Reason: fmt.Sprintf("unsupported YAML value: %v", err)}
	}
	var normalized any
	if err := json.Unmarshal(buf, &normalized); err != nil {
		return nil, &SchemaError{Path: "/", Reason: err.Error()}
	}
	return normalized, nil
}

func decodeDocument(data []byte, doc *document) error {
	if isJSON(data) {
		return json.Unmarshal(data, doc)
	}
	return yaml.Unmarshal(data, doc)
}
