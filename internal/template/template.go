// Package template defines prompt templates: a preamble, labeled roles and
// seed examples that are stitched into the static part of every prompt.
package template

import (
	"strings"
	"unicode/utf8"

	"github.com/kayz/promptbot/internal/logger"
)

// Rules are the structural requirements a template is validated against.
type Rules struct {
	// RequiredRoles must be present in headers and in every example
	// interaction. Empty means every header role.
	RequiredRoles     []string `json:"required_roles,omitempty" yaml:"required_roles,omitempty"`
	MinPreambleLength int      `json:"min_preamble_length" yaml:"min_preamble_length"`
	MinExamples       int      `json:"min_examples" yaml:"min_examples"`
	// CheckDialogue enforces two-speaker example dialogue.
	CheckDialogue bool `json:"check_dialogue,omitempty" yaml:"check_dialogue,omitempty"`
}

var (
	ChatRules    = Rules{RequiredRoles: []string{"user", "bot"}, MinPreambleLength: 10, MinExamples: 0, CheckDialogue: true}
	StartRules   = Rules{RequiredRoles: []string{"user", "bot"}, MinPreambleLength: 10, MinExamples: 0, CheckDialogue: true}
	ExampleRules = Rules{MinPreambleLength: 1, MinExamples: 1}
)

// RulesFor returns the default rules that go with a preset style.
func RulesFor(style FormattingStyle) Rules {
	switch style {
	case ChatStyle:
		return ChatRules
	case StartStyle:
		return StartRules
	default:
		return ExampleRules
	}
}

// Config holds the content fields of a template.
type Config struct {
	Preamble         string
	ExampleSeparator string
	Headers          Headers
	Examples         []Conversation
}

// Template is a validated prompt template. It is mutable through Update
// only, which re-validates.
type Template struct {
	Preamble         string
	ExampleSeparator string
	Headers          Headers
	Examples         []Conversation
	Style            FormattingStyle
	Rules            Rules
}

// New builds and validates a template.
func New(cfg Config, style FormattingStyle, rules Rules) (*Template, error) {
	t := &Template{
		Preamble:         cfg.Preamble,
		ExampleSeparator: cfg.ExampleSeparator,
		Headers:          cfg.Headers.Clone(),
		Examples:         cloneExamples(cfg.Examples),
		Style:            style,
		Rules:            rules,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Clone returns a deep copy of t.
func (t *Template) Clone() *Template {
	c := *t
	c.Headers = t.Headers.Clone()
	c.Examples = cloneExamples(t.Examples)
	c.Rules.RequiredRoles = append([]string(nil), t.Rules.RequiredRoles...)
	return &c
}

func cloneExamples(examples []Conversation) []Conversation {
	if examples == nil {
		return nil
	}
	out := make([]Conversation, len(examples))
	for i, c := range examples {
		out[i] = c.Clone()
	}
	return out
}

func (t *Template) requiredRoles() []string {
	if len(t.Rules.RequiredRoles) > 0 {
		return t.Rules.RequiredRoles
	}
	return t.Headers.Roles()
}

// Validate checks the structural rules. It returns a *StructuralError.
func (t *Template) Validate() error {
	if n := utf8.RuneCountInString(t.Preamble); n < t.Rules.MinPreambleLength {
		return structural("preamble", "must be at least %d characters, got %d", t.Rules.MinPreambleLength, n)
	}

	seen := make(map[string]struct{}, len(t.Headers))
	for _, h := range t.Headers {
		if strings.TrimSpace(h.Role) == "" {
			return structural("headers", "role key must not be empty")
		}
		if _, dup := seen[h.Role]; dup {
			return structural("headers", "duplicate role %q", h.Role)
		}
		seen[h.Role] = struct{}{}
	}

	required := t.requiredRoles()
	for _, role := range required {
		if !t.Headers.Has(role) {
			return structural("headers", "missing required role %q (headers: %v)", role, t.Headers.Roles())
		}
	}

	for i, conv := range t.Examples {
		for j, in := range conv {
			for _, role := range required {
				if _, ok := in.Get(role); !ok {
					return structural("examples", "example %d interaction %d is missing role %q", i, j, role)
				}
			}
		}
	}

	if len(t.Examples) < t.Rules.MinExamples {
		return structural("examples", "at least %d example(s) required, got %d", t.Rules.MinExamples, len(t.Examples))
	}

	if t.Rules.CheckDialogue {
		return t.validateDialogue(required)
	}
	return nil
}

// validateDialogue checks that examples read as a two-person dialogue
// whose utterances are not prefixed with the speaker names.
func (t *Template) validateDialogue(required []string) error {
	if len(required) < 2 {
		return nil
	}
	userRole, botRole := required[0], required[1]
	userLabel, botLabel := t.Headers.Label(userRole), t.Headers.Label(botRole)

	for i, conv := range t.Examples {
		if len(conv) == 0 {
			continue
		}
		var userTurns, botTurns []string
		for _, in := range conv {
			if len(in) != 2 {
				return structural("examples", "example %d: interactions must be pairs of utterances", i)
			}
			u, _ := in.Get(userRole)
			b, _ := in.Get(botRole)
			userTurns = append(userTurns, u)
			botTurns = append(botTurns, b)
		}

		all := append(append([]string{}, userTurns...), botTurns...)
		if allTurns(all, func(s string) bool { return strings.Contains(s, ":") }) ||
			allTurns(all, func(s string) bool { return strings.Contains(s, "-") }) {
			logger.Warn("[TEMPLATE] example %d: turns look prefixed with speaker names", i)
		}

		userPrefixed := allTurns(userTurns, func(s string) bool {
			return strings.HasPrefix(strings.TrimLeft(s, " \t\n"), userLabel)
		})
		botPrefixed := allTurns(botTurns, func(s string) bool {
			return strings.HasPrefix(strings.TrimLeft(s, " \t\n"), botLabel)
		})
		if userPrefixed && botPrefixed {
			return structural("examples", "example %d: utterances must not be prefixed with speaker names", i)
		}
	}
	return nil
}

func allTurns(turns []string, pred func(string) bool) bool {
	for _, s := range turns {
		if !pred(s) {
			return false
		}
	}
	return true
}

// FormatInteraction renders one interaction, one line per role present,
// in the interaction's own order.
func (t *Template) FormatInteraction(in Interaction) string {
	var b strings.Builder
	for _, u := range in {
		b.WriteString(t.Style.join(t.Headers.Label(u.Role), u.Text))
	}
	return b.String()
}

// FormatConversation renders a run of interactions back to back.
func (t *Template) FormatConversation(c Conversation) string {
	var b strings.Builder
	for _, in := range c {
		b.WriteString(t.FormatInteraction(in))
	}
	return b.String()
}

// Text renders the static part of a prompt: the preamble followed by the
// separated examples, trimmed of surrounding whitespace.
func (t *Template) Text() string {
	var b strings.Builder
	b.WriteString(t.Preamble)
	b.WriteString("\n")

	switch t.Style.Separator {
	case SeparatorLeading:
		b.WriteString(t.ExampleSeparator)
		for i, conv := range t.Examples {
			if i > 0 {
				b.WriteString(t.ExampleSeparator)
			}
			b.WriteString(t.FormatConversation(conv))
		}
	default:
		for _, conv := range t.Examples {
			b.WriteString(t.ExampleSeparator)
			b.WriteString(t.FormatConversation(conv))
		}
	}
	return strings.TrimSpace(b.String())
}

func (t *Template) String() string {
	return t.Text()
}

// StopSequences returns one marker per header role, in header order.
func (t *Template) StopSequences() []string {
	stops := make([]string, 0, len(t.Headers))
	for _, h := range t.Headers {
		stops = append(stops, t.Style.stopMarker(h.Label))
	}
	return stops
}

// CreateInteraction fills header roles in declaration order from
// positional values; overrides win.
func (t *Template) CreateInteraction(positional []string, overrides map[string]string) Interaction {
	return BuildInteraction(t.Headers.Roles(), positional, overrides)
}

// UserLabel is the label of the first header role.
func (t *Template) UserLabel() string {
	if len(t.Headers) == 0 {
		return "User"
	}
	return t.Headers[0].Label
}

// BotLabel is the label of the last header role.
func (t *Template) BotLabel() string {
	if len(t.Headers) < 2 {
		return "Bot"
	}
	return t.Headers[len(t.Headers)-1].Label
}
