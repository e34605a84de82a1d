package promptbuild

import (
	"errors"
	"fmt"

	"github.com/kayz/promptbot/internal/template"
)

var (
	// ErrPromptTooLarge matches every *PromptTooLargeError.
	ErrPromptTooLarge = errors.New("prompt too large")
	// ErrInvalidContext is returned for a negative context window.
	ErrInvalidContext = errors.New("max_context_examples must not be negative")
)

// WarningContextReduced is the code of the warning emitted when the
// history window shrank for one turn.
const WarningContextReduced = "context_reduced"

// BuildRequest defines inputs for one prompt assembly.
type BuildRequest struct {
	Template *template.Template
	// History is the conversation so far, oldest first.
	History []template.Interaction
	// HistorySizes caches the token cost of each formatted history turn.
	// It may be shorter than History; missing costs are computed.
	HistorySizes []int
	Query        string

	MaxContextExamples int
	// MaxPromptSize is the input budget: hard cap minus reserved output tokens.
	MaxPromptSize int
	// MaxTokens and HardCap are reported on failure only.
	MaxTokens int
	HardCap   int
}

// BuildResult is a prompt that fits the budget.
type BuildResult struct {
	Prompt string
	// EffectiveContext is the number of history turns included.
	EffectiveContext int
	PromptTokens     int
	// HistorySizes is the request's cache extended to cover every turn.
	HistorySizes []int
	Warning      *Warning
}

// Warning is a non-fatal notice attached to a build.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return w.Message
}

func contextReduced(from, to int) *Warning {
	return &Warning{
		Code:    WarningContextReduced,
		Message: fmt.Sprintf("max_context_examples reduced from %d to %d for this turn.", from, to),
	}
}

// PromptTooLargeError reports a prompt that does not fit even with no
// history.
type PromptTooLargeError struct {
	StaticTokens  int
	HistoryTokens int
	QueryTokens   int
	MaxTokens     int
	MaxPromptSize int
	HardCap       int
}

func (e *PromptTooLargeError) Error() string {
	return fmt.Sprintf(
		"prompt too large: static prompt uses %d tokens, history %d tokens, query %d tokens; "+
			"the input budget is %d tokens (%d token cap minus max_tokens %d). "+
			"Shorten the preamble or examples, or lower max_tokens",
		e.StaticTokens, e.HistoryTokens, e.QueryTokens,
		e.MaxPromptSize, e.HardCap, e.MaxTokens,
	)
}

func (e *PromptTooLargeError) Is(target error) bool {
	return target == ErrPromptTooLarge
}
