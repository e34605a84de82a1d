package persona

import "fmt"

// MaxGenerateTokens is the hard cap on client_config.max_tokens.
const MaxGenerateTokens = 2048

// WarnRatio of MaxGenerateTokens above which max_tokens draws a warning.
const WarnRatio = 0.75

// ChatbotConfig holds engine settings.
type ChatbotConfig struct {
	MaxContextExamples int    `json:"max_context_examples" yaml:"max_context_examples"`
	Avatar             string `json:"avatar" yaml:"avatar"`
}

// ClientConfig holds generation parameters.
type ClientConfig struct {
	Model            string   `json:"model" yaml:"model"`
	MaxTokens        int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature      float64  `json:"temperature" yaml:"temperature"`
	FrequencyPenalty float64  `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64  `json:"presence_penalty" yaml:"presence_penalty"`
	StopSequences    []string `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`
}

func DefaultChatbotConfig() ChatbotConfig {
	return ChatbotConfig{MaxContextExamples: 10}
}

// DefaultClientConfig leaves StopSequences empty; sessions fill it from
// the template.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Model:       "command",
		MaxTokens:   100,
		Temperature: 0.75,
	}
}

// ChatbotPatch is a partial ChatbotConfig. Nil fields keep their value.
type ChatbotPatch struct {
	MaxContextExamples *int    `json:"max_context_examples,omitempty" yaml:"max_context_examples,omitempty"`
	Avatar             *string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// ClientPatch is a partial ClientConfig. Nil fields keep their value.
type ClientPatch struct {
	Model            *string  `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`
}

// MergeChatbot returns base with every field set in p applied.
func MergeChatbot(base ChatbotConfig, p ChatbotPatch) ChatbotConfig {
	if p.MaxContextExamples != nil {
		base.MaxContextExamples = *p.MaxContextExamples
	}
	if p.Avatar != nil {
		base.Avatar = *p.Avatar
	}
	return base
}

// MergeClient returns base with every field set in p applied.
func MergeClient(base ClientConfig, p ClientPatch) ClientConfig {
	if p.Model != nil {
		base.Model = *p.Model
	}
	if p.MaxTokens != nil {
		base.MaxTokens = *p.MaxTokens
	}
	if p.Temperature != nil {
		base.Temperature = *p.Temperature
	}
	if p.FrequencyPenalty != nil {
		base.FrequencyPenalty = *p.FrequencyPenalty
	}
	if p.PresencePenalty != nil {
		base.PresencePenalty = *p.PresencePenalty
	}
	if p.StopSequences != nil {
		base.StopSequences = append([]string(nil), p.StopSequences...)
	} else {
		base.StopSequences = append([]string(nil), base.StopSequences...)
	}
	return base
}

// CheckClient enforces the max_tokens cap. It returns a warning message
// when max_tokens is valid but close to the cap.
func CheckClient(c ClientConfig) (string, error) {
	if c.MaxTokens >= MaxGenerateTokens {
		return "", &ConfigError{
			Key:    "client_config.max_tokens",
			Reason: fmt.Sprintf("must be below %d, got %d", MaxGenerateTokens, c.MaxTokens),
		}
	}
	if c.MaxTokens <= 0 {
		return "", &ConfigError{Key: "client_config.max_tokens", Reason: fmt.Sprintf("must be positive, got %d", c.MaxTokens)}
	}
	if float64(c.MaxTokens) > WarnRatio*MaxGenerateTokens {
		return fmt.Sprintf("client_config.max_tokens %d is above %.0f%% of the %d token cap; little room is left for the prompt",
			c.MaxTokens, WarnRatio*100, MaxGenerateTokens), nil
	}
	return "", nil
}

// CheckChatbot rejects a negative context window.
func CheckChatbot(c ChatbotConfig) error {
	if c.MaxContextExamples < 0 {
		return &ConfigError{
			Key:    "chatbot_config.max_context_examples",
			Reason: fmt.Sprintf("must not be negative, got %d", c.MaxContextExamples),
		}
	}
	return nil
}
