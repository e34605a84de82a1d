package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/kayz/promptbot/internal/generator"
	"github.com/kayz/promptbot/internal/logger"
	"github.com/kayz/promptbot/internal/persona"
	"github.com/kayz/promptbot/internal/template"
)

// Snapshot is the plain-data form of a session. It carries everything
// needed to resume the conversation in another process.
type Snapshot struct {
	ID            string                 `json:"id"`
	Persona       string                 `json:"persona"`
	Template      template.Structured    `json:"template"`
	Chatbot       persona.ChatbotConfig  `json:"chatbot_config"`
	Client        persona.ClientConfig   `json:"client_config"`
	HardCap       int                    `json:"hard_cap"`
	History       []template.Interaction `json:"chat_history"`
	HistorySizes  []int                  `json:"prompt_size_history"`
	PromptHistory []string               `json:"prompt_history"`
}

// Snapshot captures the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.ID,
		Persona:       s.PersonaName,
		Chatbot:       s.chatbot,
		Client:        persona.MergeClient(s.client, persona.ClientPatch{}),
		HardCap:       s.hardCap,
		History:       cloneHistory(s.history),
		HistorySizes:  append([]int(nil), s.historySizes...),
		PromptHistory: append([]string(nil), s.promptHistory...),
	}
	if s.tpl != nil {
		snap.Template = s.tpl.ToStructured()
	}
	return snap
}

// Restore resumes a session from snap. The template is re-validated and
// the configs re-checked; the session ID and hard cap are kept unless
// overridden by opts.
func Restore(ctx context.Context, snap Snapshot, gen generator.TextGenerator, opts ...Option) (*Session, error) {
	tpl, err := template.FromStructured(snap.Template)
	if err != nil {
		return nil, err
	}

	base := []Option{WithID(snap.ID)}
	if snap.HardCap > 0 {
		base = append(base, WithHardCap(snap.HardCap))
	}
	s, err := newSession(snap.Persona, gen, append(base, opts...))
	if err != nil {
		return nil, err
	}
	if err := s.init(ctx, tpl, snap.Chatbot, snap.Client); err != nil {
		return nil, err
	}

	s.history = cloneHistory(snap.History)
	sizes := snap.HistorySizes
	if len(sizes) > len(s.history) {
		sizes = sizes[:len(s.history)]
	}
	s.historySizes = append([]int(nil), sizes...)
	if len(snap.PromptHistory) > 0 {
		s.promptHistory = append([]string(nil), snap.PromptHistory...)
	}

	logger.Info("[SESSION] %s restored with %d turns", s.ID, len(s.history))
	return s, nil
}

// Encode serializes the snapshot to a base64 JSON string.
func (snap Snapshot) Encode() (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSnapshot parses a string produced by Snapshot.Encode.
func DecodeSnapshot(encoded string) (Snapshot, error) {
	var snap Snapshot
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
