// Package session runs a chat conversation against a persona: it keeps the
// history, assembles each prompt within the model's budget and calls the
// text generator.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/kayz/promptbot/internal/generator"
	"github.com/kayz/promptbot/internal/logger"
	"github.com/kayz/promptbot/internal/persona"
	"github.com/kayz/promptbot/internal/promptbuild"
	"github.com/kayz/promptbot/internal/template"
)

var (
	// ErrBusy is returned when a reply is already in flight.
	ErrBusy = errors.New("session is busy replying")
	// ErrNotReady is returned by a session that was never initialized.
	ErrNotReady = errors.New("session is not initialized")
)

// State is the lifecycle state of a session.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateReplying
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateReplying:
		return "replying"
	default:
		return "uninitialized"
	}
}

// Session is one conversation with a persona. A session serves one reply
// at a time; other methods are safe to call concurrently.
type Session struct {
	ID          string
	PersonaName string

	mu    sync.Mutex
	state State

	tpl     *template.Template
	chatbot persona.ChatbotConfig
	client  persona.ClientConfig
	hardCap int

	history       []template.Interaction
	historySizes  []int
	promptHistory []string
	warnings      []promptbuild.Warning

	gen     generator.TextGenerator
	builder *promptbuild.Builder
}

type options struct {
	id        string
	hardCap   int
	auditor   *promptbuild.Auditor
	tokenizer generator.Tokenizer
}

// Option configures a Session.
type Option func(*options)

// WithID sets the session ID instead of a random UUID.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithHardCap sets the model's total token window. Defaults to
// persona.MaxGenerateTokens.
func WithHardCap(n int) Option {
	return func(o *options) {
		o.hardCap = n
	}
}

// WithAuditor records every assembled prompt.
func WithAuditor(a *promptbuild.Auditor) Option {
	return func(o *options) {
		o.auditor = a
	}
}

// WithTokenizer measures prompts with tok instead of the generator.
func WithTokenizer(tok generator.Tokenizer) Option {
	return func(o *options) {
		o.tokenizer = tok
	}
}

// New starts a session with persona p. It fails with a
// *promptbuild.PromptTooLargeError when the static prompt alone does not
// fit the input budget.
func New(ctx context.Context, p *persona.Persona, gen generator.TextGenerator, opts ...Option) (*Session, error) {
	if p == nil || p.Template == nil {
		return nil, errors.New("new session: persona has no template")
	}
	s, err := newSession(p.Name, gen, opts)
	if err != nil {
		return nil, err
	}
	if err := s.init(ctx, p.Template.Clone(), p.Chatbot, p.Client); err != nil {
		return nil, err
	}
	logger.Info("[SESSION] %s started with persona %s", s.ID, s.PersonaName)
	return s, nil
}

func newSession(personaName string, gen generator.TextGenerator, opts []Option) (*Session, error) {
	if gen == nil {
		return nil, errors.New("new session: generator is required")
	}
	o := options{hardCap: persona.MaxGenerateTokens}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hardCap <= 0 {
		return nil, fmt.Errorf("new session: hard cap must be positive, got %d", o.hardCap)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	var tok promptbuild.Tokenizer = gen
	if o.tokenizer != nil {
		tok = o.tokenizer
	}
	var bopts []promptbuild.Option
	if o.auditor != nil {
		bopts = append(bopts, promptbuild.WithAuditor(o.auditor))
	}
	return &Session{
		ID:          o.id,
		PersonaName: personaName,
		hardCap:     o.hardCap,
		gen:         gen,
		builder:     promptbuild.NewBuilder(tok, bopts...),
	}, nil
}

// init installs the template and configs and moves the session to Ready.
func (s *Session) init(ctx context.Context, tpl *template.Template, chatbot persona.ChatbotConfig, client persona.ClientConfig) error {
	chatbot, client, warning, err := s.checkConfig(ctx, tpl, chatbot, client)
	if err != nil {
		return err
	}
	if warning != "" {
		s.warnings = append(s.warnings, promptbuild.Warning{Code: WarningMaxTokens, Message: warning})
	}
	s.tpl = tpl
	s.chatbot = chatbot
	s.client = client
	s.promptHistory = []string{tpl.Text()}
	s.state = StateReady
	return nil
}

// WarningMaxTokens is the code of the warning for a max_tokens value
// close to the hard cap.
const WarningMaxTokens = "max_tokens_high"

// checkConfig validates a template and config pair against the session's
// hard cap and fills the stop sequences from the template when empty.
func (s *Session) checkConfig(ctx context.Context, tpl *template.Template, chatbot persona.ChatbotConfig, client persona.ClientConfig) (persona.ChatbotConfig, persona.ClientConfig, string, error) {
	client = persona.MergeClient(client, persona.ClientPatch{})
	if len(client.StopSequences) == 0 {
		client.StopSequences = tpl.StopSequences()
	}
	if err := persona.CheckChatbot(chatbot); err != nil {
		return chatbot, client, "", err
	}
	warning, err := persona.CheckClient(client)
	if err != nil {
		return chatbot, client, "", err
	}

	budget := s.hardCap - client.MaxTokens
	static, err := s.builder.StaticSize(ctx, tpl)
	if err != nil {
		return chatbot, client, "", err
	}
	if static > budget {
		return chatbot, client, "", &promptbuild.PromptTooLargeError{
			StaticTokens:  static,
			MaxTokens:     client.MaxTokens,
			MaxPromptSize: budget,
			HardCap:       s.hardCap,
		}
	}
	return chatbot, client, warning, nil
}

// Reply answers query. Sizing and generator failures are returned
// unchanged and leave the history untouched.
func (s *Session) Reply(ctx context.Context, query string) (template.Interaction, error) {
	s.mu.Lock()
	switch s.state {
	case StateUninitialized:
		s.mu.Unlock()
		return nil, ErrNotReady
	case StateReplying:
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.state = StateReplying
	tpl := s.tpl
	req := promptbuild.BuildRequest{
		Template:           tpl,
		History:            s.history,
		HistorySizes:       s.historySizes,
		Query:              query,
		MaxContextExamples: s.chatbot.MaxContextExamples,
		MaxPromptSize:      s.hardCap - s.client.MaxTokens,
		MaxTokens:          s.client.MaxTokens,
		HardCap:            s.hardCap,
	}
	params := generator.Params{
		Model:            s.client.Model,
		MaxTokens:        s.client.MaxTokens,
		Temperature:      s.client.Temperature,
		FrequencyPenalty: s.client.FrequencyPenalty,
		PresencePenalty:  s.client.PresencePenalty,
		StopSequences:    append([]string(nil), s.client.StopSequences...),
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state = StateReady
		s.mu.Unlock()
	}()

	res, err := s.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	generations, err := s.gen.Generate(ctx, res.Prompt, params)
	if err != nil {
		return nil, err
	}
	if len(generations) == 0 {
		return nil, generator.ErrNoGeneration
	}
	reply := stripStopSequence(generations[0], params.StopSequences)
	reply = strings.TrimLeftFunc(reply, unicode.IsSpace)

	turn := tpl.CreateInteraction([]string{query, reply}, nil)
	cost, err := s.builder.TurnCost(ctx, tpl, turn)
	if err != nil {
		return nil, fmt.Errorf("size reply turn: %w", err)
	}

	s.mu.Lock()
	s.history = append(s.history, turn)
	s.historySizes = append(res.HistorySizes, cost)
	s.promptHistory = append(s.promptHistory, res.Prompt)
	if res.Warning != nil {
		s.warnings = append(s.warnings, *res.Warning)
	}
	s.mu.Unlock()

	logger.Debug("[SESSION] %s turn %d: %d prompt tokens, %d context turns",
		s.ID, len(req.History)+1, res.PromptTokens, res.EffectiveContext)
	return turn.Clone(), nil
}

// stripStopSequence removes the first stop sequence, in configured order,
// that text ends with. At most one is removed.
func stripStopSequence(text string, stops []string) string {
	for _, stop := range stops {
		if stop != "" && strings.HasSuffix(text, stop) {
			return text[:len(text)-len(stop)]
		}
	}
	return text
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LatestPrompt returns the most recent prompt sent to the generator, or
// the static prompt before the first reply.
func (s *Session) LatestPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.promptHistory) == 0 {
		return ""
	}
	return s.promptHistory[len(s.promptHistory)-1]
}

// PromptHistory returns every prompt of the session, static prompt first.
func (s *Session) PromptHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.promptHistory...)
}

// History returns a copy of the conversation so far, oldest first.
func (s *Session) History() []template.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneHistory(s.history)
}

// HistorySizes returns the cached token cost of each history turn. It may
// be shorter than History after ReplaceHistory.
func (s *Session) HistorySizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.historySizes...)
}

// Template returns a copy of the session's template.
func (s *Session) Template() *template.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tpl == nil {
		return nil
	}
	return s.tpl.Clone()
}

// Chatbot returns the engine settings in effect.
func (s *Session) Chatbot() persona.ChatbotConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatbot
}

// Client returns the generation settings in effect.
func (s *Session) Client() persona.ClientConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return persona.MergeClient(s.client, persona.ClientPatch{})
}

// Warnings returns and clears the pending warnings.
func (s *Session) Warnings() []promptbuild.Warning {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.warnings
	s.warnings = nil
	return out
}

// ReplaceHistory swaps in an edited conversation. Turn costs are
// recomputed on the next reply.
func (s *Session) ReplaceHistory(history []template.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutable(); err != nil {
		return err
	}
	s.history = cloneHistory(history)
	s.historySizes = nil
	return nil
}

// Configure merges patches into the current settings. The result is
// checked like a freshly loaded persona; on failure nothing changes.
func (s *Session) Configure(ctx context.Context, chatbot persona.ChatbotPatch, client persona.ClientPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutable(); err != nil {
		return err
	}

	nextClient := persona.MergeClient(s.client, client)
	if client.StopSequences == nil && slices.Equal(s.client.StopSequences, s.tpl.StopSequences()) {
		nextClient.StopSequences = nil
	}
	cb, cl, warning, err := s.checkConfig(ctx, s.tpl, persona.MergeChatbot(s.chatbot, chatbot), nextClient)
	if err != nil {
		return err
	}
	if warning != "" {
		s.warnings = append(s.warnings, promptbuild.Warning{Code: WarningMaxTokens, Message: warning})
	}
	s.chatbot, s.client = cb, cl
	return nil
}

// UpdateTemplate edits the session's template. Turn costs are recomputed
// on the next reply since formatting may have changed.
func (s *Session) UpdateTemplate(ctx context.Context, p template.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutable(); err != nil {
		return err
	}

	next := s.tpl.Clone()
	if err := next.Update(p); err != nil {
		return err
	}
	client := s.client
	if slices.Equal(client.StopSequences, s.tpl.StopSequences()) {
		client.StopSequences = nil
	}
	cb, cl, _, err := s.checkConfig(ctx, next, s.chatbot, client)
	if err != nil {
		return err
	}
	s.tpl, s.chatbot, s.client = next, cb, cl
	s.historySizes = nil
	s.promptHistory = append(s.promptHistory, next.Text())
	return nil
}

// mutable must be called with s.mu held.
func (s *Session) mutable() error {
	switch s.state {
	case StateUninitialized:
		return ErrNotReady
	case StateReplying:
		return ErrBusy
	}
	return nil
}

func cloneHistory(history []template.Interaction) []template.Interaction {
	if history == nil {
		return nil
	}
	out := make([]template.Interaction, len(history))
	for i, in := range history {
		out[i] = in.Clone()
	}
	return out
}
