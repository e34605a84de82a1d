package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayz/promptbot/internal/generator"
	"github.com/kayz/promptbot/internal/persona"
	"github.com/kayz/promptbot/internal/promptbuild"
	"github.com/kayz/promptbot/internal/template"
)

const pirateDoc = `start_prompt_config:
  preamble: You are a pirate bot.
  example_separator: ""
  headers:
    user: User
    bot: Bot
  examples:
    - user: hi
      bot: arr
chatbot_config:
  max_context_examples: 10
client_config:
  max_tokens: 100
`

func loadPirate(t *testing.T) *persona.Persona {
	t.Helper()
	p, err := persona.Parse("pirate", []byte(pirateDoc))
	require.NoError(t, err)
	return p
}

func newPirate(t *testing.T, gen generator.TextGenerator, opts ...Option) *Session {
	t.Helper()
	s, err := New(context.Background(), loadPirate(t), gen, opts...)
	require.NoError(t, err)
	return s
}

func turn(user, bot string) template.Interaction {
	return template.Interaction{{Role: "user", Text: user}, {Role: "bot", Text: bot}}
}

type blockingGen struct {
	generator.WordTokenizer
	started chan struct{}
	release chan struct{}
}

func (g *blockingGen) Generate(ctx context.Context, prompt string, params generator.Params) ([]string, error) {
	close(g.started)
	<-g.release
	return []string{"done"}, nil
}

func TestNewFillsStopSequencesFromTemplate(t *testing.T) {
	s := newPirate(t, generator.NewScripted())

	assert.Equal(t, StateReady, s.State())
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, []string{"\nUser:", "\nBot:"}, s.Client().StopSequences)
	assert.Equal(t, "You are a pirate bot.\nUser: hi\nBot: arr", s.LatestPrompt())
}

func TestNewCarriesMaxTokensWarning(t *testing.T) {
	doc := strings.Replace(pirateDoc, "max_tokens: 100", "max_tokens: 1600", 1)
	p, err := persona.Parse("pirate", []byte(doc))
	require.NoError(t, err)
	require.Len(t, p.Warnings, 1)

	s, err := New(context.Background(), p, generator.NewScripted())
	require.NoError(t, err)
	warnings := s.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningMaxTokens, warnings[0].Code)
}

func TestNewStaticPromptTooLarge(t *testing.T) {
	// Nine words of static prompt against an eight token budget.
	_, err := New(context.Background(), loadPirate(t), generator.NewScripted(), WithHardCap(108))

	var tooLarge *promptbuild.PromptTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.ErrorIs(t, err, promptbuild.ErrPromptTooLarge)
	assert.Equal(t, 9, tooLarge.StaticTokens)
	assert.Equal(t, 8, tooLarge.MaxPromptSize)
	assert.Contains(t, err.Error(), "static prompt uses 9 tokens")
}

func TestReplyAppendsTurn(t *testing.T) {
	gen := generator.NewScripted("  Ahoy!\nUser:")
	s := newPirate(t, gen)

	got, err := s.Reply(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, turn("hello", "Ahoy!"), got)
	assert.Equal(t, []template.Interaction{turn("hello", "Ahoy!")}, s.History())
	assert.Equal(t, []int{4}, s.HistorySizes())
	assert.Equal(t, StateReady, s.State())

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "You are a pirate bot.\nUser: hi\nBot: arr\nUser: hello\nBot:", calls[0].Prompt)
	assert.Equal(t, 100, calls[0].Params.MaxTokens)
	assert.Equal(t, "command", calls[0].Params.Model)
	assert.Equal(t, []string{"\nUser:", "\nBot:"}, calls[0].Params.StopSequences)

	assert.Equal(t, calls[0].Prompt, s.LatestPrompt())
	assert.Len(t, s.PromptHistory(), 2)
}

func TestReplyStripsOneStopSequence(t *testing.T) {
	s := newPirate(t, generator.NewScripted("yes\nBot:\nBot:", "no stop here"))

	got, err := s.Reply(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "yes\nBot:", got[1].Text)

	got, err = s.Reply(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "no stop here", got[1].Text)
}

func TestReplyTooLargeLeavesHistoryUntouched(t *testing.T) {
	gen := generator.NewScripted("arr")
	s := newPirate(t, gen, WithHardCap(112))

	_, err := s.Reply(context.Background(), "hello")
	require.NoError(t, err)
	before := s.History()

	_, err = s.Reply(context.Background(), "one two three four five six")
	require.ErrorIs(t, err, promptbuild.ErrPromptTooLarge)

	assert.Len(t, gen.Calls(), 1, "generator must not be called for an oversize prompt")
	assert.Equal(t, before, s.History())
	assert.Len(t, s.HistorySizes(), 1)
	assert.Equal(t, StateReady, s.State())
}

func TestReplyGeneratorErrorSurfacesUnchanged(t *testing.T) {
	boom := errors.New("upstream unavailable")
	gen := generator.NewScripted()
	gen.Err = boom
	s := newPirate(t, gen)

	_, err := s.Reply(context.Background(), "hello")
	assert.Equal(t, boom, err)
	assert.Empty(t, s.History())
	assert.Len(t, s.PromptHistory(), 1)
	assert.Equal(t, StateReady, s.State())
}

func TestReplyShrinksContextWithWarning(t *testing.T) {
	s := newPirate(t, generator.NewScripted("ok"), WithHardCap(120))
	require.NoError(t, s.ReplaceHistory([]template.Interaction{turn("a", "b"), turn("c", "d"), turn("e", "f")}))
	s.Warnings()

	_, err := s.Reply(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, "You are a pirate bot.\nUser: hi\nBot: arr\nUser: c\nBot: d\nUser: e\nBot: f\nUser: q\nBot:", s.LatestPrompt())
	warnings := s.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, promptbuild.WarningContextReduced, warnings[0].Code)
	assert.Equal(t, "max_context_examples reduced from 10 to 2 for this turn.", warnings[0].Message)
	assert.Empty(t, s.Warnings(), "warnings are drained")

	// Configured window is not overwritten.
	assert.Equal(t, 10, s.Chatbot().MaxContextExamples)
	assert.Equal(t, []int{4, 4, 4, 4}, s.HistorySizes())
}

func TestReplyNotReentrant(t *testing.T) {
	gen := &blockingGen{started: make(chan struct{}), release: make(chan struct{})}
	s := newPirate(t, gen)

	done := make(chan error, 1)
	go func() {
		_, err := s.Reply(context.Background(), "first")
		done <- err
	}()
	<-gen.started

	assert.Equal(t, StateReplying, s.State())
	_, err := s.Reply(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, s.ReplaceHistory(nil), ErrBusy)

	close(gen.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, s.State())
	assert.Len(t, s.History(), 1)
}

func TestReplyOnUninitializedSession(t *testing.T) {
	var s Session
	_, err := s.Reply(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, StateUninitialized, s.State())
}

func TestConfigure(t *testing.T) {
	s := newPirate(t, generator.NewScripted())
	s.Warnings()

	tooMany := 2048
	err := s.Configure(context.Background(), persona.ChatbotPatch{}, persona.ClientPatch{MaxTokens: &tooMany})
	var ce *persona.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "client_config.max_tokens", ce.Key)
	assert.Equal(t, 100, s.Client().MaxTokens)

	high, window := 1600, 0
	require.NoError(t, s.Configure(context.Background(),
		persona.ChatbotPatch{MaxContextExamples: &window},
		persona.ClientPatch{MaxTokens: &high}))
	assert.Equal(t, 1600, s.Client().MaxTokens)
	assert.Equal(t, 0, s.Chatbot().MaxContextExamples)
	assert.Equal(t, []string{"\nUser:", "\nBot:"}, s.Client().StopSequences)

	warnings := s.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningMaxTokens, warnings[0].Code)
}

func TestUpdateTemplate(t *testing.T) {
	s := newPirate(t, generator.NewScripted("aye"))
	_, err := s.Reply(context.Background(), "hello")
	require.NoError(t, err)

	short := "no"
	err = s.UpdateTemplate(context.Background(), template.Patch{Preamble: &short})
	assert.ErrorIs(t, err, template.ErrStructural)
	assert.Equal(t, "You are a pirate bot.", s.Template().Preamble)

	preamble := "You are a polite butler."
	require.NoError(t, s.UpdateTemplate(context.Background(), template.Patch{Preamble: &preamble}))
	assert.Equal(t, "You are a polite butler.\nUser: hi\nBot: arr", s.LatestPrompt())
	assert.Empty(t, s.HistorySizes(), "turn costs are recomputed lazily")
	assert.Len(t, s.History(), 1)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newPirate(t, generator.NewScripted("arr", "aye"), WithHardCap(1024))
	for _, q := range []string{"hello", "where is the gold"} {
		_, err := s.Reply(context.Background(), q)
		require.NoError(t, err)
	}

	snap := s.Snapshot()
	encoded, err := snap.Encode()
	require.NoError(t, err)
	decoded, err := DecodeSnapshot(encoded)
	require.NoError(t, err)

	gen := generator.NewScripted("yo ho")
	restored, err := Restore(context.Background(), decoded, gen)
	require.NoError(t, err)

	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, "pirate", restored.PersonaName)
	assert.True(t, s.Template().Equal(restored.Template()))
	assert.Equal(t, s.History(), restored.History())
	assert.Equal(t, s.HistorySizes(), restored.HistorySizes())
	assert.Equal(t, s.PromptHistory(), restored.PromptHistory())
	assert.Equal(t, s.Client(), restored.Client())
	assert.Equal(t, snap, restored.Snapshot())

	_, err = restored.Reply(context.Background(), "next")
	require.NoError(t, err)
	assert.Contains(t, gen.Calls()[0].Prompt, "User: where is the gold\nBot: aye\nUser: next\nBot:")
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	_, err := DecodeSnapshot("not base64!")
	assert.Error(t, err)
}
