package template

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func chatHeaders() Headers {
	return Headers{{Role: "user", Label: "User"}, {Role: "bot", Label: "Bot"}}
}

func turn(user, bot string) Interaction {
	return Interaction{{Role: "user", Text: user}, {Role: "bot", Text: bot}}
}

func newChatTemplate(t *testing.T, examples ...Conversation) *Template {
	t.Helper()
	tpl, err := New(Config{
		Preamble:         "You are a helpful bot.",
		ExampleSeparator: "\n",
		Headers:          chatHeaders(),
		Examples:         examples,
	}, ChatStyle, ChatRules)
	if err != nil {
		t.Fatalf("New chat template: %v", err)
	}
	return tpl
}

func newExampleTemplate(t *testing.T) *Template {
	t.Helper()
	tpl, err := New(Config{
		Preamble:         "Classify the sentiment.",
		ExampleSeparator: "--\n",
		Headers:          Headers{{Role: "input", Label: "Input: "}, {Role: "output", Label: "Output: "}},
		Examples: []Conversation{
			{{{Role: "input", Text: "great"}, {Role: "output", Text: "positive"}}},
			{{{Role: "input", Text: "awful"}, {Role: "output", Text: "negative"}}},
		},
	}, ExampleStyle, ExampleRules)
	if err != nil {
		t.Fatalf("New example template: %v", err)
	}
	return tpl
}

func TestTextChatStyle(t *testing.T) {
	tpl := newChatTemplate(t, Conversation{turn("hi", "hello"), turn("how are you?", "fine")})

	want := "You are a helpful bot.\n\nUser: hi\nBot: hello\nUser: how are you?\nBot: fine"
	if got := tpl.Text(); got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestTextLeadingSeparatorWithoutExamples(t *testing.T) {
	tpl, err := New(Config{
		Preamble:         "0123456789",
		ExampleSeparator: "###",
		Headers:          chatHeaders(),
	}, ChatStyle, ChatRules)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := tpl.Text(); got != "0123456789\n###" {
		t.Fatalf("Text() = %q", got)
	}
}

func TestTextExampleStyle(t *testing.T) {
	tpl := newExampleTemplate(t)

	want := "Classify the sentiment.\n--\nInput: great\nOutput: positive\n--\nInput: awful\nOutput: negative"
	if got := tpl.Text(); got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestTextTracksFieldChanges(t *testing.T) {
	tpl := newChatTemplate(t)
	before := tpl.Text()
	preamble := "You are a terse bot."
	if err := tpl.Update(Patch{Preamble: &preamble}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := tpl.Text(); got == before || got != "You are a terse bot." {
		t.Fatalf("Text() after update = %q", got)
	}
}

func TestFormatInteractionUsesInteractionOrder(t *testing.T) {
	tpl := newChatTemplate(t)
	in := Interaction{{Role: "bot", Text: "x"}, {Role: "user", Text: "y"}}

	if got := tpl.FormatInteraction(in); got != "Bot: x\nUser: y\n" {
		t.Fatalf("FormatInteraction = %q", got)
	}
}

func TestFormatInteractionUnknownRoleFallsBackToKey(t *testing.T) {
	tpl := newChatTemplate(t)
	in := Interaction{{Role: "narrator", Text: "later that day"}}

	if got := tpl.FormatInteraction(in); got != "narrator: later that day\n" {
		t.Fatalf("FormatInteraction = %q", got)
	}
}

func TestFormatInteractionIdempotent(t *testing.T) {
	tpl := newChatTemplate(t)
	in := turn("hi", "hello")
	first := tpl.FormatInteraction(in)
	for i := 0; i < 3; i++ {
		if got := tpl.FormatInteraction(in); got != first {
			t.Fatalf("call %d: %q != %q", i, got, first)
		}
	}
}

func TestColonStyles(t *testing.T) {
	tests := []struct {
		colon Colon
		want  string
		stop  string
	}{
		{ColonSpace, "Q: why\n", "\nQ:"},
		{ColonNewline, "Q:\nwhy\n", "\nQ:"},
		{ColonNone, "Qwhy\n", "\nQ"},
	}
	for _, tc := range tests {
		tpl := &Template{
			Headers: Headers{{Role: "q", Label: "Q"}},
			Style:   FormattingStyle{Colon: tc.colon},
		}
		if got := tpl.FormatInteraction(Interaction{{Role: "q", Text: "why"}}); got != tc.want {
			t.Fatalf("colon %v: got %q, want %q", tc.colon, got, tc.want)
		}
		if got := tpl.StopSequences(); !reflect.DeepEqual(got, []string{tc.stop}) {
			t.Fatalf("colon %v: stops %q", tc.colon, got)
		}
	}
}

func TestStopSequences(t *testing.T) {
	chat := newChatTemplate(t)
	if got := chat.StopSequences(); !reflect.DeepEqual(got, []string{"\nUser:", "\nBot:"}) {
		t.Fatalf("chat stops = %q", got)
	}
	ex := newExampleTemplate(t)
	if got := ex.StopSequences(); !reflect.DeepEqual(got, []string{"\nInput:", "\nOutput:"}) {
		t.Fatalf("example stops = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{
			name:  "short preamble",
			cfg:   Config{Preamble: "short", Headers: chatHeaders()},
			field: "preamble",
		},
		{
			name:  "missing required role",
			cfg:   Config{Preamble: "long enough preamble", Headers: Headers{{Role: "user", Label: "User"}}},
			field: "headers",
		},
		{
			name:  "duplicate role",
			cfg:   Config{Preamble: "long enough preamble", Headers: append(chatHeaders(), Header{Role: "bot", Label: "B"})},
			field: "headers",
		},
		{
			name: "example missing role",
			cfg: Config{
				Preamble: "long enough preamble",
				Headers:  chatHeaders(),
				Examples: []Conversation{{Interaction{{Role: "user", Text: "hi"}}}},
			},
			field: "examples",
		},
		{
			name: "speaker prefixed dialogue",
			cfg: Config{
				Preamble: "long enough preamble",
				Headers:  chatHeaders(),
				Examples: []Conversation{{turn("User: hi", "Bot: hello")}},
			},
			field: "examples",
		},
		{
			name: "interaction is not a pair",
			cfg: Config{
				Preamble: "long enough preamble",
				Headers:  append(chatHeaders(), Header{Role: "aside", Label: "Aside"}),
				Examples: []Conversation{{append(turn("hi", "hello"), Utterance{Role: "aside", Text: "psst"})}},
			},
			field: "examples",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg, ChatStyle, ChatRules)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var se *StructuralError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StructuralError, got %T: %v", err, err)
			}
			if se.Field != tc.field {
				t.Fatalf("field = %q, want %q (%v)", se.Field, tc.field, err)
			}
			if !errors.Is(err, ErrStructural) {
				t.Fatal("expected errors.Is(err, ErrStructural)")
			}
		})
	}
}

func TestValidateMinExamples(t *testing.T) {
	_, err := New(Config{
		Preamble: "p",
		Headers:  Headers{{Role: "input", Label: "In: "}},
	}, ExampleStyle, ExampleRules)
	var se *StructuralError
	if !errors.As(err, &se) || se.Field != "examples" {
		t.Fatalf("expected examples error, got %v", err)
	}
}

func TestValidateColonLooksPrefixedOnlyWarns(t *testing.T) {
	_, err := New(Config{
		Preamble: "long enough preamble",
		Headers:  chatHeaders(),
		Examples: []Conversation{{turn("time: now", "place: here")}},
	}, ChatStyle, ChatRules)
	if err != nil {
		t.Fatalf("expected warning only, got %v", err)
	}
}

func TestCreateInteraction(t *testing.T) {
	tpl := newChatTemplate(t)

	got := tpl.CreateInteraction([]string{"q"}, nil)
	if want := turn("q", ""); !reflect.DeepEqual(got, want) {
		t.Fatalf("positional fill = %v, want %v", got, want)
	}

	got = tpl.CreateInteraction([]string{"q", "a", "ignored"}, map[string]string{"bot": "override", "zeta": "z", "alpha": "a"})
	want := Interaction{
		{Role: "user", Text: "q"},
		{Role: "bot", Text: "override"},
		{Role: "alpha", Text: "a"},
		{Role: "zeta", Text: "z"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("override fill = %v, want %v", got, want)
	}
}

func TestLabels(t *testing.T) {
	tpl := newChatTemplate(t)
	if tpl.UserLabel() != "User" || tpl.BotLabel() != "Bot" {
		t.Fatalf("labels = %q/%q", tpl.UserLabel(), tpl.BotLabel())
	}
	empty := &Template{}
	if empty.UserLabel() != "User" || empty.BotLabel() != "Bot" {
		t.Fatalf("default labels = %q/%q", empty.UserLabel(), empty.BotLabel())
	}
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	tpl := newChatTemplate(t, Conversation{turn("hi", "hello")})
	before := tpl.ToStructured()

	short := "tiny"
	sep := "***"
	err := tpl.Update(Patch{Preamble: &short, ExampleSeparator: &sep})
	if !errors.Is(err, ErrStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
	if diff := cmp.Diff(before, tpl.ToStructured()); diff != "" {
		t.Fatalf("template changed after failed update (-before +after):\n%s", diff)
	}
}

func TestUpdateFlatStyleRejectsConversations(t *testing.T) {
	tpl := newChatTemplate(t, Conversation{turn("hi", "hello"), turn("bye", "ciao")})
	before := tpl.ToStructured()

	style := StartStyle
	err := tpl.Update(Patch{Style: &style})
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StructuralError, got %v", err)
	}
	if se.Field != "examples" {
		t.Fatalf("field = %q", se.Field)
	}
	if diff := cmp.Diff(before, tpl.ToStructured()); diff != "" {
		t.Fatalf("template changed after failed update (-before +after):\n%s", diff)
	}

	single := newChatTemplate(t, Conversation{turn("hi", "hello")})
	if err := single.Update(Patch{Style: &style}); err != nil {
		t.Fatalf("single-interaction examples should flatten: %v", err)
	}
	if _, err := json.Marshal(single.ToStructured()); err != nil {
		t.Fatalf("marshal flattened template: %v", err)
	}
}

func TestInteractionJSONEscapes(t *testing.T) {
	var in Interaction
	if err := json.Unmarshal([]byte(`{"user": "caf\u00e9?", "bot": "Ahoy, matey \ud83c\udff4"}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Interaction{{Role: "user", Text: "café?"}, {Role: "bot", Text: "Ahoy, matey \U0001F3F4"}}
	if diff := cmp.Diff(want, in); diff != "" {
		t.Fatalf("interaction mismatch (-want +got):\n%s", diff)
	}
}

func TestInteractionJSONErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"not an object": `["user", "hi"]`,
		"nested value":  `{"user": {"text": "hi"}}`,
		"number value":  `{"user": 5}`,
		"duplicate key": `{"user": "a", "user": "b"}`,
		"null":          `null`,
	} {
		t.Run(name, func(t *testing.T) {
			var in Interaction
			if err := json.Unmarshal([]byte(doc), &in); err == nil {
				t.Fatalf("expected an error, got %v", in)
			}
		})
	}
}

func TestUpdateJSONRejectsNonTextSeparator(t *testing.T) {
	tpl := newChatTemplate(t)

	err := tpl.UpdateJSON([]byte(`{"example_separator": 5}`))
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StructuralError, got %v", err)
	}
	if se.Field != "example_separator" {
		t.Fatalf("field = %q", se.Field)
	}
	if tpl.ExampleSeparator != "\n" {
		t.Fatalf("separator changed to %q", tpl.ExampleSeparator)
	}
}

func TestUpdateFromMapIgnoresUnknownKeys(t *testing.T) {
	tpl := newChatTemplate(t)

	err := tpl.UpdateFromMap(map[string]any{
		"example_separator": "\n---\n",
		"unknown":           true,
	})
	if err != nil {
		t.Fatalf("UpdateFromMap: %v", err)
	}
	if tpl.ExampleSeparator != "\n---\n" {
		t.Fatalf("separator = %q", tpl.ExampleSeparator)
	}
}

func TestStructuredRoundTripJSON(t *testing.T) {
	templates := map[string]*Template{
		"chat":     newChatTemplate(t, Conversation{turn("hi", "hello"), turn("bye", "ciao")}, Conversation{turn("yo", "hey")}),
		"examples": newExampleTemplate(t),
	}
	for name, tpl := range templates {
		t.Run(name, func(t *testing.T) {
			data, err := json.Marshal(tpl.ToStructured())
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var s Structured
			if err := json.Unmarshal(data, &s); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			back, err := FromStructured(s)
			if err != nil {
				t.Fatalf("FromStructured: %v", err)
			}
			if diff := cmp.Diff(tpl, back); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
			if back.Text() != tpl.Text() {
				t.Fatalf("text changed: %q != %q", back.Text(), tpl.Text())
			}
		})
	}
}

func TestStructuredRoundTripYAMLCustomStyle(t *testing.T) {
	style := FormattingStyle{Nesting: NestingFlat, Colon: ColonNewline, Separator: SeparatorLeading}
	tpl, err := New(Config{
		Preamble:         "Answer briefly.",
		ExampleSeparator: "\n",
		Headers:          Headers{{Role: "zq", Label: "Question"}, {Role: "aa", Label: "Answer"}},
		Examples:         []Conversation{{{{Role: "zq", Text: "2+2"}, {Role: "aa", Text: "4"}}}},
	}, style, ExampleRules)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := yaml.Marshal(tpl.ToStructured())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var s Structured
	if err := yaml.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, data)
	}
	back, err := FromStructured(s)
	if err != nil {
		t.Fatalf("FromStructured: %v", err)
	}
	if !tpl.Equal(back) {
		t.Fatalf("round trip mismatch:\n%s", cmp.Diff(tpl, back))
	}
	if got := back.Headers.Roles(); !reflect.DeepEqual(got, []string{"zq", "aa"}) {
		t.Fatalf("header order = %v", got)
	}
}

func TestStyleByName(t *testing.T) {
	for _, name := range []string{"chat", "start", "examples"} {
		s, err := StyleByName(name)
		if err != nil {
			t.Fatalf("StyleByName(%q): %v", name, err)
		}
		if s.Name() != name {
			t.Fatalf("Name() = %q, want %q", s.Name(), name)
		}
	}
	if _, err := StyleByName("fancy"); err == nil {
		t.Fatal("expected error for unknown style")
	}
}
