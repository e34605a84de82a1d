package promptbuild

import (
	"context"
	"fmt"
	"strings"

	"github.com/kayz/promptbot/internal/template"
)

// renderPrompt stitches the static prompt, the history window and the
// query. The query turn leaves the bot label open.
func renderPrompt(tpl *template.Template, window []template.Interaction, query string) string {
	var b strings.Builder
	b.WriteString(tpl.Text())
	b.WriteString("\n")
	for _, turn := range window {
		b.WriteString(turnText(tpl, turn))
	}
	b.WriteString(turnText(tpl, tpl.CreateInteraction([]string{query}, nil)))
	return strings.TrimSpace(b.String())
}

// turnText renders one live turn. Per-example styles frame every turn as
// a new example; leading-separator styles continue the conversation.
func turnText(tpl *template.Template, turn template.Interaction) string {
	if tpl.Style.Separator == template.SeparatorLeading {
		return tpl.FormatInteraction(turn)
	}
	return tpl.ExampleSeparator + tpl.FormatInteraction(turn)
}

// historyCosts extends sizes so that it holds one cost per history turn.
// The input slice is never modified.
func (b *Builder) historyCosts(ctx context.Context, tpl *template.Template, history []template.Interaction, sizes []int) ([]int, error) {
	if len(sizes) > len(history) {
		sizes = sizes[:len(history)]
	}
	out := make([]int, len(sizes), len(history))
	copy(out, sizes)
	for i := len(sizes); i < len(history); i++ {
		cost, err := b.TurnCost(ctx, tpl, history[i])
		if err != nil {
			return nil, fmt.Errorf("size history turn %d: %w", i, err)
		}
		out = append(out, cost)
	}
	return out, nil
}

func sumCosts(costs []int) int {
	total := 0
	for _, c := range costs {
		total += c
	}
	return total
}
