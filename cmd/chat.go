package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kayz/promptbot/internal/generator"
	"github.com/kayz/promptbot/internal/logger"
	"github.com/kayz/promptbot/internal/persist"
	"github.com/kayz/promptbot/internal/persona"
	"github.com/kayz/promptbot/internal/promptbuild"
	"github.com/kayz/promptbot/internal/session"
	"github.com/kayz/promptbot/internal/snapshot"
	"github.com/kayz/promptbot/internal/template"
)

func init() {
	rootCmd.AddCommand(newChatCommand())
}

func newChatCommand() *cobra.Command {
	var (
		dryRun bool
		save   bool
		resume string
	)

	cmd := &cobra.Command{
		Use:   "chat [persona]",
		Short: "Chat with a persona over stdin",
		Long: `Chat with a persona. Each input line is one user turn.

In-chat commands:
  /prompt    Print the last prompt sent to the model
  /history   Print the conversation so far
  /quit      End the chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && resume == "" {
				return fmt.Errorf("a persona name or --resume is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var snaps snapshot.Store
			if save || resume != "" {
				if snaps, err = openSnapshots(cfg, store); err != nil {
					return err
				}
				defer snaps.Close()
			}

			gen, err := newGenerator(cfg, dryRun)
			if err != nil {
				return err
			}
			auditor := promptbuild.NewAuditor(cfg.Audit)
			if auditor != nil {
				if err := auditor.Cleanup(); err != nil {
					logger.Warn("[AUDIT] cleanup failed: %v", err)
				}
			}
			opts := []session.Option{session.WithHardCap(cfg.HardCap), session.WithAuditor(auditor)}

			var s *session.Session
			if resume != "" {
				s, err = resumeSession(cmd.Context(), snaps, resume, gen, opts)
			} else {
				var p *persona.Persona
				if p, err = persona.Load(cmd.Context(), args[0], personaSource(cfg, store)); err != nil {
					return err
				}
				s, err = session.New(cmd.Context(), p, gen, opts...)
			}
			if err != nil {
				return err
			}
			if cfg.Generator.Model != "" {
				model := cfg.Generator.Model
				if err := s.Configure(cmd.Context(), persona.ChatbotPatch{}, persona.ClientPatch{Model: &model}); err != nil {
					return err
				}
			}

			c := &chatLoop{
				session: s,
				in:      bufio.NewReader(cmd.InOrStdin()),
				out:     cmd.OutOrStdout(),
				errOut:  cmd.ErrOrStderr(),
			}
			if save {
				c.snaps, c.store = snaps, store
			}
			return c.run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use the scripted generator instead of calling a model")
	cmd.Flags().BoolVar(&save, "save", false, "Save the session after every turn")
	cmd.Flags().StringVar(&resume, "resume", "", "Resume a saved session by ID")
	return cmd
}

func resumeSession(ctx context.Context, snaps snapshot.Store, id string, gen generator.TextGenerator, opts []session.Option) (*session.Session, error) {
	entry, err := snaps.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", id, err)
	}
	snap, err := session.DecodeSnapshot(entry.Data)
	if err != nil {
		return nil, err
	}
	return session.Restore(ctx, snap, gen, opts...)
}

type chatLoop struct {
	session *session.Session
	in      *bufio.Reader
	out     io.Writer
	errOut  io.Writer

	// set when saving
	snaps snapshot.Store
	store *persist.Store
}

func (c *chatLoop) run(ctx context.Context) error {
	s := c.session
	tpl := s.Template()
	fmt.Fprintf(c.out, "Chatting with %s (session %s). Type /quit to exit.\n", s.PersonaName, s.ID)
	c.printWarnings()

	for {
		fmt.Fprintf(c.out, "%s: ", tpl.UserLabel())
		line, err := c.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		text := strings.TrimSpace(line)

		switch text {
		case "":
		case "/quit", "/exit":
			return nil
		case "/prompt":
			fmt.Fprintln(c.out, s.LatestPrompt())
		case "/history":
			for _, turn := range s.History() {
				fmt.Fprint(c.out, tpl.FormatInteraction(turn))
			}
		default:
			if err := c.reply(ctx, tpl, text); err != nil {
				fmt.Fprintf(c.errOut, "error: %v\n", err)
			}
		}

		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			return nil
		}
	}
}

func (c *chatLoop) reply(ctx context.Context, tpl *template.Template, query string) error {
	turn, err := c.session.Reply(ctx, query)
	if err != nil {
		return err
	}
	// The reply fills the second header role.
	bot, label := "", tpl.BotLabel()
	if len(turn) > 1 {
		bot, label = turn[1].Text, tpl.Headers.Label(turn[1].Role)
	}
	fmt.Fprintf(c.out, "%s: %s\n", label, bot)
	c.printWarnings()

	if c.snaps != nil {
		if err := c.save(ctx, query, bot); err != nil {
			logger.Warn("[SESSION] save %s failed: %v", c.session.ID, err)
		}
	}
	return nil
}

func (c *chatLoop) save(ctx context.Context, query, bot string) error {
	snap := c.session.Snapshot()
	encoded, err := snap.Encode()
	if err != nil {
		return err
	}
	if err := c.snaps.Put(ctx, &snapshot.Entry{
		ID:      snap.ID,
		Persona: snap.Persona,
		Data:    encoded,
		Turns:   len(snap.History),
	}); err != nil {
		return err
	}

	tokens := 0
	if n := len(snap.HistorySizes); n == len(snap.History) && n > 0 {
		tokens = snap.HistorySizes[n-1]
	}
	// The transcript needs a session row even when snapshots live elsewhere.
	if _, err := c.store.GetSession(snap.ID); errors.Is(err, persist.ErrNotFound) {
		if err := c.store.SaveSession(snap.ID, snap.Persona, encoded, len(snap.History)); err != nil {
			return err
		}
	}
	return c.store.AppendTurn(persist.Turn{
		SessionID: snap.ID,
		Index:     len(snap.History) - 1,
		User:      query,
		Bot:       bot,
		Tokens:    tokens,
	})
}

func (c *chatLoop) printWarnings() {
	for _, w := range c.session.Warnings() {
		fmt.Fprintf(c.errOut, "warning: %s\n", w.Message)
	}
}
