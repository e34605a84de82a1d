package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kayz/promptbot/internal/generator"
	"github.com/kayz/promptbot/internal/logger"
	"github.com/kayz/promptbot/internal/persona"
	"github.com/kayz/promptbot/internal/promptbuild"
	"github.com/kayz/promptbot/internal/template"
)

func init() {
	rootCmd.AddCommand(newRenderCommand())
}

func newRenderCommand() *cobra.Command {
	var (
		query       string
		historyPath string
		outputPath  string
		record      bool
	)

	cmd := &cobra.Command{
		Use:   "render <persona>",
		Short: "Assemble the prompt a persona would send for one query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				return fmt.Errorf("--query is required")
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

			p, err := persona.Load(cmd.Context(), args[0], personaSource(cfg, store))
			if err != nil {
				return err
			}

			var history []template.Interaction
			if historyPath != "" {
				data, err := os.ReadFile(historyPath)
				if err != nil {
					return fmt.Errorf("read history: %w", err)
				}
				if err := json.Unmarshal(data, &history); err != nil {
					return fmt.Errorf("parse history: %w", err)
				}
			}

			tok, err := generator.NewTokenizer(cfg.Generator.Tokenizer, p.Client.Model)
			if err != nil {
				return err
			}
			var opts []promptbuild.Option
			if record {
				audit := cfg.Audit
				audit.Enabled = true
				opts = append(opts, promptbuild.WithAuditor(promptbuild.NewAuditor(audit)))
			}

			res, err := promptbuild.NewBuilder(tok, opts...).Build(cmd.Context(), promptbuild.BuildRequest{
				Template:           p.Template,
				History:            history,
				Query:              query,
				MaxContextExamples: p.Chatbot.MaxContextExamples,
				MaxPromptSize:      cfg.HardCap - p.Client.MaxTokens,
				MaxTokens:          p.Client.MaxTokens,
				HardCap:            cfg.HardCap,
			})
			if err != nil {
				return err
			}

			if outputPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Prompt)
			} else if err := os.WriteFile(outputPath, []byte(res.Prompt), 0644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			errOut := cmd.ErrOrStderr()
			fmt.Fprintf(errOut, "context: %d of %d turns, %d/%d prompt tokens\n",
				res.EffectiveContext, len(history), res.PromptTokens, cfg.HardCap-p.Client.MaxTokens)
			if res.Warning != nil {
				fmt.Fprintf(errOut, "warning: %s\n", res.Warning.Message)
			}
			logger.Debug("[PROMPT] rendered %s with %d turns", p.Name, res.EffectiveContext)
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "User query to answer")
	cmd.Flags().StringVar(&historyPath, "history", "", "JSON file with prior turns, oldest first")
	cmd.Flags().StringVar(&outputPath, "output", "", "Write the prompt to a file (default: stdout)")
	cmd.Flags().BoolVar(&record, "record", false, "Append the prompt to the audit log")
	return cmd
}
