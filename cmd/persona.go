package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kayz/promptbot/internal/persona"
)

func init() {
	rootCmd.AddCommand(newPersonaCommand())
}

func newPersonaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "persona",
		Aliases: []string{"personas"},
		Short:   "Validate, import and inspect personas",
	}
	cmd.AddCommand(
		newPersonaValidateCommand(),
		newPersonaImportCommand(),
		newPersonaListCommand(),
		newPersonaShowCommand(),
		newPersonaDeleteCommand(),
	)
	return cmd
}

func newPersonaValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a persona document without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read persona: %w", err)
			}
			p, err := persona.Parse(personaNameFromPath(args[0]), data)
			if err != nil {
				return err
			}
			for _, w := range p.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s style, %d examples, roles %s)\n",
				args[0], styleName(p), len(p.Template.Examples), strings.Join(p.Template.Headers.Roles(), ", "))
			return err
		},
	}
}

func newPersonaImportCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a persona document and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read persona: %w", err)
			}
			if name == "" {
				name = personaNameFromPath(args[0])
			}
			p, err := persona.Parse(name, data)
			if err != nil {
				return err
			}
			doc, err := p.Document()
			if err != nil {
				return fmt.Errorf("encode persona: %w", err)
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SavePersona(name, doc); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", name)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Persona name (default: file or directory name)")
	return cmd
}

type personaListing struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

func newPersonaListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List personas on disk and in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			names, err := persona.DirSource{Root: cfg.Personas.Dir}.List()
			if err != nil {
				return err
			}
			var out []personaListing
			for _, n := range names {
				out = append(out, personaListing{Name: n, Source: "dir"})
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.ListPersonas()
			if err != nil {
				return err
			}
			for _, r := range records {
				out = append(out, personaListing{Name: r.Name, Source: "store"})
			}
			sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			if len(out) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no personas found")
				return err
			}
			for _, l := range out {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", l.Name, l.Source)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render output as JSON")
	return cmd
}

func newPersonaShowCommand() *cobra.Command {
	var showPrompt bool

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a persona document or its static prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if showPrompt {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), p.Template.Text())
				return err
			}
			doc, err := p.Document()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return err
		},
	}

	cmd.Flags().BoolVar(&showPrompt, "prompt", false, "Print the static prompt instead of the document")
	return cmd
}

func newPersonaDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove an imported persona from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.DeletePersona(args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}
}

// personaNameFromPath names a persona after its file, or after its
// directory when the file is a config.* document.
func personaNameFromPath(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "config" {
		return filepath.Base(filepath.Dir(path))
	}
	return stem
}

func styleName(p *persona.Persona) string {
	if name := p.Template.Style.Name(); name != "" {
		return name
	}
	return "custom"
}
