package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSessionsCommand())
}

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect chat sessions saved with chat --save",
	}
	cmd.AddCommand(
		newSessionsListCommand(),
		newSessionsShowCommand(),
		newSessionsDeleteCommand(),
	)
	return cmd
}

func newSessionsListCommand() *cobra.Command {
	var personaName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, most recent first",
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

			records, err := store.ListSessions(personaName)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no sessions found")
				return err
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %3d turns  %s\n",
					r.ID, r.Persona, r.Turns, r.UpdatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&personaName, "persona", "", "Only list sessions of this persona")
	return cmd
}

func newSessionsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the transcript of a saved session",
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

			rec, err := store.GetSession(args[0])
			if err != nil {
				return err
			}
			turns, err := store.ListTurns(rec.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s (%s)\n", rec.ID, rec.Persona)
			for _, t := range turns {
				fmt.Fprintf(out, "[%d] > %s\n    %s\n", t.Index+1, t.User, t.Bot)
			}
			return nil
		},
	}
}

func newSessionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved session and its transcript",
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

			snaps, err := openSnapshots(cfg, store)
			if err != nil {
				return err
			}
			defer snaps.Close()
			if err := snaps.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := store.DeleteSession(args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}
}
