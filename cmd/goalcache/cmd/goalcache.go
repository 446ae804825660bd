// Package cmd implements the goalcache command line.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-goal-cache/identity/session"
	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/internal/config"
	"github.com/goliatone/go-goal-cache/model"
)

// Version is set at build time
var Version = "dev"

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := NewGoalCache(stdout, stderr)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewGoalCache creates the root command with injectable IO
func NewGoalCache(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "goalcache",
		Short:         "Weekly goals with notes and accomplishments",
		Long:          "goalcache tracks weekly goals, their notes and accomplishments, with cached per-goal counts.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to the YAML config file")
	cmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	cmd.AddCommand(newConfigCmd(stdout))
	cmd.AddCommand(newMigrateCmd(stdout, stderr))
	cmd.AddCommand(newLoginCmd(stdout, stderr))
	cmd.AddCommand(newLogoutCmd(stdout, stderr))
	cmd.AddCommand(newWhoamiCmd(stdout, stderr))
	cmd.AddCommand(newGoalsCmd(stdout, stderr))
	cmd.AddCommand(newNotesCmd(stdout, stderr))
	cmd.AddCommand(newAccomplishmentsCmd(stdout, stderr))
	cmd.AddCommand(newCountsCmd(stdout, stderr))

	return cmd
}

func jsonOutput(cmd *cobra.Command) bool {
	on, _ := cmd.Flags().GetBool("json")
	return on
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newConfigCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print an annotated sample configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(stdout, config.Sample())
			return err
		},
	}
}

func newMigrateCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openStore(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			if err := e.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, "Database is up to date")
			return err
		},
	}
}

func newLoginCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				return fmt.Errorf("--token is required")
			}

			e, err := openSessions(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			sess, err := session.SessionFromToken(token, []byte(e.cfg.Session.JWTSecret))
			if err != nil {
				return err
			}
			if err := e.sessions.Save(cmd.Context(), sess); err != nil {
				return err
			}

			e.logger.Debug("session saved", "user_id", sess.UserID)
			_, err = fmt.Fprintf(stdout, "Signed in as %s\n", sess.UserID)
			return err
		},
	}
	cmd.Flags().String("token", "", "Bearer token (JWT) issued by the goals API")
	return cmd
}

func newLogoutCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openSessions(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			if err := e.sessions.Delete(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, "Signed out")
			return err
		},
	}
}

func newWhoamiCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openApp(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			user, err := e.user(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(stdout, map[string]string{"user_id": user.ID})
			}
			_, err = fmt.Fprintln(stdout, user.ID)
			return err
		},
	}
}

func newGoalsCmd(stdout, stderr io.Writer) *cobra.Command {
	goalsCmd := &cobra.Command{
		Use:   "goals",
		Short: "Manage weekly goals",
	}

	addCmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openApp(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			ctx := cmd.Context()
			user, err := e.user(ctx)
			if err != nil {
				return err
			}

			goal := model.Goal{Title: args[0]}
			goal.Description, _ = cmd.Flags().GetString("description")
			if week, _ := cmd.Flags().GetString("week"); week != "" {
				goal.WeekStart, err = time.Parse(time.DateOnly, week)
				if err != nil {
					return fmt.Errorf("invalid --week %q, expected YYYY-MM-DD", week)
				}
			}

			m, err := e.container.Goals().Create(ctx, ids.Persisted(user.ID), goal)
			if err != nil {
				return err
			}
			saved, err := m.Wait(ctx)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(stdout, saved)
			}
			_, err = fmt.Fprintf(stdout, "Created goal %s\n", saved.ID)
			return err
		},
	}
	addCmd.Flags().String("description", "", "Goal description")
	addCmd.Flags().String("week", "", "Week start date (YYYY-MM-DD)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List goals with their counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openApp(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			ctx := cmd.Context()
			user, err := e.user(ctx)
			if err != nil {
				return err
			}

			goals, err := e.container.Goals().Load(ctx, ids.Persisted(user.ID))
			if err != nil {
				return err
			}

			list := make([]ids.ID, len(goals))
			for i, g := range goals {
				list[i] = g.ID
			}
			counts := e.container.Counter().Prefetch(ctx, list)

			if jsonOutput(cmd) {
				type goalJSON struct {
					model.Goal
					Notes           int `json:"notes"`
					Accomplishments int `json:"accomplishments"`
				}
				out := make([]goalJSON, len(goals))
				for i, g := range goals {
					out[i] = goalJSON{
						Goal:            g,
						Notes:           counts.Get(model.KindNotes, g.ID.String()),
						Accomplishments: counts.Get(model.KindAccomplishments, g.ID.String()),
					}
				}
				return writeJSON(stdout, out)
			}

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tTITLE\tNOTES\tACCOMPLISHMENTS")
			for _, g := range goals {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", g.ID, g.Title,
					counts.Get(model.KindNotes, g.ID.String()),
					counts.Get(model.KindAccomplishments, g.ID.String()))
			}
			return tw.Flush()
		},
	}

	goalsCmd.AddCommand(addCmd, listCmd)
	return goalsCmd
}

func newNotesCmd(stdout, stderr io.Writer) *cobra.Command {
	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage notes attached to a goal",
	}

	addCmd := &cobra.Command{
		Use:   "add [goal-id] [content]",
		Short: "Add a note to a goal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openApp(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			ctx := cmd.Context()
			goalID := ids.Parse(args[0])
			note := model.Note{Content: args[1]}
			note.Title, _ = cmd.Flags().GetString("title")

			m, err := e.container.Notes().Create(ctx, goalID, note)
			if err != nil {
				return err
			}
			saved, err := m.Wait(ctx)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(stdout, saved)
			}
			count, _ := e.container.Snapshot().Get(model.KindNotes, saved.GoalID.String())
			_, err = fmt.Fprintf(stdout, "Created note %s (%d on goal)\n", saved.ID, count)
			return err
		},
	}
	addCmd.Flags().String("title", "", "Note title")

	listCmd := &cobra.Command{
		Use:   "list [goal-id]",
		Short: "List a goal's notes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openApp(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			notes, err := e.container.Notes().Load(cmd.Context(), ids.Parse(args[0]))
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(stdout, notes)
			}

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tCREATED\tCONTENT")
			for _, n := range notes {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", n.ID, n.CreatedAt.Format(time.DateTime), n.Content)
			}
			return tw.Flush()
		},
	}

	notesCmd.AddCommand(addCmd, listCmd)
	return notesCmd
}

func newAccomplishmentsCmd(stdout, stderr io.Writer) *cobra.Command {
	accCmd := &cobra.Command{
		Use:     "accomplishments",
		Aliases: []string{"acc"},
		Short:   "Manage accomplishments recorded against a goal",
	}

	addCmd := &cobra.Command{
		Use:   "add [goal-id] [title]",
		Short: "Record an accomplishment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openApp(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			ctx := cmd.Context()
			acc := model.Accomplishment{Title: args[1]}
			acc.Description, _ = cmd.Flags().GetString("description")
			acc.Impact, _ = cmd.Flags().GetInt("impact")

			m, err := e.container.Accomplishments().Create(ctx, ids.Parse(args[0]), acc)
			if err != nil {
				return err
			}
			saved, err := m.Wait(ctx)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(stdout, saved)
			}
			_, err = fmt.Fprintf(stdout, "Created accomplishment %s\n", saved.ID)
			return err
		},
	}
	addCmd.Flags().String("description", "", "Accomplishment description")
	addCmd.Flags().Int("impact", 0, "Impact from 0 to 5")

	listCmd := &cobra.Command{
		Use:   "list [goal-id]",
		Short: "List a goal's accomplishments, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openApp(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			items, err := e.container.Accomplishments().Load(cmd.Context(), ids.Parse(args[0]))
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(stdout, items)
			}

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tIMPACT\tTITLE")
			for _, a := range items {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", a.ID, a.Impact, a.Title)
			}
			return tw.Flush()
		},
	}

	accCmd.AddCommand(addCmd, listCmd)
	return accCmd
}

func newCountsCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "counts [goal-id]...",
		Short: "Show note and accomplishment counts for goals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openApp(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			list := make([]ids.ID, len(args))
			for i, arg := range args {
				list[i] = ids.Parse(arg)
			}

			counts, ok := e.container.Counter().FetchCountsForMany(cmd.Context(), list)
			if !ok {
				return fmt.Errorf("counts are unavailable, check login and remote settings")
			}

			if jsonOutput(cmd) {
				return writeJSON(stdout, counts)
			}

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "GOAL\tNOTES\tACCOMPLISHMENTS")
			for _, id := range list {
				key := id.String()
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", key,
					strconv.Itoa(counts.Get(model.KindNotes, key)),
					strconv.Itoa(counts.Get(model.KindAccomplishments, key)))
			}
			return tw.Flush()
		},
	}
}
