package commands

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/strrl/opencode-sessions/internal/dataerr"
	"github.com/strrl/opencode-sessions/internal/sessions"
	"github.com/strrl/opencode-sessions/pkg/models"
)

func newHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the data source answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSource(cmd, func(ctx context.Context, src sessions.Source) error {
				health, err := src.Health(ctx)
				if err != nil {
					return fmt.Errorf("failed to check health: %w", err)
				}
				if health == nil {
					return dataerr.New("failed to check health: empty response")
				}
				return a.printer(cmd).print(health, func() string { return healthTable(health) })
			})
		},
	}
}

func newProjectsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSource(cmd, func(ctx context.Context, src sessions.Source) error {
				projects, err := src.ListProjects(ctx)
				if err != nil {
					return fmt.Errorf("failed to fetch projects: %w", err)
				}
				if projects == nil {
					projects = []models.Project{}
				}
				return a.printer(cmd).print(projects, func() string { return projectsTable(projects) })
			})
		},
	}
}

type sessionsFlags struct {
	directory   string
	roots       bool
	children    bool
	search      string
	start       int
	limit       int
	allProjects bool
}

func (f sessionsFlags) rootsFilter() *bool {
	switch {
	case f.roots && !f.children:
		return models.Bool(true)
	case f.children && !f.roots:
		return models.Bool(false)
	default:
		return nil
	}
}

func newSessionsCommand(a *app) *cobra.Command {
	var f sessionsFlags

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions, most recently updated first",
		Long: heredoc.Doc(`
			List sessions, most recently updated first.

			Without --directory the listing covers whatever the data source returns
			by default. --all-projects lists every project separately and merges the
			results, skipping projects that cannot be read.
		`),
		Example: heredoc.Doc(`
			opencode-sessions sessions --directory ~/src/app --roots
			opencode-sessions sessions --all-projects --search refactor -o json
			opencode-sessions sessions --backend sqlite --limit 20 --start 40
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.allProjects && (f.directory != "" || f.start != 0 || f.limit != 0) {
				return fmt.Errorf("--all-projects cannot be combined with --directory, --start or --limit")
			}

			return a.withSource(cmd, func(ctx context.Context, src sessions.Source) error {
				var (
					list []models.Session
					err  error
				)
				if f.allProjects {
					list, err = sessions.ListAcrossProjects(ctx, src, sessions.AcrossOptions{
						Search:          f.search,
						Roots:           f.rootsFilter(),
						PerProjectLimit: a.cfg.SessionListLimit,
					})
				} else {
					list, err = src.ListSessions(ctx, models.ListSessionsOptions{
						Directory: f.directory,
						Roots:     f.rootsFilter(),
						Start:     f.start,
						Search:    f.search,
						Limit:     f.limit,
					})
				}
				if err != nil {
					return fmt.Errorf("failed to fetch sessions: %w", err)
				}
				if list == nil {
					list = []models.Session{}
				}
				return a.printer(cmd).print(list, func() string { return sessionsTable(list) })
			})
		},
	}

	cmd.Flags().StringVarP(&f.directory, "directory", "d", "", "only sessions of this directory")
	cmd.Flags().BoolVar(&f.roots, "roots", false, "only root sessions")
	cmd.Flags().BoolVar(&f.children, "children", false, "only child sessions")
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "case-insensitive title substring")
	cmd.Flags().IntVar(&f.start, "start", 0, "skip this many sessions")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "return at most this many sessions")
	cmd.Flags().BoolVarP(&f.allProjects, "all-projects", "A", false, "merge sessions from every project")
	cmd.MarkFlagsMutuallyExclusive("roots", "children")

	return cmd
}

func newSessionCommand(a *app) *cobra.Command {
	var directory string

	cmd := &cobra.Command{
		Use:   "session <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSource(cmd, func(ctx context.Context, src sessions.Source) error {
				session, err := src.GetSession(ctx, args[0], models.LookupOptions{Directory: directory})
				if err != nil {
					return fmt.Errorf("failed to fetch session: %w", err)
				}
				if session == nil {
					return dataerr.NotFound("Session not found: %s", args[0])
				}
				return a.printer(cmd).print(session, func() string { return sessionTable(session) })
			})
		},
	}

	cmd.Flags().StringVarP(&directory, "directory", "d", "", "require the session to belong to this directory")
	return cmd
}
