package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/strrl/opencode-sessions/internal/config"
	"github.com/strrl/opencode-sessions/internal/logging"
	"github.com/strrl/opencode-sessions/internal/sessions"
	"github.com/strrl/opencode-sessions/internal/tui"
)

// app carries the state shared by every command of one invocation
type app struct {
	v        *viper.Viper
	cfgFile  string
	cfg      config.Config
	closeLog func()
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "opencode-sessions",
		Short: "Browse and resume OpenCode sessions",
		Long: heredoc.Doc(`
			opencode-sessions reads OpenCode projects, sessions and messages from a
			running "opencode serve" (spawning one when no URL is given) or straight
			from the local OpenCode database.

			Without a subcommand it opens an interactive browser; picking a session
			resumes it with "opencode --session <id>" in the session directory.
		`),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
		PersistentPostRun: a.close,
		RunE:              a.runTUI,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ~/.config/opencode-sessions/config.yaml)")
	flags.String("backend", "", "data source: http, sqlite or duckdb")
	flags.String("url", "", "OpenCode server URL (spawns opencode serve when empty)")
	flags.String("username", "", "basic auth username for the server")
	flags.String("password", "", "basic auth password for the server")
	flags.String("hostname", "", "host a spawned opencode serve listens on")
	flags.Int("port", 0, "port for a spawned opencode serve (0 picks a free port)")
	flags.Duration("server-timeout", 0, "how long to wait for a spawned server to come up")
	flags.Duration("request-timeout", 0, "timeout of each API request")
	flags.Int("session-list-limit", 0, "sessions loaded per project by the browser and --all-projects")
	flags.String("db-path", "", "path to opencode.db for the sqlite and duckdb backends")
	flags.StringP("output", "o", "", "output format: table, json or yaml")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-file", "", "write logs to this file")

	a.bindFlag(rootCmd, "backend", "backend")
	a.bindFlag(rootCmd, "url", "url")
	a.bindFlag(rootCmd, "username", "username")
	a.bindFlag(rootCmd, "password", "password")
	a.bindFlag(rootCmd, "hostname", "hostname")
	a.bindFlag(rootCmd, "port", "port")
	a.bindFlag(rootCmd, "server_timeout", "server-timeout")
	a.bindFlag(rootCmd, "request_timeout", "request-timeout")
	a.bindFlag(rootCmd, "session_list_limit", "session-list-limit")
	a.bindFlag(rootCmd, "db_path", "db-path")
	a.bindFlag(rootCmd, "output", "output")
	a.bindFlag(rootCmd, "log.level", "log-level")
	a.bindFlag(rootCmd, "log.file", "log-file")

	rootCmd.AddCommand(newHealthCommand(a))
	rootCmd.AddCommand(newProjectsCommand(a))
	rootCmd.AddCommand(newSessionsCommand(a))
	rootCmd.AddCommand(newSessionCommand(a))
	rootCmd.AddCommand(newMessagesCommand(a))
	rootCmd.AddCommand(newMessageCommand(a))
	rootCmd.AddCommand(newDebugCommand(a))

	return rootCmd
}

func (a *app) bindFlag(cmd *cobra.Command, key, flag string) {
	_ = a.v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag))
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// load resolves flags, environment and config file into a.cfg
func (a *app) load(cmd *cobra.Command, args []string) error {
	config.SetDefaults(a.v)
	if err := config.BindEnv(a.v); err != nil {
		return err
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	closeLog, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.closeLog = closeLog
	return nil
}

func (a *app) close(cmd *cobra.Command, args []string) {
	if a.closeLog != nil {
		a.closeLog()
		a.closeLog = nil
	}
}

func (a *app) printer(cmd *cobra.Command) printer {
	return printer{out: cmd.OutOrStdout(), format: a.cfg.Output}
}

// withSource opens the configured backend for the duration of fn
func (a *app) withSource(cmd *cobra.Command, fn func(ctx context.Context, src sessions.Source) error) error {
	ctx := cmd.Context()
	src, err := sessions.Open(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", a.cfg.Backend, err)
	}
	defer src.Close()

	return fn(ctx, src)
}

func (a *app) runTUI(cmd *cobra.Command, args []string) error {
	var selected *sessionSelection

	err := a.withSource(cmd, func(ctx context.Context, src sessions.Source) error {
		s, err := tui.ShowTUI(ctx, src, tui.Options{SessionLimit: a.cfg.SessionListLimit})
		if err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		if s != nil {
			selected = &sessionSelection{id: s.ID, directory: s.Directory}
		}
		return nil
	})
	if err != nil || selected == nil {
		return err
	}

	// The source, and any server it spawned, is closed before opencode takes over the terminal.
	return sessions.ExecuteResume(sessions.FindOpencode(a.cfg.ServerBinary), selected.id, selected.directory)
}

type sessionSelection struct {
	id        string
	directory string
}
