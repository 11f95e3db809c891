// ABOUTME: Entry point for the homebase CLI
// ABOUTME: Resolves configuration from flags, HOMEBASE_* env vars and config files, then opens the hub

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/2389/homebase/internal/config"
	"github.com/2389/homebase/internal/hub"
	"github.com/2389/homebase/internal/logging"
	"github.com/2389/homebase/internal/store"
)

// Version is set at build time
var Version = "dev"

var errNoUser = errors.New("no user configured: pass --user, set HOMEBASE_USER or user.id in the config file")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().execute(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// app carries state shared by every command
type app struct {
	root   *cobra.Command
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
	hub    *hub.Hub
	db     store.Adapter // set instead of hub for dry runs
	now    func() time.Time
}

func newApp() *app {
	a := &app{v: viper.New(), now: time.Now}
	a.root = a.newRootCmd()
	return a
}

// execute runs the command line and closes the hub whether or not the
// command succeeded.
func (a *app) execute(ctx context.Context) error {
	err := a.root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "homebase",
		Short: "Local friend graph and message cache",
		Long: `homebase keeps a local copy of your friends, invites and messages in
SQLite, queues outgoing messages for delivery and merges what the server sends.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default: ./homebase.yaml or ~/.config/homebase/config.yaml)")
	flags.String("db", "", "database path (overrides database.path)")
	flags.String("user", "", "local user id (overrides user.id)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	for _, name := range []string{"config", "db", "user", "log-level"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}
	a.v.SetEnvPrefix("HOMEBASE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newMigrateCmd(a),
		newStatusCmd(a),
		newProfileCmd(a),
		newInviteCmd(a),
		newFriendsCmd(a),
		newSendCmd(a),
		newInboxCmd(a),
		newChatCmd(a),
		newReadCmd(a),
		newOutboxCmd(a),
		newIngestCmd(a),
	)
	return root
}

// setup loads configuration and opens the hub before any command runs
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if !needsHub(cmd) {
		return nil
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if db := a.v.GetString("db"); db != "" {
		cfg.Database.Path = db
	}
	if user := a.v.GetString("user"); user != "" {
		cfg.User.ID = user
	}
	if level := a.v.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger, err := logging.Setup(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	a.cfg = cfg
	a.logger = logger

	if dryRun(cmd) {
		opts := cfg.StoreOptions()
		opts.Logger = logger
		db, err := store.Open(cfg.Database.Path, opts)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		a.db = db
		return nil
	}

	h, err := hub.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	a.hub = h
	return nil
}

// dryRun is true when cmd was asked to report without migrating
func dryRun(cmd *cobra.Command) bool {
	on, err := cmd.Flags().GetBool("dry-run")
	return err == nil && on
}

// needsHub is false for commands that never touch the database
func needsHub(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd, "completion":
			return false
		}
	}
	return true
}

// loadConfig reads the explicit config file, else the first default location
// that exists, else returns defaults.
func (a *app) loadConfig() (*config.Config, error) {
	path := a.v.GetString("config")
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func findConfig() string {
	candidates := []string{"homebase.yaml", "homebase.toml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(dir, "homebase", "config.yaml"),
			filepath.Join(dir, "homebase", "config.toml"),
		)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func (a *app) close() error {
	switch {
	case a.hub != nil:
		err := a.hub.Close()
		a.hub = nil
		return err
	case a.db != nil:
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

// user returns the configured local user id
func (a *app) user() (string, error) {
	if a.cfg == nil || a.cfg.User.ID == "" {
		return "", errNoUser
	}
	return a.cfg.User.ID, nil
}
