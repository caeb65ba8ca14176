package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/qtadmin/internal/api"
	appI18n "github.com/pavelanni/qtadmin/internal/i18n"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/session"
	"github.com/pavelanni/qtadmin/internal/state"
	"github.com/pavelanni/qtadmin/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "qtadmin",
		Short:        "Administer question templates and generation jobs",
		SilenceUsage: true,
	}

	f := root.PersistentFlags()
	f.String("api-url", "http://localhost:8000/api/v1", "Backend API base URL")
	f.String("state-db", defaultStateDB(), "SQLite file holding the local session")
	f.Duration("timeout", api.DefaultTimeout, "Timeout for a single API request")
	f.Int("limit", model.DefaultLimit, "Page size for template listings")
	f.StringP("lang", "l", "en", "Language for labels and messages (en, ru)")
	f.Bool("json", false, "Print JSON instead of tables")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(
		serveCmd(),
		loginCmd(),
		registerCmd(),
		logoutCmd(),
		whoamiCmd(),
		childrenCmd(),
		childCmd(),
		templatesCmd(),
		jobsCmd(),
		questionsCmd(),
	)
	return root
}

func defaultStateDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "qtadmin-state.db"
	}
	return filepath.Join(home, ".config", "qtadmin", "state.db")
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QTADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("qtadmin")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/qtadmin")
	v.AddConfigPath("/etc/qtadmin")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app is everything a command needs, built from configuration.
type app struct {
	v         *viper.Viper
	db        *store.Store
	client    *api.Client
	session   *session.Store
	templates *state.Templates
	cmd       *cobra.Command
}

func openApp(cmd *cobra.Command) (*app, error) {
	v := viperForCmd(cmd)
	setupLogging(v)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	path := v.GetString("state-db")
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	client := api.New(v.GetString("api-url"), db, store.KeyToken, v.GetDuration("timeout"))
	return &app{
		v:         v,
		db:        db,
		client:    client,
		session:   session.New(client, db),
		templates: state.NewTemplates(client, v.GetInt("limit")),
		cmd:       cmd,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Warn("close state", "error", err)
	}
}

// ctx returns the command context with the configured localizer attached.
func (a *app) ctx() context.Context {
	ctx := a.cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(a.v.GetString("lang"), "en"))
}

// run opens the app, runs fn and closes the app.
func run(fn func(a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(a, args)
	}
}
