/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/seckatie/arkive/internal/config"
	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/feed"
	"github.com/seckatie/arkive/internal/core/search"
	"github.com/seckatie/arkive/internal/core/web"
	"github.com/seckatie/arkive/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "arkive",
	Short: "Personal bookmark manager with live sync",
	Long: `arkive stores bookmarks and collections per owner, derives their
metadata from the URL and streams every change to connected clients.

Run without a subcommand to serve the HTTP API:

  arkive --config arkive.yaml --port 8080`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd); err != nil {
			fail(cmd, err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("db", "d", "arkive.db", "Path to the SQLite database file")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.Flags().String("host", "localhost", "Host to listen on")
	rootCmd.Flags().String("tokens", "", "Path to the API token file")
}

func fail(cmd *cobra.Command, err error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "arkive: %v\n", err)
	os.Exit(1)
}

// loadConfig reads the config file and environment, then applies flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if f := flags.Lookup("port"); f != nil && f.Changed {
		cfg.Port, _ = flags.GetInt("port")
	}
	if f := flags.Lookup("host"); f != nil && f.Changed {
		cfg.Host, _ = flags.GetString("host")
	}
	if f := flags.Lookup("tokens"); f != nil && f.Changed {
		cfg.TokensFile, _ = flags.GetString("tokens")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDB opens and migrates the database. Any failed migration step is
// an error here, since nothing can run on a partial schema.
func openDB(ctx context.Context, cfg *config.Config, log logger.Logger) (*db.DB, error) {
	database, err := db.NewSQLiteDB(cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	database.SetDeriver(core.Deriver{FaviconURL: cfg.FaviconURL})
	database.SetRecentLimit(cfg.RecentLimit)

	report, err := database.Migrate(ctx)
	if err == nil {
		err = report.Err()
	}
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

func redisOptions(cfg *config.Config) feed.RedisOptions {
	return feed.RedisOptions{
		Addr:     cfg.RedisAddr,
		User:     cfg.RedisUser,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.RedisChannel,
	}
}

// startRelay connects changes to redis when an address is configured.
// Relay failures only cost cross-process delivery, so they are logged.
func startRelay(ctx context.Context, g *errgroup.Group, changes *feed.Feed, cfg *config.Config, log logger.Logger) error {
	if cfg.RedisAddr == "" {
		return nil
	}
	relay, err := feed.ConnectRedis(ctx, redisOptions(cfg), log)
	if err != nil {
		return err
	}
	g.Go(func() error {
		defer relay.Close()
		if err := changes.RunRelay(ctx, relay); err != nil {
			log.Error("relay stopped, changes stay local to this process", logger.Error(err))
		}
		return nil
	})
	return nil
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	if cfg.TokensFile == "" {
		return fmt.Errorf("no token file configured; set tokens_file, ARKIVE_TOKENS_FILE or --tokens")
	}
	auth, err := web.LoadTokens(cfg.TokensFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Info("database ready", logger.String("path", cfg.DBPath))

	index, err := search.New(log)
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.Load(ctx, database); err != nil {
		return fmt.Errorf("failed to build search index: %w", err)
	}
	index.Attach(database)

	changes := feed.New(cfg.FeedBuffer, log)
	changes.Attach(database)

	ws := web.NewServer(database, changes, auth, log, web.Options{
		Addr:      cfg.Addr(),
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Deriver:   core.Deriver{FaviconURL: cfg.FaviconURL},
	})

	g, gctx := errgroup.WithContext(ctx)
	if err := startRelay(gctx, g, changes, cfg, log); err != nil {
		return err
	}
	g.Go(ws.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return ws.Stop(shutdownCtx)
	})

	err = g.Wait()
	changes.Close()
	log.Info("arkive stopped", logger.Duration("shutdown_timeout", cfg.ShutdownTimeout))
	return err
}
