package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/renewhq/renewd/internal/api"
	"github.com/renewhq/renewd/internal/config"
	"github.com/renewhq/renewd/internal/notify"
	"github.com/renewhq/renewd/internal/orders"
	"github.com/renewhq/renewd/internal/payments"
	"github.com/renewhq/renewd/internal/retry"
	"github.com/renewhq/renewd/internal/rules"
	"github.com/renewhq/renewd/internal/scheduler"
	"github.com/renewhq/renewd/internal/store"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "renewd",
		Short: "renewd — automatic payment retries for subscription renewals",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(rulesCmd(&configPath))
	rootCmd.AddCommand(retriesCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the renewd server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			st, err := setupStore(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup retry store: %w", err)
			}
			defer st.Close()

			ord, err := orders.NewSQLite(cfg.Storage.SQLite.Path)
			if err != nil {
				return fmt.Errorf("failed to setup order service: %w", err)
			}
			defer ord.Close()

			sched, err := scheduler.NewSQLite(cfg.Storage.SQLite.Path, cfg.Scheduler.PollInterval, cfg.Scheduler.Workers, log)
			if err != nil {
				return fmt.Errorf("failed to setup scheduler: %w", err)
			}
			defer sched.Close()

			ctx := context.Background()
			for _, m := range []interface {
				Migrate(context.Context) error
			}{st, ord, sched} {
				if err := m.Migrate(ctx); err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
			}
			log.Info().Msg("database migrations completed")

			resolver, err := setupResolver(cfg.Retry)
			if err != nil {
				return err
			}

			gateway := payments.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.Secret, cfg.Gateway.Timeout)
			dispatcher := notify.NewDispatcher(setupSender(cfg.Notify, log), cfg.Notify.AdminEmail, log)

			manager := retry.NewManager(resolver, st, sched, gateway, ord, dispatcher, log)
			manager.RegisterTasks()

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			sched.Start(runCtx)

			server := api.NewServer(cfg.Server, st, ord, manager, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Str("storage_backend", cfg.Storage.Backend).
				Bool("retries_enabled", resolver.Enabled()).
				Msg("renewd is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			sched.Stop()

			log.Info().Msg("renewd stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			st, err := setupStore(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup retry store: %w", err)
			}
			defer st.Close()

			ord, err := orders.NewSQLite(cfg.Storage.SQLite.Path)
			if err != nil {
				return fmt.Errorf("failed to setup order service: %w", err)
			}
			defer ord.Close()

			sched, err := scheduler.NewSQLite(cfg.Storage.SQLite.Path, cfg.Scheduler.PollInterval, cfg.Scheduler.Workers, log)
			if err != nil {
				return fmt.Errorf("failed to setup scheduler: %w", err)
			}
			defer sched.Close()

			ctx := context.Background()
			for _, m := range []interface {
				Migrate(context.Context) error
			}{st, ord, sched} {
				if err := m.Migrate(ctx); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func rulesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective retry rule table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			table, err := rules.FromConfig(cfg.Retry.Rules)
			if err != nil {
				return fmt.Errorf("invalid rule config: %w", err)
			}

			if !cfg.Retry.Enabled {
				fmt.Println("Retries are disabled.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tAFTER\tORDER STATUS\tSUBSCRIPTION STATUS\tCUSTOMER EMAIL\tADMIN EMAIL")
			for i, r := range table {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					i, r.RetryAfter, r.OrderStatus, r.SubscriptionStatus,
					orDash(r.EmailCustomer), orDash(r.EmailAdmin))
			}
			return w.Flush()
		},
	}
}

func retriesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "retries <order_id>",
		Short: "List retries recorded for an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: renewd retries <order_id>")
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			st, err := setupStore(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup retry store: %w", err)
			}
			defer st.Close()

			ctx := context.Background()
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			retries, err := st.List(ctx, store.Filter{OrderID: args[0], OrderBy: "created_at"})
			if err != nil {
				return fmt.Errorf("failed to list retries: %w", err)
			}

			if len(retries) == 0 {
				fmt.Println("No retries found.")
				return nil
			}

			out, _ := json.MarshalIndent(retries, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("renewd v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStore(cfg config.StorageConfig, log zerolog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "table":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using dedicated retries table")
		return store.NewSQLite(cfg.SQLite.Path)
	case "records":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using generic record store")
		return store.NewRecords(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

func setupResolver(cfg config.RetryConfig) (*rules.Resolver, error) {
	table, err := rules.FromConfig(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid rule config: %w", err)
	}
	for i, r := range table {
		if r.EmailCustomer != "" && !notify.KnownTemplate(r.EmailCustomer) {
			return nil, fmt.Errorf("rule %d: unknown email template %q", i, r.EmailCustomer)
		}
		if r.EmailAdmin != "" && !notify.KnownTemplate(r.EmailAdmin) {
			return nil, fmt.Errorf("rule %d: unknown email template %q", i, r.EmailAdmin)
		}
	}

	resolver, err := rules.NewResolver(rules.NewTableSource(table), cfg.Enabled)
	if err != nil {
		return nil, fmt.Errorf("invalid retry configuration: %w", err)
	}
	return resolver, nil
}

func setupSender(cfg config.NotifyConfig, log zerolog.Logger) notify.Sender {
	if cfg.Sender == "http" && cfg.URL != "" {
		return notify.NewHTTPSender(cfg.URL, cfg.Secret, cfg.Timeout)
	}
	return notify.NewLogSender(log)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
