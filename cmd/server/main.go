package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"comanda/internal/commons"
	"comanda/internal/config"
	"comanda/internal/events"
	"comanda/internal/infrastructure/kafka"
	"comanda/internal/infrastructure/logger"
	"comanda/internal/infrastructure/mysql"
	"comanda/internal/infrastructure/payment"
	"comanda/internal/middleware"
	"comanda/internal/order"
	"comanda/internal/scheduler"
	"comanda/internal/server"
	userrepo "comanda/internal/user/repository"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "comanda",
		Short: "order lifecycle and payment reconciliation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, false)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML file overlaying env config")

	rootCmd.AddCommand(
		serveCommand(&configPath),
		migrateCommand(&configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("comanda: %v", err)
		os.Exit(1)
	}
}

func serveCommand(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func migrateCommand(configPath *string) *cobra.Command {
	run := func(action func(*sql.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := commons.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := mysql.NewConnection(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return action(db)
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "apply all pending migrations", Args: cobra.NoArgs, RunE: run(mysql.MigrateUp)},
		&cobra.Command{Use: "down", Short: "roll back the latest migration", Args: cobra.NoArgs, RunE: run(mysql.MigrateDown)},
		&cobra.Command{Use: "status", Short: "print migration status", Args: cobra.NoArgs, RunE: run(mysql.MigrationStatus)},
	)
	return cmd
}

func serve(ctx context.Context, configPath string, migrate bool) error {
	cfg, err := commons.LoadConfig(configPath)
	if err != nil {
		return err
	}

	zapLogger, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer zapLogger.Sync()

	sqlDB, err := mysql.NewConnection(cfg.Database)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	zapLogger.Info("database connected")

	if migrate {
		if err := mysql.MigrateUp(sqlDB); err != nil {
			return err
		}
		zapLogger.Info("migrations applied")
	}

	db := mysql.Wrap(sqlDB)

	gateway := payment.NewStripeGateway(payment.Config{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
		FrontendURL:   cfg.Server.FrontendURL,
	})

	orders := order.NewModule(db, cfg, gateway, cfg.Kafka.Enabled, zapLogger)
	jobs := []scheduler.Job{orders.RetirementJob(cfg.Scheduler.BatchSize, zapLogger)}

	if cfg.Kafka.Enabled {
		relay, closeProducer, err := newRelay(cfg, orders, zapLogger)
		if err != nil {
			return err
		}
		defer closeProducer()
		jobs = append(jobs, relay)
	}

	sched := scheduler.New(cfg.Scheduler.Interval, zapLogger, jobs...)
	sched.Start(ctx)
	defer sched.Stop()

	auth := middleware.Auth(middleware.AuthConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	}, userrepo.NewMySQLUserRepository(db), zapLogger)

	router := server.NewRouter(orders.Controller, auth, zapLogger)
	srv := server.New(cfg.Server.Port, router, zapLogger)

	if err := srv.Run(ctx); err != nil {
		zapLogger.Error("server error", zap.Error(err))
		return err
	}

	zapLogger.Info("server stopped gracefully")
	return nil
}

func newRelay(cfg *config.Config, orders *order.Module, zapLogger *zap.Logger) (*events.Relay, func(), error) {
	producer, err := kafka.NewSaramaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, nil, err
	}
	closeProducer := func() {
		if err := producer.Close(); err != nil {
			zapLogger.Warn("closing kafka producer", zap.Error(err))
		}
	}
	zapLogger.Info("order events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	return events.NewRelay(orders.Outbox, producer, zapLogger, cfg.Scheduler.BatchSize), closeProducer, nil
}
