package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/irontrack/internal/config"
	"github.com/MarcoPoloResearchLab/irontrack/internal/database"
	"github.com/MarcoPoloResearchLab/irontrack/internal/logging"
	"github.com/MarcoPoloResearchLab/irontrack/internal/metrics"
	"github.com/MarcoPoloResearchLab/irontrack/internal/parser"
	"github.com/MarcoPoloResearchLab/irontrack/internal/server"
	"github.com/MarcoPoloResearchLab/irontrack/internal/workouts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "irontrack-api",
		Short: "Iron Track workout logging backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMigrateCommand(), newParseCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-host", defaults.GetString("http.host"), "HTTP listen host")
	cmd.PersistentFlags().Int("http-port", defaults.GetInt("http.port"), "HTTP listen port")
	cmd.PersistentFlags().Bool("debug", defaults.GetBool("debug"), "Enable debug logging")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (overrides env)")
	cmd.PersistentFlags().String("gemini-model", defaults.GetString("gemini.model"), "Gemini model used to parse workout text")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", "", "Optional rotating log file path")
	cmd.PersistentFlags().StringSlice("cors-allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "Origins allowed to call the API")

	bindFlag(cmd, "http.host", "http-host")
	bindFlag(cmd, "http.port", "http-port")
	bindFlag(cmd, "debug", "debug")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.url", "database-url")
	bindFlag(cmd, "gemini.model", "gemini-model")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "cors.allowed_origins", "cors-allowed-origins")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadStorage(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN(), logger)
			if err != nil {
				logger.Error("database migration failed", zap.Error(err))
				return err
			}
			logger.Info("database schema up to date", zap.String("driver", appConfig.DatabaseDriver))
			return database.Close(db)
		},
	}
}

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <text>",
		Short: "Parse workout text with Gemini and print the structured entry without storing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadParser(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			workoutParser, err := newWorkoutParser(cmd.Context(), appConfig, logger)
			if err != nil {
				return err
			}
			entry, err := workoutParser.Parse(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(entry)
		},
	}
}

func newWorkoutParser(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (*parser.GeminiParser, error) {
	generator, err := parser.NewGeminiGenerator(ctx, appConfig.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	return parser.NewGeminiParser(parser.GeminiConfig{
		Generator: generator,
		Model:     appConfig.GeminiModel,
		Clock:     time.Now,
		Logger:    logger,
	})
}

func runServer(ctx context.Context) (err error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN(), logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, database.Close(db))
	}()

	workoutService, err := workouts.NewService(workouts.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	workoutParser, err := newWorkoutParser(ctx, appConfig, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsManager := metrics.NewManager(metrics.DefaultNamespace, metrics.DefaultSubsystem, registry)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Parser:         workoutParser,
		WorkoutService: workoutService,
		APIKey:         appConfig.APIKey,
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		Metrics:        metricsManager,
		Gatherer:       registry,
		Logger:         logger,
		Clock:          time.Now,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress()),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("gemini_model", appConfig.GeminiModel))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("shutdown http server: %w", shutdownErr)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
