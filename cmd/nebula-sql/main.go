package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/internal/pipeline"
	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/destinations/jsonl"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/sources/sqlselect"
	"github.com/ajitpratap0/nebula-sql/pkg/engine"
	"github.com/ajitpratap0/nebula-sql/pkg/logger"
	"github.com/ajitpratap0/nebula-sql/pkg/observability"

	// Import all available connectors to register them
	_ "github.com/ajitpratap0/nebula-sql/pkg/connector/destinations"
	_ "github.com/ajitpratap0/nebula-sql/pkg/connector/sources"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "nebula-sql",
		Short:         "nebula-sql - paginated SQL reads and buffered upserts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nebula-sql v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available Source Connectors:")
			for _, source := range registry.ListSources() {
				fmt.Printf("  - %s\n", source)
			}
			fmt.Println("\nAvailable Destination Connectors:")
			for _, dest := range registry.ListDestinations() {
				fmt.Printf("  - %s\n", dest)
			}
			fmt.Println()
			for _, info := range registry.ListConnectorInfo() {
				fmt.Printf("%s (%s): %s\n", info.Name, info.Type, info.Description)
			}
		},
	})

	root.AddCommand(newRunCommand(), newSelectCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	var (
		configFile  string
		timeout     time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline from a YAML file",
		Long: `Run the sql_select source into the sql_insert_or_update destination as
described by a pipeline file. Any setting can be overridden with a
NEBULA_SQL_ environment variable, e.g. NEBULA_SQL_SOURCE_PAGE_SIZE=500.

Example:
  nebula-sql run --config pipeline.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), configFile, timeout, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the pipeline YAML file (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Pipeline timeout")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address serving /metrics when metrics are enabled")
	return cmd
}

func runPipeline(ctx context.Context, configFile string, timeout time.Duration, metricsAddr string) error {
	cfg, err := config.LoadPipeline(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Observability.LogLevel}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext(ctx, timeout)
	defer cancel()

	ctx = context.WithValue(ctx, logger.PipelineKey, cfg.Name)
	log := logger.WithContext(ctx).With(zap.String("component", "nebula-sql-cli"))

	if cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName:    "nebula-sql",
			ServiceVersion: version,
			SamplingRate:   1,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	if cfg.Observability.EnableMetrics {
		stop := serveMetrics(metricsAddr, log)
		defer stop()
	}

	services, err := engine.OpenServices(ctx, cfg.Engines, cfg.Source.Timeouts.Connection)
	if err != nil {
		return fmt.Errorf("failed to open engines: %w", err)
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Warn("failed to close engines", zap.Error(err))
		}
	}()

	p, err := pipeline.FromConfig(cfg, services, nil, log)
	if err != nil {
		return err
	}

	log.Info("executing pipeline",
		zap.String("source", cfg.Source.Type),
		zap.String("destination", cfg.Destination.Type),
		zap.String("table", cfg.Destination.Table))

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}
	return nil
}

func newSelectCommand() *cobra.Command {
	var (
		engineCfg config.EngineConfig
		pageSize  int
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "select <query>",
		Short: "Run a paginated query and print the rows as JSON lines",
		Long: `Run a query through the sql_select reader and print one JSON object per row.

Example:
  nebula-sql select "SELECT id, value FROM table_1 ORDER BY id" --driver sqlite --database ./data.db --page-size 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selectCfg := config.NewSelectConfig(args[0])
			selectCfg.PageSize = pageSize
			if cmd.Flags().Changed("limit") {
				selectCfg.WithLimit(limit)
			}
			return runSelect(cmd.Context(), engineCfg, selectCfg)
		},
	}

	cmd.Flags().StringVar(&engineCfg.Driver, "driver", engine.DriverPostgres, "Database driver (postgres, mysql, sqlite)")
	cmd.Flags().StringVar(&engineCfg.DSN, "dsn", "", "Data source name; overrides the individual connection flags")
	cmd.Flags().StringVar(&engineCfg.Host, "host", "", "Database host")
	cmd.Flags().IntVar(&engineCfg.Port, "port", 0, "Database port")
	cmd.Flags().StringVar(&engineCfg.User, "user", "", "Database user")
	cmd.Flags().StringVar(&engineCfg.Database, "database", "", "Database name, or file path for sqlite")
	cmd.Flags().IntVar(&pageSize, "page-size", 1000, "Rows fetched per query")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of rows to print")
	return cmd
}

func runSelect(ctx context.Context, engineCfg config.EngineConfig, selectCfg *config.SelectConfig) error {
	log := logger.With(zap.String("component", "nebula-sql-cli"))

	if engineCfg.Driver == engine.DriverPostgres && engineCfg.DSN == "" && engineCfg.Database == "" {
		overrides := map[string]string{}
		if engineCfg.Host != "" {
			overrides["host"] = engineCfg.Host
		}
		if engineCfg.Port != 0 {
			overrides["port"] = strconv.Itoa(engineCfg.Port)
		}
		if engineCfg.User != "" {
			overrides["user"] = engineCfg.User
		}

		envCfg, err := engine.PostgresConfigFromEnv("POSTGRES", overrides)
		if err != nil {
			return err
		}
		engineCfg = envCfg
	}
	if password, ok := os.LookupEnv("NEBULA_SQL_PASSWORD"); ok {
		engineCfg.Password = password
	}

	ctx, cancel := signalContext(ctx, 0)
	defer cancel()

	e, err := engine.Open(ctx, config.DefaultEngineName, engineCfg, 30*time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	services := engine.NewServices()
	services.Register(e)

	source, err := sqlselect.NewSelect(selectCfg, services)
	if err != nil {
		return err
	}

	out := jsonl.New("stdout", os.Stdout)
	return pipeline.NewSimplePipeline(source, out, nil, log).Run(ctx)
}

// signalContext cancels on SIGINT/SIGTERM and, when timeout > 0, after timeout.
func signalContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func serveMetrics(addr string, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
