package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/todos/internal/config"
	"github.com/saltyorg/todos/internal/database"
	"github.com/saltyorg/todos/internal/logging"
	"github.com/saltyorg/todos/internal/maintenance"
	"github.com/saltyorg/todos/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the values bound to command-line flags
type cli struct {
	cfg       *config.Config
	verbosity int
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: config.Default()}
	cfg := c.cfg

	rootCmd := &cobra.Command{
		Use:   "todos",
		Short: "Todos - a small JSON API for todo records",
		Long:  `Todos serves create, read, update and delete operations over todo records stored in SQLite.`,
		RunE:  c.run,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfg.DatabaseURL, "database-url", "d", cfg.DatabaseURL, "Database URL (or set DATABASE_URL env var)")
	flags.CountVarP(&c.verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	flags.StringVar(&cfg.LogFile, "log-file", "", "Log file path (defaults to todos.log next to the database)")
	flags.IntVar(&cfg.MaxOpenConns, "max-open-conns", cfg.MaxOpenConns, "Maximum open database connections")
	flags.DurationVar(&cfg.ConnMaxLifetime, "conn-max-lifetime", cfg.ConnMaxLifetime, "Recycle database connections after this long")

	rootCmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP server port (or set PORT env var)")
	rootCmd.Flags().StringVarP(&cfg.Bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&cfg.AllowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().DurationVar(&cfg.Timeouts.Request, "request-timeout", cfg.Timeouts.Request, "Timeout for handling a single request")
	rootCmd.Flags().StringVar(&cfg.MaintenanceSchedule, "maintenance-schedule", cfg.MaintenanceSchedule, `Cron schedule for database maintenance ("" disables)`)
	rootCmd.Flags().BoolVar(&cfg.NullOnMissing, "null-on-missing", false, "Answer GET /todos/{id} for unknown ids with null instead of 404")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("todos %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the database schema and exit",
			RunE:  c.runMigrate,
		},
		&cobra.Command{
			Use:   "maintenance",
			Short: "Optimize and vacuum the database and exit",
			RunE:  c.runMaintenance,
		},
	)

	return rootCmd
}

// setup resolves configuration and logging shared by every command
func (c *cli) setup(cmd *cobra.Command) error {
	cfg := c.cfg
	loader := config.NewLoader(config.EnvSource{})
	if cmd.Flags().Changed("verbose") {
		cfg.LogLevel = logging.LevelFromVerbosity(c.verbosity)
	}
	cfg.ApplyEnv(loader, cmd.Flags().Changed)

	dbPath, err := database.ParseURL(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = logging.FilePathForDB(dbPath)
	}
	logging.Apply(cfg.LogLevel, loader, logFile)
	return nil
}

func (c *cli) openDB() (*database.DB, error) {
	cfg := c.cfg
	opts := database.DefaultOptions()
	opts.MaxOpenConns = cfg.MaxOpenConns
	opts.MaxIdleConns = min(opts.MaxIdleConns, cfg.MaxOpenConns)
	opts.ConnMaxLifetime = cfg.ConnMaxLifetime
	return database.New(cfg.DatabaseURL, opts)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	if err := c.setup(cmd); err != nil {
		return err
	}
	cfg := c.cfg

	allowedNet, err := cfg.Validate()
	if err != nil {
		return err
	}

	// Warn if binding to all interfaces without an allow list
	if (cfg.Bind == "" || cfg.Bind == "0.0.0.0" || cfg.Bind == "::") && cfg.AllowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet.")
	}

	log.Info().
		Str("version", version).
		Int("port", cfg.Port).
		Str("bind", cfg.Bind).
		Str("allow_subnet", cfg.AllowSubnet).
		Str("database", cfg.DatabaseURL).
		Dur("conn_max_lifetime", cfg.ConnMaxLifetime).
		Msg("Starting Todos")

	db, err := c.openDB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// The schema must exist before the server accepts traffic
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	if count, err := checkDatabase(context.Background(), db); err != nil {
		log.Fatal().Err(err).Str("path", db.Path()).Msg("Database is not ready")
	} else {
		log.Info().
			Str("path", db.Path()).
			Int("max_open_conns", db.Options().MaxOpenConns).
			Int("todos", count).
			Msg("Database ready")
	}

	scheduler := maintenance.New(db)
	if started, err := scheduler.Start(cfg.MaintenanceSchedule); err != nil {
		log.Warn().Err(err).Msg("Failed to start maintenance scheduler")
	} else if !started {
		log.Debug().Msg("Maintenance scheduler not started (no schedule configured)")
	} else if next := scheduler.Status().NextRun; next != nil {
		log.Debug().Time("next_run", *next).Msg("Next database maintenance scheduled")
	}
	defer scheduler.Stop()

	server := web.NewServer(db, cfg, allowedNet)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Todos stopped")
	return nil
}

// readyTimeout bounds the startup ping so a locked database file fails fast
const readyTimeout = 10 * time.Second

// checkDatabase pings the store and returns how many todos it holds
func checkDatabase(ctx context.Context, db *database.DB) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return 0, fmt.Errorf("failed to ping database: %w", err)
	}

	session, err := db.OpenSession(ctx)
	if err != nil {
		return 0, err
	}
	defer session.Close()
	return session.CountTodos(ctx)
}

func (c *cli) runMigrate(cmd *cobra.Command, args []string) error {
	if err := c.setup(cmd); err != nil {
		return err
	}

	db, err := c.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	schemaVersion, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	log.Info().Int("schema_version", schemaVersion).Msg("Schema is up to date")
	return nil
}

func (c *cli) runMaintenance(cmd *cobra.Command, args []string) error {
	if err := c.setup(cmd); err != nil {
		return err
	}

	db, err := c.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	scheduler := maintenance.New(db)
	if err := scheduler.RunNow(); err != nil {
		return err
	}
	if err := db.Vacuum(); err != nil {
		return err
	}

	event := log.Info().Str("path", db.Path())
	if last := scheduler.Status().LastRun; last != nil {
		event = event.Dur("duration", time.Since(*last))
	}
	event.Msg("Database maintenance complete")
	return nil
}
