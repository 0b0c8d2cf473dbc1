package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/tog-labels/internal/config"
	"github.com/jonathan/tog-labels/internal/db"
	"github.com/jonathan/tog-labels/internal/logger"
)

var (
	verbosity  int
	configPath string
)

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file")
}

// loadConfig layers defaults, the config file, the environment and flags,
// later layers winning, and validates the result.
func loadConfig(flags config.Config) (config.Config, error) {
	env, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		return config.Config{}, err
	}

	file := config.Config{}
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return config.Config{}, err
		}
		file = *loaded
	}

	merged := file.MergeWithDefaults(config.Defaults())
	merged = env.MergeWithDefaults(merged)
	merged = flags.MergeWithDefaults(merged)
	if err := merged.Validate(); err != nil {
		return config.Config{}, err
	}
	return merged, nil
}

func newLogger(cfg config.Config) *logger.Logger {
	return logger.NewWithOptions(logger.Options{Level: logger.LevelForVerbosity(verbosity, cfg.LogLevel)})
}

// jobFlags are shared by every command that reads a job from the tog database.
type jobFlags struct {
	jobID     int64
	startDate string
	endDate   string
	dbName    string
	host      string
	port      int
	user      string
	password  string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&f.jobID, "job-id", "j", 0, "Id of the tog job (required)")
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "Only items added on or after this date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "Only items added before this date (YYYY-MM-DD, exclusive)")
	cmd.Flags().StringVar(&f.dbName, "db", "", "Database name (env TOGDB_DB)")
	cmd.Flags().StringVar(&f.host, "host", "", "Database host (env TOGDB_HOST)")
	cmd.Flags().IntVar(&f.port, "port", 0, "Database port (env TOGDB_PORT)")
	cmd.Flags().StringVar(&f.user, "user", "", "Database user (env TOGDB_USER)")
	cmd.Flags().StringVar(&f.password, "password", "", "Database password (env TOGDB_PASS)")
	_ = cmd.MarkFlagRequired("job-id")
}

func (f *jobFlags) config() config.Config {
	return config.Config{
		DBHost:     f.host,
		DBPort:     f.port,
		DBUser:     f.user,
		DBPassword: f.password,
		DBName:     f.dbName,
	}
}

func (f *jobFlags) dateRange() (*db.DateRange, error) {
	return config.ParseDateRange(f.startDate, f.endDate)
}

// openSource returns a database source for cfg. Explicit connection flags
// take precedence over a DATABASE_URL from the environment or config file.
func (f *jobFlags) openSource(cfg config.Config) (db.Source, error) {
	if f.host != "" || f.port != 0 || f.user != "" || f.password != "" || f.dbName != "" {
		cfg.DatabaseURL = ""
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	return db.NewClient(dsn), nil
}
