// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/tog-labels/internal/db"
)

// Environment variables read by FromEnv.
const (
	EnvDBHost       = "TOGDB_HOST"
	EnvDBPort       = "TOGDB_PORT"
	EnvDBUser       = "TOGDB_USER"
	EnvDBPassword   = "TOGDB_PASS"
	EnvDBName       = "TOGDB_DB"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvServerURL    = "DATASET_SERVER_URL"
	EnvLogLevel     = "LOG_LEVEL"
	DateLayout      = "2006-01-02"
	sessionDir      = ".skit"
	sessionFileName = "token"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Tog database
	DatabaseURL string `json:"database_url,omitempty" validate:"omitempty,url"` // Full postgres URL, wins over the parts below
	DBHost      string `json:"db_host,omitempty"`
	DBPort      int    `json:"db_port,omitempty" validate:"omitempty,min=1,max=65535"`
	DBUser      string `json:"db_user,omitempty"`
	DBPassword  string `json:"db_password,omitempty"`
	DBName      string `json:"db_name,omitempty"`

	// Download
	TaskType     string `json:"task_type,omitempty" validate:"omitempty,oneof=conversation simulated_call audio_segment dict call_transcription data_generation"`
	Timezone     string `json:"timezone,omitempty"`
	BatchSize    int    `json:"batch_size,omitempty" validate:"omitempty,min=1"`
	OutputFormat string `json:"output_format,omitempty" validate:"omitempty,oneof=.csv .sqlite .xlsx"`

	// Upload
	ServerURL       string `json:"server_url,omitempty" validate:"omitempty,url"` // Dataset server base URL
	Token           string `json:"token,omitempty"`
	Source          string `json:"source,omitempty"`
	UploadBatchSize int    `json:"upload_batch_size,omitempty" validate:"omitempty,min=1"`
	ChunkSize       int    `json:"chunk_size,omitempty" validate:"omitempty,min=1"`

	LogLevel string `json:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn warning error"`
}

// Defaults returns the built-in values.
func Defaults() Config {
	return Config{
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "tog",
		TaskType:        "conversation",
		Timezone:        "UTC",
		BatchSize:       500,
		OutputFormat:    ".csv",
		Source:          "calls",
		UploadBatchSize: 100,
		ChunkSize:       10,
		LogLevel:        "info",
	}
}

// Error is a configuration problem detected before any side effect.
type Error struct {
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error: '%s' %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("config error: '%s' %s", e.Field, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv reads the environment layer through lookup, usually os.LookupEnv.
// Unparseable numbers are reported instead of ignored.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		DatabaseURL: get(EnvDatabaseURL),
		DBHost:      get(EnvDBHost),
		DBUser:      get(EnvDBUser),
		DBPassword:  get(EnvDBPassword),
		DBName:      get(EnvDBName),
		ServerURL:   get(EnvServerURL),
		LogLevel:    strings.ToLower(get(EnvLogLevel)),
	}
	if port := get(EnvDBPort); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, &Error{Field: EnvDBPort, Message: "must be a number", Cause: err}
		}
		cfg.DBPort = n
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &Error{Field: jsonName(fe.StructField()), Message: describe(fe)}
		}
		return &Error{Field: "(config)", Message: "is invalid", Cause: err}
	}
	if c.Timezone != "" {
		if _, err := c.Location(); err != nil {
			return err
		}
	}
	return nil
}

func jsonName(field string) string {
	if f, ok := fieldNames[field]; ok {
		return f
	}
	return field
}

var fieldNames = map[string]string{
	"DatabaseURL":     "database_url",
	"DBPort":          "db_port",
	"TaskType":        "task_type",
	"BatchSize":       "batch_size",
	"OutputFormat":    "output_format",
	"ServerURL":       "server_url",
	"UploadBatchSize": "upload_batch_size",
	"ChunkSize":       "chunk_size",
	"LogLevel":        "log_level",
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "url":
		return "must be a valid URL"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file and environment values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	for _, f := range []struct{ dst, src *string }{
		{&result.DatabaseURL, &defaults.DatabaseURL},
		{&result.DBHost, &defaults.DBHost},
		{&result.DBUser, &defaults.DBUser},
		{&result.DBPassword, &defaults.DBPassword},
		{&result.DBName, &defaults.DBName},
		{&result.TaskType, &defaults.TaskType},
		{&result.Timezone, &defaults.Timezone},
		{&result.OutputFormat, &defaults.OutputFormat},
		{&result.ServerURL, &defaults.ServerURL},
		{&result.Token, &defaults.Token},
		{&result.Source, &defaults.Source},
		{&result.LogLevel, &defaults.LogLevel},
	} {
		if *f.dst == "" {
			*f.dst = *f.src
		}
	}

	// Int fields: use default if zero
	for _, f := range []struct{ dst, src *int }{
		{&result.DBPort, &defaults.DBPort},
		{&result.BatchSize, &defaults.BatchSize},
		{&result.UploadBatchSize, &defaults.UploadBatchSize},
		{&result.ChunkSize, &defaults.ChunkSize},
	} {
		if *f.dst == 0 {
			*f.dst = *f.src
		}
	}

	return result
}

// DSN returns the postgres URL for the tog database. DatabaseURL wins; the
// parts are used otherwise and a password is required.
func (c *Config) DSN() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	if c.DBPassword == "" {
		return "", &Error{Field: "db_password", Message: "credentials for tog database not set, check " + EnvDBPassword}
	}
	host := c.DBHost
	if host == "" {
		host = "localhost"
	}
	port := c.DBPort
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + c.DBName,
	}
	return u.String(), nil
}

// Location resolves the configured timezone name. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &Error{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", c.Timezone), Cause: err}
	}
	return loc, nil
}

// ReadSession returns the token saved under home/.skit/token, or "" when
// there is none.
func ReadSession(home string) (string, error) {
	data, err := os.ReadFile(filepath.Join(home, sessionDir, sessionFileName))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ParseDate reads a YYYY-MM-DD date as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &Error{Field: "date", Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value), Cause: err}
	}
	return t, nil
}

// ParseDateRange builds a [start, end) filter. Both empty gives nil.
func ParseDateRange(start, end string) (*db.DateRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	var r db.DateRange
	var err error
	if start != "" {
		if r.Start, err = ParseDate(start); err != nil {
			return nil, err
		}
	}
	if end != "" {
		if r.End, err = ParseDate(end); err != nil {
			return nil, err
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && !r.Start.Before(r.End) {
		return nil, &Error{Field: "end_date", Message: "must be after start_date"}
	}
	return &r, nil
}
