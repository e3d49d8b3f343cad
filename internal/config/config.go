package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

// EnvPrefix is prepended to every flag name when reading it from the environment
const EnvPrefix = "METER_TRACKER"

// ErrInvalidConfig is returned when the parsed options do not fit together
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the runtime options of the meter tracker
type Config struct {
	Port int

	Store        string
	DBPath       string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	Scanner     string
	GeminiKey   string
	GeminiModel string
	OllamaURL   string
	OllamaModel string
	ScanTimeout time.Duration
	ScanRetries int

	ArchiveDir string
	AuthUser   string
	AuthPass   string

	PriceFeedURL      string
	PriceFeedInterval time.Duration
	PriceFeedType     string

	LogLevel    string
	LogFormat   string
	ShowVersion bool

	level slog.Level
}

// UsageError is returned by Parse when the arguments could not be parsed.
// Help holds the rendered flag documentation.
type UsageError struct {
	Help string
	Err  error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// Parse reads options from a .env file, the environment and args, in
// increasing order of precedence, and validates them.
func Parse(args []string) (*Config, error) {
	envFile := os.Getenv(EnvPrefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	fs := ff.NewFlagSet("meter-tracker")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		store        = fs.StringLong("store", "bolt", "Reading store: 'bolt' or 'influx'")
		dbPath       = fs.StringLong("db", "meter-tracker.db", "Database file path for the bolt store")
		influxURL    = fs.StringLong("influx-url", "http://localhost:8086", "InfluxDB URL")
		influxToken  = fs.StringLong("influx-token", "", "InfluxDB API token")
		influxOrg    = fs.StringLong("influx-org", "", "InfluxDB organization")
		influxBucket = fs.StringLong("influx-bucket", "meter_readings", "InfluxDB bucket")
		scannerType  = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2.5vl)")
		scanTimeout  = fs.DurationLong("scan-timeout", 2*time.Minute, "Time limit for one scan request")
		scanRetries  = fs.IntLong("scan-retries", 2, "Retries after a failed vision backend call")
		archiveDir   = fs.StringLong("archive", "./captures", "Directory for captured photos (empty disables the archive)")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		feedURL      = fs.StringLong("price-feed-url", "", "URL of a JSON tariff feed (optional)")
		feedInterval = fs.DurationLong("price-feed-interval", 24*time.Hour, "How often the tariff feed is fetched")
		feedType     = fs.StringLong("price-feed-type", "electricity", "Utility type for feed entries without one")
		logLevel     = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat    = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(EnvPrefix)); err != nil {
		return nil, &UsageError{Help: fmt.Sprint(ffhelp.Flags(fs)), Err: err}
	}

	cfg := &Config{
		Port:              *port,
		Store:             strings.ToLower(*store),
		DBPath:            *dbPath,
		InfluxURL:         *influxURL,
		InfluxToken:       *influxToken,
		InfluxOrg:         *influxOrg,
		InfluxBucket:      *influxBucket,
		Scanner:           strings.ToLower(*scannerType),
		GeminiKey:         *geminiKey,
		GeminiModel:       *geminiModel,
		OllamaURL:         *ollamaURL,
		OllamaModel:       *ollamaModel,
		ScanTimeout:       *scanTimeout,
		ScanRetries:       *scanRetries,
		ArchiveDir:        *archiveDir,
		AuthUser:          *authUser,
		AuthPass:          *authPass,
		PriceFeedURL:      *feedURL,
		PriceFeedInterval: *feedInterval,
		PriceFeedType:     *feedType,
		LogLevel:          *logLevel,
		LogFormat:         strings.ToLower(*logFormat),
		ShowVersion:       *showVersion,
	}

	if cfg.GeminiKey == "" {
		cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}

	if cfg.ShowVersion {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// Validate checks that the chosen backends have what they need
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}

	switch c.Store {
	case "bolt":
		if c.DBPath == "" {
			return fmt.Errorf("%w: --db is required for the bolt store", ErrInvalidConfig)
		}
	case "influx":
		if c.InfluxURL == "" || c.InfluxOrg == "" || c.InfluxBucket == "" {
			return fmt.Errorf("%w: --influx-url, --influx-org and --influx-bucket are required for the influx store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q, valid: bolt or influx", ErrInvalidConfig, c.Store)
	}

	switch c.Scanner {
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("%w: Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable", ErrInvalidConfig)
		}
	case "ollama":
	default:
		return fmt.Errorf("%w: unknown scanner %q, valid: gemini or ollama", ErrInvalidConfig, c.Scanner)
	}

	if c.ScanTimeout <= 0 {
		return fmt.Errorf("%w: scan timeout must be positive", ErrInvalidConfig)
	}
	if c.ScanRetries < 0 {
		return fmt.Errorf("%w: scan retries must not be negative", ErrInvalidConfig)
	}
	if c.PriceFeedURL != "" && c.PriceFeedInterval <= 0 {
		return fmt.Errorf("%w: price feed interval must be positive", ErrInvalidConfig)
	}

	if err := c.level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q, valid: text or json", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AuthEnabled reports whether basic auth credentials were configured
func (c *Config) AuthEnabled() bool {
	return c.AuthUser != "" || c.AuthPass != ""
}

// Logger builds the slog logger selected by the log options
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
