package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Geometry GeometryConfig `yaml:"geometry" mapstructure:"geometry"`
	Coverage CoverageConfig `yaml:"coverage" mapstructure:"coverage"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GeometryConfig locates the commune boundaries and names their properties.
type GeometryConfig struct {
	URL             string `yaml:"url" mapstructure:"url"`
	TempDir         string `yaml:"temp_dir" mapstructure:"temp_dir"`
	CodeField       string `yaml:"code_field" mapstructure:"code_field"`
	NameField       string `yaml:"name_field" mapstructure:"name_field"`
	DepartmentField string `yaml:"department_field" mapstructure:"department_field"`
}

// CoverageConfig selects and describes the fibre coverage source.
type CoverageConfig struct {
	Source      string `yaml:"source" mapstructure:"source"`
	URL         string `yaml:"url" mapstructure:"url"`
	CodeColumn  string `yaml:"code_column" mapstructure:"code_column"`
	PctColumn   string `yaml:"pct_column" mapstructure:"pct_column"`
	CountColumn string `yaml:"count_column" mapstructure:"count_column"`
	Duplicates  string `yaml:"duplicates" mapstructure:"duplicates"`
	ExportPath  string `yaml:"export_path" mapstructure:"export_path"`
}

// Coverage source kinds.
const (
	SourceFile     = "file"
	SourceDatabase = "database"
)

// DatabaseConfig holds the coverage database connection parameters.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Name     string `yaml:"name" mapstructure:"name"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
	Path     string `yaml:"path" mapstructure:"path"`
	Table    string `yaml:"table" mapstructure:"table"`
}

// FetchConfig configures HTTP downloads.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Timeout returns the per-request timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// ServerConfig configures the map server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps keys to the unprefixed variables older deployments set in .env.
var legacyEnv = map[string]string{
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.name":     "DB_NAME",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIBRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envName := "FIBRE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("geometry.url", "https://raw.githubusercontent.com/gregoiredavid/france-geojson/master/communes-version-simplifiee.geojson")
	v.SetDefault("geometry.code_field", "code")
	v.SetDefault("geometry.name_field", "nom")
	v.SetDefault("geometry.temp_dir", "")
	v.SetDefault("geometry.department_field", "")
	v.SetDefault("coverage.source", SourceFile)
	v.SetDefault("coverage.url", "https://raw.githubusercontent.com/ThibautNguyen/carte-fibre-france/main/data/fibre_data.csv")
	v.SetDefault("coverage.code_column", "code_insee")
	v.SetDefault("coverage.pct_column", "pct_fibre")
	v.SetDefault("coverage.count_column", "nb_locaux")
	v.SetDefault("coverage.duplicates", "first")
	v.SetDefault("coverage.export_path", "data/fibre_data.csv")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "opendata")
	v.SetDefault("database.sslmode", "prefer")
	v.SetDefault("database.path", "")
	v.SetDefault("database.table", "reseau.techno_internet_com_2024_clean")
	v.SetDefault("fetch.user_agent", "fibre-map/1.0")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("server.port", 8501)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode ("serve",
// "render", "export" or "check"). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Coverage.Source {
	case SourceFile, SourceDatabase:
	default:
		errs = append(errs, fmt.Sprintf("coverage.source must be %q or %q, got %q", SourceFile, SourceDatabase, c.Coverage.Source))
	}
	switch c.Coverage.Duplicates {
	case "", "first", "reject":
	default:
		errs = append(errs, fmt.Sprintf("coverage.duplicates must be \"first\" or \"reject\", got %q", c.Coverage.Duplicates))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unsupported database driver: %s", c.Database.Driver))
	}

	needsDB := c.Coverage.Source == SourceDatabase
	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "render":
	case "export", "check":
		needsDB = true
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "export" && mode != "check" {
		if c.Geometry.URL == "" {
			errs = append(errs, "geometry.url is required")
		}
		if c.Coverage.Source == SourceFile && c.Coverage.URL == "" {
			errs = append(errs, "coverage.url is required for the file source")
		}
	}
	if needsDB {
		if c.Database.Table == "" {
			errs = append(errs, "database.table is required")
		}
		if c.Database.Driver == "sqlite" && c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
		if c.Database.Driver == "postgres" && c.Database.Host == "" {
			errs = append(errs, "database.host is required for the postgres driver")
		}
	}
	if mode == "export" && c.Coverage.ExportPath == "" {
		errs = append(errs, "coverage.export_path is required")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// DSN builds a postgres connection URL from the individual parameters.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// Redacted describes the connection target without credentials, for logs.
func (d DatabaseConfig) Redacted() string {
	if d.Driver == "sqlite" {
		return "sqlite:" + d.Path
	}
	return fmt.Sprintf("postgres://%s:%d/%s", d.Host, d.Port, d.Name)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
