package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/yasgmp/gmpauthz/internal/audit"
	iauth "github.com/yasgmp/gmpauthz/internal/auth"
	"github.com/yasgmp/gmpauthz/internal/database"
)

// Config represents the runtime configuration of the authorization service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string            `mapstructure:"driver"`
	Path            string            `mapstructure:"path"`
	DSN             string            `mapstructure:"dsn"`
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	Name            string            `mapstructure:"name"`
	Options         map[string]string `mapstructure:"options"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration     `mapstructure:"conn_max_lifetime"`
}

// AuthConfig holds the parameters used to verify access tokens minted by the
// identity provider.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
	// BootstrapAdminUserIDs are granted the administrator role at startup.
	BootstrapAdminUserIDs []int64 `mapstructure:"bootstrap_admin_user_ids"`
}

// JWTSettings configures access token verification.
type JWTSettings struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

// AuditConfig controls how authorization changes reach the event log.
type AuditConfig struct {
	Table       string   `mapstructure:"table"`
	Shapes      []string `mapstructure:"shapes"`
	MirrorTrail bool     `mapstructure:"mirror_trail"`
}

// MaintenanceConfig schedules the expired-grant purge.
type MaintenanceConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("GMPAUTHZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "20s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/gmpauthz.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.audience", "")
	v.SetDefault("auth.jwt.leeway", "30s")
	v.SetDefault("auth.bootstrap_admin_user_ids", []int64{})

	v.SetDefault("audit.table", audit.DefaultTableName)
	v.SetDefault("audit.shapes", []string{"full", "hash_only", "minimal"})
	v.SetDefault("audit.mirror_trail", false)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
	v.SetDefault("maintenance.timeout", "5m")
	v.SetDefault("maintenance.max_age", "6h")

	v.SetDefault("monitoring.prometheus.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", "sqlite", "sqlite3", "postgres", "postgresql", "mysql", "mariadb":
	default:
		errs = multierr.Append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if strings.TrimSpace(c.Auth.JWT.Secret) == "" {
		errs = multierr.Append(errs, errors.New("auth.jwt.secret is required"))
	}
	for _, id := range c.Auth.BootstrapAdminUserIDs {
		if id <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("auth.bootstrap_admin_user_ids: %d is not a valid user id", id))
		}
	}
	if _, err := audit.ShapesByName(c.Audit.Shapes); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("audit.shapes: %w", err))
	}
	if c.Maintenance.Enabled {
		if _, err := cron.ParseStandard(c.Maintenance.Schedule); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance.schedule: %w", err))
		}
	}
	return errs
}

// DatabaseSettings converts the database section for database.Open.
func (c DatabaseConfig) DatabaseSettings() database.Config {
	return database.Config{
		Driver:          strings.TrimSpace(c.Driver),
		Path:            strings.TrimSpace(c.Path),
		DSN:             strings.TrimSpace(c.DSN),
		Host:            strings.TrimSpace(c.Host),
		Port:            c.Port,
		User:            strings.TrimSpace(c.Username),
		Password:        c.Password,
		Name:            strings.TrimSpace(c.Name),
		Options:         c.Options,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// VerifierConfig converts AuthConfig into the parameters expected by the token verifier.
func (c AuthConfig) VerifierConfig() iauth.JWTConfig {
	return iauth.JWTConfig{
		Secret:   c.JWT.Secret,
		Issuer:   strings.TrimSpace(c.JWT.Issuer),
		Audience: strings.TrimSpace(c.JWT.Audience),
		Leeway:   c.JWT.Leeway,
	}
}

// SinkOptions converts AuditConfig into audit sink options. Call Validate first.
func (c AuditConfig) SinkOptions() []audit.Option {
	opts := []audit.Option{audit.WithTable(c.Table)}
	if shapes, err := audit.ShapesByName(c.Shapes); err == nil {
		opts = append(opts, audit.WithShapes(shapes...))
	}
	return opts
}
