package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	DB             DBConfig
	Worker         WorkerConfig
	Queue          QueueConfig
	FeatureFlags   FeatureFlagsConfig
	Reconciliation ReconciliationConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"PAYRECON_APP_ENV" required:"true"`
	Port         string   `envconfig:"PAYRECON_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"PAYRECON_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"PAYRECON_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"PAYRECON_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PAYRECON_DB_DSN"`
	Driver string `envconfig:"PAYRECON_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAYRECON_DB_HOST"`
	LegacyPort     int    `envconfig:"PAYRECON_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAYRECON_DB_USER"`
	LegacyPassword string `envconfig:"PAYRECON_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAYRECON_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAYRECON_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYRECON_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYRECON_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYRECON_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYRECON_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// WorkerConfig sizes the reconciliation worker pool and its lease timing.
// Lease duration should stay at roughly three heartbeat intervals so a
// crashed worker frees its job quickly without flapping live leases.
type WorkerConfig struct {
	PoolSize          int           `envconfig:"PAYRECON_WORKER_POOL_SIZE" default:"2"`
	PollInterval      time.Duration `envconfig:"PAYRECON_WORKER_POLL_INTERVAL" default:"1s"`
	LeaseDuration     time.Duration `envconfig:"PAYRECON_WORKER_LEASE_DURATION" default:"30s"`
	HeartbeatInterval time.Duration `envconfig:"PAYRECON_WORKER_HEARTBEAT_INTERVAL" default:"10s"`
	MetricsPort       string        `envconfig:"PAYRECON_WORKER_METRICS_PORT" default:"9091"`
}

type QueueConfig struct {
	MaxAttempts int           `envconfig:"PAYRECON_QUEUE_MAX_ATTEMPTS" default:"5"`
	BackoffBase time.Duration `envconfig:"PAYRECON_QUEUE_BACKOFF_BASE" default:"2s"`
	BackoffCap  time.Duration `envconfig:"PAYRECON_QUEUE_BACKOFF_CAP" default:"5m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAYRECON_AUTO_MIGRATE" default:"false"`
}

type ReconciliationConfig struct {
	MatcherTimeout time.Duration `envconfig:"PAYRECON_MATCHER_TIMEOUT" default:"20s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
