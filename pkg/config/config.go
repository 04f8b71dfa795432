package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	HTTP         HTTPConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RSVP         RSVPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.RSVP.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RSVP_APP_ENV" required:"true"`
	Port         string `envconfig:"RSVP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RSVP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RSVP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"RSVP_SERVICE_KIND" default:"api"`
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `envconfig:"RSVP_HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"RSVP_HTTP_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"RSVP_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
	AllowedOrigins  []string      `envconfig:"RSVP_HTTP_ALLOWED_ORIGINS" default:"*"`
}

type DBConfig struct {
	DSN    string `envconfig:"RSVP_DB_DSN"`
	Driver string `envconfig:"RSVP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RSVP_DB_HOST"`
	LegacyPort     int    `envconfig:"RSVP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RSVP_DB_USER"`
	LegacyPassword string `envconfig:"RSVP_DB_PASSWORD"`
	LegacyName     string `envconfig:"RSVP_DB_NAME"`
	LegacySSLMode  string `envconfig:"RSVP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RSVP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RSVP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RSVP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RSVP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"RSVP_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RSVP_REDIS_URL"`
	Address      string        `envconfig:"RSVP_REDIS_ADDR"`
	Password     string        `envconfig:"RSVP_REDIS_PASSWORD"`
	DB           int           `envconfig:"RSVP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RSVP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RSVP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RSVP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RSVP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RSVP_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"RSVP_REDIS_KEY_PREFIX" default:"rsvp"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RSVP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RSVP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RSVP_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RSVP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RSVP_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"RSVP_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"RSVP_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"RSVP_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"RSVP_PUBSUB_DOMAIN_TOPIC" default:"rsvp-domain-events"`
	NotificationSubscription string `envconfig:"RSVP_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"rsvp-notifications"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RSVP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RSVP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RSVP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// PollInterval converts the configured milliseconds to a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"RSVP_CRON_INTERVAL" default:"1m"`
	LockTTL               time.Duration `envconfig:"RSVP_CRON_LOCK_TTL" default:"5m"`
	EventCompletionGrace  time.Duration `envconfig:"RSVP_CRON_EVENT_COMPLETION_GRACE" default:"6h"`
	NotificationRetention time.Duration `envconfig:"RSVP_CRON_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"RSVP_CRON_OUTBOX_RETENTION" default:"168h"`
	CleanupBatch          int           `envconfig:"RSVP_CRON_CLEANUP_BATCH" default:"500"`
}

type RSVPConfig struct {
	TokenAttempts      int   `envconfig:"RSVP_TOKEN_ATTEMPTS" default:"3"`
	WaitlistSweepBatch int   `envconfig:"RSVP_WAITLIST_SWEEP_BATCH" default:"50"`
	CheckInRateLimit   int64 `envconfig:"RSVP_CHECKIN_RATE_LIMIT" default:"120"`
}

func (r RSVPConfig) validate() error {
	if r.TokenAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvTokenAttempts)
	}
	if r.WaitlistSweepBatch < 1 {
		return fmt.Errorf("%s must be at least 1", EnvWaitlistSweepBatch)
	}
	return nil
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if sqlite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = "file:rsvp.db?_foreign_keys=on"
		}
		return nil
	}
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
