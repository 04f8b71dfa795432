package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "RSVP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "RSVP_APP_ENV"
	EnvPort     = "RSVP_APP_PORT"
	EnvLogLevel = "RSVP_LOG_LEVEL"

	EnvDBDSN  = "RSVP_DB_DSN"
	EnvDBHost = "RSVP_DB_HOST"
	EnvDBUser = "RSVP_DB_USER"
	EnvDBName = "RSVP_DB_NAME"

	EnvRedisURL     = "RSVP_REDIS_URL"
	EnvJWTSecret    = "RSVP_JWT_SECRET"
	EnvJWTIssuer    = "RSVP_JWT_ISSUER"
	EnvJWTExpMins   = "RSVP_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite    = "RSVP_USE_SQLITE"
	EnvAutoMigrate  = "RSVP_AUTO_MIGRATE"
	EnvGCPProjectID = "RSVP_GCP_PROJECT_ID"

	EnvPubSubDomainTopic     = "RSVP_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubNotificationSub = "RSVP_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvOutboxBatchSize       = "RSVP_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvCronInterval          = "RSVP_CRON_INTERVAL"
	EnvTokenAttempts         = "RSVP_TOKEN_ATTEMPTS"
	EnvWaitlistSweepBatch    = "RSVP_WAITLIST_SWEEP_BATCH"
	EnvCheckInRateLimit      = "RSVP_CHECKIN_RATE_LIMIT"
	EnvHTTPAllowedOrigins    = "RSVP_HTTP_ALLOWED_ORIGINS"
	EnvEventCompletionGrace  = "RSVP_CRON_EVENT_COMPLETION_GRACE"
	EnvNotificationRetention = "RSVP_CRON_NOTIFICATION_RETENTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
