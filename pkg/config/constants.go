package config

const (
	EnvPrefix = "VENDORLUTION"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv    = "VENDORLUTION_APP_ENV"
	EnvPort      = "VENDORLUTION_APP_PORT"
	EnvLogLevel  = "VENDORLUTION_LOG_LEVEL"
	EnvLogFormat = "VENDORLUTION_LOG_FORMAT"

	EnvDBDSN  = "VENDORLUTION_DB_DSN"
	EnvDBHost = "VENDORLUTION_DB_HOST"
	EnvDBUser = "VENDORLUTION_DB_USER"
	EnvDBName = "VENDORLUTION_DB_NAME"

	EnvRedisURL = "VENDORLUTION_REDIS_URL"

	EnvJWTSecret  = "VENDORLUTION_JWT_SECRET"
	EnvJWTIssuer  = "VENDORLUTION_JWT_ISSUER"
	EnvJWTExpMins = "VENDORLUTION_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite = "VENDORLUTION_USE_SQLITE"

	EnvPlatformFeeRate = "VENDORLUTION_PLATFORM_FEE_PERCENT"
	EnvAutoReleaseDays = "VENDORLUTION_AUTO_RELEASE_DAYS"
	EnvPayoutMinAmount = "VENDORLUTION_PAYOUT_MIN_AMOUNT"

	EnvOzowSiteCode   = "VENDORLUTION_OZOW_SITE_CODE"
	EnvOzowPrivateKey = "VENDORLUTION_OZOW_PRIVATE_KEY"

	EnvPeachEntityID = "VENDORLUTION_PEACH_ENTITY_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
