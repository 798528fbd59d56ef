package config

// EnvPrefix is empty because every field carries its fully-qualified
// KOBOCART_* tag; envconfig still needs the explicit argument.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names, mirrored by the envconfig tags below. Tests
// and tooling reference these instead of repeating raw strings.
const (
	EnvAppEnv       = "KOBOCART_APP_ENV"
	EnvPort         = "KOBOCART_APP_PORT"
	EnvLogLevel     = "KOBOCART_LOG_LEVEL"
	EnvDBDSN        = "KOBOCART_DB_DSN"
	EnvDBHost       = "KOBOCART_DB_HOST"
	EnvDBPort       = "KOBOCART_DB_PORT"
	EnvDBUser       = "KOBOCART_DB_USER"
	EnvDBPassword   = "KOBOCART_DB_PASSWORD"
	EnvDBName       = "KOBOCART_DB_NAME"
	EnvRedisURL     = "KOBOCART_REDIS_URL"
	EnvJWTSecret    = "KOBOCART_JWT_SECRET"
	EnvJWTIssuer    = "KOBOCART_JWT_ISSUER"
	EnvPaystackKey  = "KOBOCART_PAYSTACK_SECRET_KEY"
	EnvCallbackURL  = "KOBOCART_PAYSTACK_CALLBACK_URL"
	EnvGCPProjectID = "KOBOCART_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
