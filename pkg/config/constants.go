package config

// EnvPrefix is passed to envconfig; explicit tags on each field keep the
// canonical names, the prefix only guards against accidental collisions.
const EnvPrefix = "PAYRECON"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "PAYRECON_APP_ENV"
	EnvPort   = "PAYRECON_APP_PORT"

	EnvDBDSN  = "PAYRECON_DB_DSN"
	EnvDBHost = "PAYRECON_DB_HOST"
	EnvDBUser = "PAYRECON_DB_USER"
	EnvDBName = "PAYRECON_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
