package config

// EnvPrefix scopes all environment variables consumed by envconfig.
const EnvPrefix = "VENDORHUB"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "VENDORHUB_APP_ENV"
	EnvPort   = "VENDORHUB_APP_PORT"
	EnvDBDSN  = "VENDORHUB_DB_DSN"
	EnvDBHost = "VENDORHUB_DB_HOST"
	EnvDBUser = "VENDORHUB_DB_USER"
	EnvDBName = "VENDORHUB_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
