package config

// EnvPrefix namespaces every environment variable the platform reads.
const EnvPrefix = "FARMFRESH"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "FARMFRESH_DB_DSN"
	EnvDBHost = "FARMFRESH_DB_HOST"
	EnvDBUser = "FARMFRESH_DB_USER"
	EnvDBName = "FARMFRESH_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
