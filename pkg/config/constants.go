package config

// EnvPrefix namespaces every environment variable consumed by the service.
const EnvPrefix = "ADLIBRA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Queue backends selectable via ADLIBRA_QUEUE_BACKEND.
const (
	QueueBackendRedis  = "redis"
	QueueBackendPubSub = "pubsub"
)

const (
	EnvDBDSN  = "ADLIBRA_DB_DSN"
	EnvDBHost = "ADLIBRA_DB_HOST"
	EnvDBUser = "ADLIBRA_DB_USER"
	EnvDBName = "ADLIBRA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
