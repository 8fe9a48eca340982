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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Scrape       ScrapeConfig
	Queue        QueueConfig
	Cloudinary   CloudinaryConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
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
	Env          string `envconfig:"ADLIBRA_APP_ENV" required:"true"`
	Port         string `envconfig:"ADLIBRA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ADLIBRA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ADLIBRA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ADLIBRA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ADLIBRA_DB_DSN"`
	Driver string `envconfig:"ADLIBRA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ADLIBRA_DB_HOST"`
	LegacyPort     int    `envconfig:"ADLIBRA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ADLIBRA_DB_USER"`
	LegacyPassword string `envconfig:"ADLIBRA_DB_PASSWORD"`
	LegacyName     string `envconfig:"ADLIBRA_DB_NAME"`
	LegacySSLMode  string `envconfig:"ADLIBRA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ADLIBRA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ADLIBRA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ADLIBRA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ADLIBRA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ADLIBRA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ADLIBRA_REDIS_ADDR"`
	Password     string        `envconfig:"ADLIBRA_REDIS_PASSWORD"`
	DB           int           `envconfig:"ADLIBRA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ADLIBRA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ADLIBRA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ADLIBRA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ADLIBRA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ADLIBRA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ADLIBRA_AUTO_MIGRATE" default:"false"`
}

// ScrapeConfig drives the browser session and the ingestion pipeline.
type ScrapeConfig struct {
	Country         string        `envconfig:"ADLIBRA_SCRAPE_COUNTRY" default:"KR"`
	MaxAdsPerJob    int           `envconfig:"ADLIBRA_SCRAPE_MAX_ADS" default:"100"`
	Headless        bool          `envconfig:"ADLIBRA_SCRAPE_HEADLESS" default:"true"`
	UploadEnabled   bool          `envconfig:"ADLIBRA_SCRAPE_UPLOAD_ENABLED" default:"true"`
	UserAgent       string        `envconfig:"ADLIBRA_SCRAPE_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	InitialLoadWait time.Duration `envconfig:"ADLIBRA_SCRAPE_INITIAL_LOAD_WAIT" default:"3s"`
	ReloadWait      time.Duration `envconfig:"ADLIBRA_SCRAPE_RELOAD_WAIT" default:"5s"`
	ScrollWait      time.Duration `envconfig:"ADLIBRA_SCRAPE_SCROLL_WAIT" default:"2s"`
	DedupPrecedence string        `envconfig:"ADLIBRA_SCRAPE_DEDUP_PRECEDENCE" default:"first"`
}

// QueueConfig governs job delivery, retries and the lease window.
type QueueConfig struct {
	Backend           string        `envconfig:"ADLIBRA_QUEUE_BACKEND" default:"redis"`
	Name              string        `envconfig:"ADLIBRA_QUEUE_NAME" default:"scrape"`
	VisibilityTimeout time.Duration `envconfig:"ADLIBRA_QUEUE_VISIBILITY_TIMEOUT" default:"16m"`
	MaxAttempts       int           `envconfig:"ADLIBRA_QUEUE_MAX_ATTEMPTS" default:"3"`
	BackoffBase       time.Duration `envconfig:"ADLIBRA_QUEUE_BACKOFF_BASE" default:"1m"`
	JobTimeout        time.Duration `envconfig:"ADLIBRA_QUEUE_JOB_TIMEOUT" default:"15m"`
	PollInterval      time.Duration `envconfig:"ADLIBRA_QUEUE_POLL_INTERVAL" default:"2s"`
}

type CloudinaryConfig struct {
	CloudName   string `envconfig:"ADLIBRA_CLOUDINARY_CLOUD_NAME"`
	APIKey      string `envconfig:"ADLIBRA_CLOUDINARY_API_KEY"`
	APISecret   string `envconfig:"ADLIBRA_CLOUDINARY_API_SECRET"`
	ImageFolder string `envconfig:"ADLIBRA_CLOUDINARY_IMAGE_FOLDER" default:"ads-library/images"`
	VideoFolder string `envconfig:"ADLIBRA_CLOUDINARY_VIDEO_FOLDER" default:"ads-library/videos"`
}

// Configured reports whether credentials are present; uploads degrade to
// passthrough when they are not.
func (c CloudinaryConfig) Configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ADLIBRA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ADLIBRA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ADLIBRA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ScrapeTopic        string `envconfig:"ADLIBRA_PUBSUB_SCRAPE_TOPIC" default:"adlibra-scrape-jobs"`
	ScrapeSubscription string `envconfig:"ADLIBRA_PUBSUB_SCRAPE_SUBSCRIPTION" default:"adlibra-scrape-jobs-worker"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"ADLIBRA_BIGQUERY_DATASET" default:"adlibra"`
	JobEventsTable string `envconfig:"ADLIBRA_BIGQUERY_JOB_EVENTS_TABLE" default:"scrape_job_events"`
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
