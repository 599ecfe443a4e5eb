package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
	EnvCI          = "ci"
	EnvCircleCI    = "circleci"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBLogLevel        string
	DBSlowQueryMillis int
	MigrateOnStart    bool

	Redis RedisConfig
	SMTP  SMTPConfig

	SlackWebhookURL string
	GithubToken     string
	RecaptchaSecret string
	StripeSecretKey string
	StripeAPIBase   string
	LimitsFile      string

	Platform PlatformConfig
	Export   ExportConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// PlatformConfig describes the collectives the platform itself operates.
type PlatformConfig struct {
	RootCollectiveID   int64
	PlansCollectiveSlug string
	PlatformFeePercent float64
	HostFeePercent     float64
	WebsiteURL         string
}

type ExportConfig struct {
	RootDir  string
	S3Bucket string
	S3Prefix string
	S3Region string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "patronage"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       strings.ToLower(getenv("ENVIRONMENT", EnvDevelopment)),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "patronage"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBLogLevel:        getenv("DATABASE_LOG_LEVEL", "warn"),
		DBSlowQueryMillis: getenvInt("DATABASE_SLOW_QUERY_MS", 200),
		MigrateOnStart:    getenvBool("MIGRATE_ON_START", false),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "info@patronage.local"),
		},
		SlackWebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_ABUSE", "")),
		GithubToken:     strings.TrimSpace(getenv("GITHUB_TOKEN", "")),
		RecaptchaSecret: strings.TrimSpace(getenv("RECAPTCHA_SECRET_KEY", "")),
		StripeSecretKey: strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
		StripeAPIBase:   getenv("STRIPE_API_BASE", "https://api.stripe.com"),
		LimitsFile:      getenv("LIMITS_FILE", "limits.yml"),
		Platform: PlatformConfig{
			RootCollectiveID:    getenvInt64("ROOT_COLLECTIVE_ID", 1),
			PlansCollectiveSlug: getenv("PLANS_COLLECTIVE_SLUG", "opencollective"),
			PlatformFeePercent:  getenvFloat("PLATFORM_FEE_PERCENT", 5),
			HostFeePercent:      getenvFloat("HOST_FEE_PERCENT", 5),
			WebsiteURL:          getenv("WEBSITE_URL", "http://localhost:3000"),
		},
		Export: ExportConfig{
			RootDir:  getenv("EXPORT_ROOT_DIR", "./data"),
			S3Bucket: strings.TrimSpace(getenv("EXPORT_S3_BUCKET", "")),
			S3Prefix: strings.Trim(getenv("EXPORT_S3_PREFIX", "exports"), "/"),
			S3Region: getenv("EXPORT_S3_REGION", "us-east-1"),
		},
	}

	return cfg
}

// IsTestEnv reports whether the process runs under automated tests.
func (c Config) IsTestEnv() bool {
	switch c.Environment {
	case EnvTest, EnvCI, EnvCircleCI:
		return true
	default:
		return false
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
