package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	// Delivery-report archive bucket; empty disables archiving.
	S3ReportsBucket string

	JWTPublicKeyPath string

	// FCM service-account credentials file; empty disables the fcm channel.
	FCMCredentialsFile string

	// OneSignal REST credentials; empty app id disables the onesignal channel.
	OneSignalAppID    string
	OneSignalAPIKey   string
	OneSignalEndpoint string

	// SNS platform application ARN for the apns channel; empty disables it.
	SNSPlatformAppARN string

	RedisAddr     string // empty disables the token cache
	RedisPassword string
	TokenCacheTTL time.Duration

	ProviderTimeout    time.Duration
	BroadcastBatchSize int
	SchedulerInterval  time.Duration
	DefaultLocale      string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Notifications string
	DeviceTokens  string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			DeviceTokens:  getEnv("DYNAMO_TABLE_DEVICE_TOKENS", "device_tokens"),
		},

		S3ReportsBucket: getEnv("S3_REPORTS_BUCKET", ""),

		JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),

		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),

		OneSignalAppID:    getEnv("ONESIGNAL_APP_ID", ""),
		OneSignalAPIKey:   getEnv("ONESIGNAL_API_KEY", ""),
		OneSignalEndpoint: getEnv("ONESIGNAL_ENDPOINT", "https://onesignal.com/api/v1"),

		SNSPlatformAppARN: getEnv("SNS_PLATFORM_APP_ARN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		TokenCacheTTL: getEnvDuration("TOKEN_CACHE_TTL", 5*time.Minute),

		ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
		BroadcastBatchSize: getEnvInt("BROADCAST_BATCH_SIZE", 1000),
		SchedulerInterval:  getEnvDuration("SCHEDULER_INTERVAL", 30*time.Second),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
