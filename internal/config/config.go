package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the service needs. Components receive it (or the
// fields they care about) at construction time and never read the environment
// themselves.
type Config struct {
	// Infrastructure
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	HTTPPort      string
	LogMode       string

	// Upstream services
	FormsBaseURL       string
	EvaluationsBaseURL string
	UpstreamTimeout    time.Duration

	// Snapshot computation
	PageSize    int
	SnapshotTTL time.Duration
	TimeBucket  string // "day" or "week"

	// Intelligence enrichment
	EnableIntelligence bool
	RequestStream      string
	ResultStream       string
	DLQStream          string
	ConsumerGroup      string
	ResultBatchSize    int
	ResultBlock        time.Duration
	PendingTimeout     time.Duration
	StatusChannel      string
	ProducerService    string
}

// Load reads configuration from the environment, falling back to defaults.
func Load() *Config {
	return &Config{
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "analyticsdb"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		LogMode:       getEnv("LOG_MODE", "dev"),

		FormsBaseURL:       getEnv("FORMS_BASE_URL", "http://localhost:8081"),
		EvaluationsBaseURL: getEnv("EVALUATIONS_BASE_URL", "http://localhost:8082"),
		UpstreamTimeout:    getEnvDuration("UPSTREAM_TIMEOUT_MS", 10*time.Second),

		PageSize:    maxInt(1, getEnvInt("ANALYTICS_PAGE_SIZE", 1000)),
		SnapshotTTL: maxDuration(time.Minute, getEnvDuration("ANALYTICS_SNAPSHOT_TTL_MS", time.Hour)),
		TimeBucket:  normalizeBucket(getEnv("ANALYTICS_TIME_BUCKET", "day")),

		EnableIntelligence: getEnvBool("ANALYTICS_ENABLE_INTELLIGENCE", false),
		RequestStream:      getEnv("INTELLIGENCE_REQUEST_STREAM", "analytics:intelligence:request:v1"),
		ResultStream:       getEnv("INTELLIGENCE_RESULT_STREAM", "analytics:intelligence:result:v1"),
		DLQStream:          getEnv("INTELLIGENCE_DLQ_STREAM", "analytics:intelligence:dlq:v1"),
		ConsumerGroup:      getEnv("INTELLIGENCE_CONSUMER_GROUP", "analytics"),
		ResultBatchSize:    maxInt(1, getEnvInt("INTELLIGENCE_RESULT_BATCH_SIZE", 20)),
		ResultBlock:        maxDuration(100*time.Millisecond, getEnvDuration("INTELLIGENCE_RESULT_BLOCK_MS", 2*time.Second)),
		PendingTimeout:     maxDuration(time.Second, getEnvDuration("INTELLIGENCE_PENDING_TIMEOUT_MS", time.Minute)),
		StatusChannel:      getEnv("ANALYTICS_STATUS_CHANNEL", "analytics.textAnalysisStatusChanged"),
		ProducerService:    getEnv("PRODUCER_SERVICE", "burrito-analytics"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// Duration envs are expressed in milliseconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return defaultVal
}

func normalizeBucket(val string) string {
	if val == "week" {
		return "week"
	}
	return "day"
}

func maxInt(min, val int) int {
	if val < min {
		return min
	}
	return val
}

func maxDuration(min, val time.Duration) time.Duration {
	if val < min {
		return min
	}
	return val
}
