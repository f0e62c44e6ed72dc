package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	AppVersion = "v1.0.0"
	AppPort    = "3000"
	AppDebug   = false
	AppOs      = "WaBridge"

	// AppBasicAuth is the comma-separated user:pass list guarding the
	// REST surface. Empty means no auth.
	AppBasicAuth []string

	// PathAuth holds the whatsmeow credential database plus its .bak sibling.
	PathAuth     = "storages"
	PathStorages = "storages"

	DBDriver   = "sqlite"
	DBName     = "storages/bridge.db"
	DBHost     = "localhost"
	DBPort     = 5432
	DBUser     = "postgres"
	DBPassword = ""

	WhatsappLogLevel        = "ERROR"
	WhatsappMaxDownloadSize int64 = 50000000

	AgentProvider   = "gemini"
	AgentModel      = ""
	GeminiAPIKey    = ""
	OpenAIAPIKey    = ""
	AgentResourceID = "coworker"

	ValkeyEnabled   = false
	ValkeyAddress   = "localhost:6379"
	ValkeyPassword  = ""
	ValkeyDB        = 0
	ValkeyKeyPrefix = "wabridge:"

	MessageWorkerPoolSize  = 20
	MessageWorkerQueueSize = 1000
)

// Pipeline constants. These are contract values, not tunables.
const (
	DebounceWindow    = 2 * time.Second
	AgentTimeout      = 5 * time.Minute
	SentTrackerTTL    = 10 * time.Minute
	PairingTTL        = time.Hour
	GroupMetaTTL      = 5 * time.Minute
	MaxTextLength     = 3800
	ReconnectBase     = 1500 * time.Millisecond
	ReconnectFactor   = 1.6
	ReconnectCeiling  = 30 * time.Second
	ReconnectFloor    = 250 * time.Millisecond
	ReconnectAttempts = 10
	// MaxImageWidth bounds outbound images before upload.
	MaxImageWidth = 1280
)

func init() {
	if v := strings.TrimSpace(os.Getenv("APP_PORT")); v != "" {
		AppPort = v
	}
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		AppDebug = true
	}
	if v := strings.TrimSpace(os.Getenv("APP_OS")); v != "" {
		AppOs = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_BASIC_AUTH")); v != "" {
		AppBasicAuth = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("PATH_STORAGES")); v != "" {
		PathStorages = v
		PathAuth = v
		DBName = v + "/bridge.db"
	}
	if v := strings.TrimSpace(os.Getenv("PATH_AUTH")); v != "" {
		PathAuth = v
	}

	DBDriver = getEnv("DB_DRIVER", DBDriver)
	DBName = getEnv("DB_NAME", DBName)
	DBHost = getEnv("DB_HOST", DBHost)
	DBPort = getEnvInt("DB_PORT", DBPort)
	DBUser = getEnv("DB_USER", DBUser)
	DBPassword = getEnv("DB_PASSWORD", DBPassword)

	WhatsappLogLevel = getEnv("WHATSAPP_LOG_LEVEL", WhatsappLogLevel)
	WhatsappMaxDownloadSize = getEnvInt64("WHATSAPP_MAX_DOWNLOAD_SIZE", WhatsappMaxDownloadSize)

	AgentProvider = strings.ToLower(getEnv("AGENT_PROVIDER", AgentProvider))
	AgentModel = getEnv("AGENT_MODEL", AgentModel)
	GeminiAPIKey = getEnv("GEMINI_API_KEY", GeminiAPIKey)
	OpenAIAPIKey = getEnv("OPENAI_API_KEY", OpenAIAPIKey)
	AgentResourceID = getEnv("AGENT_RESOURCE_ID", AgentResourceID)

	ValkeyEnabled = getEnvBool("VALKEY_ENABLED", ValkeyEnabled)
	ValkeyAddress = getEnv("VALKEY_ADDRESS", ValkeyAddress)
	ValkeyPassword = getEnv("VALKEY_PASSWORD", ValkeyPassword)
	ValkeyDB = getEnvInt("VALKEY_DB", ValkeyDB)
	ValkeyKeyPrefix = getEnv("VALKEY_KEY_PREFIX", ValkeyKeyPrefix)

	MessageWorkerPoolSize = getEnvInt("MESSAGE_WORKER_POOL_SIZE", MessageWorkerPoolSize)
	MessageWorkerQueueSize = getEnvInt("MESSAGE_WORKER_QUEUE_SIZE", MessageWorkerQueueSize)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return fallback
}
