package env

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackend          = "STORE_BACKEND"
	SessionTTL            = "SESSION_TTL"
	AWSRegion             = "AWS_REGION"
	AWSID                 = "AWS_ID"
	AWSSecret             = "AWS_SECRET"
	AWSToken              = "AWS_TOKEN"
	DynamoDBEndpoint      = "DYNAMODB_ENDPOINT"
	DynamoDBSessionsTable = "DYNAMODB_SESSIONS_TABLE"
	ChatRedisURL          = "CHAT_REDIS_URL"
	ChatRedisPass         = "CHAT_REDIS_PASS"
	SQLDriver             = "SQL_DRIVER"
	SQLDSN                = "SQL_DSN"
	EmployeeSecretKey     = "EMPLOYEE_SECRET"
	EmployeeRosterFile    = "EMPLOYEE_ROSTER_FILE"
	EmployeeTokenTTL      = "EMPLOYEE_TOKEN_TTL"
	AssistantBaseURL      = "ASSISTANT_BASE_URL"
	AssistantAPIKey       = "ASSISTANT_API_KEY"
	AssistantModel        = "ASSISTANT_MODEL"
	AssistantSystemPrompt = "ASSISTANT_SYSTEM_PROMPT"
	AssistantHistory      = "ASSISTANT_HISTORY_WINDOW"
	AllowedOrigins        = "ALLOWED_ORIGINS"
	WidgetAddr            = "WIDGET_ADDR"
	DashboardAddr         = "DASHBOARD_ADDR"
	WSAddr                = "WS_ADDR"
	QueueSize             = "QUEUE_SIZE"
	QueueWorkers          = "QUEUE_WORKERS"
)

// Load reads .env style files into the process environment. Variables that
// are already set win over file values. Missing files are ignored.
func Load(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("env: load %s: %v", f, err)
		}
	}
}

// Validate reports the first required key that is unset.
func Validate(required ...string) error {
	for _, key := range required {
		if os.Getenv(key) == "" {
			return fmt.Errorf("env: required environment variable not set: %s", key)
		}
	}
	return nil
}

// RequiredFor returns the keys a store backend cannot start without.
func RequiredFor(backend string) []string {
	switch backend {
	case "redis":
		return []string{ChatRedisURL}
	case "dynamodb":
		return []string{AWSRegion}
	case "sql":
		return []string{SQLDriver, SQLDSN}
	default:
		return nil
	}
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}

func GetInt(key string, defaultVal int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("env: %s=%q is not an integer, using %d", key, val, defaultVal)
		return defaultVal
	}
	return n
}

func GetDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		log.Printf("env: %s=%q is not a positive duration, using %s", key, val, defaultVal)
		return defaultVal
	}
	return d
}

// GetList splits a comma separated value, dropping empty entries.
func GetList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
