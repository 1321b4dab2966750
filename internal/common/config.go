package common

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/order-intake/constants"
)

// Config holds all application configuration
type Config struct {
	Env         string
	Database    DatabaseConfig
	TMSDatabase DatabaseConfig
	TMS         TMSConfig
	Tables      TableConfig
	Paths       map[constants.Category]CategoryPaths
	Customers   map[constants.Category]string
	OCR         OCRConfig
	Server      ServerConfig
	Redis       RedisConfig
	Archive     ArchiveConfig
	Submit      SubmitConfig
	Queue       QueueConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// TMSConfig holds the remote order API settings.
type TMSConfig struct {
	BaseURL   string
	Username  string
	Password  string
	CompanyID string
	Timeout   time.Duration
	TZOffset  string // appended to every schedule stamp, e.g. "-0600"
	OpsUser   string
}

// TableConfig names the tables the gateways read and write.
type TableConfig struct {
	Orders          string
	Locations       string
	RemoteOrders    string
	ReferenceNumber string
}

// CategoryPaths are the folders one category reads from and archives to.
type CategoryPaths struct {
	Inbox       string
	Imaging     string
	Attachments string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	TessdataDir      string
	ArtifactCacheDir string
	DPI              int
	Fallback         string // "tesseract" | "vertex" | "openai" | "" (disabled)
	VertexProject    string
	VertexRegion     string
	VertexModel      string
	OpenAIKey        string
	OpenAIBaseURL    string
	OpenAIModel      string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
	GRPCAddr string
}

// RedisConfig enables the cross-process run lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// ArchiveConfig selects where created orders' documents are moved.
type ArchiveConfig struct {
	Backend string // "local" | "gcs"
	Bucket  string
	Prefix  string
}

// SubmitConfig tunes the remote submission stage.
type SubmitConfig struct {
	Workers int
}

// QueueConfig tunes background runs. Interval 0 disables the schedule.
type QueueConfig struct {
	Workers    int
	Size       int
	RunTimeout time.Duration
	Interval   time.Duration
	Selector   string
}

// LoadConfig loads configuration from environment variables, reading config.env first when present.
func LoadConfig() *Config {
	_ = godotenv.Load(getEnv("CONFIG_FILE", "config.env"))

	env := strings.ToLower(getEnv("ENV", "development"))
	ordersTable := getEnv("TABLE_ORDERS_DEV", "order_entry_dev")
	if env == "production" {
		ordersTable = getEnv("TABLE_ORDERS_PROD", "order_entry")
	}

	docRoot := getEnv("DOCUMENTS_DIR", "./documents/order_entry")
	paths := make(map[constants.Category]CategoryPaths)
	customers := make(map[constants.Category]string)
	for _, cat := range constants.AllCategories() {
		key := strings.ToUpper(string(cat))
		base := filepath.Join(docRoot, string(cat))
		paths[cat] = CategoryPaths{
			Inbox:       getEnv(key+"_ORDERS_PATH", base),
			Imaging:     getEnv(key+"_ORDERS_TO_IMAGING_PATH", filepath.Join(base, "imaging")),
			Attachments: getEnv(key+"_ORDERS_IMAGES_PATH", filepath.Join(base, "images")),
		}
	}
	customers[constants.Grain] = getEnv("GRAIN_CUSTOMER_ID", "GRAMIA")
	customers[constants.ResoluteInbound] = getEnv("RESOLUTE_INBOUND_CUSTOMER_ID", "RESCIN")
	customers[constants.ResoluteOutbound] = getEnv("RESOLUTE_OUTBOUND_CUSTOMER_ID", "RESCOU")

	return &Config{
		Env: env,
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		TMSDatabase: DatabaseConfig{
			DSN:             getEnv("TMS_DB_URL", ""),
			MaxConns:        getEnvAsInt32("TMS_DB_MAX_CONNS", 5),
			MinConns:        getEnvAsInt32("TMS_DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("TMS_DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("TMS_DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("TMS_DB_DIAL_TIMEOUT", 3*time.Second),
		},
		TMS: TMSConfig{
			BaseURL:   strings.TrimRight(getEnv("TMS_API_URL", ""), "/"),
			Username:  getEnv("TMS_API_USER", ""),
			Password:  getEnv("TMS_API_PASSWORD", ""),
			CompanyID: getEnv("TMS_COMPANY_ID", "TMS"),
			Timeout:   getEnvAsDuration("TMS_API_TIMEOUT", 30*time.Second),
			TZOffset:  getEnv("TMS_TZ_OFFSET", "-0600"),
			OpsUser:   getEnv("TMS_OPS_USER", "dbangert"),
		},
		Tables: TableConfig{
			Orders:          ordersTable,
			Locations:       getEnv("TABLE_LOCATIONS", "location"),
			RemoteOrders:    getEnv("TABLE_TMS_ORDERS", "orders"),
			ReferenceNumber: getEnv("TABLE_REFERENCE_NUMBER", "reference_number"),
		},
		Paths:     paths,
		Customers: customers,
		OCR: OCRConfig{
			TessdataDir:      getEnv("TESSDATA_PREFIX", ""),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
			DPI:              getEnvAsInt("OCR_DPI", 300),
			Fallback:         strings.ToLower(getEnv("OCR_FALLBACK", "tesseract")),
			VertexProject:    getEnv("VERTEX_PROJECT_ID", ""),
			VertexRegion:     getEnv("VERTEX_REGION", "us-central1"),
			VertexModel:      getEnv("VERTEX_MODEL", "gemini-1.5-pro"),
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr: getEnv("GRPC_ADDR", ":8081"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("RUN_LOCK_TTL", 30*time.Minute),
		},
		Archive: ArchiveConfig{
			Backend: strings.ToLower(getEnv("ARCHIVE_BACKEND", "local")),
			Bucket:  getEnv("ARCHIVE_BUCKET", ""),
			Prefix:  getEnv("ARCHIVE_PREFIX", "imaging"),
		},
		Submit: SubmitConfig{
			Workers: getEnvAsInt("SUBMIT_WORKERS", 1),
		},
		Queue: QueueConfig{
			Workers:    getEnvAsInt("RUN_QUEUE_WORKERS", 1),
			Size:       getEnvAsInt("RUN_QUEUE_SIZE", 16),
			RunTimeout: getEnvAsDuration("RUN_TIMEOUT", 20*time.Minute),
			Interval:   getEnvAsDuration("RUN_INTERVAL", 0),
			Selector:   getEnv("RUN_SELECTOR", "all"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the settings a pipeline run cannot do without.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.TMSDatabase.DSN == "" {
		return NewAppError("CONFIG_ERROR", "TMS_DB_URL is required", ErrInvalidInput)
	}
	if c.TMS.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "TMS_API_URL is required", ErrInvalidInput)
	}
	if c.TMS.Username == "" || c.TMS.Password == "" {
		return NewAppError("CONFIG_ERROR", "TMS_API_USER and TMS_API_PASSWORD are required", ErrInvalidInput)
	}
	if c.Archive.Backend == "gcs" && c.Archive.Bucket == "" {
		return NewAppError("CONFIG_ERROR", "ARCHIVE_BUCKET is required for the gcs archive backend", ErrInvalidInput)
	}
	if c.OCR.Fallback == "vertex" && c.OCR.VertexProject == "" {
		return NewAppError("CONFIG_ERROR", "VERTEX_PROJECT_ID is required for the vertex OCR fallback", ErrInvalidInput)
	}
	if c.OCR.Fallback == "openai" && c.OCR.OpenAIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required for the openai OCR fallback", ErrInvalidInput)
	}
	if c.Submit.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "SUBMIT_WORKERS must be at least 1", ErrInvalidInput)
	}
	return nil
}
