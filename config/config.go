package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	Database   DatabaseConfig
	Upstream   UpstreamConfig
	Storage    StorageConfig
	MQ         MQConfig
	Stats      StatsConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// UpstreamConfig holds the base URLs of the external collections the
// statistics engine aggregates. An empty URL means the corresponding
// collection is read from the local store instead.
type UpstreamConfig struct {
	AdminDirectoryURL     string
	LibrarianDirectoryURL string
	ReaderDirectoryURL    string
	CatalogURL            string
	LoanServiceURL        string
}

// StorageConfig selects and configures the object-storage backend used for
// book cover images. Backend is "minio", "gcs" or empty to disable covers.
type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsFile string
}

// MQConfig selects and configures the message broker carrying loan
// lifecycle events. Backend is "rabbitmq", "pubsub" or empty to disable
// event publication.
type MQConfig struct {
	Backend  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StatsConfig struct {
	// RefreshInterval is how often the dashboard snapshot is recomputed in
	// the background. Zero disables the poll loop.
	RefreshInterval time.Duration
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "bibliohub"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "bibliohub_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	upstream := UpstreamConfig{
		AdminDirectoryURL:     getEnv("UPSTREAM_ADMIN_DIRECTORY_URL", ""),
		LibrarianDirectoryURL: getEnv("UPSTREAM_LIBRARIAN_DIRECTORY_URL", ""),
		ReaderDirectoryURL:    getEnv("UPSTREAM_READER_DIRECTORY_URL", ""),
		CatalogURL:            getEnv("UPSTREAM_CATALOG_URL", ""),
		LoanServiceURL:        getEnv("UPSTREAM_LOAN_SERVICE_URL", ""),
	}

	storage := StorageConfig{
		Backend: getEnv("STORAGE_BACKEND", ""),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "bibliohub-covers"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	mq := MQConfig{
		Backend: getEnv("MQ_BACKEND", ""),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTODELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 1),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	stats := StatsConfig{
		RefreshInterval: time.Duration(getEnvInt("STATS_REFRESH_SECONDS", 30)) * time.Second,
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Upstream:   upstream,
		Storage:    storage,
		MQ:         mq,
		Stats:      stats,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		return valueStr == "1" || valueStr == "true" || valueStr == "yes"
	}
	return defaultValue
}
