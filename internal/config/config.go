package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Storage   StorageConfig   `mapstructure:"storage"`
	S3        S3Config        `mapstructure:"s3"`
	Minio     MinioConfig     `mapstructure:"minio"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Watermark WatermarkConfig `mapstructure:"watermark"`
	View      ViewConfig      `mapstructure:"view"`
	Access    AccessConfig    `mapstructure:"access"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug | release | test
}

// DatabaseConfig points at the relational store holding documents, versions and users.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres | sqlite
	DSN    string `mapstructure:"dsn"`
	Debug  bool   `mapstructure:"debug"`
}

// MongoConfig is the document database used for view logs, notifications and dead letters.
type MongoConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type StorageConfig struct {
	Driver  string        `mapstructure:"driver"` // s3 | minio | memory
	Timeout time.Duration `mapstructure:"timeout"`
	// PublicBaseURL is used to build the stable file URL stored next to each handle.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type MinioConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type QueueConfig struct {
	Driver            string        `mapstructure:"driver"` // kafka | memory
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// WorkerConfig controls the watermark consumer pool and its retry policy.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	Attempts       int           `mapstructure:"attempts"`    // in-process attempts per delivery
	MaxRetries     int           `mapstructure:"max_retries"` // requeues before dead-lettering
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	MetricsAddress string        `mapstructure:"metrics_address"`
}

// WatermarkConfig carries the static stamp assets and wording.
type WatermarkConfig struct {
	LogoPath        string `mapstructure:"logo_path"`
	Brand           string `mapstructure:"brand"`
	PublisherLabel  string `mapstructure:"publisher_label"`
	ViewTextPoints  int    `mapstructure:"view_text_points"`
	ProvenancePoint int    `mapstructure:"provenance_points"`
}

type ViewConfig struct {
	MaxConcurrentStamps int64         `mapstructure:"max_concurrent_stamps"`
	StampWait           time.Duration `mapstructure:"stamp_wait"`
}

// AccessConfig gates viewing for users without a subscription.
type AccessConfig struct {
	SubscriptionEnabled bool `mapstructure:"subscription_enabled"`
	FreeViewLimit       int  `mapstructure:"free_view_limit"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from file or environment variables.
// An optional .env file in path is loaded into the process environment first.
func LoadConfig(path string) (config Config, err error) {
	if err = godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS, jwt.expiration -> JWT_EXPIRATION
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// No file: defaults plus environment.
		err = nil
	} else if err != nil {
		return
	}

	// Durations are parsed from strings ("15s") straight into time.Duration fields.
	if err = v.Unmarshal(&config); err != nil {
		return
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=notes password=notes dbname=notes port=5432 sslmode=disable")
	v.SetDefault("database.debug", false)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.name", "notes_app")

	v.SetDefault("storage.driver", "s3")
	v.SetDefault("storage.timeout", "15s")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("s3.bucket_name", "notes")
	v.SetDefault("minio.bucket_name", "notes")

	v.SetDefault("queue.driver", "kafka")
	v.SetDefault("queue.visibility_timeout", "2m")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "pdf-watermarking")
	v.SetDefault("kafka.group_id", "watermark-worker")

	v.SetDefault("jwt.expiration", "1h")

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.attempts", 3)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.initial_backoff", "500ms")
	v.SetDefault("worker.max_backoff", "10s")
	v.SetDefault("worker.metrics_address", ":9102")

	v.SetDefault("watermark.logo_path", "")
	v.SetDefault("watermark.brand", "Learnify")
	v.SetDefault("watermark.publisher_label", "Learnify Admin")
	v.SetDefault("watermark.view_text_points", 42)
	v.SetDefault("watermark.provenance_points", 10)

	v.SetDefault("view.max_concurrent_stamps", 4)
	v.SetDefault("view.stamp_wait", "5s")

	v.SetDefault("access.subscription_enabled", false)
	v.SetDefault("access.free_view_limit", 2)

	v.SetDefault("upload.max_bytes", 20<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
}
