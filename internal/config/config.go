package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/credexam/certification-api/internal/logger"
	"github.com/credexam/certification-api/internal/validator"
)

type Client struct {
	ID          string `mapstructure:"id"           json:"id"           validate:"required,uuid_rfc4122"`
	CandidateID string `mapstructure:"candidate_id" json:"candidate_id" validate:"required,uuid_rfc4122"`
	Note        string `mapstructure:"note"         json:"note"         validate:"required"`
	Token       string `mapstructure:"token"        json:"token"        validate:"required"`
	Active      *bool  `mapstructure:"active"       json:"active"       validate:"required"`
}

type PostgresConfig struct {
	User               string        `validate:"required"`
	Password           string        `validate:"required"`
	Host               string        `validate:"required"`
	Database           string        `validate:"required"`
	MaxIdleConnections int           `validate:"required" mapstructure:"max_idle_connections"`
	MaxOpenConnections int           `validate:"required" mapstructure:"max_open_connections"`
	ConnectionTTL      time.Duration `validate:"required" mapstructure:"connection_ttl"`
	Port               int16         `validate:"required"`
}

type AzureConfig struct {
	StorageAccount *AzureStorageAccountConfig `mapstructure:"storage_account" validate:"required"`
	Dev            bool                       `mapstructure:"dev"`
}

type AzureStorageAccountConfig struct {
	Containers *AzureStorageAccountContainerConfig `mapstructure:"containers" validate:"required"`
	Queues     *AzureStorageAccountQueueConfig     `mapstructure:"queues"     validate:"required"`
	Name       string                              `mapstructure:"name"       validate:"required"`
	Key        string                              `mapstructure:"key"        validate:"required"`
}

type AzureStorageAccountContainerConfig struct {
	URL       string `mapstructure:"url"       validate:"required"`
	Artifacts string `mapstructure:"artifacts" validate:"required"`
}

type AzureStorageAccountQueueConfig struct {
	URL       string `mapstructure:"url"       validate:"required"`
	Artifacts string `mapstructure:"artifacts" validate:"required"`
}

type S3ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	SSLEnabled      bool   `mapstructure:"ssl_enabled"`
}

type SlogConfig struct {
	Level int `mapstructure:"level"`
}

type GormLogConfig struct {
	Level        int  `mapstructure:"level"`
	TraceQueries bool `mapstructure:"trace_queries"`
}

type LoggingConfig struct {
	Gorm    GormLogConfig `mapstructure:"gorm"`
	App     SlogConfig    `mapstructure:"app"`
	UseOTLP bool          `mapstructure:"use_otlp"`
}

type RateLimitConfig struct {
	RedisHost       string `mapstructure:"redis_host"`
	SubmitPerMinute int64  `mapstructure:"submit_per_minute"`
	FailOpen        bool   `mapstructure:"fail_open"`
}

type GradingConfig struct {
	// Cutoff above which a similarity-scored free text answer counts as correct
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gte=0,lte=1"`
}

type WorkerConfig struct {
	VisibilityTimeoutSecs int64 `mapstructure:"visibility_timeout_secs" validate:"required"`
	MaxDeliveries         int64 `mapstructure:"max_deliveries"          validate:"required"`
}

// See certificationapi.yaml for an example config
type Config struct {
	Postgres             *PostgresConfig  `mapstructure:"postgres"               validate:"required"`
	Azure                *AzureConfig     `mapstructure:"azure"`
	S3Archive            *S3ArchiveConfig `mapstructure:"s3_archive"`
	Logging              *LoggingConfig   `mapstructure:"logging"                validate:"required"`
	Grading              GradingConfig    `mapstructure:"grading"`
	Worker               WorkerConfig     `mapstructure:"worker"`
	RateLimit            *RateLimitConfig `mapstructure:"ratelimit"`
	ListenAddress        string           `mapstructure:"listen_address"         validate:"required"`
	Clients              []Client         `mapstructure:"clients"`
	AbandonSweepSecs     int64            `mapstructure:"abandon_sweep_secs"`
	GracefulShutdownSecs int64            `mapstructure:"graceful_shutdown_secs"`
}

const (
	AbandonSweepSecs           string = "abandon_sweep_secs"
	AppLogLevel                string = "logging.app.level"
	AzureDev                   string = "azure.dev"
	AzureStorageAccountKey     string = "azure.storage_account.key"
	EnvPrefix                  string = "certificationapi"
	GormLogLevel               string = "logging.gorm.level"
	GormTraceQueries           string = "logging.gorm.trace_queries"
	GracefulShutdownSecs       string = "graceful_shutdown_secs"
	GradingSimilarityThreshold string = "grading.similarity_threshold"
	ListenAddress              string = "listen_address"
	PostgresConnectonTTL       string = "postgres.connection_ttl"
	PostgresDatabase           string = "postgres.database"
	PostgresHost               string = "postgres.host"
	PostgresMaxIdleConnections string = "postgres.max_idle_connections"
	PostgresMaxOpenConnections string = "postgres.max_open_connections"
	PostgresPassword           string = "postgres.password"
	PostgresPort               string = "postgres.port"
	PostgresUser               string = "postgres.user"
	RateLimitFailOpen          string = "ratelimit.fail_open"
	RedisHost                  string = "ratelimit.redis_host"
	S3AccessKeyID              string = "s3_archive.access_key_id"
	S3SSLEnabled               string = "s3_archive.ssl_enabled"
	S3SecretAccessKey          string = "s3_archive.secret_access_key" // #nosec
	SubmitPerMinute            string = "ratelimit.submit_per_minute"
	UseOTLP                    string = "logging.use_otlp"
	WorkerMaxDeliveries        string = "worker.max_deliveries"
	WorkerVisibilityTimeout    string = "worker.visibility_timeout_secs"
)

// Load reads certificationapi.yaml plus environment overrides and returns a
// validated config. Callers construct their clients from it at startup;
// nothing here is cached or built lazily.
func Load() (*Config, error) {
	logger.Logger.Info("loading config")

	v := viper.New()

	v.SetConfigName("certificationapi")

	v.AddConfigPath("/etc/certificationapi/")
	v.AddConfigPath(".")

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the nested struct
	for _, key := range []string{
		PostgresPassword,
		AzureStorageAccountKey,
		S3AccessKeyID,
		S3SecretAccessKey,
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	v.SetDefault(ListenAddress, "[::]:1323")
	v.SetDefault(PostgresHost, "localhost")
	v.SetDefault(PostgresPort, 5432)
	v.SetDefault(PostgresMaxIdleConnections, 2)
	v.SetDefault(PostgresMaxOpenConnections, 10)
	v.SetDefault(PostgresConnectonTTL, 10*time.Minute)
	v.SetDefault(AzureDev, false)
	v.SetDefault(GormLogLevel, int(slog.LevelWarn))
	v.SetDefault(GormTraceQueries, false)
	v.SetDefault(AppLogLevel, int(slog.LevelInfo))
	v.SetDefault(S3SSLEnabled, true)
	v.SetDefault(UseOTLP, false)

	v.SetDefault(GradingSimilarityThreshold, 0.8)

	v.SetDefault(WorkerVisibilityTimeout, 300)
	v.SetDefault(WorkerMaxDeliveries, 5)

	v.SetDefault(RedisHost, "localhost")
	v.SetDefault(SubmitPerMinute, 0)
	v.SetDefault(RateLimitFailOpen, true)

	v.SetDefault(AbandonSweepSecs, 60)
	v.SetDefault(GracefulShutdownSecs, 30)

	err := v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		if _, ok := err.(*viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	err = v.Unmarshal(&config)
	if err != nil {
		return nil, err
	}

	valid := validator.Create()
	err = valid.Validate(&config)
	if err != nil {
		return nil, err
	}

	if config.Azure == nil && config.S3Archive == nil {
		return nil, fmt.Errorf("no artifact store configured: need azure or s3_archive")
	}

	return &config, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s",
		url.QueryEscape(c.Postgres.User),
		url.QueryEscape(c.Postgres.Password),
		c.Postgres.Host, c.Postgres.Port,
		url.QueryEscape(c.Postgres.Database),
	)
}
