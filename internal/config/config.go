package config

import (
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
	Model    ModelConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	// Enabled connects the sales and training_runs repositories.
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// SalesTable is queried for postgres training sources.
	SalesTable string
	// TrackRuns enables the training_runs audit table.
	TrackRuns bool
}

type CacheConfig struct {
	// Backend is "memory", "redis" or "none".
	Backend        string
	MaxSize        int
	RedisURL       string
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	TTLSeconds     int
}

// StorageConfig is an S3-compatible object store for datasets and artifact
// mirroring. An empty endpoint disables it.
type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	UseSSL         bool
	ArtifactPrefix string
}

type DriveConfig struct {
	CredentialsJSON string
	CredentialsFile string
}

// BoosterConfig overrides a stage's tree-ensemble hyper-parameters. Zero
// values keep the stage defaults.
type BoosterConfig struct {
	NEstimators  int
	MaxDepth     int
	LearningRate float64
}

type ModelConfig struct {
	Dir         string
	DataPath    string
	HoldoutDays int
	Workers     int
	Imputer     BoosterConfig
	Forecaster  BoosterConfig
	LeadTime    BoosterConfig
}

type LogConfig struct {
	Level  string
	Format string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8001")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 30)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 600)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DB_ENABLED", false)
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "forecast")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("DB_SALES_TABLE", "sales_fact")
		viper.SetDefault("DB_TRACK_RUNS", false)
		viper.SetDefault("CACHE_BACKEND", "memory")
		viper.SetDefault("CACHE_MAX_SIZE", 128)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("REDIS_KEY_PREFIX", "forecast:7day:")
		viper.SetDefault("CACHE_TTL_SECONDS", 0)
		viper.SetDefault("STORAGE_ENDPOINT", "")
		viper.SetDefault("STORAGE_BUCKET", "")
		viper.SetDefault("STORAGE_REGION", "us-east-1")
		viper.SetDefault("STORAGE_USE_SSL", true)
		viper.SetDefault("STORAGE_ARTIFACT_PREFIX", "")
		viper.SetDefault("GOOGLE_CREDENTIALS_JSON", "")
		viper.SetDefault("GOOGLE_CREDENTIALS_FILE", "")
		viper.SetDefault("MODEL_DIR", "./models")
		viper.SetDefault("DATA_PATH", "./data/fmcg_sales_3years_1M_rows.csv")
		viper.SetDefault("MODEL_HOLDOUT_DAYS", 28)
		viper.SetDefault("MODEL_WORKERS", 0)
		viper.SetDefault("LOG_LEVEL", "")
		viper.SetDefault("LOG_FORMAT", "console")

		// Read from environment variables
		viper.AutomaticEnv()

		ensureDir(viper.GetString("MODEL_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Enabled:    viper.GetBool("DB_ENABLED"),
				Host:       viper.GetString("DB_HOST"),
				Port:       viper.GetString("DB_PORT"),
				User:       viper.GetString("DB_USER"),
				Password:   viper.GetString("DB_PASSWORD"),
				DBName:     viper.GetString("DB_NAME"),
				SSLMode:    viper.GetString("DB_SSLMODE"),
				SalesTable: viper.GetString("DB_SALES_TABLE"),
				TrackRuns:  viper.GetBool("DB_TRACK_RUNS"),
			},
			Cache: CacheConfig{
				Backend:        viper.GetString("CACHE_BACKEND"),
				MaxSize:        viper.GetInt("CACHE_MAX_SIZE"),
				RedisURL:       viper.GetString("REDIS_URL"),
				RedisHost:      viper.GetString("REDIS_HOST"),
				RedisPort:      viper.GetString("REDIS_PORT"),
				RedisPassword:  viper.GetString("REDIS_PASSWORD"),
				RedisDB:        viper.GetInt("REDIS_DB"),
				RedisKeyPrefix: viper.GetString("REDIS_KEY_PREFIX"),
				TTLSeconds:     viper.GetInt("CACHE_TTL_SECONDS"),
			},
			Storage: StorageConfig{
				Endpoint:       viper.GetString("STORAGE_ENDPOINT"),
				AccessKey:      viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey:      viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:         viper.GetString("STORAGE_BUCKET"),
				Region:         viper.GetString("STORAGE_REGION"),
				UseSSL:         viper.GetBool("STORAGE_USE_SSL"),
				ArtifactPrefix: viper.GetString("STORAGE_ARTIFACT_PREFIX"),
			},
			Drive: DriveConfig{
				CredentialsJSON: viper.GetString("GOOGLE_CREDENTIALS_JSON"),
				CredentialsFile: viper.GetString("GOOGLE_CREDENTIALS_FILE"),
			},
			Model: ModelConfig{
				Dir:         viper.GetString("MODEL_DIR"),
				DataPath:    viper.GetString("DATA_PATH"),
				HoldoutDays: viper.GetInt("MODEL_HOLDOUT_DAYS"),
				Workers:     viper.GetInt("MODEL_WORKERS"),
				Imputer:     booster("IMPUTER"),
				Forecaster:  booster("FORECASTER"),
				LeadTime:    booster("LEAD_TIME"),
			},
			Log: LogConfig{
				Level:  viper.GetString("LOG_LEVEL"),
				Format: viper.GetString("LOG_FORMAT"),
			},
		}
		if instance.Log.Level == "" {
			instance.Log.Level = instance.Server.Mode
		}
	})

	return instance
}

func booster(stage string) BoosterConfig {
	return BoosterConfig{
		NEstimators:  viper.GetInt(stage + "_N_ESTIMATORS"),
		MaxDepth:     viper.GetInt(stage + "_MAX_DEPTH"),
		LearningRate: viper.GetFloat64(stage + "_LEARNING_RATE"),
	}
}

// DriveCredentials returns the inline credentials, falling back to the file.
func (d DriveConfig) DriveCredentials() (string, error) {
	if d.CredentialsJSON != "" || d.CredentialsFile == "" {
		return d.CredentialsJSON, nil
	}
	b, err := os.ReadFile(d.CredentialsFile)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}
}
