// backend-go/internal/config/config.go
package config

import (
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Forecast  ForecastConfig
	Recommend RecommendConfig
	Storage   StorageConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	LogLevel       string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// MaxConcurrent bounds in-flight queries through the pool semaphore.
	MaxConcurrent int64
}

type CacheConfig struct {
	Enabled                  bool
	RedisURL                 string
	RedisHost                string
	RedisPort                string
	RedisPassword            string
	RedisDB                  int
	RecommendationTTLSeconds int
}

// ForecastConfig drives the training pipeline and the safety margin.
type ForecastConfig struct {
	ContentCode          int
	MassUnit             string
	MinDailyObservations int
	MinTrainingRows      int
	MaxGapDays           int
	ClipPercentile       float64
	ResidualMinSamples   int
	SafetyK              float64
	Seed                 int64
	SplitProfile         string
	Workers              int
	RetrainCron          string
	RetrainWindowDays    int
}

// RecommendConfig holds the search space and the penalty weights.
type RecommendConfig struct {
	Sizes             []int
	DensityKgPerLiter float64
	MinFrequencyDays  int
	MaxFrequencyDays  int
	TargetFill        float64
	MinFill           float64
	MaxFill           float64
	MaxContainers     int
	OverWeight        float64
	UnderWeight       float64
	TargetWeight      float64
	CountWeight       float64
	SmallManyWeight   float64
	SmallManyFree     int
	PickupWeight      float64
	TieEpsilon        float64
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.GetViper()
		SetDefaults(v)

		// Read from environment variables
		v.AutomaticEnv()

		instance = FromViper(v)
	})

	return instance
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 120)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "wasteflow")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONCURRENT", 10)

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_RECOMMENDATION_TTL_SECONDS", 600)

	v.SetDefault("FORECAST_CONTENT_CODE", 710100)
	v.SetDefault("FORECAST_MASS_UNIT", "KG")
	v.SetDefault("FORECAST_MIN_DAILY_OBSERVATIONS", 50)
	v.SetDefault("FORECAST_MIN_TRAINING_ROWS", 300)
	v.SetDefault("FORECAST_MAX_GAP_DAYS", 180)
	v.SetDefault("FORECAST_CLIP_PERCENTILE", 0.99)
	v.SetDefault("FORECAST_RESIDUAL_MIN_SAMPLES", 25)
	v.SetDefault("FORECAST_SAFETY_K", 0.75)
	v.SetDefault("FORECAST_SEED", 42)
	v.SetDefault("FORECAST_SPLIT_PROFILE", "train_val_test")
	v.SetDefault("FORECAST_WORKERS", 4)
	v.SetDefault("FORECAST_RETRAIN_CRON", "")
	v.SetDefault("FORECAST_RETRAIN_WINDOW_DAYS", 365)

	v.SetDefault("RECOMMEND_SIZES", "120,240,660,1100")
	v.SetDefault("RECOMMEND_DENSITY_KG_PER_LITER", 0.13)
	v.SetDefault("RECOMMEND_MIN_FREQUENCY_DAYS", 1)
	v.SetDefault("RECOMMEND_MAX_FREQUENCY_DAYS", 14)
	v.SetDefault("RECOMMEND_TARGET_FILL", 0.95)
	v.SetDefault("RECOMMEND_MIN_FILL", 0.80)
	v.SetDefault("RECOMMEND_MAX_FILL", 1.05)
	v.SetDefault("RECOMMEND_MAX_CONTAINERS", 30)
	v.SetDefault("RECOMMEND_OVER_WEIGHT", 200.0)
	v.SetDefault("RECOMMEND_UNDER_WEIGHT", 25.0)
	v.SetDefault("RECOMMEND_TARGET_WEIGHT", 8.0)
	v.SetDefault("RECOMMEND_COUNT_WEIGHT", 0.45)
	v.SetDefault("RECOMMEND_SMALL_MANY_WEIGHT", 1.2)
	v.SetDefault("RECOMMEND_SMALL_MANY_FREE", 6)
	v.SetDefault("RECOMMEND_PICKUP_WEIGHT", 0.03)
	v.SetDefault("RECOMMEND_TIE_EPSILON", 0.05)

	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "wasteflow-reports")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_PREFIX", "recommendations")
}

// FromViper materializes a Config from an already-populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			LogLevel:       v.GetString("LOG_LEVEL"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:          v.GetString("DB_HOST"),
			Port:          v.GetString("DB_PORT"),
			User:          v.GetString("DB_USER"),
			Password:      v.GetString("DB_PASSWORD"),
			DBName:        v.GetString("DB_NAME"),
			SSLMode:       v.GetString("DB_SSLMODE"),
			MaxConcurrent: v.GetInt64("DB_MAX_CONCURRENT"),
		},
		Cache: CacheConfig{
			Enabled:                  v.GetBool("CACHE_ENABLED"),
			RedisURL:                 v.GetString("REDIS_URL"),
			RedisHost:                v.GetString("REDIS_HOST"),
			RedisPort:                v.GetString("REDIS_PORT"),
			RedisPassword:            v.GetString("REDIS_PASSWORD"),
			RedisDB:                  v.GetInt("REDIS_DB"),
			RecommendationTTLSeconds: v.GetInt("CACHE_RECOMMENDATION_TTL_SECONDS"),
		},
		Forecast: ForecastConfig{
			ContentCode:          v.GetInt("FORECAST_CONTENT_CODE"),
			MassUnit:             v.GetString("FORECAST_MASS_UNIT"),
			MinDailyObservations: v.GetInt("FORECAST_MIN_DAILY_OBSERVATIONS"),
			MinTrainingRows:      v.GetInt("FORECAST_MIN_TRAINING_ROWS"),
			MaxGapDays:           v.GetInt("FORECAST_MAX_GAP_DAYS"),
			ClipPercentile:       v.GetFloat64("FORECAST_CLIP_PERCENTILE"),
			ResidualMinSamples:   v.GetInt("FORECAST_RESIDUAL_MIN_SAMPLES"),
			SafetyK:              v.GetFloat64("FORECAST_SAFETY_K"),
			Seed:                 v.GetInt64("FORECAST_SEED"),
			SplitProfile:         v.GetString("FORECAST_SPLIT_PROFILE"),
			Workers:              v.GetInt("FORECAST_WORKERS"),
			RetrainCron:          v.GetString("FORECAST_RETRAIN_CRON"),
			RetrainWindowDays:    v.GetInt("FORECAST_RETRAIN_WINDOW_DAYS"),
		},
		Recommend: RecommendConfig{
			Sizes:             parseSizes(v.GetString("RECOMMEND_SIZES")),
			DensityKgPerLiter: v.GetFloat64("RECOMMEND_DENSITY_KG_PER_LITER"),
			MinFrequencyDays:  v.GetInt("RECOMMEND_MIN_FREQUENCY_DAYS"),
			MaxFrequencyDays:  v.GetInt("RECOMMEND_MAX_FREQUENCY_DAYS"),
			TargetFill:        v.GetFloat64("RECOMMEND_TARGET_FILL"),
			MinFill:           v.GetFloat64("RECOMMEND_MIN_FILL"),
			MaxFill:           v.GetFloat64("RECOMMEND_MAX_FILL"),
			MaxContainers:     v.GetInt("RECOMMEND_MAX_CONTAINERS"),
			OverWeight:        v.GetFloat64("RECOMMEND_OVER_WEIGHT"),
			UnderWeight:       v.GetFloat64("RECOMMEND_UNDER_WEIGHT"),
			TargetWeight:      v.GetFloat64("RECOMMEND_TARGET_WEIGHT"),
			CountWeight:       v.GetFloat64("RECOMMEND_COUNT_WEIGHT"),
			SmallManyWeight:   v.GetFloat64("RECOMMEND_SMALL_MANY_WEIGHT"),
			SmallManyFree:     v.GetInt("RECOMMEND_SMALL_MANY_FREE"),
			PickupWeight:      v.GetFloat64("RECOMMEND_PICKUP_WEIGHT"),
			TieEpsilon:        v.GetFloat64("RECOMMEND_TIE_EPSILON"),
		},
		Storage: StorageConfig{
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
			Prefix:    v.GetString("STORAGE_PREFIX"),
		},
	}
}

// parseSizes reads a comma separated liters list, skipping anything that is
// not a positive integer.
func parseSizes(raw string) []int {
	var sizes []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		sizes = append(sizes, n)
	}
	return sizes
}
