package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	Terminology TerminologyConfig
	LLM         LLMConfig
	SpellCheck  SpellCheckConfig
	CacheTTL    CacheTTLConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type TerminologyConfig struct {
	BaseURL            string
	APIKey             string
	TimeoutSec         int
	RetryAttempts      int
	RetryDelaySec      int
	BreakerThreshold   int
	BreakerCooldownSec int
	CacheTTLSec        int
	CacheMaxEntries    int
}

type LLMConfig struct {
	Model           string
	TranscribeModel string
	APIKey          string
	Temperature     float32
	MaxTokens       int
	TimeoutSec      int
}

type SpellCheckConfig struct {
	// SuggestionFloor is the minimum 0-100 similarity a fuzzy suggestion
	// needs to be offered at all.
	SuggestionFloor float64
	// OverrideThreshold is the 0-100 similarity below which suggestions for
	// an LLM-identified term are considered too weak to second-guess it.
	OverrideThreshold float64
	MaxSuggestions    int
	// LLMOnly is the manual degradation switch that skips the terminology
	// service entirely.
	LLMOnly          bool
	VocabularyFile   string
	PurgeIntervalMin int
}

type CacheTTLConfig struct {
	TerminologyHours int
	SuggestionDays   int
	LLMHours         int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/clinscribe")

	viper.SetEnvPrefix("CLINSCRIBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 26214400)

	viper.SetDefault("sqlite.path", "./data/clinscribe.db")

	viper.SetDefault("redis.host", "")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("terminology.baseURL", "https://snowstorm.ihtsdotools.org/snowstorm/snomed-ct")
	viper.SetDefault("terminology.timeoutSec", 3)
	viper.SetDefault("terminology.retryAttempts", 1)
	viper.SetDefault("terminology.retryDelaySec", 1)
	viper.SetDefault("terminology.breakerThreshold", 2)
	viper.SetDefault("terminology.breakerCooldownSec", 60)
	viper.SetDefault("terminology.cacheTTLSec", 300)
	viper.SetDefault("terminology.cacheMaxEntries", 1000)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.transcribeModel", "gpt-4o-transcribe")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 30)

	viper.SetDefault("spellcheck.suggestionFloor", 60.0)
	viper.SetDefault("spellcheck.overrideThreshold", 85.0)
	viper.SetDefault("spellcheck.maxSuggestions", 5)
	viper.SetDefault("spellcheck.llmOnly", false)
	viper.SetDefault("spellcheck.vocabularyFile", "./data/vocabulary.json")
	viper.SetDefault("spellcheck.purgeIntervalMin", 60)

	viper.SetDefault("cachettl.terminologyHours", 24)
	viper.SetDefault("cachettl.suggestionDays", 7)
	viper.SetDefault("cachettl.llmHours", 12)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
