package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	PerfStore PerfStoreConfig `mapstructure:"perfstore"`
	Vector    VectorConfig    `mapstructure:"vector"`
	AI        AIConfig        `mapstructure:"ai"`
	Gate      GateConfig      `mapstructure:"gate"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	Clarify   ClarifyConfig   `mapstructure:"clarify"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig holds application settings
type AppConfig struct {
	Name            string `mapstructure:"name"`
	Version         string `mapstructure:"version"`
	DefaultLanguage string `mapstructure:"default_language"`
}

// PerfStoreConfig holds relational store settings
type PerfStoreConfig struct {
	DSN          string        `mapstructure:"dsn"`
	MaxConns     int           `mapstructure:"max_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// VectorConfig holds vector store settings
type VectorConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	APIKey             string `mapstructure:"api_key"`
	Collection         string `mapstructure:"collection"`
	InternalCollection string `mapstructure:"internal_collection"`
	Dimension          int    `mapstructure:"dimension"`
	TopKDefault        int    `mapstructure:"top_k_default"`
	TopKMax            int    `mapstructure:"top_k_max"`
}

// AIConfig holds completion provider settings
type AIConfig struct {
	Primary   string         `mapstructure:"primary"`
	Fallbacks []string       `mapstructure:"fallbacks"`
	OpenAI    ProviderConfig `mapstructure:"openai"`
}

// ProviderConfig holds provider-specific settings
type ProviderConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
	BaseURL        string        `mapstructure:"base_url"`
}

// GateConfig holds domain gate settings
type GateConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// SourceConfig holds per-adapter settings
type SourceConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	APIKey     string        `mapstructure:"api_key"`
	Weight     float64       `mapstructure:"weight"`
	RateRPS    float64       `mapstructure:"rate_rps"`
	RateBurst  int           `mapstructure:"rate_burst"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// SourcesConfig holds external source fan-out settings
type SourcesConfig struct {
	MaxResultsPerSource int                     `mapstructure:"max_results_per_source"`
	MinYear             int                     `mapstructure:"min_year"`
	Adapters            map[string]SourceConfig `mapstructure:"adapters"`
}

// IngestConfig holds semantic chunking settings
type IngestConfig struct {
	MinWords     int `mapstructure:"min_words"`
	MaxWords     int `mapstructure:"max_words"`
	OverlapWords int `mapstructure:"overlap_words"`
}

// RankingConfig holds composite ranking weights
type RankingConfig struct {
	Relevance float64 `mapstructure:"relevance"`
	Citation  float64 `mapstructure:"citation"`
	Recency   float64 `mapstructure:"recency"`
	Source    float64 `mapstructure:"source"`
}

// ClarifyConfig holds clarification settings
type ClarifyConfig struct {
	MaxQuestions int `mapstructure:"max_questions"`
}

// AuditConfig holds the local audit store settings
type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads configuration from defaults, config file and environment
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults and env carry everything
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "plumeline")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.default_language", "en")

	v.SetDefault("perfstore.dsn", "postgres://localhost:5432/plumeline")
	v.SetDefault("perfstore.max_conns", 8)
	v.SetDefault("perfstore.query_timeout", "10s")

	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "Document")
	v.SetDefault("vector.internal_collection", "InteliaKnowledge")
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.top_k_default", 10)
	v.SetDefault("vector.top_k_max", 50)

	v.SetDefault("ai.primary", "openai")
	v.SetDefault("ai.fallbacks", []string{})
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.openai.max_tokens", 2000)
	v.SetDefault("ai.openai.temperature", 0.1)
	v.SetDefault("ai.openai.timeout", "20s")

	v.SetDefault("gate.threshold", 15.0)

	v.SetDefault("sources.max_results_per_source", 10)
	v.SetDefault("sources.min_year", 2000)
	for name, weight := range map[string]float64{
		"semanticscholar": 0.9,
		"pubmed":          1.0,
		"europepmc":       0.85,
		"agris":           0.7,
	} {
		v.SetDefault(fmt.Sprintf("sources.adapters.%s.enabled", name), true)
		v.SetDefault(fmt.Sprintf("sources.adapters.%s.weight", name), weight)
		v.SetDefault(fmt.Sprintf("sources.adapters.%s.rate_rps", name), 2.0)
		v.SetDefault(fmt.Sprintf("sources.adapters.%s.rate_burst", name), 2)
		v.SetDefault(fmt.Sprintf("sources.adapters.%s.timeout", name), "60s")
		v.SetDefault(fmt.Sprintf("sources.adapters.%s.max_retries", name), 3)
	}

	v.SetDefault("ingest.min_words", 50)
	v.SetDefault("ingest.max_words", 1200)
	v.SetDefault("ingest.overlap_words", 240)

	v.SetDefault("ranking.relevance", 0.40)
	v.SetDefault("ranking.citation", 0.30)
	v.SetDefault("ranking.recency", 0.20)
	v.SetDefault("ranking.source", 0.10)

	v.SetDefault("clarify.max_questions", 3)

	v.SetDefault("audit.path", "storage/plumeline.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// Watcher re-reads mutable knobs when the config file changes on disk.
// Only the gate threshold and source enablement flags are hot-reloadable;
// connection settings stay fixed for the process lifetime.
type Watcher struct {
	mu        sync.RWMutex
	threshold float64
	enabled   map[string]bool
}

// NewWatcher starts watching the viper config file backing cfg
func NewWatcher(cfg *Config, onChange func(*Watcher)) *Watcher {
	w := &Watcher{
		threshold: cfg.Gate.Threshold,
		enabled:   make(map[string]bool, len(cfg.Sources.Adapters)),
	}
	for name, sc := range cfg.Sources.Adapters {
		w.enabled[name] = sc.Enabled
	}

	viper.OnConfigChange(func(fsnotify.Event) {
		w.mu.Lock()
		w.threshold = viper.GetFloat64("gate.threshold")
		for name := range w.enabled {
			w.enabled[name] = viper.GetBool(fmt.Sprintf("sources.adapters.%s.enabled", name))
		}
		w.mu.Unlock()
		if onChange != nil {
			onChange(w)
		}
	})
	viper.WatchConfig()

	return w
}

// GateThreshold returns the current domain-gate threshold
func (w *Watcher) GateThreshold() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.threshold
}

// SourceEnabled reports whether a source adapter is currently enabled
func (w *Watcher) SourceEnabled(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled[name]
}
