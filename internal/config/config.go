// Package config loads and validates frameseek configuration.
//
// Resolution order, lowest to highest priority:
//  1. Built-in defaults (DefaultConfig)
//  2. YAML config file
//  3. FRAMESEEK_* environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete frameseek configuration.
type Config struct {
	DataRoot   string           `yaml:"data_root"`
	Stores     StoresConfig     `yaml:"stores"`
	Search     SearchConfig     `yaml:"search"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Translator TranslatorConfig `yaml:"translator"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StoresConfig locates the on-disk stores produced by `frameseek ingest`.
type StoresConfig struct {
	// MetadataPath is the SQLite database holding keyframes, objects,
	// speech captions, OCR text, and the FTS5 secondary indexes.
	MetadataPath string `yaml:"metadata_path"`
	// VectorPath is the HNSW index file (plus its .meta sidecar).
	VectorPath string `yaml:"vector_path"`
	// ASRIndexPath and OCRIndexPath are the bleve full-text indexes.
	ASRIndexPath string `yaml:"asr_index_path"`
	OCRIndexPath string `yaml:"ocr_index_path"`

	// Timeout bounds every metadata store call (default: 5s).
	Timeout time.Duration `yaml:"timeout"`
	// VectorTimeout bounds every vector index call (default: 5s).
	VectorTimeout time.Duration `yaml:"vector_timeout"`
}

// SearchConfig configures fusion and candidate generation.
// Weights and the RRF constant carry documented defaults and are not
// empirically tuned; treat them as deployment knobs.
type SearchConfig struct {
	// WVec, WASR, WOCR are the fusion weights per channel.
	WVec float64 `yaml:"w_vec"`
	WASR float64 `yaml:"w_asr"`
	WOCR float64 `yaml:"w_ocr"`

	// RRFConstant is the RRF smoothing parameter k (default: 60).
	RRFConstant int `yaml:"rrf_constant"`

	// Oversample multiplies the requested page window for the vector
	// channel so post-filters have candidates to drop (default: 10).
	Oversample int `yaml:"oversample"`

	// FPS projects ASR time ranges onto keyframe numbers (default: 30).
	// Global for now; variable-fps archives need per-video metadata.
	FPS int `yaml:"fps"`

	// Dimensions is the keyframe embedding dimension (default: 1024).
	Dimensions int `yaml:"dimensions"`

	// HNSW parameters.
	HNSWM        int `yaml:"hnsw_m"`
	HNSWEfSearch int `yaml:"hnsw_ef_search"`
}

// EmbedderConfig configures the text embedding adapter.
type EmbedderConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
	// CacheSize is the LRU query-embedding cache size (default: 1000).
	CacheSize int `yaml:"cache_size"`
}

// TranslatorConfig configures the query translation adapter.
// When Endpoint is empty, queries pass through untranslated.
type TranslatorConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Source   string        `yaml:"source"`
	Target   string        `yaml:"target"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RequestTimeout is the per-request deadline (default: 30s).
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// PlaceholderImage is served when a keyframe file is missing.
	PlaceholderImage string `yaml:"placeholder_image"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DataRoot: "./data",
		Stores: StoresConfig{
			MetadataPath:  "./index/metadata.db",
			VectorPath:    "./index/vectors.hnsw",
			ASRIndexPath:  "./index/asr.bleve",
			OCRIndexPath:  "./index/ocr.bleve",
			Timeout:       5 * time.Second,
			VectorTimeout: 5 * time.Second,
		},
		Search: SearchConfig{
			WVec:         1.0,
			WASR:         1.0,
			WOCR:         0.5,
			RRFConstant:  60,
			Oversample:   10,
			FPS:          30,
			Dimensions:   1024,
			HNSWM:        16,
			HNSWEfSearch: 64,
		},
		Embedder: EmbedderConfig{
			Endpoint:  "http://localhost:9659",
			Model:     "clip-vit-h14",
			Timeout:   3 * time.Second,
			CacheSize: 1000,
		},
		Translator: TranslatorConfig{
			Source:  "auto",
			Target:  "en",
			Timeout: 3 * time.Second,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			RequestTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, layered over defaults, then applies
// environment overrides. A missing file is not an error; env overrides
// still apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies FRAMESEEK_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("FRAMESEEK_DATA_ROOT"); v != "" {
		c.DataRoot = v
	}
	if v := os.Getenv("FRAMESEEK_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FRAMESEEK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FRAMESEEK_EMBED_ENDPOINT"); v != "" {
		c.Embedder.Endpoint = v
	}
	if v := os.Getenv("FRAMESEEK_TRANSLATE_ENDPOINT"); v != "" {
		c.Translator.Endpoint = v
	}
	if f, ok := envFloat("FRAMESEEK_W_VEC"); ok {
		c.Search.WVec = f
	}
	if f, ok := envFloat("FRAMESEEK_W_ASR"); ok {
		c.Search.WASR = f
	}
	if f, ok := envFloat("FRAMESEEK_W_OCR"); ok {
		c.Search.WOCR = f
	}
	if n, ok := envInt("FRAMESEEK_RRF_CONSTANT"); ok {
		c.Search.RRFConstant = n
	}
	if n, ok := envInt("FRAMESEEK_FPS"); ok {
		c.Search.FPS = n
	}
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.Search.WVec < 0 || c.Search.WASR < 0 || c.Search.WOCR < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.Oversample <= 0 {
		return fmt.Errorf("oversample must be positive, got %d", c.Search.Oversample)
	}
	if c.Search.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.Search.FPS)
	}
	if c.Search.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", c.Search.Dimensions)
	}
	if c.Stores.Timeout <= 0 || c.Stores.VectorTimeout <= 0 {
		return fmt.Errorf("store timeouts must be positive")
	}
	return nil
}
