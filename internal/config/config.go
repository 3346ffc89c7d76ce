package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the complete server configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Processing ProcessingConfig `toml:"processing"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type StorageConfig struct {
	// Root is the directory finished documents are written under.
	Root string `toml:"root"`
	// TempDirectory holds per-scan working files; wiped after every scan.
	TempDirectory string `toml:"temp_directory"`
}

type ProcessingConfig struct {
	// MaxImages caps the number of photographs accepted per scan request.
	MaxImages int `toml:"max_images"`
	// Concurrency bounds how many per-image pipelines run at once.
	Concurrency int `toml:"concurrency"`
	// ImageQuality is the JPEG quality used for processed pages.
	ImageQuality int `toml:"image_quality"`
	// AllowedTypes lists accepted upload mime types.
	AllowedTypes []string       `toml:"allowed_types"`
	Compress     CompressConfig `toml:"compress"`
}

type CompressConfig struct {
	Enabled bool `toml:"enabled"`
	// Tool is the Ghostscript binary invoked for size reduction.
	Tool    string   `toml:"tool"`
	Timeout duration `toml:"timeout"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// duration wraps time.Duration for TOML unmarshaling.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(dur)
	return nil
}

func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads the server configuration from a TOML file and applies
// environment overrides. A missing file is not an error; defaults plus
// environment alone are enough to run the server.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Root:          "/var/lib/examscan/documents",
			TempDirectory: "/tmp/examscan",
		},
		Processing: ProcessingConfig{
			MaxImages:    40,
			Concurrency:  3,
			ImageQuality: 85,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
			Compress: CompressConfig{
				Enabled: true,
				Tool:    "gs",
				Timeout: duration(15 * time.Second),
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnv overlays EXAMSCAN_* environment variables onto the config.
// The deployment environment owns these values, so they win over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("EXAMSCAN_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("EXAMSCAN_TEMP_DIR"); v != "" {
		c.Storage.TempDirectory = v
	}
	if v := os.Getenv("EXAMSCAN_MAX_IMAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Processing.MaxImages = n
		}
	}
	if v := os.Getenv("EXAMSCAN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Processing.Concurrency = n
		}
	}
	if v := os.Getenv("EXAMSCAN_IMAGE_QUALITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			c.Processing.ImageQuality = n
		}
	}
	if v := os.Getenv("EXAMSCAN_ALLOWED_TYPES"); v != "" {
		parts := strings.Split(v, ",")
		types := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				types = append(types, p)
			}
		}
		if len(types) > 0 {
			c.Processing.AllowedTypes = types
		}
	}
	if v := os.Getenv("EXAMSCAN_COMPRESS_TOOL"); v != "" {
		c.Processing.Compress.Tool = v
	}
}

func (c *Config) validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage root must not be empty")
	}
	if c.Processing.MaxImages <= 0 {
		return fmt.Errorf("max_images must be positive, got %d", c.Processing.MaxImages)
	}
	if c.Processing.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Processing.Concurrency)
	}
	if c.Processing.ImageQuality <= 0 || c.Processing.ImageQuality > 100 {
		return fmt.Errorf("image_quality must be in 1..100, got %d", c.Processing.ImageQuality)
	}
	return nil
}

// AllowsType reports whether the given mime type is accepted for upload.
func (p ProcessingConfig) AllowsType(mime string) bool {
	for _, t := range p.AllowedTypes {
		if strings.EqualFold(t, mime) {
			return true
		}
	}
	return false
}
