package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/pngopt"
)

// EnvPrefix prefixes environment overrides, e.g. IMAGE_COMPRESSOR_SERVER_PORT.
const EnvPrefix = "IMAGE_COMPRESSOR"

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Decode      DecodeConfig      `mapstructure:"decode" yaml:"decode"`
	Tools       ToolsConfig       `mapstructure:"tools" yaml:"tools"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Watch       WatchConfig       `mapstructure:"watch" yaml:"watch"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// CompressionConfig holds the option defaults used when a command or tool
// call does not set them. Zero numeric values select the format default.
type CompressionConfig struct {
	Format        string `mapstructure:"format" yaml:"format"`
	Quality       int    `mapstructure:"quality" yaml:"quality"`
	Lossless      bool   `mapstructure:"lossless" yaml:"lossless"`
	Progressive   bool   `mapstructure:"progressive" yaml:"progressive"`
	StripMetadata bool   `mapstructure:"strip_metadata" yaml:"strip_metadata"`
	PNGLevel      int    `mapstructure:"png_level" yaml:"png_level"`
	AVIFSpeed     int    `mapstructure:"avif_speed" yaml:"avif_speed"`
	Overwrite     bool   `mapstructure:"overwrite" yaml:"overwrite"`
}

// DecodeConfig contains decoding settings
type DecodeConfig struct {
	AutoOrient bool `mapstructure:"auto_orient" yaml:"auto_orient"`
}

// ToolsConfig locates the optional helper binaries.
type ToolsConfig struct {
	PNGOptimizer string `mapstructure:"png_optimizer" yaml:"png_optimizer"` // auto, builtin, oxipng
	OxipngPath   string `mapstructure:"oxipng_path" yaml:"oxipng_path"`
	JpegtranPath string `mapstructure:"jpegtran_path" yaml:"jpegtran_path"`
	ExiftoolPath string `mapstructure:"exiftool_path" yaml:"exiftool_path"`
}

// ServerConfig contains HTTP transport settings
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// WatchConfig contains watch mode settings
type WatchConfig struct {
	DebounceMS int  `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	Recursive  bool `mapstructure:"recursive" yaml:"recursive"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			Format:        "webp",
			StripMetadata: true,
			PNGLevel:      pngopt.DefaultLevel,
			AVIFSpeed:     compressor.DefaultAVIFSpeed,
		},
		Decode: DecodeConfig{
			AutoOrient: true,
		},
		Tools: ToolsConfig{
			PNGOptimizer: pngopt.ModeAuto,
		},
		Server: ServerConfig{
			Host: "",
			Port: 8080,
		},
		Watch: WatchConfig{
			DebounceMS: 500,
			Recursive:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// setDefaults registers every key so that environment overrides apply even
// when no config file mentions the key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("compression.format", d.Compression.Format)
	v.SetDefault("compression.quality", d.Compression.Quality)
	v.SetDefault("compression.lossless", d.Compression.Lossless)
	v.SetDefault("compression.progressive", d.Compression.Progressive)
	v.SetDefault("compression.strip_metadata", d.Compression.StripMetadata)
	v.SetDefault("compression.png_level", d.Compression.PNGLevel)
	v.SetDefault("compression.avif_speed", d.Compression.AVIFSpeed)
	v.SetDefault("compression.overwrite", d.Compression.Overwrite)
	v.SetDefault("decode.auto_orient", d.Decode.AutoOrient)
	v.SetDefault("tools.png_optimizer", d.Tools.PNGOptimizer)
	v.SetDefault("tools.oxipng_path", d.Tools.OxipngPath)
	v.SetDefault("tools.jpegtran_path", d.Tools.JpegtranPath)
	v.SetDefault("tools.exiftool_path", d.Tools.ExiftoolPath)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("watch.debounce_ms", d.Watch.DebounceMS)
	v.SetDefault("watch.recursive", d.Watch.Recursive)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

// LoadConfig loads configuration from file and environment variables. An
// empty configPath searches the default locations; a missing file there is
// not an error.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-compressor")
		v.AddConfigPath("/etc/image-compressor")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate normalizes the configuration and rejects invalid values
func (c *Config) Validate() error {
	if c.Compression.Format != "" {
		ext, err := compressor.NormalizeExtension(c.Compression.Format)
		if err != nil {
			return fmt.Errorf("compression.format: %w", err)
		}
		if _, err := compressor.ParseFormat(ext); err != nil {
			return fmt.Errorf("compression.format: %w", err)
		}
		c.Compression.Format = ext
	}

	if err := c.CompressOptions().Validate(); err != nil {
		return fmt.Errorf("compression: %w", err)
	}

	c.Tools.PNGOptimizer = strings.ToLower(strings.TrimSpace(c.Tools.PNGOptimizer))
	switch c.Tools.PNGOptimizer {
	case "":
		c.Tools.PNGOptimizer = pngopt.ModeAuto
	case pngopt.ModeAuto, pngopt.ModeBuiltin, pngopt.ModeOxipng:
	default:
		return fmt.Errorf("invalid tools.png_optimizer: %s (valid: auto, builtin, oxipng)", c.Tools.PNGOptimizer)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = 500
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// CompressOptions returns the pipeline options described by the compression
// section.
func (c *Config) CompressOptions() compressor.CompressOptions {
	return compressor.CompressOptions{
		Overwrite:     c.Compression.Overwrite,
		Quality:       c.Compression.Quality,
		Lossless:      c.Compression.Lossless,
		Progressive:   c.Compression.Progressive,
		StripMetadata: c.Compression.StripMetadata,
		PNGLevel:      c.Compression.PNGLevel,
		AVIFSpeed:     c.Compression.AVIFSpeed,
	}
}

// CodecConfig returns the encoder selection described by the tools section.
func (c *Config) CodecConfig() compressor.CodecConfig {
	return compressor.CodecConfig{
		PNGOptimizer: c.Tools.PNGOptimizer,
		OxipngPath:   c.Tools.OxipngPath,
		JpegtranPath: c.Tools.JpegtranPath,
	}
}

// YAML renders the configuration as a config.yaml document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
