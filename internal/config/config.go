// Package config loads the brepq command-line configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/hupe1980/brepq"
	"github.com/hupe1980/brepq/codec"
	"github.com/hupe1980/brepq/internal/resource"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/props"
	"github.com/hupe1980/brepq/query"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "brepq.toml"

// Config is the on-disk configuration.
type Config struct {
	OverlapThickness   float64 `toml:"overlap_thickness"`
	NumericalPrecision float64 `toml:"numerical_precision"`
	FacetingTolerance  float64 `toml:"faceting_tolerance"`
	Contexts           int     `toml:"contexts"`

	Graveyard  Graveyard  `toml:"graveyard"`
	Properties Properties `toml:"properties"`
	Output     Output     `toml:"output"`
	Resources  Resources  `toml:"resources"`
	Log        Log        `toml:"log"`
	MinIO      MinIO      `toml:"minio"`
}

// Graveyard controls graveyard synthesis.
type Graveyard struct {
	Enabled bool    `toml:"enabled"`
	Margin  float64 `toml:"margin"`
}

// Properties lists the group-name keywords to parse.
type Properties struct {
	Keywords   []string          `toml:"keywords"`
	Synonyms   map[string]string `toml:"synonyms"`
	Delimiters string            `toml:"delimiters"`
}

// Output configures written geometry files.
type Output struct {
	Compression string `toml:"compression"`
	Codec       string `toml:"codec"`
}

// Resources bounds memory, context builds and file throughput.
type Resources struct {
	MemoryLimitBytes    int64 `toml:"memory_limit_bytes"`
	MaxConcurrentBuilds int64 `toml:"max_concurrent_builds"`
	IOLimitBytesPerSec  int64 `toml:"io_limit_bytes_per_sec"`
}

// Log selects the log level ("debug", "info", "warn", "error") and format
// ("text" or "json").
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MinIO holds credentials for minio:// sources. Empty keys fall back to
// MINIO_ACCESS_KEY and MINIO_SECRET_KEY.
type MinIO struct {
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Secure    bool   `toml:"secure"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OverlapThickness:   query.DefaultOverlapThickness,
		NumericalPrecision: query.DefaultNumericalPrecision,
		FacetingTolerance:  brepq.DefaultFacetingTolerance,
		Contexts:           1,
		Graveyard:          Graveyard{Enabled: true, Margin: 10},
		Properties: Properties{
			Keywords:   []string{"mat", "rho", "boundary", "tally", "importance"},
			Delimiters: props.DefaultDelimiters,
		},
		Output: Output{Compression: mesh.CompressionZSTD.String(), Codec: codec.Default.Name()},
		Log:    Log{Level: "warn", Format: "text"},
		MinIO:  MinIO{Secure: true},
	}
}

// Load reads path over the defaults. An empty path tries DefaultFile and
// returns the defaults when it does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes c to path.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.OverlapThickness < 0 {
		errs = append(errs, fmt.Errorf("overlap_thickness must not be negative"))
	}
	if c.NumericalPrecision <= 0 {
		errs = append(errs, fmt.Errorf("numerical_precision must be positive"))
	}
	if c.Contexts < 1 {
		errs = append(errs, fmt.Errorf("contexts must be at least 1"))
	}
	if c.Graveyard.Enabled && c.Graveyard.Margin <= 0 {
		errs = append(errs, fmt.Errorf("graveyard.margin must be positive"))
	}
	if _, err := mesh.ParseCompression(c.Output.Compression); err != nil {
		errs = append(errs, fmt.Errorf("output.compression: %w", err))
	}
	if _, ok := codec.ByName(c.Output.Codec); !ok {
		errs = append(errs, fmt.Errorf("output.codec: unknown codec %q", c.Output.Codec))
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() *brepq.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelWarn
	}
	if strings.EqualFold(c.Log.Format, "json") {
		return brepq.NewJSONLogger(level)
	}
	return brepq.NewTextLogger(level)
}

// ResourceController builds a controller from the resources section, or
// nil when no limit is set.
func (c *Config) ResourceController() *resource.Controller {
	r := c.Resources
	if r.MemoryLimitBytes == 0 && r.MaxConcurrentBuilds == 0 && r.IOLimitBytesPerSec == 0 {
		return nil
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes:    r.MemoryLimitBytes,
		MaxConcurrentBuilds: r.MaxConcurrentBuilds,
		IOLimitBytesPerSec:  r.IOLimitBytesPerSec,
	})
}

// Options converts c into session and manager options. c must be valid.
func (c *Config) Options() []brepq.Option {
	compression, _ := mesh.ParseCompression(c.Output.Compression)
	enc, _ := codec.ByName(c.Output.Codec)
	opts := []brepq.Option{
		brepq.WithOverlapThickness(c.OverlapThickness),
		brepq.WithNumericalPrecision(c.NumericalPrecision),
		brepq.WithDefaultFacetingTolerance(c.FacetingTolerance),
		brepq.WithCompression(compression),
		brepq.WithCodec(enc),
		brepq.WithLogger(c.Logger()),
	}
	if c.Graveyard.Enabled {
		opts = append(opts, brepq.WithGraveyardMargin(c.Graveyard.Margin))
	} else {
		opts = append(opts, brepq.WithoutGraveyard())
	}
	if rc := c.ResourceController(); rc != nil {
		opts = append(opts, brepq.WithResourceController(rc))
	}
	return opts
}

// MinIOCredentials returns the configured keys, falling back to the
// environment.
func (c *Config) MinIOCredentials() (accessKey, secretKey string) {
	accessKey, secretKey = c.MinIO.AccessKey, c.MinIO.SecretKey
	if accessKey == "" {
		accessKey = os.Getenv("MINIO_ACCESS_KEY")
	}
	if secretKey == "" {
		secretKey = os.Getenv("MINIO_SECRET_KEY")
	}
	return accessKey, secretKey
}
