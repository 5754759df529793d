// Package config loads dictbuild settings from a TOML file.
package config

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full configuration file.
type Config struct {
	Build   BuildConfig   `toml:"build"`
	Source  SourceConfig  `toml:"source"`
	JMdict  JMdictConfig  `toml:"jmdict"`
	Catalog CatalogConfig `toml:"catalog"`
	Metrics MetricsConfig `toml:"metrics"`
}

// BuildConfig selects the variant and its inputs.
type BuildConfig struct {
	Variant  string `toml:"variant"`
	Input    string `toml:"input"`
	Output   string `toml:"output"`
	Encoding string `toml:"encoding"`
	MaxID    int    `toml:"max_id"`
	Workers  int    `toml:"workers"`
	Compress bool   `toml:"compress"`
}

// SourceConfig describes where to fetch a missing input directory from.
type SourceConfig struct {
	URL     string        `toml:"url"`
	Retries int           `toml:"retries"`
	Timeout time.Duration `toml:"timeout"`
}

// JMdictConfig holds the context IDs and cost given to every JMdict entry.
type JMdictConfig struct {
	LeftID  int `toml:"left_id"`
	RightID int `toml:"right_id"`
	Cost    int `toml:"cost"`
}

// CatalogConfig enables the sqlite build catalog.
type CatalogConfig struct {
	Path          string `toml:"path"`
	ExportEntries bool   `toml:"export_entries"`
	BatchSize     int    `toml:"batch_size"`
}

// MetricsConfig enables writing prometheus metrics to a textfile.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Build: BuildConfig{
			Variant:  "ipadic",
			Output:   "dict.bin",
			MaxID:    8191,
			Workers:  runtime.NumCPU(),
			Compress: true,
		},
		Source: SourceConfig{
			Retries: 3,
			Timeout: 5 * time.Minute,
		},
		JMdict: JMdictConfig{
			LeftID:  1285,
			RightID: 1285,
			Cost:    5000,
		},
		Catalog: CatalogConfig{
			BatchSize: 500,
		},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("source", "url") && !meta.IsDefined("build", "input") {
		return Config{}, fmt.Errorf("%s: [source].url needs [build].input to download into", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Build.Variant) == "" {
		return fmt.Errorf("[build].variant must be set")
	}
	if c.Build.MaxID < 0 || c.Build.MaxID > 32767 {
		return fmt.Errorf("[build].max_id %d out of range [0, 32767]", c.Build.MaxID)
	}
	if c.Build.Workers < 1 {
		return fmt.Errorf("[build].workers must be positive, got %d", c.Build.Workers)
	}
	if c.Source.Retries < 0 {
		return fmt.Errorf("[source].retries must not be negative")
	}
	for name, id := range map[string]int{"left_id": c.JMdict.LeftID, "right_id": c.JMdict.RightID} {
		if id < 0 {
			return fmt.Errorf("[jmdict].%s must not be negative", name)
		}
	}
	if c.JMdict.Cost < -32768 || c.JMdict.Cost > 32767 {
		return fmt.Errorf("[jmdict].cost %d does not fit in 16 bits", c.JMdict.Cost)
	}
	if c.Catalog.BatchSize < 1 {
		return fmt.Errorf("[catalog].batch_size must be positive")
	}
	return nil
}
