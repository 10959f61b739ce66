// Package config loads booth settings from an optional YAML file and PHOTOBOOTH_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/photobooth/internal/filter"
	"github.com/ivlev/photobooth/internal/layout"
	"github.com/ivlev/photobooth/internal/objectstore"
)

// EnvPrefix prefixes every environment variable the booth reads.
const EnvPrefix = "PHOTOBOOTH_"

type Config struct {
	// Тайминги сессии. Countdown и InterShotDelay считаются в тиках TimeUnit
	TimeUnit       time.Duration `yaml:"time_unit" env:"TIME_UNIT"`
	Countdown      int           `yaml:"countdown" env:"COUNTDOWN"`
	InterShotDelay int           `yaml:"inter_shot_delay" env:"INTER_SHOT_DELAY"`
	FlashDuration  time.Duration `yaml:"flash_duration" env:"FLASH_DURATION"`

	// Съемка
	Quality int    `yaml:"quality" env:"QUALITY"`
	Mirror  bool   `yaml:"mirror" env:"MIRROR"`
	Filter  string `yaml:"filter" env:"FILTER"`

	// Сборка коллажа
	Layout          string              `yaml:"layout" env:"LAYOUT"`
	Shots           int                 `yaml:"shots" env:"SHOTS"` // 0 takes the layout's slot count
	Template        string              `yaml:"template" env:"TEMPLATE"`
	TemplateDir     string              `yaml:"template_dir" env:"TEMPLATE_DIR"`
	PDFDPI          int                 `yaml:"pdf_dpi" env:"PDF_DPI"`
	StrictTemplates bool                `yaml:"strict_templates" env:"STRICT_TEMPLATES"`
	AlignTolerance  int                 `yaml:"align_tolerance" env:"ALIGN_TOLERANCE"`
	Layouts         []layout.Definition `yaml:"layouts"`

	InputDir  string `yaml:"input_dir" env:"INPUT_DIR"`
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
	ShowStats bool   `yaml:"show_stats" env:"SHOW_STATS"`

	ObjectStore objectstore.Config `yaml:"object_store" envPrefix:"S3_"`

	BuildVersion string `yaml:"-"`
}

// Default returns the settings the booth ships with.
func Default() Config {
	return Config{
		TimeUnit:       time.Second,
		Countdown:      5,
		InterShotDelay: 1,
		FlashDuration:  150 * time.Millisecond,
		Quality:        95,
		Mirror:         true,
		Filter:         "none",
		Layout:         layout.Horizontal,
		TemplateDir:    "assets/templates",
		PDFDPI:         72,
		AlignTolerance: 2,
		InputDir:       "input/frames",
		OutputDir:      "output",
		ObjectStore:    objectstore.DefaultConfig(),
	}
}

// Load applies the YAML file at path (if any) and then the environment on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.ReadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadFile накладывает YAML-файл поверх c
func (c *Config) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// WriteFile сохраняет c в YAML
func (c Config) WriteFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c Config) Validate() error {
	var errs []error
	if c.TimeUnit <= 0 {
		errs = append(errs, fmt.Errorf("time unit must be positive, got %s", c.TimeUnit))
	}
	if c.Countdown < 1 {
		errs = append(errs, fmt.Errorf("countdown must be at least 1, got %d", c.Countdown))
	}
	if c.InterShotDelay < 0 {
		errs = append(errs, fmt.Errorf("inter-shot delay must not be negative, got %d", c.InterShotDelay))
	}
	if c.FlashDuration < 0 {
		errs = append(errs, fmt.Errorf("flash duration must not be negative, got %s", c.FlashDuration))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be in 1..100, got %d", c.Quality))
	}
	if _, err := filter.Resolve(c.Filter); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Layout) == "" {
		errs = append(errs, errors.New("layout is required"))
	}
	if c.Shots < 0 {
		errs = append(errs, fmt.Errorf("shots must not be negative, got %d", c.Shots))
	}
	if strings.TrimSpace(c.TemplateDir) == "" {
		errs = append(errs, errors.New("template dir is required"))
	}
	if c.PDFDPI <= 0 {
		errs = append(errs, fmt.Errorf("pdf dpi must be positive, got %d", c.PDFDPI))
	}
	if c.AlignTolerance < 0 {
		errs = append(errs, fmt.Errorf("align tolerance must not be negative, got %d", c.AlignTolerance))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	if c.ObjectStore.Enabled() {
		if err := c.ObjectStore.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("object store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Registry собирает реестр из встроенных раскладок и дополнительных из конфига
func (c Config) Registry() (*layout.Registry, error) {
	return layout.NewRegistry(c.Layouts...)
}
