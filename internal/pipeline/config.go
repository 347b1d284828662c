package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines the pipeline cadence and telemetry sources.
type Config struct {
	Sources         []string      `yaml:"sources"`
	FetchEvery      time.Duration `yaml:"fetch_every"`
	RollupEvery     time.Duration `yaml:"rollup_every"`
	AlarmSweepEvery time.Duration `yaml:"alarm_sweep_every"`
	AlarmLookback   time.Duration `yaml:"alarm_lookback"`
}

// UnmarshalYAML decodes the config, accepting Go duration strings such as
// "5m" for the cadence fields. Fields absent from the document keep their
// current values.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Sources         []string `yaml:"sources"`
		FetchEvery      string   `yaml:"fetch_every"`
		RollupEvery     string   `yaml:"rollup_every"`
		AlarmSweepEvery string   `yaml:"alarm_sweep_every"`
		AlarmLookback   string   `yaml:"alarm_lookback"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if len(raw.Sources) > 0 {
		c.Sources = raw.Sources
	}
	for _, field := range []struct {
		raw  string
		dest *time.Duration
	}{
		{raw.FetchEvery, &c.FetchEvery},
		{raw.RollupEvery, &c.RollupEvery},
		{raw.AlarmSweepEvery, &c.AlarmSweepEvery},
		{raw.AlarmLookback, &c.AlarmLookback},
	} {
		if field.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.raw)
		if err != nil {
			return fmt.Errorf("pipeline config: %w", err)
		}
		*field.dest = parsed
	}
	return nil
}

// LoadConfig loads pipeline config from yaml or env. A yaml file named by
// PIPELINE_CONFIG overrides the defaults; env vars fill whatever the file
// leaves unset.
func LoadConfig() (Config, error) {
	cfg := Config{
		FetchEvery:      5 * time.Minute,
		RollupEvery:     time.Hour,
		AlarmSweepEvery: 10 * time.Minute,
		AlarmLookback:   15 * time.Minute,
	}

	if path := os.Getenv("PIPELINE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if len(cfg.Sources) == 0 {
		cfg.Sources = splitCSV(os.Getenv("HYDROMET_SOURCES"))
	}
	cfg.FetchEvery = getenvDurationDefault("HYDROMET_FETCH_EVERY", cfg.FetchEvery)
	cfg.RollupEvery = getenvDurationDefault("HYDROMET_ROLLUP_EVERY", cfg.RollupEvery)
	cfg.AlarmSweepEvery = getenvDurationDefault("HYDROMET_ALARM_SWEEP_EVERY", cfg.AlarmSweepEvery)
	cfg.AlarmLookback = getenvDurationDefault("HYDROMET_ALARM_LOOKBACK", cfg.AlarmLookback)

	if len(cfg.Sources) == 0 {
		return cfg, errors.New("pipeline: at least one source required")
	}
	if cfg.FetchEvery <= 0 || cfg.RollupEvery <= 0 || cfg.AlarmSweepEvery <= 0 {
		return cfg, errors.New("pipeline: cadences must be positive")
	}
	return cfg, nil
}

// ExpandSource substitutes time tokens in a source URL. Supported tokens are
// {date} (yyyy-mm-dd) and {hour} (00..23); URLs without tokens pass through
// unchanged and rely on the fetch marker to suppress refetches.
func ExpandSource(source string, now time.Time) string {
	at := now.UTC()
	expanded := strings.ReplaceAll(source, "{date}", at.Format("2006-01-02"))
	return strings.ReplaceAll(expanded, "{hour}", at.Format("15"))
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
