package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfg := &Config{
		Protocol:         ProtocolHTTP,
		Timeout:          30 * time.Second,
		SnapshotInterval: time.Second,
		Pattern:          PatternConfig{Type: "constant", Start: 1},
		ConfigFile:       configPath,
	}

	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := cfgViper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Protocol == "" {
		cfg.Protocol = ProtocolHTTP
	}

	if err := loadScenarioFile(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadScenarioFile decodes a standalone YAML scenario file and appends its
// scenarios after any inline ones. The file may hold either a bare scenario
// list or a document with a top-level "scenarios" key.
func loadScenarioFile(cfg *Config) error {
	if cfg.ScenarioFile == "" {
		return nil
	}
	data, err := os.ReadFile(cfg.ScenarioFile)
	if err != nil {
		return fmt.Errorf("read scenario file: %w", err)
	}

	var doc struct {
		Scenarios []ScenarioConfig `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		var bare []ScenarioConfig
		if listErr := yaml.Unmarshal(data, &bare); listErr != nil {
			return fmt.Errorf("decode scenario file %s: %w", cfg.ScenarioFile, err)
		}
		doc.Scenarios = bare
	}
	if len(doc.Scenarios) == 0 {
		var bare []ScenarioConfig
		if err := yaml.Unmarshal(data, &bare); err == nil {
			doc.Scenarios = bare
		}
	}
	if len(doc.Scenarios) == 0 {
		return fmt.Errorf("scenario file %s contains no scenarios", cfg.ScenarioFile)
	}

	cfg.Scenarios = append(cfg.Scenarios, doc.Scenarios...)
	return nil
}
