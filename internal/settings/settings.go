// Package settings holds the runtime options of the tool itself, as
// opposed to the Delphi installation knowledge kept in the TOML
// configuration files.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dcb/internal/dcberr"
)

// Settings is the .dcb/settings.json schema.
type Settings struct {
	Logging LoggingSettings `json:"logging" mapstructure:"logging"`
	Compile CompileSettings `json:"compile" mapstructure:"compile"`
	Config  ConfigSettings  `json:"config" mapstructure:"config"`
}

// LoggingSettings controls the slog output.
type LoggingSettings struct {
	Level string `json:"level" mapstructure:"level"`
}

// CompileSettings bounds compiler invocations.
type CompileSettings struct {
	TimeoutSeconds int `json:"timeoutSeconds" mapstructure:"timeoutSeconds"`
}

// ConfigSettings locates the Delphi configuration files.
type ConfigSettings struct {
	// Dir is searched for delphi_config*.toml; empty means the working
	// directory.
	Dir string `json:"dir" mapstructure:"dir"`
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{
		Logging: LoggingSettings{Level: "info"},
		Compile: CompileSettings{TimeoutSeconds: 300},
		Config:  ConfigSettings{Dir: ""},
	}
}

// Load reads .dcb/settings.json under baseDir, layered with DCB_*
// environment variables. A missing file yields the defaults.
func Load(baseDir string) (*Settings, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("compile.timeoutSeconds", defaults.Compile.TimeoutSeconds)
	v.SetDefault("config.dir", defaults.Config.Dir)

	v.SetEnvPrefix("DCB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("settings")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(baseDir, ".dcb"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, dcberr.Wrap(dcberr.ParseError, err, "reading settings")
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, dcberr.Wrap(dcberr.ParseError, err, "decoding settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes the settings to .dcb/settings.json under baseDir.
func (s *Settings) Save(baseDir string) error {
	dir := filepath.Join(baseDir, ".dcb")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dcberr.Wrap(dcberr.InternalError, err, "creating settings directory")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return dcberr.Wrap(dcberr.InternalError, err, "encoding settings")
	}
	return os.WriteFile(filepath.Join(dir, "settings.json"), data, 0o644)
}

// Validate checks field values.
func (s *Settings) Validate() error {
	switch s.Logging.Level {
	case "debug", "info", "warning", "error":
	default:
		return dcberr.New(dcberr.ValueError, "invalid logging.level %q", s.Logging.Level)
	}
	if s.Compile.TimeoutSeconds <= 0 {
		return dcberr.New(dcberr.ValueError, "compile.timeoutSeconds must be positive")
	}
	return nil
}

// CompileTimeout returns the compile bound as a duration.
func (s *Settings) CompileTimeout() time.Duration {
	return time.Duration(s.Compile.TimeoutSeconds) * time.Second
}
