// Package config loads station settings from defaults, a config file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	serial "github.com/allbin/serial-station"
)

const (
	EnvPrefix = "SERIAL_STATION"
	FileName  = "serial-station"

	DefaultListen = "127.0.0.1:17865"
)

// Config represents the application configuration.
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	Framer    FramerConfig    `mapstructure:"framer"`
	Recording RecordingConfig `mapstructure:"recording"`
	Control   ControlConfig   `mapstructure:"control"`
	Log       LogConfig       `mapstructure:"log"`
}

type SerialConfig struct {
	// Port is connected at startup when set.
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

func (c *SerialConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Baud, validation.Required, validation.By(baudRule)),
	)
}

func baudRule(value any) error {
	baud, _ := value.(int)
	if !serial.IsValidBaudRate(baud) {
		return fmt.Errorf("unsupported baud rate %d", baud)
	}
	return nil
}

type FramerConfig struct {
	Idle      time.Duration `mapstructure:"idle"`
	KeepEmpty bool          `mapstructure:"keep_empty"`
}

func (c *FramerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Idle, validation.Required, validation.Min(time.Millisecond)),
	)
}

type RecordingConfig struct {
	// Dir is where timestamped recordings are suggested.
	Dir       string `mapstructure:"dir"`
	HighWater int    `mapstructure:"high_water"`
}

func (c *RecordingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.HighWater, validation.Required, validation.Min(512)),
	)
}

type ControlConfig struct {
	Listen       string `mapstructure:"listen"`
	ClientBuffer int    `mapstructure:"client_buffer"`
}

func (c *ControlConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Listen, validation.Required, validation.By(hostPortRule)),
		validation.Field(&c.ClientBuffer, validation.Required, validation.Min(1)),
	)
}

func hostPortRule(value any) error {
	s, _ := value.(string)
	if !strings.Contains(s, ":") {
		return errors.New("must be host:port")
	}
	return nil
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File receives logs instead of stderr when set.
	File string `mapstructure:"file"`
}

func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required,
			validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.Required, validation.In("console", "json")),
	)
}

// Validate validates every section.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"serial", &c.Serial},
		{"framer", &c.Framer},
		{"recording", &c.Recording},
		{"control", &c.Control},
		{"log", &c.Log},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// SetDefaults registers default values for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("framer.idle", 150*time.Millisecond)
	v.SetDefault("framer.keep_empty", false)
	v.SetDefault("recording.dir", ".")
	v.SetDefault("recording.high_water", 16*1024)
	v.SetDefault("control.listen", DefaultListen)
	v.SetDefault("control.client_buffer", 256)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

// Setup prepares v to read the named file, or serial-station.yaml from the
// working directory or the user config directory, and SERIAL_STATION_*
// environment variables.
func Setup(v *viper.Viper, file string) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the config file, if any, and returns the validated settings. A
// missing file is not an error unless it was named explicitly.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Used reports the config file that was read, if any.
func Used(v *viper.Viper) string {
	return v.ConfigFileUsed()
}
