// Package config layers voxkey settings from defaults, config.yml, a
// .env file, the environment and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"voxkey/audio"
	"voxkey/transcriber"
)

const envPrefix = "VOXKEY"

type API struct {
	Provider string        `mapstructure:"provider"`
	Key      string        `mapstructure:"key"`
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Audio struct {
	Backend     string `mapstructure:"backend"`
	FFmpeg      string `mapstructure:"ffmpeg"`
	InputFormat string `mapstructure:"input_format"`
	Device      string `mapstructure:"device"`
	SampleRate  int    `mapstructure:"sample_rate"`
	Channels    int    `mapstructure:"channels"`
	BitrateKbps int    `mapstructure:"bitrate_kbps"`
	ScratchDir  string `mapstructure:"scratch_dir"`
}

type Config struct {
	API     API    `mapstructure:"api"`
	Mode    string `mapstructure:"mode"`
	Audio   Audio  `mapstructure:"audio"`
	Sink    string `mapstructure:"sink"`
	Beep    bool   `mapstructure:"beep"`
	LogPath string `mapstructure:"log_path"`

	// LogTranscripts keeps transcribed text in transcribe_log.txt.
	LogTranscripts bool `mapstructure:"log_transcripts"`

	// ConfigFile is the config.yml that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

var defaults = map[string]any{
	"api.provider":       "groq",
	"api.key":            "",
	"api.base_url":       "",
	"api.model":          "",
	"api.language":       "",
	"api.timeout":        transcriber.DefaultTimeout,
	"mode":               "normal",
	"audio.backend":      "ffmpeg",
	"audio.ffmpeg":       "ffmpeg",
	"audio.input_format": "",
	"audio.device":       "",
	"audio.sample_rate":  44100,
	"audio.channels":     1,
	"audio.bitrate_kbps": 64,
	"audio.scratch_dir":  "",
	"sink":               "paste",
	"beep":               true,
	"log_path":           "",
	"log_transcripts":    false,
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"provider":    "api.provider",
	"key":         "api.key",
	"model":       "api.model",
	"lang":        "api.language",
	"mode":        "mode",
	"backend":     "audio.backend",
	"device":      "audio.device",
	"sink":        "sink",
	"beep":        "beep",
	"logpath":     "log_path",
	"transcripts": "log_transcripts",
}

type loader struct {
	configFile string
	envFile    string
	searchDirs []string
	flags      *flag.FlagSet
}

type Option func(*loader)

// WithConfigFile reads path instead of searching for config.yml.
func WithConfigFile(path string) Option {
	return func(l *loader) { l.configFile = path }
}

// WithEnvFile loads path instead of ./.env.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithSearchDirs replaces the directories searched for config.yml.
func WithSearchDirs(dirs ...string) Option {
	return func(l *loader) { l.searchDirs = dirs }
}

// WithFlags binds the parsed flag set. Only flags set on the command
// line override other sources.
func WithFlags(fs *flag.FlagSet) Option {
	return func(l *loader) { l.flags = fs }
}

func defaultSearchDirs() []string {
	dirs := []string{"."}
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		if home, err := os.UserHomeDir(); err == nil {
			xdg = filepath.Join(home, ".config")
		}
	}
	if xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "voxkey"))
	}
	return dirs
}

func Load(opts ...Option) (*Config, error) {
	l := &loader{envFile: ".env", searchDirs: defaultSearchDirs()}
	for _, opt := range opts {
		opt(l)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	// 1. config.yml
	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		for _, d := range l.searchDirs {
			v.AddConfigPath(d)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || l.configFile != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 2. .env never overrides variables already in the environment.
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", l.envFile, err)
		}
	}

	// 3. environment
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for k := range defaults {
		v.BindEnv(k)
	}
	v.BindEnv("api.key", envPrefix+"_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY")

	// 4. flags
	if l.flags != nil {
		if err := bindFlags(v, l.flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *flag.FlagSet) error {
	pfs := pflag.NewFlagSet(fs.Name(), pflag.ContinueOnError)
	pfs.AddGoFlagSet(fs)
	fs.Visit(func(f *flag.Flag) {
		if pf := pfs.Lookup(f.Name); pf != nil {
			pf.Changed = true
		}
	})
	for name, key := range FlagKeys {
		pf := pfs.Lookup(name)
		if pf == nil || !pf.Changed {
			continue
		}
		if err := v.BindPFlag(key, pf); err != nil {
			return fmt.Errorf("binding flag -%s: %w", name, err)
		}
	}
	return nil
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.Key) == "" {
		errs = append(errs, errors.New("missing API key: set GROQ_API_KEY or api.key"))
	}
	if _, err := transcriber.ParseProvider(c.API.Provider); err != nil {
		errs = append(errs, err)
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout))
	}
	if _, err := transcriber.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	switch c.Audio.Backend {
	case "ffmpeg", "native":
	default:
		errs = append(errs, fmt.Errorf("unknown audio.backend %q (want ffmpeg or native)", c.Audio.Backend))
	}
	switch c.Sink {
	case "paste", "stdout":
	default:
		errs = append(errs, fmt.Errorf("unknown sink %q (want paste or stdout)", c.Sink))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels))
	}
	if c.Audio.BitrateKbps <= 0 {
		errs = append(errs, fmt.Errorf("audio.bitrate_kbps must be positive, got %d", c.Audio.BitrateKbps))
	}
	return errors.Join(errs...)
}

func (c *Config) DefaultMode() transcriber.Mode {
	m, _ := transcriber.ParseMode(c.Mode)
	return m
}

func (c *Config) ScratchDir() string {
	if c.Audio.ScratchDir != "" {
		return c.Audio.ScratchDir
	}
	return audio.DefaultScratchDir()
}

func (c *Config) Groq() transcriber.GroqConfig {
	p, _ := transcriber.ParseProvider(c.API.Provider)
	return transcriber.GroqConfig{
		Provider: p,
		APIKey:   c.API.Key,
		BaseURL:  c.API.BaseURL,
		Model:    c.API.Model,
		Language: c.API.Language,
		Timeout:  c.API.Timeout,
	}
}

func (c *Config) FFmpeg() audio.FFmpegConfig {
	return audio.FFmpegConfig{
		Command:     c.Audio.FFmpeg,
		InputFormat: c.Audio.InputFormat,
		InputDevice: c.Audio.Device,
		SampleRate:  c.Audio.SampleRate,
		Channels:    c.Audio.Channels,
		BitrateKbps: c.Audio.BitrateKbps,
		ScratchDir:  c.ScratchDir(),
	}
}
