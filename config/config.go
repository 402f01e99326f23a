package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"voice-chat/internal/domain"
)

type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Response      ResponseConfig      `yaml:"response"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	Log           LogConfig           `yaml:"log"`
}

type AudioConfig struct {
	Source       string `yaml:"source"`
	Device       string `yaml:"device"`
	SampleRate   int    `yaml:"sample_rate"`
	FrameSamples int    `yaml:"frame_samples"`
	FilePath     string `yaml:"file_path"`
	Realtime     bool   `yaml:"realtime"`
	HTTPAddr     string `yaml:"http_addr"`
	AuthToken    string `yaml:"auth_token"`
}

type TranscriptionConfig struct {
	Provider     string `yaml:"provider"`
	Language     string `yaml:"language"`
	Region       string `yaml:"region"`
	BridgeURL    string `yaml:"bridge_url"`
	DialAttempts int    `yaml:"dial_attempts"`
	ShowPartials bool   `yaml:"show_partials"`
}

type ResponseConfig struct {
	Provider     string `yaml:"provider"`
	Region       string `yaml:"region"`
	FlowID       string `yaml:"flow_id"`
	FlowAliasID  string `yaml:"flow_alias_id"`
	InputNode    string `yaml:"input_node"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	SystemPrompt string `yaml:"system_prompt"`
	Timeout      string `yaml:"timeout"`
	ContextTurns int    `yaml:"context_turns"`
	MaxTurns     int    `yaml:"max_turns"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Title   string `yaml:"title"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML config at path. Variables from a .env file in the
// working directory are exported first so ${VAR} references can use them.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Audio.Source == "" {
		c.Audio.Source = "microphone"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = domain.SampleRate
	}
	if c.Audio.FrameSamples == 0 {
		c.Audio.FrameSamples = domain.FrameSamples
	}
	if c.Audio.HTTPAddr == "" {
		c.Audio.HTTPAddr = ":8080"
	}
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = "aws"
	}
	if c.Transcription.Language == "" {
		c.Transcription.Language = "zh-CN"
	}
	if c.Transcription.Region == "" {
		c.Transcription.Region = "us-west-2"
	}
	if c.Transcription.DialAttempts == 0 {
		c.Transcription.DialAttempts = 3
	}
	if c.Response.Provider == "" {
		c.Response.Provider = "bedrock"
	}
	if c.Response.Region == "" {
		c.Response.Region = c.Transcription.Region
	}
	if c.Response.InputNode == "" {
		c.Response.InputNode = "FlowInputNode"
	}
	if c.Response.Timeout == "" {
		c.Response.Timeout = "60s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// ResponseTimeout is the per-call limit for response generation. Zero
// disables it.
func (c *Config) ResponseTimeout() time.Duration {
	d, err := time.ParseDuration(c.Response.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Audio.Source {
	case "microphone", "http":
	case "file":
		if c.Audio.FilePath == "" {
			errs = append(errs, errors.New("audio.file_path is required for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audio.source %q", c.Audio.Source))
	}
	if c.Audio.SampleRate != domain.SampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be %d, got %d", domain.SampleRate, c.Audio.SampleRate))
	}
	if c.Audio.FrameSamples != domain.FrameSamples {
		errs = append(errs, fmt.Errorf("audio.frame_samples must be %d, got %d", domain.FrameSamples, c.Audio.FrameSamples))
	}

	switch c.Transcription.Provider {
	case "aws":
	case "wsbridge":
		if c.Transcription.BridgeURL == "" {
			errs = append(errs, errors.New("transcription.bridge_url is required for the wsbridge provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transcription.provider %q", c.Transcription.Provider))
	}

	switch c.Response.Provider {
	case "bedrock":
		if c.Response.FlowID == "" || c.Response.FlowAliasID == "" {
			errs = append(errs, errors.New("response.flow_id and response.flow_alias_id are required for the bedrock provider"))
		}
	case "openai", "anthropic", "gemini":
		if c.Response.APIKey == "" {
			errs = append(errs, fmt.Errorf("response.api_key is required for the %s provider", c.Response.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown response.provider %q", c.Response.Provider))
	}

	if _, err := time.ParseDuration(c.Response.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("response.timeout: %w", err))
	}
	if c.Response.ContextTurns < 0 || c.Response.MaxTurns < 0 {
		errs = append(errs, errors.New("response.context_turns and response.max_turns must not be negative"))
	}

	if c.Pushover.Enabled && (c.Pushover.Token == "" || c.Pushover.UserKey == "") {
		errs = append(errs, errors.New("pushover.token and pushover.user_key are required when pushover is enabled"))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
