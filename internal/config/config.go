package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yok-tottii/EzS2T-Realtime/internal/i18n"
)

// AppName is the directory name used under the user config dir
const AppName = "EzS2T-Realtime"

// Modes
const (
	ModeReply       = "reply"
	ModeSearch      = "search"
	ModeTypedSearch = "typed-search"
)

// Realtime backends
// RealtimeSampleRate is the rate of pcm16 audio on the realtime API, both ways.
const RealtimeSampleRate = 24000

const (
	BackendAzure  = "azure"
	BackendOpenAI = "openai"
)

// Environment variables that override secrets
const (
	EnvAzureEndpoint = "AZURE_OPENAI_ENDPOINT"
	EnvAzureAPIKey   = "AZURE_OPENAI_API_KEY"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvBraveAPIKey   = "BRAVE_API_KEY"
)

// Config holds application configuration
type Config struct {
	Mode       string          `json:"mode" yaml:"mode"`               // "reply", "search" or "typed-search"
	UILanguage string          `json:"ui_language" yaml:"ui_language"` // "ja" or "en"
	Hotkey     HotkeyConfig    `json:"hotkey" yaml:"hotkey"`
	Audio      AudioConfig     `json:"audio" yaml:"audio"`
	Recording  RecordingConfig `json:"recording" yaml:"recording"`
	Realtime   RealtimeConfig  `json:"realtime" yaml:"realtime"`
	Search     SearchConfig    `json:"search" yaml:"search"`
	Retry      RetryConfig     `json:"retry" yaml:"retry"`
	Output     OutputConfig    `json:"output" yaml:"output"`
	Log        LogConfig       `json:"log" yaml:"log"`
	Server     ServerConfig    `json:"server" yaml:"server"`
	UI         UIConfig        `json:"ui" yaml:"ui"`
	mu         sync.RWMutex
}

// HotkeyConfig holds the stop hotkey
type HotkeyConfig struct {
	Ctrl  bool   `json:"ctrl" yaml:"ctrl"`
	Shift bool   `json:"shift" yaml:"shift"`
	Alt   bool   `json:"alt" yaml:"alt"`
	Cmd   bool   `json:"cmd" yaml:"cmd"`
	Key   string `json:"key" yaml:"key"` // e.g., "Space"
}

// AudioConfig holds device and stream settings
type AudioConfig struct {
	InputDeviceID    int           `json:"input_device_id" yaml:"input_device_id"`   // -1 means system default
	OutputDeviceID   int           `json:"output_device_id" yaml:"output_device_id"` // -1 means system default
	SampleRate       int           `json:"sample_rate" yaml:"sample_rate"`
	OutputSampleRate int           `json:"output_sample_rate" yaml:"output_sample_rate"`
	Channels         int           `json:"channels" yaml:"channels"`
	Block            time.Duration `json:"block" yaml:"block"`
	QueueSize        int           `json:"queue_size" yaml:"queue_size"` // frames buffered between the audio callback and the turn
	Latency          string        `json:"latency" yaml:"latency"`       // "low" or "high"
	Playback         string        `json:"playback" yaml:"playback"`     // "stream" or "buffered"
}

// RecordingConfig holds utterance detection thresholds
type RecordingConfig struct {
	SilenceThreshold  int           `json:"silence_threshold" yaml:"silence_threshold"`
	SilenceDuration   time.Duration `json:"silence_duration" yaml:"silence_duration"`
	MinSpeechDuration time.Duration `json:"min_speech_duration" yaml:"min_speech_duration"`
}

// RealtimeConfig selects the remote model
type RealtimeConfig struct {
	Backend                 string `json:"backend" yaml:"backend"`
	Endpoint                string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKey                  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model                   string `json:"model" yaml:"model"`
	APIVersion              string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	Voice                   string `json:"voice" yaml:"voice"`
	InputTranscriptionModel string `json:"input_transcription_model,omitempty" yaml:"input_transcription_model,omitempty"`
	Instructions            string `json:"instructions,omitempty" yaml:"instructions,omitempty"` // overrides the mode default
}

// SearchConfig holds Brave search settings
type SearchConfig struct {
	APIKey           string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Count            int           `json:"count" yaml:"count"`
	Country          string        `json:"country" yaml:"country"`
	Lang             string        `json:"lang" yaml:"lang"`
	DescriptionLimit int           `json:"description_limit" yaml:"description_limit"` // 0 keeps descriptions whole
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
}

// RetryConfig bounds reconnection
type RetryConfig struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	Delay      time.Duration `json:"delay" yaml:"delay"`
}

// OutputConfig holds optional side outputs of each turn
type OutputConfig struct {
	ResponseLog  string `json:"response_log" yaml:"response_log"`
	CaptureWAV   string `json:"capture_wav,omitempty" yaml:"capture_wav,omitempty"`
	CopyResponse bool   `json:"copy_response" yaml:"copy_response"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level         string `json:"level" yaml:"level"` // debug, info, warn, error
	Console       bool   `json:"console" yaml:"console"`
	Dir           string `json:"dir,omitempty" yaml:"dir,omitempty"`
	RetentionDays int    `json:"retention_days" yaml:"retention_days"`
}

// ServerConfig holds the local status server settings
type ServerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// UIConfig holds desktop integration toggles
type UIConfig struct {
	Tray          bool `json:"tray" yaml:"tray"`
	Notifications bool `json:"notifications" yaml:"notifications"`
	SetupComplete bool `json:"setup_complete" yaml:"setup_complete"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Mode:       ModeReply,
		UILanguage: "ja",
		Hotkey: HotkeyConfig{
			Ctrl: true,
			Alt:  true,
			Key:  "Space",
		},
		Audio: AudioConfig{
			InputDeviceID:    -1,
			OutputDeviceID:   -1,
			SampleRate:       RealtimeSampleRate,
			OutputSampleRate: RealtimeSampleRate,
			Channels:         1,
			Block:            100 * time.Millisecond,
			QueueSize:        64,
			Latency:          "high",
			Playback:         "stream",
		},
		Recording: RecordingConfig{
			SilenceThreshold:  500,
			SilenceDuration:   time.Second,
			MinSpeechDuration: 300 * time.Millisecond,
		},
		Realtime: RealtimeConfig{
			Backend:    BackendAzure,
			Model:      "gpt-4o-realtime-preview",
			APIVersion: "2024-10-01-preview",
			Voice:      "alloy",
		},
		Search: SearchConfig{
			Count:            3,
			Country:          "us",
			Lang:             "en",
			DescriptionLimit: 100,
			Timeout:          10 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Delay:      5 * time.Second,
		},
		Output: OutputConfig{
			ResponseLog: "response_log.txt",
		},
		Log: LogConfig{
			Level:         "info",
			RetentionDays: 7,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    18765,
		},
		UI: UIConfig{
			Tray:          true,
			Notifications: true,
		},
	}
}

// Load loads configuration from the specified path.
// A missing file yields the defaults. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	config, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return config, nil
}

// LoadFromReader decodes YAML over the defaults. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	config := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	// ホットキー設定の補完
	if config.Hotkey.Key == "" {
		config.Hotkey.Key = "Space"
	}
	return config, nil
}

// LoadEnv loads the first .env file found among paths into the process
// environment. Variables that are already set are left alone.
func LoadEnv(paths ...string) string {
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// ApplyEnv overrides secrets and endpoints from the environment
func (c *Config) ApplyEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv(EnvAzureEndpoint); v != "" {
		c.Realtime.Endpoint = v
	}
	switch c.Realtime.Backend {
	case BackendAzure:
		if v := os.Getenv(EnvAzureAPIKey); v != "" {
			c.Realtime.APIKey = v
		}
	case BackendOpenAI:
		if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
			c.Realtime.APIKey = v
		}
	}
	if v := os.Getenv(EnvBraveAPIKey); v != "" {
		c.Search.APIKey = v
	}
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Secrets may be present, keep the file private
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigDir returns the per-user application directory
func GetConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		homeDir, _ := os.UserHomeDir()
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, AppName)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Update updates the fields that may change at runtime
func (c *Config) Update(updates map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range updates {
		switch key {
		case "ui_language":
			if v, ok := value.(string); ok {
				if !i18n.ValidateLanguage(v) {
					return fmt.Errorf("invalid ui_language: %s", v)
				}
				c.UILanguage = v
			}
		case "voice":
			if v, ok := value.(string); ok && v != "" {
				c.Realtime.Voice = v
			}
		case "playback":
			if v, ok := value.(string); ok {
				if !validPlayback(v) {
					return fmt.Errorf("invalid playback: %s", v)
				}
				c.Audio.Playback = v
			}
		case "input_device_id":
			if v, ok := value.(float64); ok {
				c.Audio.InputDeviceID = int(v)
			}
		case "output_device_id":
			if v, ok := value.(float64); ok {
				c.Audio.OutputDeviceID = int(v)
			}
		case "copy_response":
			if v, ok := value.(bool); ok {
				c.Output.CopyResponse = v
			}
		case "notifications":
			if v, ok := value.(bool); ok {
				c.UI.Notifications = v
			}
		case "hotkey":
			if v, ok := value.(map[string]interface{}); ok {
				// HotkeyConfigの各フィールドを更新
				if ctrl, ok := v["ctrl"].(bool); ok {
					c.Hotkey.Ctrl = ctrl
				}
				if shift, ok := v["shift"].(bool); ok {
					c.Hotkey.Shift = shift
				}
				if alt, ok := v["alt"].(bool); ok {
					c.Hotkey.Alt = alt
				}
				if cmd, ok := v["cmd"].(bool); ok {
					c.Hotkey.Cmd = cmd
				}
				if key, ok := v["key"].(string); ok {
					c.Hotkey.Key = key
				}
			}
		default:
			return fmt.Errorf("setting cannot be changed at runtime: %s", key)
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Mode:       c.Mode,
		UILanguage: c.UILanguage,
		Hotkey:     c.Hotkey,
		Audio:      c.Audio,
		Recording:  c.Recording,
		Realtime:   c.Realtime,
		Search:     c.Search,
		Retry:      c.Retry,
		Output:     c.Output,
		Log:        c.Log,
		Server:     c.Server,
		UI:         c.UI,
	}
}

// Redacted returns a copy safe to show over the status API
func (c *Config) Redacted() *Config {
	clone := c.Clone()
	clone.Realtime.APIKey = redact(clone.Realtime.APIKey)
	clone.Search.APIKey = redact(clone.Search.APIKey)
	return clone
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

func validPlayback(v string) bool {
	return v == "stream" || v == "buffered"
}

// Validate checks structural settings. It returns every problem found.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error

	switch c.Mode {
	case ModeReply, ModeSearch, ModeTypedSearch:
	default:
		errs = append(errs, fmt.Errorf("invalid mode: %s (must be 'reply', 'search' or 'typed-search')", c.Mode))
	}

	if !i18n.ValidateLanguage(c.UILanguage) {
		errs = append(errs, fmt.Errorf("invalid ui_language: %s (must be 'ja' or 'en')", c.UILanguage))
	}

	if c.Realtime.Backend != BackendAzure && c.Realtime.Backend != BackendOpenAI {
		errs = append(errs, fmt.Errorf("invalid realtime.backend: %s (must be 'azure' or 'openai')", c.Realtime.Backend))
	}

	if c.Audio.SampleRate != RealtimeSampleRate {
		errs = append(errs, fmt.Errorf("invalid audio.sample_rate: %d (realtime pcm16 input is %d Hz)", c.Audio.SampleRate, RealtimeSampleRate))
	}
	if c.Audio.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate must be positive"))
	}
	if c.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("invalid audio.channels: %d (only mono is supported)", c.Audio.Channels))
	}
	if c.Audio.Block <= 0 || c.Audio.Block > time.Second {
		errs = append(errs, fmt.Errorf("invalid audio.block: %s (must be between 1ms and 1s)", c.Audio.Block))
	}
	if c.Audio.Latency != "low" && c.Audio.Latency != "high" {
		errs = append(errs, fmt.Errorf("invalid audio.latency: %s (must be 'low' or 'high')", c.Audio.Latency))
	}
	if !validPlayback(c.Audio.Playback) {
		errs = append(errs, fmt.Errorf("invalid audio.playback: %s (must be 'stream' or 'buffered')", c.Audio.Playback))
	}

	if c.Recording.SilenceThreshold <= 0 || c.Recording.SilenceThreshold > 32768 {
		errs = append(errs, fmt.Errorf("invalid recording.silence_threshold: %d (must be between 1 and 32768)", c.Recording.SilenceThreshold))
	}
	if c.Recording.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("recording.silence_duration must be positive"))
	}
	if c.Recording.MinSpeechDuration < 0 {
		errs = append(errs, fmt.Errorf("recording.min_speech_duration cannot be negative"))
	}

	if c.Search.Count <= 0 || c.Search.Count > 20 {
		errs = append(errs, fmt.Errorf("invalid search.count: %d (must be between 1 and 20)", c.Search.Count))
	}
	if c.Search.DescriptionLimit < 0 {
		errs = append(errs, fmt.Errorf("search.description_limit cannot be negative"))
	}

	if c.Retry.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("invalid retry.max_retries: %d (must be at least 1)", c.Retry.MaxRetries))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry.delay cannot be negative"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level: %s (valid values: debug, info, warn, error)", c.Log.Level))
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid server.port: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// ValidateCredentials checks that the secrets the current mode needs are set
func (c *Config) ValidateCredentials() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error

	if c.Realtime.APIKey == "" {
		env := EnvAzureAPIKey
		if c.Realtime.Backend == BackendOpenAI {
			env = EnvOpenAIAPIKey
		}
		errs = append(errs, fmt.Errorf("realtime API key is not set (%s)", env))
	}
	if c.Realtime.Backend == BackendAzure && c.Realtime.Endpoint == "" {
		errs = append(errs, fmt.Errorf("realtime endpoint is not set (%s)", EnvAzureEndpoint))
	}
	if (c.Mode == ModeSearch || c.Mode == ModeTypedSearch) && c.Search.APIKey == "" {
		errs = append(errs, fmt.Errorf("search API key is not set (%s)", EnvBraveAPIKey))
	}

	return errors.Join(errs...)
}
