package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig    `yaml:"server" toml:"server"`
	Auth     AuthConfig      `yaml:"auth" toml:"auth"`
	Files    FilesConfig     `yaml:"files" toml:"files"`
	Renderer RendererConfig  `yaml:"renderer" toml:"renderer"`
	Spooler  SpoolerConfig   `yaml:"spooler" toml:"spooler"`
	Queue    QueueConfig     `yaml:"queue" toml:"queue"`
	Webhooks []WebhookConfig `yaml:"webhooks" toml:"webhooks"`
	Logging  LoggingConfig   `yaml:"logging" toml:"logging"`
}

type ServerConfig struct {
	Host         string   `yaml:"host" toml:"host"`
	Port         int      `yaml:"port" toml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout" toml:"write_timeout"`
	LockFile     string   `yaml:"lock_file" toml:"lock_file"`
}

type AuthConfig struct {
	APIToken    string   `yaml:"api_token" toml:"api_token"`
	JWTSecret   string   `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenExpiry Duration `yaml:"token_expiry" toml:"token_expiry"`
}

type FilesConfig struct {
	BaseDir string `yaml:"base_dir" toml:"base_dir"`
}

type RendererConfig struct {
	GhostscriptPath string   `yaml:"ghostscript_path" toml:"ghostscript_path"`
	Device          string   `yaml:"device" toml:"device"`
	OutputTemplate  string   `yaml:"output_template" toml:"output_template"`
	ExtraArgs       []string `yaml:"extra_args" toml:"extra_args"`
}

type SpoolerConfig struct {
	Backend       string   `yaml:"backend" toml:"backend"`
	LpstatPath    string   `yaml:"lpstat_path" toml:"lpstat_path"`
	DetectTimeout Duration `yaml:"detect_timeout" toml:"detect_timeout"`
	WaitTimeout   Duration `yaml:"wait_timeout" toml:"wait_timeout"`
	PollInterval  Duration `yaml:"poll_interval" toml:"poll_interval"`
}

type QueueConfig struct {
	WorkerCount int `yaml:"worker_count" toml:"worker_count"`
	QueueSize   int `yaml:"queue_size" toml:"queue_size"`
}

type WebhookConfig struct {
	URL        string   `yaml:"url" toml:"url"`
	Secret     string   `yaml:"secret" toml:"secret"`
	Events     []string `yaml:"events" toml:"events"`
	RetryCount int      `yaml:"retry_count" toml:"retry_count"`
	RetryDelay Duration `yaml:"retry_delay" toml:"retry_delay"`
	Timeout    Duration `yaml:"timeout" toml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Duration wraps time.Duration so both YAML and TOML files can spell
// intervals as "800ms" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func defaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8899,
			ReadTimeout:  Duration{30 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
			LockFile:     filepath.Join(os.TempDir(), "printd.lock"),
		},
		Auth: AuthConfig{
			APIToken:    "change_this_token",
			TokenExpiry: Duration{24 * time.Hour},
		},
		Files: FilesConfig{
			BaseDir: "./print-root",
		},
		Renderer: RendererConfig{
			GhostscriptPath: "gs",
			Device:          "pdfwrite",
			OutputTemplate:  "%pipe%lp -d {printer}",
		},
		Spooler: SpoolerConfig{
			Backend:       "cups",
			LpstatPath:    "lpstat",
			DetectTimeout: Duration{10 * time.Second},
			WaitTimeout:   Duration{300 * time.Second},
			PollInterval:  Duration{800 * time.Millisecond},
		},
		Queue: QueueConfig{
			WorkerCount: 4,
			QueueSize:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}

	if runtime.GOOS == "windows" {
		cfg.Files.BaseDir = `C:\PrintRoot`
		cfg.Renderer.GhostscriptPath = "gswin64c.exe"
		cfg.Renderer.Device = "mswinpr2"
		cfg.Renderer.OutputTemplate = "%printer%{printer}"
		cfg.Spooler.Backend = "windows"
	}

	return cfg
}

// Default returns the built-in configuration with environment overrides applied.
func Default() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// Load reads a YAML or TOML file depending on its extension. A missing file
// yields the defaults. Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := decode(configPath, data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	case ".yaml", ".yml", "":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PRINTD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("PRINT_BASE_DIR"); v != "" {
		c.Files.BaseDir = v
	}

	if v := os.Getenv("PRINT_API_TOKEN"); v != "" {
		c.Auth.APIToken = v
	}

	if v := os.Getenv("PRINTD_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}

	if v := os.Getenv("GS_PATH"); v != "" {
		c.Renderer.GhostscriptPath = v
	}

	if v := os.Getenv("PRINTD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout.Duration < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout.Duration < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Auth.APIToken == "" {
		return fmt.Errorf("api token is required")
	}

	if c.Auth.TokenExpiry.Duration <= 0 {
		return fmt.Errorf("token expiry must be positive")
	}

	if c.Files.BaseDir == "" {
		return fmt.Errorf("files base dir is required")
	}

	if c.Renderer.GhostscriptPath == "" {
		return fmt.Errorf("ghostscript path is required")
	}

	if c.Renderer.Device == "" {
		return fmt.Errorf("renderer device is required")
	}

	if !strings.Contains(c.Renderer.OutputTemplate, "{printer}") {
		return fmt.Errorf("renderer output template must contain {printer}")
	}

	validBackends := map[string]bool{
		"cups":    true,
		"windows": true,
	}

	if !validBackends[c.Spooler.Backend] {
		return fmt.Errorf("invalid spooler backend: %s (valid: cups, windows)", c.Spooler.Backend)
	}

	if c.Spooler.DetectTimeout.Duration <= 0 {
		return fmt.Errorf("spooler detect timeout must be positive")
	}

	if c.Spooler.WaitTimeout.Duration <= 0 {
		return fmt.Errorf("spooler wait timeout must be positive")
	}

	if c.Spooler.PollInterval.Duration <= 0 {
		return fmt.Errorf("spooler poll interval must be positive")
	}

	if c.Queue.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if c.Queue.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1")
	}

	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
		if w.RetryCount < 0 {
			return fmt.Errorf("webhook %d: retry count must be non-negative", i)
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"auto":  true,
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: auto, json, text, plain)", c.Logging.Format)
	}

	return nil
}
