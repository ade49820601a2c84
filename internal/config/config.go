package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	defaultWorkflowTimeout = 30 * time.Second
	defaultSlackTimeout    = 10 * time.Second
)

// Config models taskflow.yml. Environment and flags override file values.
type Config struct {
	Slack struct {
		WebhookURL     string `yaml:"webhook_url" json:"webhook_url,omitempty"`
		TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	} `yaml:"slack" json:"slack"`
	Summary struct {
		Provider string `yaml:"provider" json:"provider"`
		Model    string `yaml:"model" json:"model,omitempty"`
		APIKey   string `yaml:"api_key" json:"-"`
		BaseURL  string `yaml:"base_url" json:"base_url,omitempty"`
	} `yaml:"summary" json:"summary"`
	Workflow struct {
		TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	} `yaml:"workflow" json:"workflow"`
	Server struct {
		Addr     string `yaml:"addr" json:"addr"`
		BasePath string `yaml:"base_path" json:"base_path"`
	} `yaml:"server" json:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Summary.Provider {
	case ProviderNone, ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("summary.provider must be one of none, anthropic, openai (got %q)", c.Summary.Provider)
	}
	if c.Slack.WebhookURL != "" {
		u, err := url.Parse(c.Slack.WebhookURL)
		if err != nil {
			return fmt.Errorf("slack.webhook_url is invalid: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("slack.webhook_url must be an absolute http(s) URL")
		}
	}
	if c.Slack.TimeoutSeconds < 0 {
		return fmt.Errorf("slack.timeout_seconds must not be negative")
	}
	if c.Workflow.TimeoutSeconds < 0 {
		return fmt.Errorf("workflow.timeout_seconds must not be negative")
	}
	return nil
}

// SlackConfigured reports whether a webhook URL is present.
func (c *Config) SlackConfigured() bool {
	return c.Slack.WebhookURL != ""
}

func (c *Config) SlackTimeout() time.Duration {
	if c.Slack.TimeoutSeconds > 0 {
		return time.Duration(c.Slack.TimeoutSeconds) * time.Second
	}
	return defaultSlackTimeout
}

func (c *Config) WorkflowTimeout() time.Duration {
	if c.Workflow.TimeoutSeconds > 0 {
		return time.Duration(c.Workflow.TimeoutSeconds) * time.Second
	}
	return defaultWorkflowTimeout
}

const redacted = "********"

// Redacted returns a copy safe to display: the webhook path (which carries
// the channel token) and the API key are masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Slack.WebhookURL = maskURL(c.Slack.WebhookURL)
	if out.Summary.APIKey != "" {
		out.Summary.APIKey = redacted
	}
	return &out
}

func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	return u.Scheme + "://" + u.Host + "/" + redacted
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskflow.yml")
}

// LoadOptional reads the workspace config, falling back to Default when the
// file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `slack:
  # Incoming webhook URL; TASKFLOW_SLACK_WEBHOOK_URL or SLACK_WEBHOOK_URL override it.
  webhook_url: ""
  timeout_seconds: 10

summary:
  # none, anthropic or openai
  provider: none
  model: ""
  base_url: ""

workflow:
  timeout_seconds: 30

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
