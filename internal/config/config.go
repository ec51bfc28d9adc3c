package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "Europe/London"

	configPathEnv      = "WEEKLY_DIGEST_CONFIG"
	rssSourcesEnv      = "RSS_SOURCES"
	databaseDSNEnv     = "DATABASE_DSN"
	anthropicKeyEnv    = "ANTHROPIC_API_KEY"
	claudeModelEnv     = "CLAUDE_MODEL"
	ollamaBaseURLEnv   = "OLLAMA_BASE_URL"
	ollamaModelEnv     = "OLLAMA_MODEL"
	linkedinIDEnv      = "LINKEDIN_CLIENT_ID"
	linkedinSecretEnv  = "LINKEDIN_CLIENT_SECRET"
	linkedinRedirEnv   = "LINKEDIN_REDIRECT_URI"
	linkedinAuthorEnv  = "LINKEDIN_AUTHOR_URN"
	dryRunEnv          = "DRY_RUN"
	serverAddrEnv      = "SERVER_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Storage    StorageConfig    `yaml:"storage"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	LinkedIn   LinkedInConfig   `yaml:"linkedin"`
}

// LoggingConfig selects handler level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig describes the dashboard API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig defines when the weekly jobs fire.
type SchedulerConfig struct {
	Timezone    string         `yaml:"timezone"`
	PreviewDay  string         `yaml:"previewDay"`
	PreviewTime string         `yaml:"previewTime"`
	PublishDay  string         `yaml:"publishDay"`
	PublishTime string         `yaml:"publishTime"`
	location    *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig carries the orchestrator tuning constants.
type PipelineConfig struct {
	Sources             []string `yaml:"sources"`
	MaxArticles         int      `yaml:"maxArticles"`
	MinSummaries        int      `yaml:"minSummaries"`
	TargetSummaries     int      `yaml:"targetSummaries"`
	CharacterLimit      int      `yaml:"characterLimit"`
	PerSourceLimit      int      `yaml:"perSourceLimit"`
	MaxPublishAttempts  int      `yaml:"maxPublishAttempts"`
	RetryBackoffSeconds int      `yaml:"retryBackoffSeconds"`
	DryRun              bool     `yaml:"dryRun"`
}

// StorageConfig selects the post store backend. A Postgres DSN switches the
// store from the default keyed-file layout to the database.
type StorageConfig struct {
	PostsDir    string `yaml:"postsDir"`
	PostgresDSN string `yaml:"postgresDsn"`
}

// SummarizerConfig wires the LLM providers. Provider may be left empty to
// auto-detect from the available credentials.
type SummarizerConfig struct {
	Provider        string `yaml:"provider"`
	AnthropicAPIKey string `yaml:"anthropicApiKey"`
	ClaudeModel     string `yaml:"claudeModel"`
	OllamaBaseURL   string `yaml:"ollamaBaseUrl"`
	OllamaModel     string `yaml:"ollamaModel"`
}

// LinkedInConfig carries the OAuth application settings.
type LinkedInConfig struct {
	ClientID       string `yaml:"clientId"`
	ClientSecret   string `yaml:"clientSecret"`
	RedirectURL    string `yaml:"redirectUrl"`
	AuthorURN      string `yaml:"authorUrn"`
	CredentialsDir string `yaml:"credentialsDir"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// ParseWeekday resolves a configured day name to a time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(rssSourcesEnv); v != "" {
		var sources []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		if len(sources) > 0 {
			c.Pipeline.Sources = sources
		}
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.PostgresDSN = v
	}

	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.Summarizer.AnthropicAPIKey = v
	}
	if v := os.Getenv(claudeModelEnv); v != "" {
		c.Summarizer.ClaudeModel = v
	}
	if v := os.Getenv(ollamaBaseURLEnv); v != "" {
		c.Summarizer.OllamaBaseURL = v
	}
	if v := os.Getenv(ollamaModelEnv); v != "" {
		c.Summarizer.OllamaModel = v
	}

	if v := os.Getenv(linkedinIDEnv); v != "" {
		c.LinkedIn.ClientID = v
	}
	if v := os.Getenv(linkedinSecretEnv); v != "" {
		c.LinkedIn.ClientSecret = v
	}
	if v := os.Getenv(linkedinRedirEnv); v != "" {
		c.LinkedIn.RedirectURL = v
	}
	if v := os.Getenv(linkedinAuthorEnv); v != "" {
		c.LinkedIn.AuthorURN = v
	}

	if v := os.Getenv(dryRunEnv); v != "" {
		c.Pipeline.DryRun = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if override.Scheduler.PreviewDay != "" {
		base.Scheduler.PreviewDay = override.Scheduler.PreviewDay
	}
	if override.Scheduler.PreviewTime != "" {
		base.Scheduler.PreviewTime = override.Scheduler.PreviewTime
	}
	if override.Scheduler.PublishDay != "" {
		base.Scheduler.PublishDay = override.Scheduler.PublishDay
	}
	if override.Scheduler.PublishTime != "" {
		base.Scheduler.PublishTime = override.Scheduler.PublishTime
	}

	if len(override.Pipeline.Sources) > 0 {
		base.Pipeline.Sources = override.Pipeline.Sources
	}
	if override.Pipeline.MaxArticles > 0 {
		base.Pipeline.MaxArticles = override.Pipeline.MaxArticles
	}
	if override.Pipeline.MinSummaries > 0 {
		base.Pipeline.MinSummaries = override.Pipeline.MinSummaries
	}
	if override.Pipeline.TargetSummaries > 0 {
		base.Pipeline.TargetSummaries = override.Pipeline.TargetSummaries
	}
	if override.Pipeline.CharacterLimit > 0 {
		base.Pipeline.CharacterLimit = override.Pipeline.CharacterLimit
	}
	if override.Pipeline.PerSourceLimit > 0 {
		base.Pipeline.PerSourceLimit = override.Pipeline.PerSourceLimit
	}
	if override.Pipeline.MaxPublishAttempts > 0 {
		base.Pipeline.MaxPublishAttempts = override.Pipeline.MaxPublishAttempts
	}
	if override.Pipeline.RetryBackoffSeconds > 0 {
		base.Pipeline.RetryBackoffSeconds = override.Pipeline.RetryBackoffSeconds
	}
	if override.Pipeline.DryRun {
		base.Pipeline.DryRun = true
	}

	if override.Storage.PostsDir != "" {
		base.Storage.PostsDir = override.Storage.PostsDir
	}
	if override.Storage.PostgresDSN != "" {
		base.Storage.PostgresDSN = override.Storage.PostgresDSN
	}

	if override.Summarizer.Provider != "" {
		base.Summarizer.Provider = override.Summarizer.Provider
	}
	if override.Summarizer.AnthropicAPIKey != "" {
		base.Summarizer.AnthropicAPIKey = override.Summarizer.AnthropicAPIKey
	}
	if override.Summarizer.ClaudeModel != "" {
		base.Summarizer.ClaudeModel = override.Summarizer.ClaudeModel
	}
	if override.Summarizer.OllamaBaseURL != "" {
		base.Summarizer.OllamaBaseURL = override.Summarizer.OllamaBaseURL
	}
	if override.Summarizer.OllamaModel != "" {
		base.Summarizer.OllamaModel = override.Summarizer.OllamaModel
	}

	if override.LinkedIn.ClientID != "" {
		base.LinkedIn.ClientID = override.LinkedIn.ClientID
	}
	if override.LinkedIn.ClientSecret != "" {
		base.LinkedIn.ClientSecret = override.LinkedIn.ClientSecret
	}
	if override.LinkedIn.RedirectURL != "" {
		base.LinkedIn.RedirectURL = override.LinkedIn.RedirectURL
	}
	if override.LinkedIn.AuthorURN != "" {
		base.LinkedIn.AuthorURN = override.LinkedIn.AuthorURN
	}
	if override.LinkedIn.CredentialsDir != "" {
		base.LinkedIn.CredentialsDir = override.LinkedIn.CredentialsDir
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Addr: ":8000"},
		Scheduler: SchedulerConfig{
			Timezone:    defaultTimezone,
			PreviewDay:  "thursday",
			PreviewTime: "18:00",
			PublishDay:  "friday",
			PublishTime: "10:00",
			location:    tz,
		},
		Pipeline: PipelineConfig{
			Sources: []string{
				"https://techcrunch.com/feed/",
				"https://www.theverge.com/rss/index.xml",
			},
			MaxArticles:         10,
			MinSummaries:        3,
			TargetSummaries:     5,
			CharacterLimit:      3000,
			PerSourceLimit:      5,
			MaxPublishAttempts:  3,
			RetryBackoffSeconds: 2,
		},
		Storage: StorageConfig{PostsDir: "./data/posts"},
		Summarizer: SummarizerConfig{
			ClaudeModel: "claude-3-5-sonnet-20241022",
			OllamaModel: "llama3.2:latest",
		},
		LinkedIn: LinkedInConfig{
			RedirectURL:    "http://localhost:8000/v1/oauth/callback",
			CredentialsDir: "./data/credentials",
		},
	}
}
