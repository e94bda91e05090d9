package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ContentDir string `toml:"content_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	OutputDir  string `toml:"output_dir"`
	AssetsDir  string `toml:"assets_dir"`
}

// Site describes the public site the content is published to.
type Site struct {
	BaseURL  string `toml:"base_url"`
	BlogPath string `toml:"blog_path"`
	Domain   string `toml:"domain"`
	Brand    string `toml:"brand"`
	Author   string `toml:"author"`
	CTAText  string `toml:"cta_text"`
	CTAURL   string `toml:"cta_url"`
}

// Schedule controls the continuous runner's windows and quota.
type Schedule struct {
	Timezone            string   `toml:"timezone"`
	PublishWindows      []string `toml:"publish_windows"`
	WindowMinutes       int      `toml:"window_minutes"`
	DailyQuota          int      `toml:"daily_quota"`
	TickIntervalSeconds int      `toml:"tick_interval_seconds"`
	ReportSchedule      string   `toml:"report_schedule"`
	Staging             bool     `toml:"staging"`
	EventLogLimit       int      `toml:"event_log_limit"`
}

// Quality holds the scoring thresholds used by the quality gate.
type Quality struct {
	PublishThreshold      int            `toml:"publish_threshold"`
	TitleMaxLength        int            `toml:"title_max_length"`
	DescriptionMinLength  int            `toml:"description_min_length"`
	DescriptionMaxLength  int            `toml:"description_max_length"`
	SlugMaxLength         int            `toml:"slug_max_length"`
	MinWordCount          int            `toml:"min_word_count"`
	TemplateMinWords      map[string]int `toml:"template_min_words"`
	MinInternalLinks      int            `toml:"min_internal_links"`
	MaxParagraphSentences int            `toml:"max_paragraph_sentences"`
	LongParagraphRatio    float64        `toml:"long_paragraph_ratio"`
	GuideTemplates        []string       `toml:"guide_templates"`
	AuthorityDomains      []string       `toml:"authority_domains"`
}

// Workflow contains stage timing and failure-handling knobs.
type Workflow struct {
	GenerateTimeout    int  `toml:"generate_timeout"`
	IllustrateTimeout  int  `toml:"illustrate_timeout"`
	GateTimeout        int  `toml:"gate_timeout"`
	PublishTimeout     int  `toml:"publish_timeout"`
	AnnounceTimeout    int  `toml:"announce_timeout"`
	ErrorMessageLimit  int  `toml:"error_message_limit"`
	HoldBelowThreshold bool `toml:"hold_below_threshold"`
}

// Generation selects and tunes the text-generation providers.
type Generation struct {
	Provider        string `toml:"provider"`
	Fallback        string `toml:"fallback"`
	MaxOutputTokens int    `toml:"max_output_tokens"`
	ResearchEnabled bool   `toml:"research_enabled"`
	ResearchPages   int    `toml:"research_pages"`
	InternalLinks   int    `toml:"internal_links"`
}

// Anthropic holds the Anthropic Messages API settings.
type Anthropic struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	InputCostPerM  float64 `toml:"input_cost_per_million"`
	OutputCostPerM float64 `toml:"output_cost_per_million"`
}

// LLM contains OpenRouter-compatible chat completion settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Research configures the search and page-fetch collaborator.
type Research struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	SearchLimit       int     `toml:"search_limit"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	UserAgent         string  `toml:"user_agent"`
}

// Images configures the image generation collaborator.
type Images struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Size           string `toml:"size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CMS configures the destination publishing system.
type CMS struct {
	APIBase           string  `toml:"api_base"`
	APIToken          string  `toml:"api_token"`
	CollectionID      string  `toml:"collection_id"`
	RequestsPerMinute float64 `toml:"requests_per_minute"`
	Burst             int     `toml:"burst"`
	MaxRetries        int     `toml:"max_retries"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	PublishLive       bool    `toml:"publish_live"`
}

// Indexing configures search-index submission.
type Indexing struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	AccessToken    string `toml:"access_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Reporting configures weekly report delivery.
type Reporting struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	From           string `toml:"from"`
	Recipient      string `toml:"recipient"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Published      bool   `toml:"published"`
	Failures       bool   `toml:"failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for quill.
//
// Configuration sections by subsystem:
//   - Paths: content, data, log, output and asset directories
//   - Site: public URL layout used for internal links and index submission
//   - Schedule: publish windows, daily quota, tick interval, weekly report
//   - Quality: quality gate thresholds
//   - Workflow: per-stage timeouts and failure handling
//   - Generation, Anthropic, LLM, Research, Images: content production
//   - CMS, Indexing: publication and announcement
//   - Reporting, Notifications: outbound summaries and alerts
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Site          Site          `toml:"site"`
	Schedule      Schedule      `toml:"schedule"`
	Quality       Quality       `toml:"quality"`
	Workflow      Workflow      `toml:"workflow"`
	Generation    Generation    `toml:"generation"`
	Anthropic     Anthropic     `toml:"anthropic"`
	LLM           LLM           `toml:"llm"`
	Research      Research      `toml:"research"`
	Images        Images        `toml:"images"`
	CMS           CMS           `toml:"cms"`
	Indexing      Indexing      `toml:"indexing"`
	Reporting     Reporting     `toml:"reporting"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/quill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Environment files are loaded first so secrets
// kept in .env participate in the environment fallbacks.
func Load(path string) (*Config, string, bool, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFiles loads ENV_FILE (when set), then .env.local and .env from the
// working directory. Existing environment variables always win.
func loadEnvFiles() error {
	candidates := []string{".env.local", ".env"}
	if explicit := strings.TrimSpace(os.Getenv("ENV_FILE")); explicit != "" {
		candidates = append([]string{explicit}, candidates...)
	}
	for _, candidate := range candidates {
		if err := godotenv.Load(candidate); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", candidate, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("quill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// LifecycleDirs lists the directory names that hold documents at each stage.
var LifecycleDirs = []string{"drafts", "review", "approved", "published"}

// EnsureDirectories creates the content lifecycle directories and the data,
// log, output, and asset directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.OutputDir, c.Paths.AssetsDir}
	for _, name := range LifecycleDirs {
		dirs = append(dirs, filepath.Join(c.Paths.ContentDir, name))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite database path for the queue store.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the lock file used to keep run and serve exclusive.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "quill.lock")
}

// PostURL builds the public URL for a published slug.
func (c *Config) PostURL(slug string) string {
	base := strings.TrimRight(c.Site.BaseURL, "/")
	blog := "/" + strings.Trim(c.Site.BlogPath, "/")
	if blog == "/" {
		blog = ""
	}
	return base + blog + "/" + strings.Trim(slug, "/")
}

// Location returns the scheduler time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	name := strings.TrimSpace(c.Schedule.Timezone)
	if name == "" || strings.EqualFold(name, "utc") {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StageTimeout returns the configured timeout for a pipeline stage.
func (c *Config) StageTimeout(stage string) time.Duration {
	var seconds int
	switch stage {
	case "generate":
		seconds = c.Workflow.GenerateTimeout
	case "illustrate":
		seconds = c.Workflow.IllustrateTimeout
	case "gate":
		seconds = c.Workflow.GateTimeout
	case "publish":
		seconds = c.Workflow.PublishTimeout
	case "announce":
		seconds = c.Workflow.AnnounceTimeout
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// TickInterval returns the scheduler tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Schedule.TickIntervalSeconds) * time.Second
}

// WindowWidth returns how long each publish or report window stays open.
func (c *Config) WindowWidth() time.Duration {
	return time.Duration(c.Schedule.WindowMinutes) * time.Minute
}

// TemplateMinWords returns the word floor for a content template, or zero when
// the template has no specific floor.
func (c *Config) TemplateMinWords(template string) int {
	if c.Quality.TemplateMinWords == nil {
		return 0
	}
	return c.Quality.TemplateMinWords[strings.ToLower(strings.TrimSpace(template))]
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
