package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSite()
	c.normalizeSchedule()
	c.normalizeQuality()
	c.normalizeGeneration()
	c.normalizeSecrets()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.content_dir", &c.Paths.ContentDir, defaultContentDir},
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.assets_dir", &c.Paths.AssetsDir, defaultAssetsDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeSite() {
	c.Site.BaseURL = strings.TrimRight(strings.TrimSpace(c.Site.BaseURL), "/")
	if value, ok := os.LookupEnv("SITE_URL"); ok && c.Site.BaseURL == "" {
		c.Site.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
	}
	c.Site.BlogPath = strings.TrimSpace(c.Site.BlogPath)
	if c.Site.BlogPath != "" && !strings.HasPrefix(c.Site.BlogPath, "/") {
		c.Site.BlogPath = "/" + c.Site.BlogPath
	}
	c.Site.BlogPath = strings.TrimRight(c.Site.BlogPath, "/")
	c.Site.Domain = strings.ToLower(strings.TrimSpace(c.Site.Domain))
	if c.Site.Domain == "" && c.Site.BaseURL != "" {
		host := c.Site.BaseURL
		if idx := strings.Index(host, "://"); idx >= 0 {
			host = host[idx+3:]
		}
		if idx := strings.IndexAny(host, "/:"); idx >= 0 {
			host = host[:idx]
		}
		c.Site.Domain = strings.TrimPrefix(strings.ToLower(host), "www.")
	}
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Timezone = strings.TrimSpace(c.Schedule.Timezone)
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "UTC"
	}
	windows := c.Schedule.PublishWindows[:0]
	for _, spec := range c.Schedule.PublishWindows {
		if trimmed := strings.TrimSpace(spec); trimmed != "" {
			windows = append(windows, trimmed)
		}
	}
	c.Schedule.PublishWindows = windows
	c.Schedule.ReportSchedule = strings.TrimSpace(c.Schedule.ReportSchedule)
	if c.Schedule.EventLogLimit == 0 {
		c.Schedule.EventLogLimit = defaultEventLogLimit
	}
}

func (c *Config) normalizeQuality() {
	if len(c.Quality.TemplateMinWords) > 0 {
		normalized := make(map[string]int, len(c.Quality.TemplateMinWords))
		for key, value := range c.Quality.TemplateMinWords {
			normalized[strings.ToLower(strings.TrimSpace(key))] = value
		}
		c.Quality.TemplateMinWords = normalized
	}
	c.Quality.GuideTemplates = lowerAll(c.Quality.GuideTemplates)
	c.Quality.AuthorityDomains = lowerAll(c.Quality.AuthorityDomains)
}

func (c *Config) normalizeGeneration() {
	c.Generation.Provider = strings.ToLower(strings.TrimSpace(c.Generation.Provider))
	if c.Generation.Provider == "" {
		c.Generation.Provider = "anthropic"
	}
	c.Generation.Fallback = strings.ToLower(strings.TrimSpace(c.Generation.Fallback))
	if c.Generation.Fallback == c.Generation.Provider {
		c.Generation.Fallback = ""
	}
}

// normalizeSecrets fills credentials from the environment when the config
// file leaves them blank.
func (c *Config) normalizeSecrets() {
	fillFromEnv(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY", "CLAUDE_API_KEY")
	fillFromEnv(&c.LLM.APIKey, "OPENROUTER_API_KEY")
	fillFromEnv(&c.Research.APIKey, "RESEARCH_API_KEY", "FIRECRAWL_API_KEY")
	fillFromEnv(&c.Images.APIKey, "IMAGE_API_KEY", "OPENAI_API_KEY")
	fillFromEnv(&c.CMS.APIToken, "CMS_API_TOKEN", "WEBFLOW_API_TOKEN")
	fillFromEnv(&c.CMS.CollectionID, "CMS_COLLECTION_ID", "WEBFLOW_COLLECTION_ID")
	fillFromEnv(&c.Indexing.AccessToken, "INDEXING_TOKEN")
	fillFromEnv(&c.Reporting.APIKey, "RESEND_API_KEY")
	fillFromEnv(&c.Reporting.Recipient, "REPORT_EMAIL")
	fillFromEnv(&c.Reporting.From, "REPORT_FROM")
	fillFromEnv(&c.Notifications.NtfyTopic, "NTFY_TOPIC")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func fillFromEnv(target *string, keys ...string) {
	*target = strings.TrimSpace(*target)
	if *target != "" {
		return
	}
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
			return
		}
	}
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.ToLower(strings.TrimSpace(value)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
