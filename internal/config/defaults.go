package config

const (
	defaultContentDir          = "~/.local/share/quill/content"
	defaultDataDir             = "~/.local/share/quill/data"
	defaultLogDir              = "~/.local/share/quill/logs"
	defaultOutputDir           = "~/.local/share/quill/output"
	defaultAssetsDir           = "~/.local/share/quill/assets"
	defaultLogRetentionDays    = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultBlogPath            = "/blog"
	defaultWindowMinutes       = 5
	defaultDailyQuota          = 3
	defaultTickIntervalSeconds = 300
	defaultReportSchedule      = "0 18 * * 0"
	defaultEventLogLimit       = 500
	defaultPublishThreshold    = 70
	defaultErrorMessageLimit   = 200
	defaultAnthropicModel      = "claude-sonnet-4-5"
	defaultAnthropicBaseURL    = "https://api.anthropic.com"
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "anthropic/claude-sonnet-4.5"
	defaultLLMReferer          = "https://github.com/quill-pipeline/quill"
	defaultLLMTitle            = "quill"
	defaultResearchBaseURL     = "https://api.firecrawl.dev/v1"
	defaultResearchUserAgent   = "quill/1.0 (+content pipeline)"
	defaultImagesBaseURL       = "https://api.openai.com/v1/images/generations"
	defaultImagesModel         = "gpt-image-1"
	defaultImagesSize          = "1536x1024"
	defaultCMSAPIBase          = "https://api.webflow.com/v2"
	defaultIndexingEndpoint    = "https://indexing.googleapis.com/v3/urlNotifications:publish"
	defaultReportingBaseURL    = "https://api.resend.com"
)

var (
	defaultPublishWindows = []string{"0 8 * * *", "0 12 * * *", "0 16 * * *"}

	defaultAuthorityDomains = []string{
		"investopedia.com", "tradingview.com", "forbes.com", "bloomberg.com",
		"wsj.com", "reuters.com", "cftc.gov", "sec.gov", "finra.org",
		"babypips.com", "dailyfx.com", "myfxbook.com",
	}

	defaultTemplateMinWords = map[string]int{
		"guide":      2000,
		"how-to":     1500,
		"comparison": 1500,
		"listicle":   1200,
		"review":     1500,
	}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	templateFloors := make(map[string]int, len(defaultTemplateMinWords))
	for k, v := range defaultTemplateMinWords {
		templateFloors[k] = v
	}
	return Config{
		Paths: Paths{
			ContentDir: defaultContentDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			OutputDir:  defaultOutputDir,
			AssetsDir:  defaultAssetsDir,
		},
		Site: Site{
			BlogPath: defaultBlogPath,
		},
		Schedule: Schedule{
			Timezone:            "UTC",
			PublishWindows:      append([]string(nil), defaultPublishWindows...),
			WindowMinutes:       defaultWindowMinutes,
			DailyQuota:          defaultDailyQuota,
			TickIntervalSeconds: defaultTickIntervalSeconds,
			ReportSchedule:      defaultReportSchedule,
			EventLogLimit:       defaultEventLogLimit,
		},
		Quality: Quality{
			PublishThreshold:      defaultPublishThreshold,
			TitleMaxLength:        60,
			DescriptionMinLength:  120,
			DescriptionMaxLength:  160,
			SlugMaxLength:         60,
			MinWordCount:          1000,
			TemplateMinWords:      templateFloors,
			MinInternalLinks:      3,
			MaxParagraphSentences: 5,
			LongParagraphRatio:    0.3,
			GuideTemplates:        []string{"guide", "how-to"},
			AuthorityDomains:      append([]string(nil), defaultAuthorityDomains...),
		},
		Workflow: Workflow{
			GenerateTimeout:   180,
			IllustrateTimeout: 60,
			GateTimeout:       30,
			PublishTimeout:    60,
			AnnounceTimeout:   30,
			ErrorMessageLimit: defaultErrorMessageLimit,
		},
		Generation: Generation{
			Provider:        "anthropic",
			Fallback:        "openrouter",
			MaxOutputTokens: 8000,
			ResearchEnabled: true,
			ResearchPages:   3,
			InternalLinks:   8,
		},
		Anthropic: Anthropic{
			BaseURL:        defaultAnthropicBaseURL,
			Model:          defaultAnthropicModel,
			TimeoutSeconds: 170,
			InputCostPerM:  3,
			OutputCostPerM: 15,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: 170,
		},
		Research: Research{
			BaseURL:           defaultResearchBaseURL,
			SearchLimit:       5,
			TimeoutSeconds:    30,
			RequestsPerSecond: 2,
			UserAgent:         defaultResearchUserAgent,
		},
		Images: Images{
			Enabled:        true,
			BaseURL:        defaultImagesBaseURL,
			Model:          defaultImagesModel,
			Size:           defaultImagesSize,
			TimeoutSeconds: 55,
		},
		CMS: CMS{
			APIBase:           defaultCMSAPIBase,
			RequestsPerMinute: 60,
			Burst:             1,
			MaxRetries:        3,
			TimeoutSeconds:    30,
			PublishLive:       true,
		},
		Indexing: Indexing{
			Enabled:        true,
			Endpoint:       defaultIndexingEndpoint,
			TimeoutSeconds: 25,
		},
		Reporting: Reporting{
			BaseURL:        defaultReportingBaseURL,
			TimeoutSeconds: 20,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Published:      true,
			Failures:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
