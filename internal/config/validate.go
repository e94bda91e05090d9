package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser is the five-field parser used for publish windows and the report
// schedule. CRON_TZ prefixes are accepted.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate ensures the configuration is usable. Credentials are not required
// here; stages report missing credentials when they are constructed.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateCMS(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ContentDir) == "" {
		return errors.New("paths.content_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if len(c.Schedule.PublishWindows) == 0 {
		return errors.New("schedule.publish_windows must include at least one cron spec")
	}
	for _, spec := range c.Schedule.PublishWindows {
		if _, err := CronParser.Parse(spec); err != nil {
			return fmt.Errorf("schedule.publish_windows %q: %w", spec, err)
		}
	}
	if c.Schedule.ReportSchedule != "" {
		if _, err := CronParser.Parse(c.Schedule.ReportSchedule); err != nil {
			return fmt.Errorf("schedule.report_schedule %q: %w", c.Schedule.ReportSchedule, err)
		}
	}
	if err := ensurePositiveMap(map[string]int{
		"schedule.window_minutes":        c.Schedule.WindowMinutes,
		"schedule.daily_quota":           c.Schedule.DailyQuota,
		"schedule.tick_interval_seconds": c.Schedule.TickIntervalSeconds,
		"schedule.event_log_limit":       c.Schedule.EventLogLimit,
	}); err != nil {
		return err
	}
	if c.TickInterval() > c.WindowWidth() {
		return errors.New("schedule.tick_interval_seconds must not exceed schedule.window_minutes or windows can be missed")
	}
	return nil
}

func (c *Config) validateQuality() error {
	q := c.Quality
	if q.PublishThreshold < 0 || q.PublishThreshold > 100 {
		return errors.New("quality.publish_threshold must be between 0 and 100")
	}
	if q.DescriptionMinLength > q.DescriptionMaxLength {
		return errors.New("quality.description_min_length must not exceed quality.description_max_length")
	}
	if q.LongParagraphRatio < 0 || q.LongParagraphRatio > 1 {
		return errors.New("quality.long_paragraph_ratio must be between 0 and 1")
	}
	if err := ensurePositiveMap(map[string]int{
		"quality.title_max_length":        q.TitleMaxLength,
		"quality.description_max_length":  q.DescriptionMaxLength,
		"quality.slug_max_length":         q.SlugMaxLength,
		"quality.min_word_count":          q.MinWordCount,
		"quality.min_internal_links":      q.MinInternalLinks,
		"quality.max_paragraph_sentences": q.MaxParagraphSentences,
	}); err != nil {
		return err
	}
	for template, floor := range q.TemplateMinWords {
		if floor < 0 {
			return fmt.Errorf("quality.template_min_words.%s must be >= 0", template)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.generate_timeout":      c.Workflow.GenerateTimeout,
		"workflow.illustrate_timeout":    c.Workflow.IllustrateTimeout,
		"workflow.gate_timeout":          c.Workflow.GateTimeout,
		"workflow.publish_timeout":       c.Workflow.PublishTimeout,
		"workflow.announce_timeout":      c.Workflow.AnnounceTimeout,
		"workflow.error_message_limit":   c.Workflow.ErrorMessageLimit,
		"notifications.request_timeout":  c.Notifications.RequestTimeout,
		"reporting.timeout_seconds":      c.Reporting.TimeoutSeconds,
		"indexing.timeout_seconds":       c.Indexing.TimeoutSeconds,
		"research.timeout_seconds":       c.Research.TimeoutSeconds,
		"generation.max_output_tokens":   c.Generation.MaxOutputTokens,
		"images.timeout_seconds":         c.Images.TimeoutSeconds,
		"anthropic.timeout_seconds":      c.Anthropic.TimeoutSeconds,
		"llm.timeout_seconds":            c.LLM.TimeoutSeconds,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGeneration() error {
	valid := map[string]bool{"anthropic": true, "openrouter": true}
	if !valid[c.Generation.Provider] {
		return fmt.Errorf("generation.provider %q must be anthropic or openrouter", c.Generation.Provider)
	}
	if c.Generation.Fallback != "" && !valid[c.Generation.Fallback] {
		return fmt.Errorf("generation.fallback %q must be anthropic, openrouter, or empty", c.Generation.Fallback)
	}
	if c.Generation.ResearchPages < 0 {
		return errors.New("generation.research_pages must be >= 0")
	}
	return nil
}

func (c *Config) validateCMS() error {
	if c.CMS.RequestsPerMinute <= 0 {
		return errors.New("cms.requests_per_minute must be positive")
	}
	if c.CMS.Burst <= 0 {
		return errors.New("cms.burst must be positive")
	}
	if c.CMS.MaxRetries < 0 {
		return errors.New("cms.max_retries must be >= 0")
	}
	if c.CMS.TimeoutSeconds <= 0 {
		return errors.New("cms.timeout_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
