package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"quill/internal/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY", "CMS_API_TOKEN", "REPORT_EMAIL", "SITE_URL", "ENV_FILE"} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
	return home
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	home := isolate(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantContent := filepath.Join(home, ".local", "share", "quill", "content")
	if cfg.Paths.ContentDir != wantContent {
		t.Fatalf("unexpected content dir: got %q want %q", cfg.Paths.ContentDir, wantContent)
	}
	if cfg.QueueDBPath() != filepath.Join(home, ".local", "share", "quill", "data", "queue.db") {
		t.Fatalf("unexpected queue db path: %q", cfg.QueueDBPath())
	}
	if cfg.Schedule.DailyQuota != 3 {
		t.Fatalf("expected default quota 3, got %d", cfg.Schedule.DailyQuota)
	}
	if len(cfg.Schedule.PublishWindows) != 3 {
		t.Fatalf("expected three default publish windows, got %v", cfg.Schedule.PublishWindows)
	}
	if cfg.StageTimeout("generate") != 180*time.Second {
		t.Fatalf("unexpected generate timeout: %s", cfg.StageTimeout("generate"))
	}
	if cfg.StageTimeout("unknown") != 0 {
		t.Fatal("expected zero timeout for unknown stage")
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", cfg.Location())
	}
}

func TestLoadCustomConfigAndEnvFallbacks(t *testing.T) {
	isolate(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CMS_API_TOKEN", "cms-token")

	dir := t.TempDir()
	path := filepath.Join(dir, "quill.toml")
	content := `
[paths]
content_dir = "` + filepath.Join(dir, "content") + `"
data_dir = "` + filepath.Join(dir, "data") + `"

[site]
base_url = "https://www.tradeguide.example/"
blog_path = "articles/"

[schedule]
daily_quota = 5
publish_windows = ["30 9 * * 1-5"]

[quality.template_min_words]
how-to = 1800
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Anthropic.APIKey != "sk-test" {
		t.Fatalf("expected anthropic key from env, got %q", cfg.Anthropic.APIKey)
	}
	if cfg.CMS.APIToken != "cms-token" {
		t.Fatalf("expected cms token from env, got %q", cfg.CMS.APIToken)
	}
	if cfg.Site.Domain != "tradeguide.example" {
		t.Fatalf("expected domain derived from base url, got %q", cfg.Site.Domain)
	}
	if got := cfg.PostURL("best-brokers"); got != "https://www.tradeguide.example/articles/best-brokers" {
		t.Fatalf("unexpected post url %q", got)
	}
	if cfg.Schedule.DailyQuota != 5 {
		t.Fatalf("expected quota override, got %d", cfg.Schedule.DailyQuota)
	}
	if cfg.TemplateMinWords("how-to") != 1800 {
		t.Fatalf("expected template floor override, got %d", cfg.TemplateMinWords("how-to"))
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	isolate(t)
	if err := os.WriteFile(".env", []byte("REPORT_EMAIL=ops@example.com\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	os.Unsetenv("REPORT_EMAIL")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Reporting.Recipient != "ops@example.com" {
		t.Fatalf("expected recipient from .env, got %q", cfg.Reporting.Recipient)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad window", func(c *config.Config) { c.Schedule.PublishWindows = []string{"not a cron"} }, "schedule.publish_windows"},
		{"no windows", func(c *config.Config) { c.Schedule.PublishWindows = nil }, "at least one"},
		{"bad report", func(c *config.Config) { c.Schedule.ReportSchedule = "61 * * * *" }, "schedule.report_schedule"},
		{"zero quota", func(c *config.Config) { c.Schedule.DailyQuota = 0 }, "schedule.daily_quota"},
		{"threshold", func(c *config.Config) { c.Quality.PublishThreshold = 101 }, "publish_threshold"},
		{"provider", func(c *config.Config) { c.Generation.Provider = "mystery" }, "generation.provider"},
		{"tick", func(c *config.Config) { c.Schedule.TickIntervalSeconds = 3600 }, "tick_interval_seconds"},
		{"timezone", func(c *config.Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.ContentDir = t.TempDir()
			cfg.Paths.DataDir = t.TempDir()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestEnsureDirectoriesCreatesLifecycleDirs(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ContentDir = filepath.Join(base, "content")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.AssetsDir = filepath.Join(base, "assets")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, name := range config.LifecycleDirs {
		if info, err := os.Stat(filepath.Join(cfg.Paths.ContentDir, name)); err != nil || !info.IsDir() {
			t.Fatalf("expected lifecycle dir %s: %v", name, err)
		}
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Quality.TemplateMinWords["how-to"] != 1500 {
		t.Fatalf("expected template floors in sample, got %v", cfg.Quality.TemplateMinWords)
	}
}
