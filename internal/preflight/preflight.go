package preflight

import (
	"context"
	"strings"

	"quill/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks that apply to cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Content directory", cfg.Paths.ContentDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
	}
	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}
	if cfg.Images.Enabled && cfg.Paths.AssetsDir != "" {
		results = append(results, CheckDirectoryAccess("Assets directory", cfg.Paths.AssetsDir))
	}

	for _, name := range providers(cfg) {
		switch name {
		case "anthropic":
			results = append(results, CheckCredential("Anthropic", cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY"))
		case "openrouter":
			results = append(results, CheckLLM(ctx, "OpenRouter", cfg.LLM))
		}
	}
	if cfg.Generation.ResearchEnabled {
		results = append(results, CheckCredential("Research", cfg.Research.APIKey, "RESEARCH_API_KEY"))
	}
	if cfg.Images.Enabled {
		results = append(results, CheckCredential("Images", cfg.Images.APIKey, "IMAGE_API_KEY"))
	}
	results = append(results, CheckCMS(ctx, cfg.CMS))
	if cfg.Indexing.Enabled {
		results = append(results, CheckCredential("Indexing", cfg.Indexing.AccessToken, "INDEXING_TOKEN"))
	}
	return results
}

// providers lists the configured generation providers without duplicates.
func providers(cfg *config.Config) []string {
	var out []string
	for _, name := range []string{cfg.Generation.Provider, cfg.Generation.Fallback} {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || (len(out) > 0 && out[0] == name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
