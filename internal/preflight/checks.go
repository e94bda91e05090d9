package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"quill/internal/config"
	"quill/internal/services"
	"quill/internal/services/cms"
	"quill/internal/services/llm"
)

const checkTimeout = 30 * time.Second

// CheckLLM verifies that the chat completion API is reachable and the key is
// valid. It makes a single attempt.
func CheckLLM(ctx context.Context, name string, cfg config.LLM) Result {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckCMS fetches the configured collection with the configured token.
func CheckCMS(ctx context.Context, cfg config.CMS) Result {
	const name = "CMS"

	if strings.TrimSpace(cfg.APIBase) == "" {
		return Result{Name: name, Detail: "missing api_base"}
	}
	if strings.TrimSpace(cfg.APIToken) == "" || strings.TrimSpace(cfg.CollectionID) == "" {
		return Result{Name: name, Detail: "missing api_token or collection_id"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	cfg.MaxRetries = 0
	if err := cms.NewClient(cfg).HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "collection reachable"}
}

// CheckCredential reports whether a secret is present. envHint names the
// environment variable that can supply it.
func CheckCredential(name, value, envHint string) Result {
	if strings.TrimSpace(value) == "" {
		return Result{Name: name, Detail: fmt.Sprintf("credential missing (set %s)", envHint)}
	}
	return Result{Name: name, Passed: true, Detail: "credential present"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	return services.Details(err).Message
}
