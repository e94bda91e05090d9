package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/fileutil"
	"quill/internal/services"
)

const (
	defaultTimeout = 55 * time.Second
	maxImageBytes  = 20 << 20
)

// HTTPDoer describes the HTTP client used by the image client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Asset describes an image written to disk.
type Asset struct {
	Path      string
	SourceURL string
	Bytes     int64
	SHA256    string
}

// Client calls the image generation endpoint.
type Client struct {
	apiKey   string
	endpoint string
	model    string
	size     string
	http     HTTPDoer
}

// NewClient builds an image client. The endpoint is the full generation URL.
func NewClient(cfg config.Images, doer HTTPDoer) *Client {
	if doer == nil {
		timeout := defaultTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		endpoint: strings.TrimSpace(cfg.BaseURL),
		model:    strings.TrimSpace(cfg.Model),
		size:     strings.TrimSpace(cfg.Size),
		http:     doer,
	}
}

// Configured reports whether credentials and an endpoint are present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != "" && c.endpoint != ""
}

type generateRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n"`
}

type generateResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Render generates an image for prompt and writes it to dst.
func (c *Client) Render(ctx context.Context, prompt, dst string) (Asset, error) {
	if !c.Configured() {
		return Asset{}, services.Wrap(services.ErrConfiguration, "illustrate", "render image", "image generation is not configured", nil)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Asset{}, services.Wrap(services.ErrValidation, "illustrate", "render image", "prompt is empty", nil)
	}
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Size: c.size, N: 1})
	if err != nil {
		return Asset{}, fmt.Errorf("encode image request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Asset{}, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "illustrate", "render image", "image request failed", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes*2))
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "illustrate", "render image", "read image response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Asset{}, services.Wrap(services.ErrExternalTool, "illustrate", "render image",
			fmt.Sprintf("image api returned %d: %s", resp.StatusCode, services.Truncate(strings.TrimSpace(string(payload)), 200)), nil)
	}
	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Asset{}, services.Wrap(services.ErrExternalTool, "illustrate", "render image", "decode image response", err)
	}
	if decoded.Error != nil {
		return Asset{}, services.Wrap(services.ErrExternalTool, "illustrate", "render image", decoded.Error.Message, nil)
	}

	switch {
	case len(decoded.Data) > 0 && decoded.Data[0].B64JSON != "":
		raw, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
		if err != nil {
			return Asset{}, services.Wrap(services.ErrExternalTool, "illustrate", "render image", "decode inline image", err)
		}
		return store(dst, "", bytes.NewReader(raw))
	case len(decoded.Data) > 0 && decoded.Data[0].URL != "":
		return c.download(ctx, decoded.Data[0].URL, dst)
	case len(decoded.Images) > 0 && decoded.Images[0].URL != "":
		return c.download(ctx, decoded.Images[0].URL, dst)
	}
	return Asset{}, services.Wrap(services.ErrExternalTool, "illustrate", "render image", "no image returned", nil)
}

func (c *Client) download(ctx context.Context, imageURL, dst string) (Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return Asset{}, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "illustrate", "download image", "image download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Asset{}, services.Wrap(services.ErrExternalTool, "illustrate", "download image", fmt.Sprintf("download returned %d", resp.StatusCode), nil)
	}
	return store(dst, imageURL, resp.Body)
}

func store(dst, source string, r io.Reader) (Asset, error) {
	written, digest, err := fileutil.SaveStream(dst, r, maxImageBytes)
	if err != nil {
		return Asset{}, fmt.Errorf("save image %s: %w", dst, err)
	}
	return Asset{Path: dst, SourceURL: source, Bytes: written, SHA256: digest}, nil
}
