package illustration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/logging"
	"quill/internal/services"
	"quill/internal/services/imagegen"
	"quill/internal/stage"
)

// Renderer produces an image for a prompt and writes it to dst.
type Renderer interface {
	Render(ctx context.Context, prompt, dst string) (imagegen.Asset, error)
}

// Handler implements the illustrate stage.
type Handler struct {
	cfg      *config.Config
	library  *document.Library
	renderer Renderer
	enabled  bool
	now      func() time.Time
}

// NewHandler wires the illustrate stage. A nil renderer disables the stage.
func NewHandler(cfg *config.Config, library *document.Library, renderer Renderer) *Handler {
	enabled := cfg != nil && cfg.Images.Enabled && renderer != nil
	if client, ok := renderer.(*imagegen.Client); ok && !client.Configured() {
		enabled = false
	}
	return &Handler{cfg: cfg, library: library, renderer: renderer, enabled: enabled, now: time.Now}
}

// Enabled reports whether images will be rendered.
func (h *Handler) Enabled() bool { return h != nil && h.enabled }

// AssetPath returns where the image for slug is stored.
func (h *Handler) AssetPath(slug string) string {
	return filepath.Join(h.cfg.Paths.AssetsDir, slug+".png")
}

// Execute renders the featured image for run's document. Documents that
// already carry a featured image are left alone.
func (h *Handler) Execute(ctx context.Context, run *stage.Run) error {
	if !h.Enabled() {
		return nil
	}
	if run == nil || !run.HasDocument() {
		return services.Wrap(services.ErrInvariant, "illustrate", "execute", "no document to illustrate", nil)
	}
	logger := run.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	doc, rendered, err := h.Illustrate(ctx, run.Doc)
	if err != nil {
		return err
	}
	run.Doc = doc
	if rendered {
		url, path, _ := doc.FeaturedImage()
		logger.Info("featured image rendered",
			logging.String(logging.FieldSlug, run.Slug),
			logging.String("image_path", path),
			logging.String("image_url", url),
		)
	}
	return nil
}

// Illustrate renders and records a featured image for doc unless it already
// has one. The updated document is returned with rendered set when an image
// was produced.
func (h *Handler) Illustrate(ctx context.Context, doc document.Document) (document.Document, bool, error) {
	if url, path, _ := doc.FeaturedImage(); url != "" || path != "" {
		return doc, false, nil
	}
	slug := doc.Slug()
	if slug == "" {
		return doc, false, services.Wrap(services.ErrValidation, "illustrate", "execute", "document has no slug", nil)
	}
	title := firstNonEmpty(doc.Title(), slug)
	prompt := BuildPrompt(title, DetectTheme(title, doc.Template(), doc.Category()))

	dst := h.AssetPath(slug)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return doc, false, fmt.Errorf("create assets dir: %w", err)
	}
	asset, err := h.renderer.Render(ctx, prompt, dst)
	if err != nil {
		return doc, false, err
	}

	alt := title
	if brand := strings.TrimSpace(h.cfg.Site.Brand); brand != "" {
		alt = title + " - " + brand
	}
	image := document.HeaderFrom("path", asset.Path, "alt", alt)
	if asset.SourceURL != "" {
		image.Set("url", asset.SourceURL)
	}
	updated, _, err := h.library.Update(slug, document.HeaderFrom(
		document.KeyFeaturedImage, image,
		document.KeyUpdatedAt, document.Timestamp(h.now()),
	))
	if err != nil {
		return doc, false, fmt.Errorf("record featured image for %s: %w", slug, err)
	}
	return updated, true, nil
}

// HealthCheck reports whether image rendering is available.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	if !h.Enabled() {
		return stage.Off(stage.Illustrate, "image generation off or unconfigured")
	}
	return stage.Up(stage.Illustrate)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ stage.Handler = (*Handler)(nil)
