package publishing

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"quill/internal/document"
	"quill/internal/fileutil"
	"quill/internal/services/cms"
)

// Destination collection field names.
const (
	FieldName      = "name"
	FieldSlug      = "slug"
	FieldBody      = "post-body"
	FieldSummary   = "post-summary"
	FieldThumbnail = "thumbnail"
	FieldThumbAlt  = "thumbnail-alt"
	FieldCategory  = "category"
	FieldSEOTitle  = "seo-title"
	FieldSEODesc   = "seo-description"
)

// FieldData maps a document onto the destination collection fields.
func FieldData(doc document.Document) map[string]any {
	title := firstNonEmpty(doc.Header.String(document.KeyMetaTitle), doc.Title())
	summary := firstNonEmpty(doc.Description(), doc.Header.String(document.KeyMetaDescription))
	fields := map[string]any{
		FieldName:     title,
		FieldSlug:     doc.Slug(),
		FieldBody:     document.ToHTML(doc.Body),
		FieldSummary:  summary,
		FieldSEOTitle: title,
		FieldSEODesc:  firstNonEmpty(doc.Header.String(document.KeyMetaDescription), summary),
	}
	if category := doc.Category(); category != "" {
		fields[FieldCategory] = category
	}
	if url, _, alt := doc.FeaturedImage(); url != "" {
		fields[FieldThumbnail] = url
		if alt != "" {
			fields[FieldThumbAlt] = alt
		}
	}
	return fields
}

// PayloadPath returns where the payload for slug is written.
func PayloadPath(outputDir, slug string) string {
	return filepath.Join(outputDir, "html", slug+".json")
}

// WritePayload stores the record exactly as it would be sent.
func WritePayload(outputDir, slug string, record cms.Record) (string, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	path := PayloadPath(outputDir, slug)
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write payload %s: %w", path, err)
	}
	return path, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
