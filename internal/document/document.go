package document

import (
	"strings"
	"time"
)

// Document is a content piece: an ordered metadata header and a Markdown body.
type Document struct {
	Header *Header
	Body   string
}

// New returns a document with an empty header.
func New(body string) Document {
	return Document{Header: NewHeader(), Body: body}
}

// Stage is the coarse lifecycle position recorded in the header. It is the
// source of truth; the directory holding the file mirrors it.
type Stage string

const (
	StageDraft     Stage = "draft"
	StageReview    Stage = "review"
	StageApproved  Stage = "approved"
	StagePublished Stage = "published"
)

var stageDirs = map[Stage]string{
	StageDraft:     "drafts",
	StageReview:    "review",
	StageApproved:  "approved",
	StagePublished: "published",
}

// Stages lists the lifecycle stages in order.
func Stages() []Stage {
	return []Stage{StageDraft, StageReview, StageApproved, StagePublished}
}

// ParseStage accepts a stage name or its directory name.
func ParseStage(value string) (Stage, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for stage, dir := range stageDirs {
		if value == string(stage) || value == dir {
			return stage, true
		}
	}
	return "", false
}

// Dir is the directory name that holds documents in this stage.
func (s Stage) Dir() string {
	return stageDirs[s]
}

func (s Stage) String() string { return string(s) }

// Header keys the pipeline reads or writes. Any other key is carried through
// untouched.
const (
	KeyTitle                = "title"
	KeySlug                 = "slug"
	KeyDescription          = "description"
	KeyKeywords             = "keywords"
	KeyPrimary              = "primary"
	KeySecondary            = "secondary"
	KeyCategory             = "category"
	KeyAuthor               = "author"
	KeyTemplate             = "template"
	KeySchemaType           = "schema_type"
	KeyStage                = "stage"
	KeyCreatedAt            = "created_at"
	KeyUpdatedAt            = "updated_at"
	KeyScheduledDate        = "scheduled_date"
	KeyPublishedAt          = "published_at"
	KeyMetaTitle            = "meta_title"
	KeyMetaDescription      = "meta_description"
	KeySEOScore             = "seo_score"
	KeyFeaturedImage        = "featured_image"
	KeyDestinationID        = "destination_id"
	KeyDestinationPublished = "destination_published"
	KeyRelatedPosts         = "related_posts"
	KeyCTA                  = "cta"
	KeyGeneration           = "generation"

	// legacy flat keyword fields
	keyPrimaryKeyword    = "primary_keyword"
	keySecondaryKeywords = "secondary_keywords"
)

// DefaultTemplate applies when the header names none.
const DefaultTemplate = "how-to"

func (d Document) Title() string { return strings.TrimSpace(d.Header.String(KeyTitle)) }
func (d Document) Slug() string  { return strings.TrimSpace(d.Header.String(KeySlug)) }

// Stage returns the header stage, defaulting to draft.
func (d Document) Stage() Stage {
	if stage, ok := ParseStage(d.Header.String(KeyStage)); ok {
		return stage
	}
	return StageDraft
}

// Description prefers meta_description over description.
func (d Document) Description() string {
	if desc := strings.TrimSpace(d.Header.String(KeyMetaDescription)); desc != "" {
		return desc
	}
	return strings.TrimSpace(d.Header.String(KeyDescription))
}

// PrimaryKeyword reads keywords.primary, falling back to primary_keyword.
func (d Document) PrimaryKeyword() string {
	if kw := d.Header.Map(KeyKeywords); kw != nil {
		if primary := strings.TrimSpace(kw.String(KeyPrimary)); primary != "" {
			return primary
		}
	}
	return strings.TrimSpace(d.Header.String(keyPrimaryKeyword))
}

// SecondaryKeywords reads keywords.secondary, falling back to
// secondary_keywords. Blank entries are dropped.
func (d Document) SecondaryKeywords() []string {
	var raw []string
	if kw := d.Header.Map(KeyKeywords); kw != nil {
		raw = kw.Strings(KeySecondary)
	}
	if len(raw) == 0 {
		raw = d.Header.Strings(keySecondaryKeywords)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (d Document) Template() string {
	if t := strings.ToLower(strings.TrimSpace(d.Header.String(KeyTemplate))); t != "" {
		return t
	}
	return DefaultTemplate
}

func (d Document) SchemaType() string { return strings.TrimSpace(d.Header.String(KeySchemaType)) }
func (d Document) Category() string   { return strings.TrimSpace(d.Header.String(KeyCategory)) }

// CTA returns the call-to-action text and URL.
func (d Document) CTA() (text, url string) {
	cta := d.Header.Map(KeyCTA)
	if cta == nil {
		return "", ""
	}
	return strings.TrimSpace(cta.String("text")), strings.TrimSpace(cta.String("url"))
}

// Score returns the recorded quality score, if any.
func (d Document) Score() (int, bool) {
	n, ok := d.Header.Int(KeySEOScore)
	return int(n), ok
}

// DestinationID is the CMS record id once the document has been pushed.
func (d Document) DestinationID() string {
	return strings.TrimSpace(d.Header.String(KeyDestinationID))
}

// FeaturedImage returns the image URL (or local path) and alt text.
func (d Document) FeaturedImage() (url, path, alt string) {
	img := d.Header.Map(KeyFeaturedImage)
	if img == nil {
		return "", "", ""
	}
	return img.String("url"), img.String("path"), img.String("alt")
}

// Timestamp formats t the way header timestamps are stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (d Document) String() string { return Serialize(d) }
