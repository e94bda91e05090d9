package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a Work Item.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusStaged     Status = "staged"
	StatusPublished  Status = "published"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusGenerating,
	StatusStaged,
	StatusPublished,
	StatusSkipped,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether no further transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusSkipped
}

// Verdict is the validation outcome recorded against an item.
type Verdict string

const (
	VerdictNone    Verdict = ""
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// ParseVerdict normalizes a verdict string. Unknown values map to VerdictNone.
func ParseVerdict(value string) Verdict {
	switch Verdict(strings.ToLower(strings.TrimSpace(value))) {
	case VerdictApprove, "approved", "yes":
		return VerdictApprove
	case VerdictReject, "rejected", "no":
		return VerdictReject
	default:
		return VerdictNone
	}
}

// DefaultPriority is assigned to items inserted without one.
const DefaultPriority = 99

// ErrorMessageLimit bounds the error text stored on failed items.
const ErrorMessageLimit = 200

// Item represents a Work Item persisted in SQLite.
type Item struct {
	ID        string
	Priority  int
	CreatedAt time.Time
	UpdatedAt time.Time

	Keyword  string
	Title    string
	Template string
	Category string

	Validated bool
	Verdict   Verdict
	Rationale string

	Status          Status
	Slug            string
	StartedAt       time.Time
	FinishedAt      time.Time
	ErrorMessage    string
	DurationSeconds float64

	Version int64
}

// Eligible reports whether the item may be selected for a run.
func (i *Item) Eligible() bool {
	return i != nil && i.Status == StatusQueued && i.Verdict == VerdictApprove
}

// Clone returns a copy safe to mutate.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Patch describes a partial update applied by Store.Update. Nil fields are
// left unchanged. A non-zero ExpectVersion makes the update conditional on
// the stored version.
type Patch struct {
	ExpectVersion int64

	Status          *Status
	Priority        *int
	Title           *string
	Template        *string
	Category        *string
	Validated       *bool
	Verdict         *Verdict
	Rationale       *string
	Slug            *string
	StartedAt       *time.Time
	FinishedAt      *time.Time
	ErrorMessage    *string
	DurationSeconds *float64
}

// StatusPtr, StringPtr and friends build Patch fields inline.
func StatusPtr(s Status) *Status { return &s }
func StringPtr(s string) *string { return &s }
func IntPtr(v int) *int { return &v }
func BoolPtr(v bool) *bool { return &v }
func FloatPtr(v float64) *float64 { return &v }
func TimePtr(t time.Time) *time.Time { return &t }
func VerdictPtr(v Verdict) *Verdict { return &v }

func (p Patch) apply(item *Item) {
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.Priority != nil {
		item.Priority = *p.Priority
	}
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Template != nil {
		item.Template = *p.Template
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Validated != nil {
		item.Validated = *p.Validated
	}
	if p.Verdict != nil {
		item.Verdict = *p.Verdict
	}
	if p.Rationale != nil {
		item.Rationale = *p.Rationale
	}
	if p.Slug != nil {
		item.Slug = *p.Slug
	}
	if p.StartedAt != nil {
		item.StartedAt = p.StartedAt.UTC()
	}
	if p.FinishedAt != nil {
		item.FinishedAt = p.FinishedAt.UTC()
	}
	if p.ErrorMessage != nil {
		item.ErrorMessage = truncateMessage(*p.ErrorMessage)
	}
	if p.DurationSeconds != nil {
		item.DurationSeconds = *p.DurationSeconds
	}
}

func truncateMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	runes := []rune(msg)
	if len(runes) <= ErrorMessageLimit {
		return msg
	}
	return string(runes[:ErrorMessageLimit])
}

// EventType classifies Scheduler Log entries.
type EventType string

const (
	EventPublished EventType = "published"
	EventStaged    EventType = "staged"
	EventFailed    EventType = "failed"
)

// Event is one Scheduler Log entry.
type Event struct {
	ID              string
	Type            EventType
	ItemID          string
	Keyword         string
	Slug            string
	OccurredAt      time.Time
	DurationSeconds float64
	Error           string
}

// DayCounts holds the per-day outcome counters.
type DayCounts struct {
	Day       string
	Published int
	Staged    int
	Failed    int
}

// TrackedPost is the tracker row for one slug.
type TrackedPost struct {
	Slug          string
	Title         string
	Keyword       string
	Status        string
	Score         int
	DestinationID string
	URL           string
	PublishedAt   time.Time
	Clicks        int
	Impressions   int
	Position      float64
	UpdatedAt     time.Time
}

// TrackerPatch is a partial tracker update. Nil fields are left unchanged.
type TrackerPatch struct {
	Title         *string
	Keyword       *string
	Status        *string
	Score         *int
	DestinationID *string
	URL           *string
	PublishedAt   *time.Time
	Clicks        *int
	Impressions   *int
	Position      *float64
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	MissingColumns   []string // table.column
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// SchemaComplete reports whether every expected table and column exists.
func (h DatabaseHealth) SchemaComplete() bool {
	return h.DatabaseReadable && len(h.MissingTables) == 0 && len(h.MissingColumns) == 0
}

// HealthSummary describes aggregated queue counts per lifecycle group.
type HealthSummary struct {
	Total      int
	Queued     int
	Eligible   int
	Generating int
	Staged     int
	Published  int
	Skipped    int
	Failed     int
}
