package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TagCategory groups tags; fixed at creation.
type TagCategory string

const (
	TagApp      TagCategory = "app"
	TagTopic    TagCategory = "topic"
	TagDecision TagCategory = "decision"
	TagStatus   TagCategory = "status"
	TagPriority TagCategory = "priority"
)

// Valid reports whether c is a known category.
func (c TagCategory) Valid() bool {
	switch c {
	case TagApp, TagTopic, TagDecision, TagStatus, TagPriority:
		return true
	}
	return false
}

// Tag is an organization-scoped label. Slug is unique per organization.
type Tag struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Slug           string      `json:"slug"`
	Color          string      `json:"color"`
	Category       TagCategory `json:"category"`
	Description    string      `json:"description,omitempty"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	CreatedBy      uuid.UUID   `json:"created_by"`
	IsActive       bool        `json:"is_active"`
	Metadata       *Metadata   `json:"metadata,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TagFilter narrows ListTags.
type TagFilter struct {
	Category *TagCategory
	IsActive *bool
	Query    string
}

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	hexColor     = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// Slugify lowercases name, turns every run of non-alphanumerics into a single
// hyphen and trims hyphens at both ends. "Bug!" and "bug" both yield "bug".
func Slugify(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// ValidColor reports whether color is #RGB or #RRGGBB.
func ValidColor(color string) bool {
	return hexColor.MatchString(color)
}

// TagLink is a MessageTag or ThreadTag join row.
type TagLink struct {
	ID             uuid.UUID  `json:"id"`
	Kind           EntityKind `json:"kind"`
	EntityID       uuid.UUID  `json:"entity_id"`
	TagID          uuid.UUID  `json:"tag_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	CreatedAt      time.Time  `json:"created_at"`
}
