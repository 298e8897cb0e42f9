package models

import (
	"github.com/dfworx/chat-backend/pkg/apperror"
)

// MetadataVersion is the only metadata layout currently understood.
const MetadataVersion = 1

// MaxMetadataEntries bounds the size of any metadata map.
const MaxMetadataEntries = 32

// Metadata is a versioned key/value map attached to threads, messages, tags
// and attachments. Each entity kind has a fixed set of recognized keys.
type Metadata struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values,omitempty"`
}

// EntityKind names an entity that can carry metadata or tags.
type EntityKind string

const (
	KindThread     EntityKind = "thread"
	KindMessage    EntityKind = "message"
	KindTag        EntityKind = "tag"
	KindAttachment EntityKind = "attachment"
)

var recognizedMetadataKeys = map[EntityKind]map[string]struct{}{
	KindThread:     {"pinned": {}, "icon": {}, "source": {}},
	KindMessage:    {"client_id": {}, "format": {}, "source": {}},
	KindTag:        {"icon": {}, "sort_order": {}},
	KindAttachment: {"width": {}, "height": {}, "duration_seconds": {}},
}

// RecognizedMetadataKeys returns the keys accepted for kind.
func RecognizedMetadataKeys(kind EntityKind) []string {
	keys := make([]string, 0, len(recognizedMetadataKeys[kind]))
	for k := range recognizedMetadataKeys[kind] {
		keys = append(keys, k)
	}
	return keys
}

// Validate checks m against the key set of kind. A nil map is valid.
func (m *Metadata) Validate(kind EntityKind) error {
	if m == nil {
		return nil
	}
	if m.Version != MetadataVersion {
		return apperror.Validation("metadata.version", "unsupported version %d", m.Version)
	}
	if len(m.Values) > MaxMetadataEntries {
		return apperror.Validation("metadata", "at most %d entries allowed", MaxMetadataEntries)
	}
	allowed := recognizedMetadataKeys[kind]
	for k := range m.Values {
		if _, ok := allowed[k]; !ok {
			return apperror.Validation("metadata."+k, "key is not recognized for %s", kind)
		}
	}
	return nil
}

// Get returns the value for key, or "" when absent.
func (m *Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m.Values[key]
}
