package entry

import "time"

// DefaultPreviewChars is the length, in characters, of the content preview
// returned by list and search.
const DefaultPreviewChars = 100

// ChangeType classifies a version.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
)

// Valid reports whether c is a known change type.
func (c ChangeType) Valid() bool {
	return c == ChangeCreate || c == ChangeUpdate
}

// Entry is a journal document with current content and stable identity.
type Entry struct {
	// ID is a ULID assigned at creation; never changes.
	ID string `json:"id"`

	// Content is the current full markdown text.
	Content string `json:"content"`

	// FilePath is the mirror location relative to the content store root.
	// Set once at creation (see FilePathFor).
	FilePath string `json:"file_path"`

	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is refreshed on every successful write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Version is an immutable full-text snapshot of an entry.
type Version struct {
	ID         string     `json:"id"`
	EntryID    string     `json:"entry_id"`
	Content    string     `json:"content"`
	ChangeType ChangeType `json:"change_type"`

	// Diff is a human-readable description of the change from the previous
	// version. Nil for the create version. Not used for reconstruction.
	Diff *string `json:"diff,omitempty"`

	// Timestamp is strictly increasing within one entry's history.
	Timestamp time.Time `json:"timestamp"`
}

// Metadata holds statistics derived from an entry's content.
// Recomputed on every write.
type Metadata struct {
	EntryID      string    `json:"entry_id"`
	WordCount    int       `json:"word_count"`
	Tags         []string  `json:"tags,omitempty"`
	ReadTime     int       `json:"read_time"` // minutes
	LastAccessed time.Time `json:"last_accessed"`
}

// Summary is the list/search projection of an entry: metadata and a bounded
// content preview, never the full body.
type Summary struct {
	ID             string    `json:"id"`
	FilePath       string    `json:"file_path"`
	Title          string    `json:"title"`
	ContentPreview string    `json:"content_preview"`
	WordCount      int       `json:"word_count"`
	Tags           []string  `json:"tags,omitempty"`
	ReadTime       int       `json:"read_time"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FilePathFor returns the deterministic mirror path for an entry id.
func FilePathFor(id string) string {
	return "entries/" + id + ".md"
}

// DeriveMetadata computes the derived statistics for content.
func DeriveMetadata(entryID, content string, at time.Time) Metadata {
	words := WordCount(content)
	return Metadata{
		EntryID:      entryID,
		WordCount:    words,
		Tags:         ExtractTags(content),
		ReadTime:     ReadTime(words),
		LastAccessed: at,
	}
}

// ToSummary converts an Entry to a Summary by truncating the content.
func (e *Entry) ToSummary(meta *Metadata, previewChars int) Summary {
	preview := Preview(e.Content, previewChars)
	s := Summary{
		ID:             e.ID,
		FilePath:       e.FilePath,
		Title:          ExtractTitle(preview),
		ContentPreview: preview,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	if meta != nil {
		s.WordCount = meta.WordCount
		s.Tags = meta.Tags
		s.ReadTime = meta.ReadTime
	}
	return s
}
