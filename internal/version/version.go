// Package version computes and applies change lists between entry snapshots.
//
// Positions and lengths are measured in characters (runes). Diffs are
// whole-document: a changed text is described as a single replace at
// position 0. Snapshots, not diffs, are the source of truth for restore.
package version

import (
	"fmt"
	"unicode/utf8"

	"github.com/hpungsan/momentum/internal/errors"
)

// Operation is the kind of edit a Change describes.
type Operation string

const (
	OpInsert  Operation = "insert"
	OpDelete  Operation = "delete"
	OpReplace Operation = "replace"
)

// Change is one positional edit.
type Change struct {
	Operation Operation `json:"operation"`
	Position  int       `json:"position"`
	Content   string    `json:"content,omitempty"`
	Length    int       `json:"length,omitempty"`
}

// Diff returns the changes that turn oldText into newText.
// Equal texts yield an empty (non-nil) slice.
func Diff(oldText, newText string) []Change {
	if oldText == newText {
		return []Change{}
	}
	return []Change{{
		Operation: OpReplace,
		Position:  0,
		Content:   newText,
		Length:    utf8.RuneCountInString(oldText),
	}}
}

// Apply applies changes to base, processing them in reverse order so earlier
// positions stay valid. A replace with zero length is an insertion.
func Apply(base string, changes []Change) (string, error) {
	text := []rune(base)
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.Position < 0 || c.Position > len(text) {
			return "", errors.NewInvalidRequest(fmt.Sprintf(
				"change %d: position %d out of range [0,%d]", i, c.Position, len(text)))
		}

		switch c.Operation {
		case OpInsert:
			text = splice(text, c.Position, 0, c.Content)
		case OpDelete, OpReplace:
			if c.Length < 0 || c.Position+c.Length > len(text) {
				return "", errors.NewInvalidRequest(fmt.Sprintf(
					"change %d: length %d at position %d exceeds text length %d", i, c.Length, c.Position, len(text)))
			}
			content := c.Content
			if c.Operation == OpDelete {
				content = ""
			}
			text = splice(text, c.Position, c.Length, content)
		default:
			return "", errors.NewInvalidRequest(fmt.Sprintf("change %d: unknown operation %q", i, c.Operation))
		}
	}
	return string(text), nil
}

func splice(text []rune, pos, n int, content string) []rune {
	insert := []rune(content)
	out := make([]rune, 0, len(text)-n+len(insert))
	out = append(out, text[:pos]...)
	out = append(out, insert...)
	return append(out, text[pos+n:]...)
}

// Summarize describes changes for humans. Not used for reconstruction.
func Summarize(changes []Change) string {
	if len(changes) == 0 {
		return "no changes"
	}
	if len(changes) == 1 {
		return describe(changes[0])
	}
	return fmt.Sprintf("%d changes, first: %s", len(changes), describe(changes[0]))
}

func describe(c Change) string {
	added := utf8.RuneCountInString(c.Content)
	switch c.Operation {
	case OpInsert:
		return fmt.Sprintf("insert %d chars at %d", added, c.Position)
	case OpDelete:
		return fmt.Sprintf("delete %d chars at %d", c.Length, c.Position)
	default:
		return fmt.Sprintf("replace %d chars at %d with %d chars", c.Length, c.Position, added)
	}
}

// Step is one link of a replay chain: the change list recorded with a version
// and the snapshot it produced.
type Step struct {
	VersionID string
	Changes   []Change
	Snapshot  string
}

// Replay reconstructs the latest text by applying each step's changes in
// order, starting from the empty document. It fails if any intermediate
// result disagrees with the recorded snapshot.
func Replay(steps []Step) (string, error) {
	text := ""
	for _, s := range steps {
		next, err := Apply(text, s.Changes)
		if err != nil {
			return "", fmt.Errorf("replay %s: %w", s.VersionID, err)
		}
		if next != s.Snapshot {
			return "", errors.NewInternal(fmt.Errorf("replay %s: reconstructed text does not match snapshot", s.VersionID))
		}
		text = next
	}
	return text, nil
}
