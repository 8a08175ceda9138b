package entry

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	// UntitledTitle is used when an entry's first line is blank.
	UntitledTitle = "Untitled"

	maxTitleChars  = 50
	wordsPerMinute = 200
)

var (
	headingPrefix = regexp.MustCompile(`^#{1,6}\s+`)
	hashtag       = regexp.MustCompile(`(?:^|\s)#(\p{L}[\p{L}\p{N}_-]*)`)
)

// ExtractTitle derives a display title from content:
// 1. Take the first non-blank line, trimmed
// 2. Strip a leading markdown heading marker (# through ###### plus whitespace)
// 3. Truncate to 50 characters (47 + "...")
// Content with no text yields "Untitled".
func ExtractTitle(content string) string {
	var line string
	for l := range strings.Lines(content) {
		if line = strings.TrimSpace(l); line != "" {
			break
		}
	}
	if line == "" {
		return UntitledTitle
	}

	title := headingPrefix.ReplaceAllString(line, "")
	if title == "" {
		return UntitledTitle
	}

	if utf8.RuneCountInString(title) > maxTitleChars {
		return string([]rune(title)[:maxTitleChars-3]) + "..."
	}
	return title
}

// WordCount returns the number of whitespace-separated words.
func WordCount(content string) int {
	return len(strings.Fields(content))
}

// ReadTime estimates reading time in whole minutes (rounded up).
func ReadTime(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + wordsPerMinute - 1) / wordsPerMinute
}

// ExtractTags returns the inline #hashtags in content, lowercased, deduplicated
// and sorted. Markdown headings ("# Title") are not tags.
func ExtractTags(content string) []string {
	matches := hashtag.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	slices.Sort(tags)
	return tags
}

// Preview returns the first n characters (runes) of content.
func Preview(content string, n int) string {
	if n <= 0 {
		n = DefaultPreviewChars
	}
	if utf8.RuneCountInString(content) <= n {
		return content
	}
	return string([]rune(content)[:n])
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}
