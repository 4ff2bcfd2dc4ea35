package domain

import (
	"strings"
	"unicode/utf8"
)

// SanitizeCaption trims, drops NUL bytes and forces valid UTF-8 so the caption
// is safe for the database and for provider APIs.
func SanitizeCaption(caption string) string {
	caption = strings.TrimSpace(caption)
	caption = strings.ReplaceAll(caption, "\x00", "")
	if !utf8.ValidString(caption) {
		caption = strings.ToValidUTF8(caption, "")
	}
	return caption
}
