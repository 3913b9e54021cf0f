package utils

import (
	"path"
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most maxLen runes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// IsImageFile reports whether an attachment looks like an image, preferring
// the declared content type and falling back to the file extension.
func IsImageFile(filename, contentType string) bool {
	if contentType != "" {
		return strings.HasPrefix(strings.ToLower(contentType), "image/")
	}
	return imageExtensions[strings.ToLower(path.Ext(filename))]
}
