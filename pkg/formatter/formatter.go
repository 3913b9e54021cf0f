// Package formatter fits generated text to a platform's post rules.
package formatter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sipeed/picopost/pkg/pipeline"
)

const ellipsis = "…"

var quoteReplacer = strings.NewReplacer(
	`"`, "",
	"“", "",
	"”", "",
	"„", "",
	"«", "",
	"»", "",
)

// Formatter normalises generated statements: no quotes, one statement per
// paragraph, no trailing periods, lowercase start.
type Formatter struct{}

func New() *Formatter {
	return &Formatter{}
}

func (f *Formatter) Format(raw pipeline.RawOutput, maxLength int) pipeline.Content {
	return Format(raw.Text, maxLength)
}

// Format normalises text and fits it into maxLength runes. Whole statements
// are dropped from the end first; a single oversized statement is cut on a
// word boundary.
func Format(text string, maxLength int) pipeline.Content {
	statements := splitStatements(quoteReplacer.Replace(text))
	if len(statements) == 0 {
		return pipeline.Content{}
	}
	statements[0] = lowerFirst(statements[0])

	out := strings.Join(statements, "\n\n")
	if maxLength <= 0 || utf8.RuneCountInString(out) <= maxLength {
		return pipeline.Content{Text: out}
	}

	for len(statements) > 1 {
		statements = statements[:len(statements)-1]
		out = strings.Join(statements, "\n\n")
		if utf8.RuneCountInString(out) <= maxLength {
			return pipeline.Content{Text: out, Truncated: true}
		}
	}

	return pipeline.Content{Text: cutWords(out, maxLength), Truncated: true}
}

func splitStatements(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		line = strings.TrimRight(line, ".")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return s
	}
	// Leave acronyms such as "AI" alone.
	if next, _ := utf8.DecodeRuneInString(s[size:]); unicode.IsUpper(next) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func cutWords(s string, maxLength int) string {
	limit := maxLength - utf8.RuneCountInString(ellipsis)
	if limit <= 0 {
		return string([]rune(s)[:maxLength])
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if !unicode.IsSpace(runes[limit]) {
		if i := strings.LastIndexAny(cut, " \n"); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRight(cut, " \n,;:.") + ellipsis
}
