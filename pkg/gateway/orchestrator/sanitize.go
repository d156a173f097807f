package orchestrator

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMaxInputLen caps cleaned input length in runes.
const DefaultMaxInputLen = 1000

// Volatile noise that fragments cache keys or leaks into prompts:
// timestamps, uuids, long hex/nonce runs, and bracketed metadata.
var (
	isoTimestampRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2})?(\.\d+)?(Z|[+-]\d{2}:?\d{2})?\b`)
	uuidRe         = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	hexRunRe       = regexp.MustCompile(`\b[0-9a-fA-F]{16,}\b`)
	bracketMetaRe  = regexp.MustCompile(`\[[^\[\]]*\]`)
)

// CleanInput normalizes raw user text: control characters stripped,
// volatile noise tokens removed, whitespace collapsed, and the result
// truncated to maxLen runes. maxLen <= 0 uses DefaultMaxInputLen.
func CleanInput(raw string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLen
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	text := b.String()

	text = isoTimestampRe.ReplaceAllString(text, " ")
	text = uuidRe.ReplaceAllString(text, " ")
	text = hexRunRe.ReplaceAllString(text, " ")
	text = bracketMetaRe.ReplaceAllString(text, " ")

	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > maxLen {
		text = strings.TrimSpace(string(runes[:maxLen]))
	}
	return text
}
