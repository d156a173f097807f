package phrase

import (
	"strings"
	"sync"
)

const (
	// DefaultMinWords is the smallest phrase a punctuation break may emit.
	DefaultMinWords = 10
	// DefaultMaxWords caps phrase length regardless of punctuation.
	DefaultMaxWords = 20

	terminalPunctuation = ".!?"
)

// Buffer accumulates incremental text fragments and emits word-bounded
// phrases suitable for downstream playout. A phrase is emitted when either
// the buffered complete-word count reaches the maximum, or it has reached
// the minimum and the buffer ends in sentence-terminal punctuation followed
// by whitespace. A word is only "complete" once trailing whitespace confirms
// it, so fragments split mid-word never produce broken phrases.
type Buffer struct {
	mu       sync.Mutex
	text     strings.Builder
	minWords int
	maxWords int
}

// NewBuffer creates a phrase buffer with the default thresholds.
func NewBuffer() *Buffer {
	return NewBufferWithThresholds(DefaultMinWords, DefaultMaxWords)
}

// NewBufferWithThresholds creates a phrase buffer with explicit word
// thresholds. Non-positive values fall back to the defaults.
func NewBufferWithThresholds(minWords, maxWords int) *Buffer {
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if maxWords < minWords {
		maxWords = minWords
	}
	return &Buffer{minWords: minWords, maxWords: maxWords}
}

// Push appends a text fragment and returns any phrases that became ready,
// in order. Returns nil when everything is still buffered.
func (b *Buffer) Push(fragment string) []string {
	if fragment == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.text.WriteString(fragment)

	var phrases []string
	for {
		phrase, ok := b.takeLocked()
		if !ok {
			break
		}
		phrases = append(phrases, phrase)
	}
	return phrases
}

// Flush force-emits any remaining buffered words and resets the buffer.
// Returns the empty string when nothing is buffered.
func (b *Buffer) Flush() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	remainder := strings.Join(strings.Fields(b.text.String()), " ")
	b.text.Reset()
	return remainder
}

// Reset clears the buffer without emitting. Used on interrupt.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.Reset()
}

// Len reports the buffered byte count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.Len()
}

// takeLocked extracts one ready phrase, if any. Must hold mu.
func (b *Buffer) takeLocked() (string, bool) {
	content := b.text.String()
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return "", false
	}

	endsWithSpace := endsInWhitespace(content)

	// The trailing field is an unconfirmed partial word until whitespace
	// follows it.
	complete := fields
	if !endsWithSpace {
		complete = fields[:len(fields)-1]
	}

	if len(complete) >= b.maxWords {
		phrase := strings.Join(complete[:b.maxWords], " ")
		b.retainLocked(append(complete[b.maxWords:], partialTail(fields, endsWithSpace)...), endsWithSpace)
		return phrase, true
	}

	trimmed := strings.TrimRight(content, " \t\r\n")
	if endsWithSpace && len(complete) >= b.minWords && endsInTerminalPunctuation(trimmed) {
		phrase := strings.Join(complete, " ")
		b.text.Reset()
		return phrase, true
	}

	return "", false
}

// retainLocked rewrites the buffer with the remaining words. A trailing
// separator is kept so the next fragment starts a fresh word, unless the
// last retained word is still partial.
func (b *Buffer) retainLocked(words []string, endsWithSpace bool) {
	b.text.Reset()
	if len(words) == 0 {
		return
	}
	b.text.WriteString(strings.Join(words, " "))
	if endsWithSpace {
		b.text.WriteString(" ")
	}
}

func partialTail(fields []string, endsWithSpace bool) []string {
	if endsWithSpace || len(fields) == 0 {
		return nil
	}
	return fields[len(fields)-1:]
}

func endsInWhitespace(s string) bool {
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func endsInTerminalPunctuation(s string) bool {
	if s == "" {
		return false
	}
	return strings.ContainsRune(terminalPunctuation, rune(s[len(s)-1]))
}
