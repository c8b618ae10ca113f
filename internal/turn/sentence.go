package turn

import (
	"strings"
	"unicode/utf8"
)

// devanagariFullStop is the Devanagari danda, a sentence boundary in
// Hindi/Sanskrit text that the LLM may legitimately produce.
const devanagariFullStop = '।'

func isBoundaryRune(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', devanagariFullStop:
		return true
	default:
		return false
	}
}

// minSentenceNonSpace is the minimum number of non-space characters a
// candidate sentence must contain to be emitted ("≥ 3
// non-space characters").
const minSentenceNonSpace = 3

// SentenceSplitter converts an incrementally-arriving LLM token stream
// into a sequence of speakable sentences. It is a small hand-rolled
// scanner, not a regex/NLP library.
type SentenceSplitter struct {
	buf strings.Builder
}

// NewSentenceSplitter creates an empty splitter.
func NewSentenceSplitter() *SentenceSplitter {
	return &SentenceSplitter{}
}

// Feed appends a token to the internal buffer and returns every complete
// sentence the new text completes, in order. Feeding one token at a time
// vs. all at once yields the same emitted sequence (round-trip
// property), since Feed always re-scans from the start of the buffer.
func (s *SentenceSplitter) Feed(token string) []string {
	s.buf.WriteString(token)
	return s.drain()
}

func (s *SentenceSplitter) drain() []string {
	var sentences []string

	current := s.buf.String()
	for {
		idx, boundaryLen := findBoundary(current)
		if idx < 0 {
			break
		}

		end := idx + boundaryLen
		// Include one trailing whitespace rune if present (matches the
		// reference splitter's "include trailing space" behavior).
		if end < len(current) {
			r, size := utf8.DecodeRuneInString(current[end:])
			if isSpace(r) {
				end += size
			}
		}

		candidate := current[:end]
		rest := current[end:]

		trimmed := strings.TrimSpace(candidate)
		if countNonSpace(trimmed) >= minSentenceNonSpace {
			sentences = append(sentences, trimmed)
		}
		current = rest
	}

	s.buf.Reset()
	s.buf.WriteString(current)
	return sentences
}

// findBoundary returns the byte index and byte length of the first
// boundary rune in s that is followed by whitespace within s, or (-1, 0)
// if none is present. A boundary rune at the very end of s is not yet
// confirmed (more tokens may still arrive) and is left for Flush to
// resolve at true end-of-stream.
func findBoundary(s string) (idx int, runeLen int) {
	for i, r := range s {
		if !isBoundaryRune(r) {
			continue
		}
		after := i + utf8.RuneLen(r)
		if after >= len(s) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(s[after:])
		if isSpace(next) {
			return i, utf8.RuneLen(r)
		}
	}
	return -1, 0
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !isSpace(r) {
			n++
		}
	}
	return n
}

// Flush returns any remaining buffered text as a final sentence (trimmed),
// or "" if the remaining buffer is empty or whitespace-only. Call at LLM
// stream end.
func (s *SentenceSplitter) Flush() string {
	remaining := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return remaining
}

// Remaining returns the current unflushed buffer contents without
// consuming them, for diagnostics/testing of the round-trip property.
func (s *SentenceSplitter) Remaining() string {
	return s.buf.String()
}
