package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// PIILevel controls how much conversation text reaches logs and spans.
type PIILevel string

const (
	// PIILevelNone drops conversation text entirely.
	PIILevelNone PIILevel = "none"
	// PIILevelHashed keeps text but replaces detected PII with salted hashes.
	PIILevelHashed PIILevel = "hashed"
	// PIILevelFull keeps text as is.
	PIILevelFull PIILevel = "full"
)

const redacted = "[REDACTED]"

// ParsePIILevel maps a config value to a level. Unknown values fall back to
// PIILevelHashed.
func ParsePIILevel(v string) PIILevel {
	switch PIILevel(v) {
	case PIILevelNone, PIILevelFull:
		return PIILevel(v)
	default:
		return PIILevelHashed
	}
}

type piiRule struct {
	pattern *regexp.Regexp
	label   string
	// keep a hash so equal values stay correlatable
	hashed bool
}

// Sanitizer scrubs persona and assistant text before it is logged or
// attached to telemetry.
type Sanitizer struct {
	level PIILevel
	salt  string
	rules []piiRule
}

// NewSanitizer creates a sanitizer. salt is mixed into every hash.
func NewSanitizer(level PIILevel, salt string) *Sanitizer {
	return &Sanitizer{
		level: level,
		salt:  salt,
		// SSNs and cards go before phone numbers, which would otherwise
		// swallow their digit groups.
		rules: []piiRule{
			{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "EMAIL", true},
			{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "SSN", false},
			{regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`), "CC", false},
			{regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`), "PHONE", true},
			{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "IP", true},
		},
	}
}

// Level returns the configured level.
func (s *Sanitizer) Level() PIILevel {
	return s.level
}

// Text sanitizes a chunk of conversation text.
func (s *Sanitizer) Text(input string) string {
	switch s.level {
	case PIILevelNone:
		return redacted
	case PIILevelFull:
		return input
	default:
		return s.scrub(input)
	}
}

// Preview sanitizes input and cuts it to at most maxRunes runes.
func (s *Sanitizer) Preview(input string, maxRunes int) string {
	out := s.Text(input)
	if maxRunes <= 0 || utf8.RuneCountInString(out) <= maxRunes {
		return out
	}
	runes := []rune(out)
	return string(runes[:maxRunes]) + "..."
}

// Redactor returns Preview bound to maxRunes.
func (s *Sanitizer) Redactor(maxRunes int) func(string) string {
	return func(input string) string {
		return s.Preview(input, maxRunes)
	}
}

// Identifier sanitizes an owner or user ID.
func (s *Sanitizer) Identifier(id string) string {
	if id == "" {
		return ""
	}
	switch s.level {
	case PIILevelNone:
		return redacted
	case PIILevelFull:
		return id
	default:
		return s.hash(id)
	}
}

func (s *Sanitizer) scrub(input string) string {
	out := input
	for _, rule := range s.rules {
		out = rule.pattern.ReplaceAllStringFunc(out, func(match string) string {
			if !rule.hashed {
				return fmt.Sprintf("[%s:REDACTED]", rule.label)
			}
			return fmt.Sprintf("[%s:%s]", rule.label, s.hash(match))
		})
	}
	return out
}

func (s *Sanitizer) hash(data string) string {
	sum := sha256.Sum256([]byte(data + s.salt))
	return hex.EncodeToString(sum[:])[:8]
}
