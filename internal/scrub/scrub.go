// Package scrub redacts secrets from audit payloads before they are hashed
// and persisted, and flags (advisory-only) suspicious tool-argument content
// for the injection scanner. Redaction cannot be disabled: every path
// through the audit store runs payloads through a Scrubber first.
package scrub

import (
	"fmt"
	"regexp"
	"strings"
)

const redactionToken = "[REDACTED]"

// builtinPatterns catches common API-key and credential shapes regardless of
// which secret sources were registered at startup.
var builtinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w.-]+`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// Scrubber redacts registered secret substrings and builtin credential
// patterns from arbitrary text. The zero value is usable and applies only
// the builtin patterns.
type Scrubber struct {
	substrings []string
	patterns   []*regexp.Regexp
}

// New builds a Scrubber seeded with exact secret substrings (e.g. the
// values of recognized environment variables at startup) in addition to the
// always-on builtin patterns.
func New(secretValues []string) *Scrubber {
	s := &Scrubber{patterns: builtinPatterns}
	for _, v := range secretValues {
		if v != "" {
			s.substrings = append(s.substrings, v)
		}
	}
	return s
}

// RegisterPattern compiles and adds an additional redaction pattern. Returns
// an error if the pattern fails to compile; per spec §4.7 a pattern-engine
// error is fatal, so callers at startup should treat a non-nil error here as
// unrecoverable.
func (s *Scrubber) RegisterPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("scrub: invalid pattern %q: %w", pattern, err)
	}
	s.patterns = append(s.patterns, re)
	return nil
}

// Scrub returns text with every registered secret substring and every
// matched credential pattern replaced by a fixed redaction token.
func (s *Scrubber) Scrub(text string) string {
	if text == "" {
		return text
	}
	out := text
	for _, substr := range s.substrings {
		if substr == "" {
			continue
		}
		out = strings.ReplaceAll(out, substr, redactionToken)
	}
	patterns := s.patterns
	if patterns == nil {
		patterns = builtinPatterns
	}
	for _, re := range patterns {
		out = re.ReplaceAllString(out, redactionToken)
	}
	return out
}

// ScrubBytes is a []byte convenience wrapper around Scrub.
func (s *Scrubber) ScrubBytes(b []byte) []byte {
	return []byte(s.Scrub(string(b)))
}

// Contains reports whether text still contains any registered secret
// verbatim; used by tests asserting the "no payload persisted contains any
// registered secret substring" invariant.
func (s *Scrubber) Contains(text string) bool {
	for _, substr := range s.substrings {
		if substr != "" && strings.Contains(text, substr) {
			return true
		}
	}
	return false
}
