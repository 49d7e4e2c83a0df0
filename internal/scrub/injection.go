package scrub

import "regexp"

// injectionPatterns are heuristic signals of prompt-injection or
// exfiltration attempts riding along in tool arguments: raw control
// characters, templating syntax that could be interpolated against a
// secret store, and strings that look like an attempt to address the model
// directly. None of these are a security boundary — schema validation is —
// this scanner is advisory only (spec §9 open question).
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`),
	regexp.MustCompile(`\$\{[^}]*\}`),
	regexp.MustCompile(`(?i)ignore (all )?(previous|prior|above) instructions`),
	regexp.MustCompile(`(?i)system\s*:\s*you are now`),
	regexp.MustCompile(`(?i)reveal (your|the) (system prompt|instructions)`),
}

// Finding names which heuristic pattern matched.
type Finding struct {
	Pattern string
}

// Scan runs every injection heuristic against text and returns the findings.
// A non-empty result is logged by the caller, never used to block a call:
// schema validation is the hard boundary (spec §4.2 step 4c).
func Scan(text string) []Finding {
	var findings []Finding
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			findings = append(findings, Finding{Pattern: re.String()})
		}
	}
	return findings
}
