package guard

import (
	"fmt"
	"regexp"
	"strings"
)

const maxRawCommandLength = 4096

var shellControlOperators = map[string]bool{
	"|": true, "||": true, "&": true, "&&": true,
	";": true, ">": true, ">>": true, "<": true, "<<": true,
}

// pipeToShell matches a download piped into a shell interpreter, e.g.
// "curl http://x | sh". Checked against the re-escaped token join so quoting
// tricks in the raw string do not hide the shape.
var pipeToShell = regexp.MustCompile(`(?i)\b(?:curl|wget)\b[^|]*\|\s*(?:sh|bash|zsh)\b`)

// Assess inspects a raw command string for dangerous patterns. Execution
// never goes through a shell, so these checks are defense in depth against
// callers who assume shell semantics or attempt substitution tricks that a
// plain allow-list check would miss.
func Assess(raw string) RiskAssessment {
	if len(raw) > maxRawCommandLength {
		return RiskAssessment{
			Level:   RiskCritical,
			Blocked: true,
			Reasons: []string{fmt.Sprintf("command exceeds %d bytes", maxRawCommandLength)},
		}
	}
	if strings.ContainsAny(raw, "\x00\r\n") {
		return RiskAssessment{
			Level:   RiskCritical,
			Blocked: true,
			Reasons: []string{"command contains control characters"},
		}
	}

	tokens, err := Tokenize(raw)
	if err != nil {
		return RiskAssessment{
			Level:   RiskHigh,
			Blocked: true,
			Reasons: []string{fmt.Sprintf("unparseable command: %v", err)},
		}
	}

	out := RiskAssessment{Level: RiskLow}
	addReason := func(format string, args ...any) {
		out.Reasons = append(out.Reasons, fmt.Sprintf(format, args...))
	}

	for _, tok := range tokens {
		switch {
		case shellControlOperators[tok]:
			out.Level = out.Level.Max(RiskHigh)
			out.Blocked = true
			addReason("shell control operator %q", tok)
		case strings.ContainsAny(tok, ";><`"):
			out.Level = out.Level.Max(RiskHigh)
			out.Blocked = true
			addReason("shell metacharacter in token %q", tok)
		}
		if strings.Contains(tok, "$(") || strings.Contains(tok, "${") {
			out.Level = out.Level.Max(RiskMedium)
			out.RequiresApproval = true
			addReason("substitution-like token %q", tok)
		}
	}

	if pipeToShell.MatchString(joinTokens(tokens)) {
		out.Level = RiskCritical
		out.Blocked = true
		addReason("download piped into a shell")
	}

	return out
}

// joinTokens re-escapes tokens into a single string for pattern matching.
// Tokens that held whitespace are re-quoted so boundaries stay visible.
func joinTokens(tokens []string) string {
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if strings.ContainsAny(tok, " \t") {
			parts = append(parts, `"`+strings.ReplaceAll(tok, `"`, `\"`)+`"`)
			continue
		}
		parts = append(parts, tok)
	}
	return strings.Join(parts, " ")
}
