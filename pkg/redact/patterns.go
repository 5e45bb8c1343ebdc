package redact

import "regexp"

// Placeholders are all-caps bracketed tokens. None of them re-match any
// pattern below, which is what makes redaction idempotent: running the
// engine over already-scrubbed text is a no-op.
const (
	redactedField = "[REDACTED]"
	cycleMarker   = "[CYCLE]"
	depthMarker   = "[MAX_DEPTH_EXCEEDED]"
)

type pattern struct {
	re          *regexp.Regexp
	placeholder string
	// verify rejects candidate matches that the regexp alone cannot
	// rule out. Nil means every match is replaced.
	verify func(string) bool
}

// Order matters: JWTs before bare tokens (a JWT's segments would match
// the token pattern on their own), card numbers before SSNs (a grouped
// card number contains SSN-shaped digit runs).
var patterns = []pattern{
	{
		re:          regexp.MustCompile(`eyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`),
		placeholder: "[JWT_REDACTED]",
	},
	{
		re:          regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		placeholder: "[EMAIL_REDACTED]",
	},
	{
		re:          regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{4}\b`),
		placeholder: "[CARD_REDACTED]",
	},
	{
		re:          regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`),
		placeholder: "[SSN_REDACTED]",
	},
	{
		// The country prefix requires a separator. Making it optional
		// would let the prefix absorb the head of any 12-digit run and
		// turn uuid tails into phone matches.
		re:          regexp.MustCompile(`\b(?:\+?\d{1,2}[ \-.])?\(?\d{3}\)?[ \-.]?\d{3}[ \-.]?\d{4}\b`),
		placeholder: "[PHONE_REDACTED]",
	},
	{
		re:          regexp.MustCompile(`\b[A-Za-z0-9_\-]{24,}\b`),
		placeholder: "[TOKEN_REDACTED]",
		verify:      looksLikeSecret,
	},
}

// looksLikeSecret reports whether a long run has the mixed character
// classes of a generated credential. Plain words and lowercase ids
// (uuids, slugs) stay readable.
func looksLikeSecret(s string) bool {
	var lower, upper, digit bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return lower && upper && digit
}

// RedactString runs the pattern pass over one string. Surrounding text
// is preserved; only the matched spans are replaced.
func (r *Redactor) RedactString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range r.patterns {
		if p.verify == nil {
			s = p.re.ReplaceAllString(s, p.placeholder)
			continue
		}
		s = p.re.ReplaceAllStringFunc(s, func(m string) string {
			if p.verify(m) {
				return p.placeholder
			}
			return m
		})
	}
	return s
}
