package privacy

import "regexp"

const maxLogRunes = 200

var (
	emailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	// 555-123-4567, (555) 123-4567, 555.123.4567, +1-555-123-4567, 555-1234
	phoneRegex = regexp.MustCompile(`(\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]\d{4}|\b\d{3}[-.\s]\d{4}\b`)

	ssnRegex = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	creditCardRegex = regexp.MustCompile(`\b\d{4}[-\s]\d{4}[-\s]\d{4}[-\s]\d{4}\b`)

	// Bearer tokens and key-looking strings users paste into chat
	secretRegex = regexp.MustCompile(`(?i)\b(bearer\s+[A-Za-z0-9._~+/=-]{16,}|(sk|pk|api|key)[-_][A-Za-z0-9]{16,})\b`)
)

// Order matters: SSNs and cards would otherwise be eaten by the phone pattern.
var redactions = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{secretRegex, "[SECRET]"},
	{emailRegex, "[EMAIL]"},
	{ssnRegex, "[SSN]"},
	{creditCardRegex, "[CARD]"},
	{phoneRegex, "[PHONE]"},
}

// RedactSensitiveData replaces PII and credentials in text with placeholders
func RedactSensitiveData(text string) string {
	for _, r := range redactions {
		text = r.re.ReplaceAllString(text, r.replacement)
	}
	return text
}

// SanitizeForLogging redacts text and truncates it to a loggable length
func SanitizeForLogging(text string) string {
	redacted := []rune(RedactSensitiveData(text))
	if len(redacted) > maxLogRunes {
		return string(redacted[:maxLogRunes-3]) + "..."
	}
	return string(redacted)
}

// ContainsPII reports whether text contains anything RedactSensitiveData would replace
func ContainsPII(text string) bool {
	for _, r := range redactions {
		if r.re.MatchString(text) {
			return true
		}
	}
	return false
}
