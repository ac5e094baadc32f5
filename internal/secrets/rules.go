package secrets

import "regexp"

// Rule is one secret detector. When the pattern has a capture group only the
// first group is redacted, so assignments keep their key names.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp
}

// DefaultRules covers credentials that commonly end up pasted into snippets.
func DefaultRules() []Rule {
	return []Rule{
		{"aws-access-key-id", regexp.MustCompile(`\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`)},
		{"aws-secret-access-key", regexp.MustCompile(`(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[:=]\s*['"]?([A-Za-z0-9/+=]{40})`)},
		{"private-key", regexp.MustCompile(`(?s)-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----.*?-----END (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----`)},
		{"github-token", regexp.MustCompile(`\b(?:gh[pousr]_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,})`)},
		{"gitlab-token", regexp.MustCompile(`\bglpat-[A-Za-z0-9\-]{20,}`)},
		{"slack-token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}`)},
		{"stripe-key", regexp.MustCompile(`\b(?:sk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`)},
		{"openai-api-key", regexp.MustCompile(`\bsk-(?:proj-)?[A-Za-z0-9_\-]{40,}`)},
		{"google-api-key", regexp.MustCompile(`\bAIza[A-Za-z0-9_\-]{35}`)},
		{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+`)},
		{"connection-string", regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:/\s]+:([^@\s]+)@`)},
		{"generic-api-key", regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|access[_-]?token|auth[_-]?token)['"]?\s*[:=]\s*['"]?([A-Za-z0-9_\-\.]{16,})`)},
		{"generic-secret", regexp.MustCompile(`(?i)(?:secret|password|passwd|pwd)['"]?\s*[:=]\s*['"]([^'"\s]{6,})['"]`)},
	}
}
