// Package sanitize implements the Secret Sanitizer (C1): masking
// credential-like substrings in free text before it is logged, cached, or
// fed to a pattern matcher. Grounded on the source engine's
// validateAndSanitizeInput (improvements.go), generalized from a single
// control-character pass into a configurable family of credential regexes.
package sanitize

import (
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
)

type rule struct {
	name string
	re   *regexp.Regexp
}

// Sanitizer masks credential-like substrings in text. The zero value is
// not usable; construct with New.
type Sanitizer struct {
	rules  []rule
	logger *logrus.Logger
}

func builtinRules() []rule {
	return []rule{
		{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.=]{8,}`)},
		{"openai_key", regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`)},
		{"github_token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{16,}`)},
		{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{"generic_api_key_assignment", regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*['"]?[A-Za-z0-9\-_./+=]{8,}['"]?`)},
		{"pem_private_key", regexp.MustCompile(`(?s)-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----.*?-----END (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
		{"userinfo_url", regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s/:@]+:[^\s/@]+@`)},
	}
}

// New builds a Sanitizer from the built-in rule set plus any user-supplied
// regexes. A user regex that fails to compile is rejected (logged) and the
// built-in set is still used, per C1's failure semantics.
func New(logger *logrus.Logger, userPatterns map[string]string) *Sanitizer {
	if logger == nil {
		logger = logrus.New()
	}
	rules := builtinRules()
	for name, pat := range userPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			logger.WithFields(logrus.Fields{"pattern_name": name}).WithError(err).
				Warn("discarding malformed user sanitizer pattern, falling back to built-ins")
			continue
		}
		rules = append(rules, rule{name: name, re: re})
	}
	return &Sanitizer{rules: rules, logger: logger}
}

// Sanitize masks every credential-like substring in text with a fixed
// marker that preserves a coarse shape (rule name + length class), so a
// reader can tell what kind of secret was there without recovering it.
// Sanitize is pure and idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func (s *Sanitizer) Sanitize(text string) string {
	out := text
	for _, r := range s.rules {
		out = r.re.ReplaceAllStringFunc(out, func(match string) string {
			return mask(r.name, len(match))
		})
	}
	return out
}

func mask(ruleName string, length int) string {
	class := "short"
	switch {
	case length > 64:
		class = "long"
	case length > 24:
		class = "medium"
	}
	return fmt.Sprintf("[REDACTED:%s:%s]", ruleName, class)
}
