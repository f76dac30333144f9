package logs

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// minMaskedLength keeps short values like "1" or "true" from being masked everywhere
const minMaskedLength = 8

// SecretSanitizer masks resolved runtime secrets and well-known token formats
// in shell and backend logs.
type SecretSanitizer struct {
	resolved sync.Map
	patterns []*secretPattern
}

type secretPattern struct {
	regex    *regexp.Regexp
	maskFunc func(string) string
}

// NewSecretSanitizer creates a sanitizer with the default token patterns
func NewSecretSanitizer() *SecretSanitizer {
	return &SecretSanitizer{
		patterns: []*secretPattern{
			{
				regex: regexp.MustCompile(`\bBearer\s+[A-Za-z0-9\-\._~\+\/]+=*`),
				maskFunc: func(token string) string {
					parts := strings.SplitN(token, " ", 2)
					return "Bearer " + maskValue(strings.TrimSpace(parts[len(parts)-1]))
				},
			},
			{
				regex:    regexp.MustCompile(`\beyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`),
				maskFunc: maskValue,
			},
		},
	}
}

// RegisterResolvedSecret marks value as sensitive so it never reaches a log verbatim
func (s *SecretSanitizer) RegisterResolvedSecret(value string) {
	if len(value) < minMaskedLength {
		return
	}
	s.resolved.Store(value, struct{}{})
}

// Sanitize returns str with every known secret masked
func (s *SecretSanitizer) Sanitize(str string) string {
	result := str

	s.resolved.Range(func(key, _ interface{}) bool {
		secretValue := key.(string)
		result = strings.ReplaceAll(result, secretValue, maskValue(secretValue))
		return true
	})

	for _, p := range s.patterns {
		result = p.regex.ReplaceAllStringFunc(result, p.maskFunc)
	}
	return result
}

// Wrap returns a core that sanitizes entries before delegating to core
func (s *SecretSanitizer) Wrap(core zapcore.Core) zapcore.Core {
	return &sanitizingCore{Core: core, s: s}
}

type sanitizingCore struct {
	zapcore.Core
	s *SecretSanitizer
}

func (c *sanitizingCore) With(fields []zapcore.Field) zapcore.Core {
	return &sanitizingCore{Core: c.Core.With(c.sanitizeFields(fields)), s: c.s}
}

func (c *sanitizingCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *sanitizingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = c.s.Sanitize(entry.Message)
	return c.Core.Write(entry, c.sanitizeFields(fields))
}

func (c *sanitizingCore) sanitizeFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, field := range fields {
		if field.Type == zapcore.StringType {
			field.String = c.s.Sanitize(field.String)
		}
		out[i] = field
	}
	return out
}

// maskValue masks a secret value showing first 3 and last 2 characters
func maskValue(value string) string {
	if len(value) <= 5 {
		return "****"
	}
	if len(value) <= minMaskedLength {
		return value[:2] + "****"
	}
	return value[:3] + "***" + value[len(value)-2:]
}
