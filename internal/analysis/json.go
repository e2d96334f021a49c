package analysis

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/boazzati/AFH-Platform-sub001/internal/resilience"
	"github.com/boazzati/AFH-Platform-sub001/pkg/anthropic"
)

// cleanJSON extracts a JSON object from text that may contain markdown
// code fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// callError marks retryable API failures as transient.
func callError(err error, op string) error {
	wrapped := eris.Wrap(err, op)
	var se *anthropic.StatusError
	if errors.As(err, &se) {
		return resilience.ClassifyStatus(wrapped, se.StatusCode)
	}
	return wrapped
}

// percent normalizes a model-provided score to [0,100]. Values in (0,1]
// are read as fractions.
func percent(v float64) float64 {
	if v > 0 && v <= 1 {
		v *= 100
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
