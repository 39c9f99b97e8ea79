package workflows

import (
	"regexp"
	"strings"
)

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedHyphens  = regexp.MustCompile(`-{2,}`)
)

const fallbackServiceName = "service"

// ServiceName turns raw into a provider-safe name: lower case, only
// [a-z0-9-], no leading, trailing or doubled hyphens, at most maxLen bytes.
// ServiceName(ServiceName(x)) == ServiceName(x).
func ServiceName(raw string, maxLen int) string {
	s := strings.ToLower(raw)
	s = invalidNameChars.ReplaceAllString(s, "-")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if maxLen > 0 && len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if s == "" {
		s = fallbackServiceName
		if maxLen > 0 && len(s) > maxLen {
			s = s[:maxLen]
		}
	}
	return s
}
