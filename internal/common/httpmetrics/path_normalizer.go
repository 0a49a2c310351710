package httpmetrics

import (
	"regexp"
	"strings"
)

var uuidRegex = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// handleRoutes lists the path prefixes whose next segment is a user handle.
var handleRoutes = map[string]bool{
	"identity": true,
	"consent":  true,
}

// NormalizePath collapses ids and handles so metric label cardinality stays bounded.
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}

	normalized := uuidRegex.ReplaceAllString(path, "{id}")

	parts := strings.Split(normalized, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "{") || isNumeric(part) {
			parts[i] = "{param}"
			continue
		}
		if i > 0 && handleRoutes[parts[i-1]] && !isStaticSegment(part) {
			parts[i] = "{handle}"
		}
	}

	result := strings.Join(parts, "/")
	if result == "" {
		return "/"
	}

	return result
}

func isStaticSegment(s string) bool {
	switch s {
	case "register", "login", "pending":
		return true
	default:
		return false
	}
}

func isNumeric(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
