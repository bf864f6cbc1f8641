package storage

import (
	"path"
	"strings"
	"time"
)

// PathTemplate generates archive key prefixes from templates
type PathTemplate struct {
	template string
}

// NewPathTemplate creates a new PathTemplate instance
func NewPathTemplate(template string) *PathTemplate {
	return &PathTemplate{template: template}
}

// Generate replaces placeholders in the template with actual values
// Supports: {kind}, {YYYY}, {MM}, {DD}
func (pt *PathTemplate) Generate(kind string, timestamp time.Time) string {
	result := pt.template

	result = strings.ReplaceAll(result, "{kind}", kind)

	result = strings.ReplaceAll(result, "{YYYY}", timestamp.Format("2006"))
	result = strings.ReplaceAll(result, "{MM}", timestamp.Format("01"))
	result = strings.ReplaceAll(result, "{DD}", timestamp.Format("02"))

	return result
}

// Key joins the generated prefix and filename into an object key
func (pt *PathTemplate) Key(kind string, timestamp time.Time, filename string) string {
	prefix := strings.Trim(pt.Generate(kind, timestamp), "/")
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}

// IsValidPathTemplate reports whether template only uses known placeholders
func IsValidPathTemplate(template string) bool {
	stripped := template
	for _, p := range []string{"{kind}", "{YYYY}", "{MM}", "{DD}"} {
		stripped = strings.ReplaceAll(stripped, p, "")
	}
	return !strings.ContainsAny(stripped, "{}") && !strings.Contains(template, "..")
}
