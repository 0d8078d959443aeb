package notifications

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Templates run in a restricted environment: only the functions below
// are callable and referencing a key the caller did not provide renders
// as an empty string instead of failing the whole message.
var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"trim": strings.TrimSpace,
	"join": strings.Join,
	"date": func(layout, value string) string {
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return value
		}
		return t.Format(layout)
	},
	"default": func(fallback, value string) string {
		if value == "" {
			return fallback
		}
		return value
	},
}

// Render executes the template body against vars.
func Render(body string, vars map[string]string) (string, error) {
	tmpl, err := template.New("message").
		Funcs(templateFuncs).
		Option("missingkey=zero").
		Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if vars == nil {
		vars = map[string]string{}
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return b.String(), nil
}
