// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// RenderTemplate substitutes {{key}} placeholders (spaces inside the braces
// are allowed). Unknown placeholders are left as they are.
func RenderTemplate(template string, data map[string]string) string {
	pairs := make([]string, 0, len(data)*4)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v, "{{ "+k+" }}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// LeadPlaceholders are the values a sequence step may reference.
func LeadPlaceholders(l *model.Lead) map[string]string {
	first := l.Name
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	return map[string]string{
		"name":       l.Name,
		"first_name": first,
		"company":    l.Company,
		"title":      l.Title,
	}
}

// RenderStep renders a step's subject and body for one lead.
func RenderStep(step model.Step, l *model.Lead) (subject, html string) {
	data := LeadPlaceholders(l)
	return RenderTemplate(step.Subject, data), RenderTemplate(step.Body, data)
}
