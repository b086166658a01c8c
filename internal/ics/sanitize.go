package ics

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultDescriptionTemplate surfaces the instructor of an occurrence.
const DefaultDescriptionTemplate = "Dozent: %s"

// Sanitizer normalizes the free-text LOCATION and DESCRIPTION values.
type Sanitizer struct {
	// stamp matches the revision date feeds append to the room string.
	stamp    *regexp.Regexp
	template string
}

func NewSanitizer(template string) *Sanitizer {
	if template == "" || !strings.Contains(template, "%s") {
		template = DefaultDescriptionTemplate
	}
	return &Sanitizer{
		stamp:    regexp.MustCompile(`Stand \d{2}-\d{2}-\d{4}`),
		template: template,
	}
}

// Location removes "Stand dd-mm-yyyy" stamps and surrounding whitespace.
func (s *Sanitizer) Location(raw string) string {
	return strings.TrimSpace(s.stamp.ReplaceAllString(raw, ""))
}

// Description renders the annotation into the template, or "" when empty.
func (s *Sanitizer) Description(annotation string) string {
	annotation = strings.TrimSpace(annotation)
	if annotation == "" {
		return ""
	}
	return fmt.Sprintf(s.template, annotation)
}
