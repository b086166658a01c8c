package ics

import (
	"fmt"
	"regexp"
	"strings"

	"calfeed/internal/model"
)

// DateFieldError reports a matched VEVENT whose DTSTART or DTEND could not be
// resolved. It fails the whole feed.
type DateFieldError struct {
	Field string
	Value string
	Err   error
}

func (e *DateFieldError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *DateFieldError) Unwrap() error {
	return e.Err
}

// Parser extracts events from feed text. A VEVENT must list its properties in
// exactly this order to be picked up:
//
//	SUMMARY, LOCATION, [DESCRIPTION], UID, DTSTART;TZID=<zone>, DTEND;TZID=<zone>
//
// Blocks of any other shape are skipped without error.
type Parser struct {
	block     *regexp.Regexp
	resolver  *Resolver
	sanitizer *Sanitizer
}

// NewParser builds a parser whose TZID must match the resolver's zone.
func NewParser(resolver *Resolver, sanitizer *Sanitizer) *Parser {
	if sanitizer == nil {
		sanitizer = NewSanitizer("")
	}
	tzid := regexp.QuoteMeta(resolver.Location().String())
	pattern := `BEGIN:VEVENT\n` +
		`SUMMARY:(.+)\n` +
		`LOCATION:(.+)\n` +
		`(?:DESCRIPTION:(.*)\n)?` +
		`UID:(.+)\n` +
		`DTSTART;TZID=` + tzid + `:(.+)\n` +
		`DTEND;TZID=` + tzid + `:(.+)\n` +
		`END:VEVENT`
	return &Parser{
		block:     regexp.MustCompile(pattern),
		resolver:  resolver,
		sanitizer: sanitizer,
	}
}

// Parse returns every event of body, or nothing at all when a matched block
// carries an unresolvable date.
func (p *Parser) Parse(body string) ([]model.Event, error) {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	matches := p.block.FindAllStringSubmatch(body, -1)
	events := make([]model.Event, 0, len(matches))
	for _, m := range matches {
		// m[4] is the UID, not used.
		start, err := p.resolver.Resolve(m[5])
		if err != nil {
			return nil, &DateFieldError{Field: "DTSTART", Value: strings.TrimSpace(m[5]), Err: err}
		}
		end, err := p.resolver.Resolve(m[6])
		if err != nil {
			return nil, &DateFieldError{Field: "DTEND", Value: strings.TrimSpace(m[6]), Err: err}
		}

		events = append(events, model.Event{
			Name:        strings.TrimSpace(m[1]),
			Location:    p.sanitizer.Location(strings.TrimSpace(m[2])),
			Description: p.sanitizer.Description(m[3]),
			Start:       start,
			End:         end,
		})
	}
	return events, nil
}
