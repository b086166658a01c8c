package ics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizerLocation(t *testing.T) {
	s := NewSanitizer("")

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"stamp removed", "Stiftstr69 R304a  Stand 12-03-2020", "Stiftstr69 R304a"},
		{"only stamp", "Stand 12-03-2020", ""},
		{"no stamp", "  Raum 5 ", "Raum 5"},
		{"malformed stamp kept", "Raum 5 Stand 1-3-2020", "Raum 5 Stand 1-3-2020"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Location(tt.raw))
		})
	}
}

func TestSanitizerDescription(t *testing.T) {
	s := NewSanitizer("")
	assert.Equal(t, "Dozent: HTM", s.Description("HTM"))
	assert.Equal(t, "", s.Description(""))
	assert.Equal(t, "", s.Description("   "))

	custom := NewSanitizer("Lecturer %s")
	assert.Equal(t, "Lecturer HTM", custom.Description(" HTM "))

	// A template without a verb would drop the annotation.
	fallback := NewSanitizer("Lecturer")
	assert.Equal(t, "Dozent: HTM", fallback.Description("HTM"))
}
