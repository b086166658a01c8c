package eventfiles

import (
	"bytes"
	"encoding/json"
	"strings"

	"calfeed/internal/model"
)

// EncodeSeries renders events as a two-space indented JSON array followed by
// a newline. Equal input always yields identical bytes.
func EncodeSeries(events []model.Event) ([]byte, error) {
	if events == nil {
		events = []model.Event{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeIndex renders the sorted names one per line. The result always ends
// with a newline, so no names gives a single empty line.
func EncodeIndex(names []string) []byte {
	return []byte(strings.Join(names, "\n") + "\n")
}
