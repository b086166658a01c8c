package eventfiles

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	appLog "calfeed/internal/log"
)

// Cleanup deletes every regular file in dir with the extension ext (compared
// case-insensitively, e.g. ".json") whose stem is not in expected. Files with
// names that are not valid UTF-8 are always deleted. The removed stems are
// returned sorted.
func Cleanup(dir, ext string, expected map[string]struct{}) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		fileExt := filepath.Ext(name)
		if !strings.EqualFold(fileExt, ext) {
			continue
		}
		path := filepath.Join(dir, name)
		stem := strings.TrimSuffix(name, fileExt)

		if !utf8.ValidString(stem) {
			appLog.Warn("deleting event file with non UTF-8 name", "path", path)
			if err := os.Remove(path); err != nil {
				return removed, err
			}
			continue
		}
		if _, ok := expected[stem]; ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed = append(removed, stem)
	}

	slices.Sort(removed)
	return removed, nil
}
