// Package eventfiles persists grouped events as one JSON file per series plus
// an index, touching only files whose content changed.
package eventfiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"calfeed/internal/ics"
	appLog "calfeed/internal/log"
	"calfeed/internal/model"
)

const (
	IndexFile = "all.txt"
	seriesExt = ".json"
	icsExt    = ".ics"
)

// ErrInvalidSeriesKey is returned for keys that cannot name a file in the
// output directory.
var ErrInvalidSeriesKey = errors.New("invalid series key")

// SaveResult describes what one Save changed on disk.
type SaveResult struct {
	Series       int
	Changed      []string
	Removed      []string
	IndexChanged bool
	// ICSChanged and ICSRemoved are only filled when an ICS directory is set.
	ICSChanged []string
	ICSRemoved []string
}

// Store owns the output directory. It assumes no other writer.
type Store struct {
	dir    string
	icsDir string
}

// NewStore creates a store for dir. icsDir may be empty to skip ICS export.
func NewStore(dir, icsDir string) *Store {
	return &Store{dir: dir, icsDir: icsDir}
}

func (s *Store) Dir() string {
	return s.dir
}

// EnsureDirs creates the output directories.
func (s *Store) EnsureDirs() error {
	for _, d := range []string{s.dir, s.icsDir} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Save groups all events of a run and brings the directory in line with
// them. Filesystem errors abort immediately; files written before the
// error stay written.
func (s *Store) Save(events []model.Event) (SaveResult, error) {
	grouped := Group(events)
	keys := SortedKeys(grouped)
	result := SaveResult{Series: len(keys)}

	expected := make(map[string]struct{}, len(keys))
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		series := grouped[key]
		expected[key] = struct{}{}
		names = append(names, series[0].Name)

		content, err := EncodeSeries(series)
		if err != nil {
			return result, fmt.Errorf("encode series %s: %w", key, err)
		}
		changed, err := WriteIfChanged(filepath.Join(s.dir, key+seriesExt), content)
		if err != nil {
			return result, fmt.Errorf("write series %s: %w", key, err)
		}
		if changed {
			result.Changed = append(result.Changed, key)
		}

		if s.icsDir != "" {
			changed, err := WriteIfChanged(filepath.Join(s.icsDir, key+icsExt), []byte(ics.ExportSeries(key, series)))
			if err != nil {
				return result, fmt.Errorf("write calendar %s: %w", key, err)
			}
			if changed {
				result.ICSChanged = append(result.ICSChanged, key)
			}
		}
	}

	slices.Sort(names)
	indexChanged, err := WriteIfChanged(filepath.Join(s.dir, IndexFile), EncodeIndex(names))
	if err != nil {
		return result, fmt.Errorf("write %s: %w", IndexFile, err)
	}
	result.IndexChanged = indexChanged

	removed, err := Cleanup(s.dir, seriesExt, expected)
	result.Removed = removed
	if err != nil {
		return result, fmt.Errorf("clean up %s: %w", s.dir, err)
	}
	if s.icsDir != "" {
		removed, err := Cleanup(s.icsDir, icsExt, expected)
		result.ICSRemoved = removed
		if err != nil {
			return result, fmt.Errorf("clean up %s: %w", s.icsDir, err)
		}
	}

	if len(result.Changed) > 0 {
		appLog.Info("series changed", "count", len(result.Changed), "names", strings.Join(result.Changed, ", "))
	}
	if len(result.Removed) > 0 {
		appLog.Info("series deleted", "count", len(result.Removed), "names", strings.Join(result.Removed, ", "))
	}
	return result, nil
}

// Index returns the names listed in the index file.
func (s *Store) Index() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, IndexFile))
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}

// SeriesPath returns the file of the series key after validating it.
func (s *Store) SeriesPath(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeriesKey, key)
	}
	return filepath.Join(s.dir, key+seriesExt), nil
}
