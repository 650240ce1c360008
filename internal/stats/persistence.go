package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists counters as a JSON file. Writes go through a temp file and
// rename so a crash mid-save never corrupts the previous totals.
type Store struct {
	Path string
}

// Load reads persisted counters. A missing file yields zero counters.
func (s *Store) Load() (Counters, error) {
	var c Counters
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Counters{}, fmt.Errorf("parsing %s: %w", s.Path, err)
	}
	return c, nil
}

// Save writes counters atomically.
func (s *Store) Save(c Counters) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}
