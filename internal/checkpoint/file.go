package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes snapshots as JSON files under a base directory, via a
// temp file and rename so a crashed write never leaves a torn snapshot.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink rooted at dir. An empty dir means the current
// working directory.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{dir: dir}
}

// Write persists the snapshot under the given destination name.
func (s *FileSink) Write(snapshot Snapshot, destination string) error {
	if destination == "" {
		destination = DefaultDestination
	}
	path := filepath.Join(s.dir, destination)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	return nil
}

// Load reads a snapshot back. The sync engine itself never resumes from
// checkpoints; this is for external consumers.
func (s *FileSink) Load(destination string) (Snapshot, bool, error) {
	if destination == "" {
		destination = DefaultDestination
	}
	path := filepath.Join(s.dir, destination)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}

	return snapshot, true, nil
}
