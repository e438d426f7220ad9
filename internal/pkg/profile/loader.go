package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zerolag/zerolag/internal/pkg/logger"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Load reads and validates a single profile file.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cannot read profile %q: %w", path, err)
	}

	s, err := Parse(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("profile %q: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// LoadDir loads every .toml profile under dir, sorted by filename. Invalid
// profiles are skipped with a warning so one broken file does not take the
// whole set down.
func LoadDir(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read profiles directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".toml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var snapshots = make([]Snapshot, 0, len(names))
	for _, name := range names {
		s, err := Load(filepath.Join(dir, name))
		if err != nil {
			log.Info(fmt.Sprintf("skipping profile: %v", err), zap.String("profile", name), logger.Warning)
			continue
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}
