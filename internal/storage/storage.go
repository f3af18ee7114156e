// Package storage provides JSON-based persistence for slot snapshots.
//
// The storage package manages local snapshot files that track which slots
// were seen on previous runs, backing the CLI's --new-only mode. Snapshots
// are stored per sport (snapshot_SPORT.json) with a combined file
// (snapshot.json) when no sport filter is active. The scraping core itself
// never touches this package.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/court-slots/internal/slot"
)

// Storage handles persistence of slot snapshots
type Storage struct {
	dataDir string
}

// New creates a new Storage instance, expanding a leading ~ and creating
// the data directory when missing.
func New(dataDir string) (*Storage, error) {
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
	}, nil
}

// snapshotPath returns the path to the snapshot file for a sport filter.
func (s *Storage) snapshotPath(sport string) string {
	if sport == "" {
		return filepath.Join(s.dataDir, "snapshot.json")
	}
	return filepath.Join(s.dataDir, fmt.Sprintf("snapshot_%s.json", strings.ToLower(sport)))
}

// LoadSnapshot loads a snapshot from disk. A missing file yields an empty
// snapshot, not an error.
func (s *Storage) LoadSnapshot(sport string) (*slot.Snapshot, error) {
	path := s.snapshotPath(sport)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return slot.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot slot.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	if snapshot.Slots == nil {
		snapshot.Slots = make(map[string]slot.Record)
	}

	return &snapshot, nil
}

// SaveSnapshot saves a snapshot to disk.
func (s *Storage) SaveSnapshot(snapshot *slot.Snapshot, sport string) error {
	path := s.snapshotPath(sport)

	snapshot.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	return nil
}

// CreateSnapshotFromSlots creates and saves a snapshot from a slot list.
func (s *Storage) CreateSnapshotFromSlots(slots []*slot.Slot, sport string) error {
	snapshot := slot.CreateSnapshot(slots, time.Now().UTC().Format(time.RFC3339))
	return s.SaveSnapshot(snapshot, sport)
}
