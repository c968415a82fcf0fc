package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FSStore implements Store on the filesystem.
// Exports are stored as <baseDir>/exports/<id>/{export.json,bundle.zip}.
//
// Writes go through a temp file and a rename, so concurrent callers never
// observe partial files.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) exportDir(id string) string {
	return filepath.Join(fs.baseDir, "exports", id)
}

func (fs *FSStore) recordPath(id string) string {
	return filepath.Join(fs.exportDir(id), "export.json")
}

func (fs *FSStore) bundlePath(id string) string {
	return filepath.Join(fs.exportDir(id), "bundle.zip")
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// SaveExport writes the bundle first and the record last, so a listed
// record always has its bundle.
func (fs *FSStore) SaveExport(record *ExportRecord, data []byte) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	dir := fs.exportDir(record.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := writeAtomic(fs.bundlePath(record.ID), data); err != nil {
		return fmt.Errorf("failed to save bundle: %w", err)
	}

	meta, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize export record: %w", err)
	}
	if err := writeAtomic(fs.recordPath(record.ID), meta); err != nil {
		return fmt.Errorf("failed to save export record: %w", err)
	}

	slog.Debug("Export saved", "id", record.ID, "name", record.Name, "size", len(data))
	return nil
}

func (fs *FSStore) loadRecord(id string) (*ExportRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("id cannot be empty")
	}
	path := fs.recordPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read export record: %w", err)
	}

	var record ExportRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize export record: %w", err)
	}
	return &record, nil
}

// LoadExport returns the record and the zip bytes.
func (fs *FSStore) LoadExport(id string) (*ExportRecord, []byte, error) {
	record, err := fs.loadRecord(id)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(fs.bundlePath(id))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	slog.Debug("Export loaded", "id", id)
	return record, data, nil
}

// ListExports returns metadata for every stored export, newest first.
func (fs *FSStore) ListExports() ([]ExportInfo, error) {
	exportsDir := filepath.Join(fs.baseDir, "exports")
	entries, err := os.ReadDir(exportsDir)
	if os.IsNotExist(err) {
		return []ExportInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read exports directory: %w", err)
	}

	infos := []ExportInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := fs.loadRecord(entry.Name())
		if err != nil {
			// Directories without a readable record are incomplete saves.
			slog.Warn("Skipping export", "id", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})

	slog.Debug("Listed exports", "count", len(infos))
	return infos, nil
}

// DeleteExport removes the export and its bundle.
func (fs *FSStore) DeleteExport(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	dir := fs.exportDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat export directory: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove export directory: %w", err)
	}
	slog.Debug("Export deleted", "id", id)
	return nil
}

// PruneExports deletes exports created before cutoff and returns how many
// were removed.
func (fs *FSStore) PruneExports(cutoff time.Time) (int, error) {
	infos, err := fs.ListExports()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range infos {
		if !info.CreatedAt.Before(cutoff) {
			continue
		}
		if err := fs.DeleteExport(info.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
