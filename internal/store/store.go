package store

// Store persists crop export bundles.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the export doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveExport atomically writes the record and the zip bytes. An
	// existing export with the same ID is overwritten.
	SaveExport(record *ExportRecord, data []byte) error

	// LoadExport returns the record and the zip bytes.
	// Returns ErrNotFound if no export exists for this ID.
	LoadExport(id string) (*ExportRecord, []byte, error)

	// ListExports returns metadata for every stored export, newest first.
	ListExports() ([]ExportInfo, error)

	// DeleteExport removes the export directory.
	// Returns ErrNotFound if no export exists for this ID.
	DeleteExport(id string) error
}

// ErrNotFound is returned when a requested export does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing export.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "export not found: " + e.ID
	}
	return "export not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
