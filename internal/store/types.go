package store

import (
	"time"

	"github.com/google/uuid"
)

// ExportRecord describes one stored crop bundle.
type ExportRecord struct {
	// ID is a UUID assigned when the export is created.
	ID string `json:"id"`

	// Name is the archive file name, e.g. "[Set5] baby_x10y20w30h40.zip".
	Name string `json:"name"`

	// Title and File identify the viewer and the sample the crop came from.
	Title string `json:"title"`
	File  string `json:"file"`

	// CropToken is the crop region including the diff and overlay flags.
	CropToken string `json:"cropToken"`

	// Files are the zip member names.
	Files []string `json:"files"`

	// Size is the zip size in bytes.
	Size int64 `json:"size"`

	// SessionID is the server session that produced the export, if any.
	SessionID string `json:"sessionId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ExportInfo is the listing view of an export.
type ExportInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CropToken string    `json:"cropToken"`
	Entries   int       `json:"entries"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewExportRecord creates a record with a fresh ID.
func NewExportRecord(name, title, file, cropToken string, files []string, size int64) *ExportRecord {
	return &ExportRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Title:     title,
		File:      file,
		CropToken: cropToken,
		Files:     files,
		Size:      size,
		CreatedAt: time.Now(),
	}
}

// ToInfo converts a record to its listing view.
func (r *ExportRecord) ToInfo() ExportInfo {
	return ExportInfo{
		ID:        r.ID,
		Name:      r.Name,
		CropToken: r.CropToken,
		Entries:   len(r.Files),
		Size:      r.Size,
		CreatedAt: r.CreatedAt,
	}
}

// Validate checks that the record can be stored.
func (r *ExportRecord) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: "must be a UUID"}
	}
	if r.Name == "" {
		return &ValidationError{Field: "Name", Reason: "cannot be empty"}
	}
	if len(r.Files) == 0 {
		return &ValidationError{Field: "Files", Reason: "cannot be empty"}
	}
	if r.Size < 0 {
		return &ValidationError{Field: "Size", Reason: "cannot be negative"}
	}
	if r.CreatedAt.IsZero() {
		return &ValidationError{Field: "CreatedAt", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents an export validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
