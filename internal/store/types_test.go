package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewExportRecord(t *testing.T) {
	a := createTestRecord("a.zip")
	b := createTestRecord("b.zip")

	if _, err := uuid.Parse(a.ID); err != nil {
		t.Errorf("Expected UUID id, got %q", a.ID)
	}
	if a.ID == b.ID {
		t.Error("Expected distinct ids")
	}
	if a.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Expected valid record, got %v", err)
	}
}

func TestExportRecordValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *ExportRecord)
		field  string
	}{
		{"empty id", func(r *ExportRecord) { r.ID = "" }, "ID"},
		{"bad id", func(r *ExportRecord) { r.ID = "export-1" }, "ID"},
		{"empty name", func(r *ExportRecord) { r.Name = "" }, "Name"},
		{"no files", func(r *ExportRecord) { r.Files = nil }, "Files"},
		{"negative size", func(r *ExportRecord) { r.Size = -1 }, "Size"},
		{"zero time", func(r *ExportRecord) { r.CreatedAt = time.Time{} }, "CreatedAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := createTestRecord("a.zip")
			tt.mutate(r)
			err := r.Validate()
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}

func TestExportRecordToInfo(t *testing.T) {
	r := createTestRecord("a.zip")
	r.Size = 42

	info := r.ToInfo()
	if info.ID != r.ID || info.Name != "a.zip" {
		t.Errorf("Expected %s/a.zip, got %s/%s", r.ID, info.ID, info.Name)
	}
	if info.Entries != 2 {
		t.Errorf("Expected 2 entries, got %d", info.Entries)
	}
	if info.Size != 42 {
		t.Errorf("Expected size 42, got %d", info.Size)
	}
	if info.CropToken != "x1y2w3h4" {
		t.Errorf("Expected crop token x1y2w3h4, got %s", info.CropToken)
	}
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{ID: "abc"}
	if err.Error() != "export not found: abc" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if !err.Is(ErrNotFound) {
		t.Error("Expected NotFoundError to match ErrNotFound")
	}
	if ErrNotFound.Error() != "export not found" {
		t.Errorf("Unexpected message: %s", ErrNotFound.Error())
	}
}
