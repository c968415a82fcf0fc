package main

import (
	"testing"
	"time"

	"github.com/cwbudde/srviewer/internal/store"
)

func testInfos(now time.Time) []store.ExportInfo {
	return []store.ExportInfo{
		{ID: "export1", CreatedAt: now.AddDate(0, 0, -10)},
		{ID: "export2", CreatedAt: now.AddDate(0, 0, -5)},
		{ID: "export3", CreatedAt: now.AddDate(0, 0, -1)},
		{ID: "export4", CreatedAt: now.AddDate(0, 0, -30)},
	}
}

func selectedIDs(infos []store.ExportInfo) map[string]bool {
	ids := make(map[string]bool, len(infos))
	for _, info := range infos {
		ids[info.ID] = true
	}
	return ids
}

func TestSelectExportsForDeletion_ByAge(t *testing.T) {
	now := time.Now()

	toDelete := selectExportsForDeletion(testInfos(now), 0, 7, now)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 exports to delete, got %d", len(toDelete))
	}
	ids := selectedIDs(toDelete)
	if !ids["export1"] || !ids["export4"] {
		t.Error("Expected export1 and export4 to be selected for deletion")
	}
}

func TestSelectExportsForDeletion_ByCount(t *testing.T) {
	now := time.Now()

	toDelete := selectExportsForDeletion(testInfos(now), 2, 0, now)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 exports to delete, got %d", len(toDelete))
	}
	ids := selectedIDs(toDelete)
	if !ids["export4"] || !ids["export1"] {
		t.Error("Expected export4 and export1 to be selected for deletion (oldest)")
	}
}

func TestSelectExportsForDeletion_Combined(t *testing.T) {
	now := time.Now()

	// Age selects export1 and export4; count selects export4, export1 and
	// export2. Each is listed once.
	toDelete := selectExportsForDeletion(testInfos(now), 1, 7, now)

	if len(toDelete) != 3 {
		t.Errorf("Expected 3 exports to delete, got %d", len(toDelete))
	}
	if selectedIDs(toDelete)["export3"] {
		t.Error("Expected the newest export to be kept")
	}
}

func TestSelectExportsForDeletion_NothingToDelete(t *testing.T) {
	now := time.Now()

	if got := selectExportsForDeletion(testInfos(now), 10, 0, now); len(got) != 0 {
		t.Errorf("Expected nothing to delete, got %d", len(got))
	}
	if got := selectExportsForDeletion(testInfos(now), 0, 60, now); len(got) != 0 {
		t.Errorf("Expected nothing to delete, got %d", len(got))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if result := formatBytes(tt.bytes); result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("Expected abc, got %s", got)
	}
	if got := shortID("0123456789abcdef"); got != "0123456789ab..." {
		t.Errorf("Expected 0123456789ab..., got %s", got)
	}
}
