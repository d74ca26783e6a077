package stac

import (
	"testing"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
)

func testScene(id string, day int, clouds ...float64) *catalog.SceneRecord {
	props := map[string]any{}
	for i, v := range clouds {
		if i < len(catalog.CloudKeys) {
			props[catalog.CloudKeys[i]] = v
		}
	}
	if len(clouds) > 0 {
		props["eo:cloud_cover"] = clouds[0]
	}
	return &catalog.SceneRecord{
		ID:         id,
		Datetime:   time.Date(2025, 4, day, 10, 0, 0, 0, time.UTC),
		Properties: props,
	}
}

func sceneIDs(records []*catalog.SceneRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestSortScenes(t *testing.T) {
	tests := []struct {
		name     string
		sortby   []SortbyItem
		expected []string
	}{
		{
			name:     "no sort keeps catalog order",
			expected: []string{"b", "a", "c", "d"},
		},
		{
			name:     "datetime ascending",
			sortby:   []SortbyItem{{Field: "datetime", Direction: "asc"}},
			expected: []string{"a", "b", "c", "d"},
		},
		{
			name:     "properties.datetime descending",
			sortby:   []SortbyItem{{Field: "properties.datetime", Direction: "desc"}},
			expected: []string{"d", "c", "b", "a"},
		},
		{
			name:     "cloud score ascending, missing last",
			sortby:   []SortbyItem{{Field: "cloud_score", Direction: "asc"}},
			expected: []string{"c", "b", "a", "d"},
		},
		{
			name:     "cloud score descending, missing still last",
			sortby:   []SortbyItem{{Field: "cloud_score", Direction: "desc"}},
			expected: []string{"a", "b", "c", "d"},
		},
		{
			name:     "id",
			sortby:   []SortbyItem{{Field: "id", Direction: "asc"}},
			expected: []string{"a", "b", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []*catalog.SceneRecord{
				testScene("b", 7, 10, 0, 0, 0),
				testScene("a", 6, 30, 5, 0, 0),
				testScene("c", 8, 1, 0, 0, 0),
				testScene("d", 9),
			}
			SortScenes(records, tt.sortby)

			got := sceneIDs(records)
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Fatalf("expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}

func TestSortScenes_TiesKeepOrder(t *testing.T) {
	records := []*catalog.SceneRecord{
		testScene("first", 6, 5, 0, 0, 0),
		testScene("second", 7, 5, 0, 0, 0),
		testScene("clear", 8, 0, 0, 0, 0),
	}
	SortScenes(records, []SortbyItem{{Field: "eo:cloud_cover", Direction: "asc"}})

	got := sceneIDs(records)
	expected := []string{"clear", "first", "second"}
	for i := range got {
		if got[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}
}

func TestIsSortable(t *testing.T) {
	for _, field := range []string{"datetime", "properties.datetime", "cloud_score", "eo:cloud_cover", "id"} {
		if !IsSortable(field) {
			t.Errorf("expected %s to be sortable", field)
		}
	}
	for _, field := range []string{"platform", "", "properties."} {
		if IsSortable(field) {
			t.Errorf("expected %q not to be sortable", field)
		}
	}
}
