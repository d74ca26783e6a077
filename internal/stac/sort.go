package stac

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
)

// SortDirection represents the sort direction.
type SortDirection string

const (
	// SortAsc represents ascending sort order.
	SortAsc SortDirection = "asc"
	// SortDesc represents descending sort order.
	SortDesc SortDirection = "desc"
)

// Sort fields understood by SortScenes.
const (
	SortFieldDatetime   = "datetime"
	SortFieldCloudScore = "cloud_score"
	SortFieldCloudCover = "eo:cloud_cover"
	SortFieldID         = "id"
)

// normalizeSortField strips the "properties." prefix STAC clients may send.
func normalizeSortField(field string) string {
	return strings.TrimPrefix(field, "properties.")
}

// IsSortable reports whether SortScenes can order by field.
func IsSortable(field string) bool {
	switch normalizeSortField(field) {
	case SortFieldDatetime, SortFieldCloudScore, SortFieldCloudCover, SortFieldID:
		return true
	}
	return false
}

// SortScenes orders records in place by the given criteria. Records missing
// a numeric sort value sort last in either direction. The sort is stable, so
// ties keep catalog order.
func SortScenes(records []*catalog.SceneRecord, sortby []SortbyItem) {
	if len(sortby) == 0 {
		return
	}

	slices.SortStableFunc(records, func(a, b *catalog.SceneRecord) int {
		for _, item := range sortby {
			c := compareScenes(a, b, normalizeSortField(item.Field))
			if c == 0 {
				continue
			}
			if SortDirection(item.Direction) == SortDesc {
				// Missing values stay last
				if isMissing(a, item.Field) != isMissing(b, item.Field) {
					return c
				}
				return -c
			}
			return c
		}
		return 0
	})
}

func compareScenes(a, b *catalog.SceneRecord, field string) int {
	switch field {
	case SortFieldDatetime:
		return a.Datetime.Compare(b.Datetime)
	case SortFieldID:
		return cmp.Compare(a.ID, b.ID)
	default:
		return cmp.Compare(sortValue(a, field), sortValue(b, field))
	}
}

func isMissing(rec *catalog.SceneRecord, field string) bool {
	switch normalizeSortField(field) {
	case SortFieldDatetime, SortFieldID:
		return false
	}
	return math.IsInf(sortValue(rec, normalizeSortField(field)), 1)
}

// sortValue returns +Inf for records without the numeric field.
func sortValue(rec *catalog.SceneRecord, field string) float64 {
	if field == SortFieldCloudScore {
		if score, err := catalog.CloudScore(rec); err == nil {
			return score
		}
		return math.Inf(1)
	}
	if v, ok := rec.Number(field); ok {
		return v
	}
	return math.Inf(1)
}
