package stac

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseSearchRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/scenes?bbox=0.748182,44.6840129,0.7618833,44.69329&datetime=2025-04-06/2025-04-08&limit=5&page=2&sortby=-datetime,%2Bcloud_score&max_cloud_cover=20", nil)

	req, err := ParseSearchRequest(r)
	if err != nil {
		t.Fatalf("ParseSearchRequest failed: %v", err)
	}

	if len(req.BBox) != 4 || req.BBox[0] != 0.748182 || req.BBox[3] != 44.69329 {
		t.Errorf("unexpected bbox %v", req.BBox)
	}
	if req.DateTime != "2025-04-06/2025-04-08" {
		t.Errorf("unexpected datetime %s", req.DateTime)
	}
	if req.Limit != 5 || req.Page != 2 {
		t.Errorf("unexpected limit/page %d/%d", req.Limit, req.Page)
	}
	if len(req.Sortby) != 2 || req.Sortby[0] != (SortbyItem{Field: "datetime", Direction: "desc"}) ||
		req.Sortby[1] != (SortbyItem{Field: "cloud_score", Direction: "asc"}) {
		t.Errorf("unexpected sortby %+v", req.Sortby)
	}
	if req.MaxCloudCover == nil || *req.MaxCloudCover != 20 {
		t.Errorf("unexpected max_cloud_cover %v", req.MaxCloudCover)
	}

	if err := ValidateSearchRequest(req); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}
}

func TestParseSearchRequest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"short bbox", "bbox=1,2,3"},
		{"non-numeric bbox", "bbox=a,2,3,4"},
		{"bad limit", "limit=ten"},
		{"bad page", "page=x"},
		{"empty sort field", "sortby=-"},
		{"bad intersects", "intersects=%7B"},
		{"bad max cloud cover", "max_cloud_cover=lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/scenes?"+tt.query, nil)
			if _, err := ParseSearchRequest(r); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseSearchRequestBody(t *testing.T) {
	body := `{"intersects":{"type":"Polygon","coordinates":[[[0.74,44.68],[0.76,44.68],[0.76,44.69],[0.74,44.69],[0.74,44.68]]]},"datetime":"2025-04-07","limit":3}`

	req, err := ParseSearchRequestBody(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseSearchRequestBody failed: %v", err)
	}

	area, err := req.Area()
	if err != nil {
		t.Fatalf("Area failed: %v", err)
	}
	if b := area.Bound(); b.Min[0] != 0.74 || b.Max[1] != 44.69 {
		t.Errorf("unexpected area bound %v", b)
	}

	span, err := req.Span()
	if err != nil {
		t.Fatalf("Span failed: %v", err)
	}
	if span.String() != "2025-04-07/2025-04-07" {
		t.Errorf("expected single day span, got %s", span)
	}

	params := req.ToQueryParams()
	if params.Get("datetime") != "2025-04-07" || params.Get("intersects") == "" {
		t.Errorf("unexpected query params %v", params)
	}
	if params.Get("limit") != "" {
		t.Errorf("limit must be left to pagination links")
	}

	if _, err := ParseSearchRequestBody(strings.NewReader("{")); err == nil {
		t.Error("expected error for truncated body")
	}
}

func TestSearchRequest_Query(t *testing.T) {
	cloud := 15.0
	req := &SearchRequest{
		BBox:          []float64{0.748182, 44.6840129, 0.7618833, 44.69329},
		DateTime:      "2025-04-06T00:00:00Z/2025-04-08T12:00:00Z",
		MaxCloudCover: &cloud,
	}

	q, err := req.Query()
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if q.Span.String() != "2025-04-06/2025-04-08" {
		t.Errorf("unexpected span %s", q.Span)
	}
	if q.Area.CRS.String() != "EPSG:4326" {
		t.Errorf("expected EPSG:4326 area, got %s", q.Area.CRS)
	}
	if q.MaxCloudCover == nil || *q.MaxCloudCover != 15 {
		t.Errorf("max cloud cover not carried over")
	}

	tests := []struct {
		name string
		req  *SearchRequest
	}{
		{"no area", &SearchRequest{DateTime: "2025-04-06/2025-04-08"}},
		{"no datetime", &SearchRequest{BBox: []float64{0, 0, 1, 1}}},
		{"open interval", &SearchRequest{BBox: []float64{0, 0, 1, 1}, DateTime: "2025-04-06/.."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.req.Query(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidateSearchRequest(t *testing.T) {
	negative := -1.0

	tests := []struct {
		name    string
		req     *SearchRequest
		wantErr bool
	}{
		{"nil", nil, true},
		{"empty", &SearchRequest{}, false},
		{"valid bbox", &SearchRequest{BBox: []float64{0, 0, 1, 1}}, false},
		{"valid 3d bbox", &SearchRequest{BBox: []float64{0, 0, -10, 1, 1, 10}}, false},
		{"inverted bbox", &SearchRequest{BBox: []float64{1, 0, 0, 1}}, true},
		{"degenerate bbox", &SearchRequest{BBox: []float64{0, 0, 0, 1}}, true},
		{"latitude out of range", &SearchRequest{BBox: []float64{0, -91, 1, 1}}, true},
		{"inverted elevation", &SearchRequest{BBox: []float64{0, 0, 10, 1, 1, -10}}, true},
		{"bbox and intersects", &SearchRequest{BBox: []float64{0, 0, 1, 1}, Intersects: []byte(`{}`)}, true},
		{"bad datetime", &SearchRequest{DateTime: "yesterday"}, true},
		{"reversed interval", &SearchRequest{DateTime: "2025-04-08/2025-04-06"}, true},
		{"negative limit", &SearchRequest{Limit: -1}, true},
		{"negative page", &SearchRequest{Page: -1}, true},
		{"negative cloud cover", &SearchRequest{MaxCloudCover: &negative}, true},
		{"unsupported sort", &SearchRequest{Sortby: []SortbyItem{{Field: "platform"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSearchRequest(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSearchRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDatetimeInterval(t *testing.T) {
	start, end, err := ParseDatetimeInterval("2025-04-06/2025-04-08T10:00:00Z")
	if err != nil {
		t.Fatalf("ParseDatetimeInterval failed: %v", err)
	}
	if !start.Equal(time.Date(2025, 4, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %s", start)
	}
	if !end.Equal(time.Date(2025, 4, 8, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end %s", end)
	}

	start, end, err = ParseDatetimeInterval("../2025-04-08")
	if err != nil || start != nil || end == nil {
		t.Errorf("expected open start, got %v %v %v", start, end, err)
	}

	start, end, err = ParseDatetimeInterval("..")
	if err != nil || start != nil || end != nil {
		t.Errorf("expected fully open interval, got %v %v %v", start, end, err)
	}

	if _, _, err := ParseDatetimeInterval("2025-04-06/2025-04-07/2025-04-08"); err == nil {
		t.Error("expected error for three-part interval")
	}
}
