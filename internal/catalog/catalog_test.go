package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

func scene(id string, clouds ...float64) *SceneRecord {
	props := map[string]any{}
	for i, k := range CloudKeys {
		if i < len(clouds) {
			props[k] = clouds[i]
		}
	}
	raw, _ := json.Marshal(map[string]any{"id": id, "properties": props})
	return &SceneRecord{ID: id, Properties: props, Raw: raw}
}

func TestNewTimeSpan(t *testing.T) {
	span, err := NewTimeSpan(time.Date(2025, 4, 6, 13, 30, 0, 0, time.UTC), day("2025-04-08"))
	if err != nil {
		t.Fatalf("NewTimeSpan failed: %v", err)
	}
	if !span.Start.Equal(day("2025-04-06")) {
		t.Errorf("expected start truncated to midnight, got %s", span.Start)
	}
	if span.Days() != 3 {
		t.Errorf("expected 3 days, got %d", span.Days())
	}
	if span.String() != "2025-04-06/2025-04-08" {
		t.Errorf("unexpected String(): %s", span.String())
	}
	if span.StartOfDay() != "2025-04-06T00:00:00Z" || span.EndOfDay() != "2025-04-08T23:59:59Z" {
		t.Errorf("unexpected day bounds: %s %s", span.StartOfDay(), span.EndOfDay())
	}

	_, err = NewTimeSpan(day("2025-04-08"), day("2025-04-06"))
	if !errors.Is(err, ErrInvalidTimeSpan) {
		t.Errorf("expected ErrInvalidTimeSpan, got %v", err)
	}
}

func TestParseTimeSpan(t *testing.T) {
	span, err := ParseTimeSpan("2025-04-06", "2025-04-06")
	if err != nil {
		t.Fatalf("ParseTimeSpan failed: %v", err)
	}
	if span.Days() != 1 {
		t.Errorf("expected single day, got %d", span.Days())
	}

	if _, err := ParseTimeSpan("06/04/2025", "2025-04-06"); !errors.Is(err, ErrInvalidTimeSpan) {
		t.Errorf("expected ErrInvalidTimeSpan, got %v", err)
	}
	if _, err := ParseTimeSpan("2025-04-06", "nope"); !errors.Is(err, ErrInvalidTimeSpan) {
		t.Errorf("expected ErrInvalidTimeSpan, got %v", err)
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		size      int
		wantCount int
	}{
		{"95 days in 10 day chunks", "2025-01-01", "2025-04-05", 10, 10},
		{"single day", "2025-01-01", "2025-01-01", 10, 1},
		{"exact multiple", "2025-01-01", "2025-01-20", 10, 2},
		{"one past multiple", "2025-01-01", "2025-01-21", 10, 3},
		{"no chunking", "2025-01-01", "2025-12-31", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, err := ParseTimeSpan(tt.start, tt.end)
			if err != nil {
				t.Fatalf("ParseTimeSpan failed: %v", err)
			}

			chunks := span.Chunks(tt.size)
			if len(chunks) != tt.wantCount {
				t.Fatalf("expected %d chunks, got %d", tt.wantCount, len(chunks))
			}

			// Chunks tile the span with no gaps or overlaps.
			if !chunks[0].Start.Equal(span.Start) {
				t.Errorf("first chunk starts at %s, want %s", chunks[0].Start, span.Start)
			}
			if !chunks[len(chunks)-1].End.Equal(span.End) {
				t.Errorf("last chunk ends at %s, want %s", chunks[len(chunks)-1].End, span.End)
			}
			total := 0
			for i, c := range chunks {
				total += c.Days()
				if tt.size > 0 && c.Days() > tt.size {
					t.Errorf("chunk %d has %d days", i, c.Days())
				}
				if i > 0 && !c.Start.Equal(chunks[i-1].End.AddDate(0, 0, 1)) {
					t.Errorf("chunk %d starts at %s, previous ended %s", i, c.Start, chunks[i-1].End)
				}
			}
			if total != span.Days() {
				t.Errorf("chunks cover %d days, span has %d", total, span.Days())
			}
		})
	}
}

func TestSingleDay(t *testing.T) {
	span := SingleDay(time.Date(2025, 4, 7, 10, 56, 21, 0, time.UTC))
	if span.String() != "2025-04-07/2025-04-07" {
		t.Errorf("unexpected span %s", span)
	}
}

func TestDedup(t *testing.T) {
	a := scene("A", 1, 2, 3, 4)
	b := scene("B", 0, 0, 0, 0)

	// Same id, same content, different key order and whitespace.
	aAgain := &SceneRecord{ID: "A", Raw: json.RawMessage(`{ "properties": {"s2:cloud_shadow_percentage":4,"s2:high_proba_clouds_percentage":2,"s2:medium_proba_clouds_percentage":3,"s2:thin_cirrus_percentage":1}, "id":"A"}`)}

	out, err := Dedup([]*SceneRecord{a, b, aAgain})
	if err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if len(out) != 2 || out[0].ID != "A" || out[1].ID != "B" {
		t.Fatalf("unexpected result %v", ids(out))
	}

	// Idempotent.
	again, err := Dedup(out)
	if err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if len(again) != len(out) {
		t.Errorf("expected idempotent dedup, got %d records", len(again))
	}

	// The same raw list twice dedups to the same result as once.
	list := []*SceneRecord{a, b, aAgain}
	twice, err := Dedup(append(append([]*SceneRecord(nil), list...), list...))
	if err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if !slices.Equal(ids(twice), ids(out)) {
		t.Fatalf("expected %v for doubled list, got %v", ids(out), ids(twice))
	}
	for i := range out {
		if twice[i] != out[i] {
			t.Errorf("record %d: doubled list kept a different instance of %s", i, out[i].ID)
		}
	}
}

func TestDedupConflict(t *testing.T) {
	a := scene("A", 1, 2, 3, 4)
	conflict := scene("A", 9, 9, 9, 9)

	_, err := Dedup([]*SceneRecord{a, conflict})
	if !errors.Is(err, ErrInconsistentCatalog) {
		t.Fatalf("expected ErrInconsistentCatalog, got %v", err)
	}
}

func TestDeduplicatorAdd(t *testing.T) {
	d := NewDeduplicator()

	added, err := d.Add(scene("A", 1, 1, 1, 1))
	if err != nil || !added {
		t.Fatalf("expected first add to succeed, got added=%v err=%v", added, err)
	}
	added, err = d.Add(scene("A", 1, 1, 1, 1))
	if err != nil || added {
		t.Fatalf("expected duplicate to be dropped, got added=%v err=%v", added, err)
	}

	_, err = d.Add(&SceneRecord{ID: "bad", Raw: json.RawMessage(`{not json`)})
	if !errors.Is(err, ErrMalformedScene) {
		t.Errorf("expected ErrMalformedScene, got %v", err)
	}
	if d.Len() != 1 {
		t.Errorf("expected 1 record, got %d", d.Len())
	}
}

func TestSelectBest(t *testing.T) {
	records := []*SceneRecord{
		scene("cloudy", 10, 20, 30, 5),
		scene("clear-1", 0.5, 0, 0.25, 0.25),
		scene("clear-2", 0.25, 0.25, 0.25, 0.25),
		scene("hazy", 5, 0, 0, 0),
	}

	best, err := SelectBest(records)
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if best.ID != "clear-1" {
		t.Errorf("expected clear-1 (first of tied minimum), got %s", best.ID)
	}

	score, err := CloudScore(best)
	if err != nil {
		t.Fatalf("CloudScore failed: %v", err)
	}
	if score != 1 {
		t.Errorf("expected score 1, got %v", score)
	}
}

func TestSelectBestSingleAndEmpty(t *testing.T) {
	only := scene("only", 99, 99, 99, 99)
	best, err := SelectBest([]*SceneRecord{only})
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if best != only {
		t.Errorf("expected the only record to be selected")
	}

	if _, err := SelectBest(nil); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("expected ErrNoCandidate, got %v", err)
	}
}

func TestSelectBestMalformed(t *testing.T) {
	records := []*SceneRecord{
		scene("ok", 1, 1, 1, 1),
		scene("missing-shadow", 1, 1, 1),
	}
	if _, err := SelectBest(records); !errors.Is(err, ErrMalformedScene) {
		t.Errorf("expected ErrMalformedScene, got %v", err)
	}

	bad := scene("string-valued", 1, 1, 1, 1)
	bad.Properties[CloudKeys[0]] = "1"
	if _, err := SelectBest([]*SceneRecord{bad}); !errors.Is(err, ErrMalformedScene) {
		t.Errorf("expected ErrMalformedScene, got %v", err)
	}
}

const stacFeature = `{
  "type": "Feature",
  "stac_version": "1.0.0",
  "id": "S2B_31TCJ_20250407_0_L2A",
  "collection": "sentinel-2-l2a",
  "geometry": {"type": "Polygon", "coordinates": [[[0.5, 44.5], [1.9, 44.5], [1.9, 45.5], [0.5, 45.5], [0.5, 44.5]]]},
  "properties": {
    "datetime": "2025-04-07T10:56:21.024000Z",
    "proj:epsg": 32631,
    "s2:thin_cirrus_percentage": 0.01,
    "s2:high_proba_clouds_percentage": 0.2,
    "s2:medium_proba_clouds_percentage": 0.3,
    "s2:cloud_shadow_percentage": 0
  },
  "assets": {
    "red": {"href": "https://example.com/B04.tif", "type": "image/tiff; application=geotiff; profile=cloud-optimized", "proj:shape": [10980, 10980], "proj:transform": [10, 0, 300000, 0, -10, 5000040]},
    "blue": {"href": "https://example.com/B02.tif", "proj:transform": [10, 0, 300000, 0, -10, 5000040, 0, 0, 1]},
    "thumbnail": {"href": "https://example.com/thumb.jpg", "roles": ["thumbnail"]}
  }
}`

func TestDecodeFeature(t *testing.T) {
	rec, err := DecodeFeature([]byte(stacFeature))
	if err != nil {
		t.Fatalf("DecodeFeature failed: %v", err)
	}

	if rec.ID != "S2B_31TCJ_20250407_0_L2A" || rec.Collection != "sentinel-2-l2a" {
		t.Errorf("unexpected identity %s/%s", rec.Collection, rec.ID)
	}
	if !rec.HasFootprint() {
		t.Fatal("expected footprint")
	}

	date, err := rec.AcquisitionDate()
	if err != nil {
		t.Fatalf("AcquisitionDate failed: %v", err)
	}
	if date.Format(DateFormat) != "2025-04-07" {
		t.Errorf("expected 2025-04-07, got %s", date.Format(DateFormat))
	}

	crs, err := rec.CRS()
	if err != nil {
		t.Fatalf("CRS failed: %v", err)
	}
	if crs.EPSG != 32631 {
		t.Errorf("expected EPSG 32631, got %d", crs.EPSG)
	}

	red, err := rec.Band(BandRed)
	if err != nil {
		t.Fatalf("Band(red) failed: %v", err)
	}
	if red.Transform.C != 300000 || red.Transform.E != -10 {
		t.Errorf("unexpected red transform %+v", *red.Transform)
	}
	if len(red.Shape) != 2 || red.Shape[1] != 10980 {
		t.Errorf("unexpected red shape %v", red.Shape)
	}

	if _, err := rec.Band(BandGreen); !errors.Is(err, ErrMalformedScene) {
		t.Errorf("expected missing green band to be malformed, got %v", err)
	}
	if _, err := rec.Band("thumbnail"); !errors.Is(err, ErrMalformedScene) {
		t.Errorf("expected thumbnail without transform to be malformed, got %v", err)
	}

	score, err := CloudScore(rec)
	if err != nil {
		t.Fatalf("CloudScore failed: %v", err)
	}
	if score < 0.509 || score > 0.511 {
		t.Errorf("expected score 0.51, got %v", score)
	}
}

func TestDecodeFeatureProjCode(t *testing.T) {
	rec, err := DecodeFeature([]byte(`{"id":"x","geometry":null,"properties":{"proj:code":"EPSG:32733","startDate":"2025-04-07"}}`))
	if err != nil {
		t.Fatalf("DecodeFeature failed: %v", err)
	}
	if rec.HasFootprint() {
		t.Error("expected no footprint for null geometry")
	}
	crs, err := rec.CRS()
	if err != nil || crs.EPSG != 32733 {
		t.Errorf("expected EPSG 32733, got %v (%v)", crs, err)
	}
	if _, err := rec.AcquisitionDate(); err != nil {
		t.Errorf("AcquisitionDate failed: %v", err)
	}
}

func TestDecodeFeatureErrors(t *testing.T) {
	tests := map[string]string{
		"not json":      `{`,
		"missing id":    `{"properties":{}}`,
		"bad datetime":  `{"id":"x","properties":{"datetime":"yesterday"}}`,
		"bad geometry":  `{"id":"x","geometry":{"type":"Point","coordinates":[0,0]}}`,
		"bad transform": `{"id":"x","assets":{"red":{"href":"a","proj:transform":[1,2]}}}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeFeature([]byte(doc)); !errors.Is(err, ErrMalformedScene) {
				t.Errorf("expected ErrMalformedScene, got %v", err)
			}
		})
	}

	rec, err := DecodeFeature([]byte(`{"id":"x"}`))
	if err != nil {
		t.Fatalf("DecodeFeature failed: %v", err)
	}
	if _, err := rec.CRS(); !errors.Is(err, ErrMalformedScene) {
		t.Errorf("expected ErrMalformedScene for missing CRS, got %v", err)
	}
	if _, err := rec.AcquisitionDate(); !errors.Is(err, ErrMalformedScene) {
		t.Errorf("expected ErrMalformedScene for missing datetime, got %v", err)
	}
}

func TestUnavailableError(t *testing.T) {
	err := fmt.Errorf("chunk 2025-04-01/2025-04-10: %w", &UnavailableError{
		Endpoint:   "https://catalogue.example.com/search.json",
		Attempts:   5,
		StatusCode: 503,
		Body:       "maintenance",
	})

	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Error("expected errors.Is to match ErrCatalogUnavailable")
	}

	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatal("expected errors.As to find UnavailableError")
	}
	if ue.StatusCode != 503 || ue.Body != "maintenance" {
		t.Errorf("unexpected error fields %+v", ue)
	}

	transport := &UnavailableError{Endpoint: "x", Attempts: 1, Err: errors.New("connection refused")}
	if transport.Unwrap() == nil {
		t.Error("expected wrapped transport error")
	}
}

func ids(records []*SceneRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
