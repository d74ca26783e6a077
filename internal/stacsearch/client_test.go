package stacsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/geo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func demoQuery(t *testing.T) *catalog.Query {
	t.Helper()
	area, err := geo.AreaFromBBox([]float64{0.748182, 44.6840129, 0.7618833, 44.69329}, geo.WGS84)
	if err != nil {
		t.Fatalf("AreaFromBBox failed: %v", err)
	}
	span, err := catalog.ParseTimeSpan("2025-03-09", "2025-04-08")
	if err != nil {
		t.Fatalf("ParseTimeSpan failed: %v", err)
	}
	return &catalog.Query{Area: area, Span: span}
}

func item(id string) string {
	return fmt.Sprintf(`{"type":"Feature","stac_version":"1.0.0","id":%q,"collection":"sentinel-2-l2a",`+
		`"geometry":{"type":"Polygon","coordinates":[[[0,44],[2,44],[2,45],[0,45],[0,44]]]},`+
		`"properties":{"datetime":"2025-04-06T10:56:21.024Z","proj:epsg":32631,`+
		`"s2:thin_cirrus_percentage":1,"s2:high_proba_clouds_percentage":2,`+
		`"s2:medium_proba_clouds_percentage":3,"s2:cloud_shadow_percentage":4},`+
		`"assets":{"red":{"href":"https://example.com/%s/B04.tif","proj:transform":[10,0,300000,0,-10,5000040]}}}`, id, id)
}

func TestBackend_Search_FirstRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/search" {
			t.Errorf("Expected path /search, got %s", r.URL.Path)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if body["datetime"] != "2025-03-09/2025-04-08" {
			t.Errorf("Expected datetime 2025-03-09/2025-04-08, got %v", body["datetime"])
		}
		if body["limit"] != float64(DefaultPageSize) {
			t.Errorf("Expected limit %d, got %v", DefaultPageSize, body["limit"])
		}
		collections, _ := body["collections"].([]any)
		if len(collections) != 1 || collections[0] != DefaultCollection {
			t.Errorf("Expected collections [%s], got %v", DefaultCollection, body["collections"])
		}
		intersects, _ := body["intersects"].(map[string]any)
		if intersects["type"] != "Polygon" {
			t.Errorf("Expected Polygon intersects, got %v", body["intersects"])
		}

		f, _ := body["filter"].(map[string]any)
		if f["op"] != "<=" {
			t.Errorf("Expected filter op <=, got %v", body["filter"])
		}
		if body["filter-lang"] != "cql2-json" {
			t.Errorf("Expected filter-lang cql2-json, got %v", body["filter-lang"])
		}

		w.Header().Set("Content-Type", "application/geo+json")
		fmt.Fprintf(w, `{"type":"FeatureCollection","numberMatched":1,"features":[%s],"links":[]}`, item("S2A_1"))
	}))
	defer server.Close()

	q := demoQuery(t)
	maxCloud := 20.0
	q.MaxCloudCover = &maxCloud

	backend := NewBackend(NewClient(server.URL, 5*time.Second).WithLogger(testLogger()), nil, 0, testLogger())
	records, err := backend.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ID != "S2A_1" {
		t.Errorf("Expected id S2A_1, got %s", rec.ID)
	}
	if _, err := rec.Band(catalog.BandRed); err != nil {
		t.Errorf("Expected red band, got %v", err)
	}
	score, err := catalog.CloudScore(rec)
	if err != nil || score != 10 {
		t.Errorf("Expected cloud score 10, got %v (%v)", score, err)
	}
}

func TestBackend_Search_FollowsNextLinks(t *testing.T) {
	var server *httptest.Server
	var posts, gets int
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/search" && posts == 0:
			posts++
			fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"links":[`+
				`{"rel":"next","href":%q,"method":"POST","body":{"token":"page2"},"merge":true}]}`,
				item("A"), server.URL+"/search")
		case r.Method == http.MethodPost && r.URL.Path == "/search":
			posts++
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["token"] != "page2" {
				t.Errorf("Expected token page2, got %v", body["token"])
			}
			if body["datetime"] != "2025-03-09/2025-04-08" {
				t.Errorf("Expected merged datetime, got %v", body["datetime"])
			}
			fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"links":[`+
				`{"rel":"next","href":%q}]}`, item("B"), server.URL+"/page3")
		case r.Method == http.MethodGet && r.URL.Path == "/page3":
			gets++
			fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"links":[{"rel":"self","href":"x"}]}`, item("C"))
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	backend := NewBackend(NewClient(server.URL, 5*time.Second).WithLogger(testLogger()), nil, 1, testLogger())
	records, err := backend.Search(context.Background(), demoQuery(t))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if posts != 2 || gets != 1 {
		t.Errorf("Expected 2 POST and 1 GET, got %d and %d", posts, gets)
	}
}

func TestBackend_Search_Limit(t *testing.T) {
	var server *httptest.Server
	var calls int
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s,%s],"links":[{"rel":"next","href":%q}]}`,
			item(fmt.Sprintf("A%d", calls)), item(fmt.Sprintf("B%d", calls)), server.URL+"/next")
	}))
	defer server.Close()

	q := demoQuery(t)
	q.Limit = 3

	backend := NewBackend(NewClient(server.URL, 5*time.Second).WithLogger(testLogger()), nil, 0, testLogger())
	records, err := backend.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 records, got %d", len(records))
	}
	if calls != 2 {
		t.Errorf("Expected 2 requests, got %d", calls)
	}
}

func TestBackend_Search_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("boom"))
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			backend := NewBackend(NewClient(server.URL, 5*time.Second).WithLogger(testLogger()), nil, 0, testLogger())
			_, err := backend.Search(context.Background(), demoQuery(t))
			if !errors.Is(err, catalog.ErrCatalogUnavailable) {
				t.Fatalf("Expected ErrCatalogUnavailable, got %v", err)
			}
		})
	}
}

func TestCloudCoverFilter(t *testing.T) {
	data, err := json.Marshal(CloudCoverFilter(15))
	if err != nil {
		t.Fatalf("failed to marshal filter: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to unmarshal filter: %v", err)
	}

	args, _ := got["args"].([]any)
	if got["op"] != "<=" || len(args) != 2 {
		t.Fatalf("Unexpected filter %s", data)
	}
	prop, _ := args[0].(map[string]any)
	if prop["property"] != "eo:cloud_cover" {
		t.Errorf("Expected property eo:cloud_cover, got %v", args[0])
	}
	if args[1] != float64(15) {
		t.Errorf("Expected 15, got %v", args[1])
	}
}
