// Package integration runs the full service stack against in-process fakes
// of the STAC catalog, the COG store and the WMS tile service.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/imagery-check/internal/api"
	"github.com/robert-malhotra/imagery-check/internal/app"
	"github.com/robert-malhotra/imagery-check/internal/cog"
	"github.com/robert-malhotra/imagery-check/internal/cog/cogtest"
	"github.com/robert-malhotra/imagery-check/internal/config"
	"github.com/robert-malhotra/imagery-check/internal/geo"
	"github.com/robert-malhotra/imagery-check/internal/raster"
)

var demoBounds = []float64{0.748182, 44.6840129, 0.7618833, 44.69329}

const (
	pixelSize  = 10.0
	layerRGB   = "demo:s2_rgb"
	layerBlank = "demo:blank"
)

// grid is a 10 m UTM 31N raster covering the demo area with a margin.
// Pixel (c, r) holds 1000 + 7c + 13r.
type grid struct {
	originX, originY float64
	width, height    int
}

func newGrid(t *testing.T) grid {
	t.Helper()
	area, err := geo.AreaFromBBox(demoBounds, geo.WGS84)
	require.NoError(t, err)
	local, err := area.Reproject(geo.EPSG(32631))
	require.NoError(t, err)
	b := local.Bound()

	g := grid{
		originX: math.Floor(b.Min[0]/pixelSize)*pixelSize - 100,
		originY: math.Ceil(b.Max[1]/pixelSize)*pixelSize + 100,
	}
	g.width = int(math.Ceil((b.Max[0]-g.originX)/pixelSize)) + 10
	g.height = int(math.Ceil((g.originY-b.Min[1])/pixelSize)) + 10
	return g
}

func (g grid) value(c, r int) uint16 {
	return uint16(1000 + 7*c + 13*r)
}

func (g grid) maxValue() float64 {
	return float64(7*g.width + 13*g.height)
}

func (g grid) transform() []float64 {
	return []float64{pixelSize, 0, g.originX, 0, -pixelSize, g.originY}
}

func TestGridFixture_Georeferenced(t *testing.T) {
	g := newGrid(t)
	r, err := cog.Open(context.Background(), "mem://grid", cog.BytesRangeReader(g.encode(t)), nil)
	require.NoError(t, err)

	info := r.GeoInfo()
	assert.Equal(t, 32631, info.EPSG)
	assert.Equal(t, raster.Affine{A: pixelSize, C: g.originX, E: -pixelSize, F: g.originY}, info.Transform)
	assert.Equal(t, g.width, r.Width())
	assert.Equal(t, g.height, r.Height())
}

func (g grid) encode(t *testing.T) []byte {
	t.Helper()
	pix := make([]uint16, g.width*g.height)
	for r := 0; r < g.height; r++ {
		for c := 0; c < g.width; c++ {
			pix[r*g.width+c] = g.value(c, r)
		}
	}
	data, err := cogtest.Encode(cogtest.Options{
		Width:       g.width,
		Height:      g.height,
		Tiled:       true,
		BlockWidth:  64,
		BlockHeight: 64,
		Compression: cogtest.Deflate,
		Predictor:   true,
		EPSG:        32631,
		Transform:   g.transform(),
	}, pix)
	require.NoError(t, err)
	return data
}

// render draws the grid over a WMS bbox as 8-bit gray.
func (g grid) render(bbox []float64, width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	dx := (bbox[2] - bbox[0]) / float64(width)
	dy := (bbox[3] - bbox[1]) / float64(height)
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			x := bbox[0] + (float64(i)+0.5)*dx
			y := bbox[3] - (float64(j)+0.5)*dy
			c := int(math.Floor((x - g.originX) / pixelSize))
			r := int(math.Floor((g.originY - y) / pixelSize))
			v := (float64(g.value(c, r)) - 1000) / g.maxValue() * 255
			gray := uint8(math.Max(0, math.Min(255, v)))
			img.SetNRGBA(i, j, color.NRGBA{R: gray, G: gray, B: gray, A: 255})
		}
	}
	return img
}

type upstream struct {
	server   *httptest.Server
	searches atomic.Int32
	tiles    atomic.Int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	g := newGrid(t)
	cogData := g.encode(t)
	u := &upstream{}

	mux := http.NewServeMux()
	mux.HandleFunc("/stac/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		u.searches.Add(1)
		w.Header().Set("Content-Type", "application/geo+json")
		fmt.Fprintf(w, `{"type":"FeatureCollection","numberMatched":2,"features":[%s,%s],"links":[]}`,
			feature(u.server.URL, "S2B_31TCK_20250406_0_L2A", "2025-04-06T10:56:21Z", 30, g),
			feature(u.server.URL, "S2A_31TCK_20250407_0_L2A", "2025-04-07T10:46:19Z", 1.5, g),
		)
	})
	mux.HandleFunc("/cog/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/tiff; application=geotiff")
		http.ServeContent(w, r, "band.tif", time.Time{}, bytes.NewReader(cogData))
	})
	mux.HandleFunc("/wms", func(w http.ResponseWriter, r *http.Request) {
		u.tiles.Add(1)
		q := r.URL.Query()
		width, _ := strconv.Atoi(q.Get("WIDTH"))
		height, _ := strconv.Atoi(q.Get("HEIGHT"))
		var bbox []float64
		for _, s := range strings.Split(q.Get("BBOX"), ",") {
			v, _ := strconv.ParseFloat(s, 64)
			bbox = append(bbox, v)
		}
		if width <= 0 || height <= 0 || len(bbox) != 4 || q.Get("CRS") != "EPSG:32631" {
			w.Header().Set("Content-Type", "application/vnd.ogc.se_xml")
			io.WriteString(w, `<ServiceExceptionReport><ServiceException>bad request</ServiceException></ServiceExceptionReport>`)
			return
		}

		var img image.Image
		switch q.Get("LAYERS") {
		case layerRGB:
			img = g.render(bbox, width, height)
		case layerBlank:
			blank := image.NewNRGBA(image.Rect(0, 0, width, height))
			for i := range blank.Pix {
				blank.Pix[i] = 255
			}
			img = blank
		default:
			w.Header().Set("Content-Type", "application/vnd.ogc.se_xml")
			io.WriteString(w, `<ServiceExceptionReport><ServiceException code="LayerNotDefined"/></ServiceExceptionReport>`)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, img); err != nil {
			t.Errorf("encoding tile: %v", err)
		}
	})

	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

func feature(base, id, datetime string, clouds float64, g grid) string {
	assets := map[string]any{}
	for _, band := range []string{"red", "green", "blue"} {
		assets[band] = map[string]any{
			"href":           fmt.Sprintf("%s/cog/%s/%s.tif", base, id, band),
			"type":           "image/tiff; application=geotiff; profile=cloud-optimized",
			"proj:transform": g.transform(),
			"proj:shape":     []int{g.height, g.width},
		}
	}
	f := map[string]any{
		"type":         "Feature",
		"stac_version": "1.0.0",
		"id":           id,
		"collection":   "sentinel-2-l2a",
		"geometry": map[string]any{
			"type":        "Polygon",
			"coordinates": [][][]float64{{{0, 44}, {2, 44}, {2, 45}, {0, 45}, {0, 44}}},
		},
		"bbox": []float64{0, 44, 2, 45},
		"properties": map[string]any{
			"datetime":                          datetime,
			"proj:epsg":                         32631,
			"eo:cloud_cover":                    clouds,
			"s2:thin_cirrus_percentage":         clouds / 2,
			"s2:high_proba_clouds_percentage":   clouds / 4,
			"s2:medium_proba_clouds_percentage": clouds / 8,
			"s2:cloud_shadow_percentage":        clouds / 8,
		},
		"assets": assets,
	}
	data, _ := json.Marshal(f)
	return string(data)
}

func testConfig(u *upstream) *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{BaseURL: "http://check.local", CORSOrigins: []string{"*"}},
		Catalog: config.CatalogConfig{Type: config.CatalogSTAC},
		OpenSearch: config.OpenSearchConfig{
			BaseURL:     u.server.URL + "/resto/search.json",
			Timeout:     5 * time.Second,
			MaxAttempts: 1,
			ChunkDays:   10,
		},
		STAC: config.STACConfig{
			BaseURL:     u.server.URL + "/stac",
			Collections: []string{"sentinel-2-l2a"},
			Timeout:     5 * time.Second,
		},
		WMS: config.WMSConfig{URL: u.server.URL + "/wms", Layer: layerRGB, Format: "image/png", Timeout: 5 * time.Second},
		Check: config.CheckConfig{
			RunTimeout:     30 * time.Second,
			DurationDays:   30,
			EndOffsetDays:  2,
			Bounds:         demoBounds,
			Resolution:     pixelSize,
			MinCorrelation: 0.9,
			MaxPValue:      0.05,
			MinValidPixels: 100,
		},
		COG: config.COGConfig{Timeout: 5 * time.Second, CacheSize: 64, CacheTTL: time.Minute, Workers: 3},
	}
}

func setupTestServer(t *testing.T, u *upstream) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testConfig(u)
	components, err := app.Build(cfg, logger)
	require.NoError(t, err)

	handlers := api.NewHandlers(cfg, components.Pipeline, components.Searcher, logger)
	server := httptest.NewServer(api.NewRouter(handlers, logger))
	t.Cleanup(server.Close)
	return server
}

func getCheck(t *testing.T, server *httptest.Server, layer string) (int, api.CheckResponse) {
	t.Helper()
	url := server.URL + "/checks/rgb?start=2025-04-06&end=2025-04-08&rgblayer=" + layer
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body api.CheckResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestCheckRGB_MatchingLayerPasses(t *testing.T) {
	u := newUpstream(t)
	server := setupTestServer(t, u)

	status, body := getCheck(t, server, layerRGB)
	require.Equal(t, http.StatusOK, status)

	assert.True(t, body.Passed, "check failed: %s", body.Error)
	assert.Empty(t, body.Error)
	assert.Greater(t, body.Correlation, 0.9)
	assert.Less(t, body.PValue, 0.05)
	assert.Greater(t, body.NumValidPixels, 100)

	// The least cloudy of the two scenes wins.
	assert.Equal(t, "S2A_31TCK_20250407_0_L2A", body.SceneID)
	assert.Equal(t, "2025-04-07", body.SceneDate)
	assert.Equal(t, 2, body.Candidates)
	assert.Equal(t, "stac", body.Backend)
	assert.Equal(t, "EPSG:32631", body.CRS)
	assert.False(t, body.BlankTile)
	assert.Contains(t, body.TileURL, "LAYERS=demo%3As2_rgb")

	assert.Equal(t, int32(1), u.searches.Load())
	assert.Equal(t, int32(1), u.tiles.Load())
}

func TestCheckRGB_BlankLayerFails(t *testing.T) {
	u := newUpstream(t)
	server := setupTestServer(t, u)

	status, body := getCheck(t, server, layerBlank)
	require.Equal(t, http.StatusOK, status)

	assert.False(t, body.Passed)
	assert.Equal(t, "correlation", body.Metric)
	assert.NotEmpty(t, body.Error)
	assert.True(t, body.BlankTile)
	assert.InDelta(t, 0, body.Correlation, 1e-9)
	assert.Greater(t, body.NumValidPixels, 100)
}

func TestCheckRGB_UnknownLayerIsUpstreamError(t *testing.T) {
	u := newUpstream(t)
	server := setupTestServer(t, u)

	resp, err := http.Get(server.URL + "/checks/rgb?start=2025-04-06&end=2025-04-08&rgblayer=demo:missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var apiErr api.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, api.ErrCodeUpstreamError, apiErr.Code)
}

func TestScenes_ListsCatalog(t *testing.T) {
	u := newUpstream(t)
	server := setupTestServer(t, u)

	resp, err := http.Get(server.URL + "/scenes?datetime=2025-04-06/2025-04-08&sortby=%2Bcloud_score&limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc struct {
		Features []struct {
			ID string `json:"id"`
		} `json:"features"`
		NumberMatched int `json:"numberMatched"`
		Links         []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))

	require.Len(t, fc.Features, 1)
	assert.Equal(t, "S2A_31TCK_20250407_0_L2A", fc.Features[0].ID)
	assert.Equal(t, 2, fc.NumberMatched)

	var next string
	for _, l := range fc.Links {
		if l.Rel == "next" {
			next = l.Href
		}
	}
	assert.True(t, strings.HasPrefix(next, "http://check.local/scenes?"), next)
	assert.Contains(t, next, "page=2")
}
