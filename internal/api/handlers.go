package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/bands"
	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/check"
	"github.com/robert-malhotra/imagery-check/internal/compare"
	"github.com/robert-malhotra/imagery-check/internal/config"
	"github.com/robert-malhotra/imagery-check/internal/geo"
	intstac "github.com/robert-malhotra/imagery-check/internal/stac"
	"github.com/robert-malhotra/imagery-check/internal/tiles"
)

// Scene listing page sizes.
const (
	DefaultLimit = 10
	MaxLimit     = 250
)

// CheckRunner runs one imagery check. check.Pipeline implements it.
type CheckRunner interface {
	Run(ctx context.Context, in check.Input) (*check.Verdict, error)
}

// Handlers contains all HTTP handlers of the service.
type Handlers struct {
	cfg      *config.Config
	runner   CheckRunner
	searcher catalog.Searcher
	now      func() time.Time
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(
	cfg *config.Config,
	runner CheckRunner,
	searcher catalog.Searcher,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		cfg:      cfg,
		runner:   runner,
		searcher: searcher,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the clock used for the default check window.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}

// CheckResponse is the body of GET /checks/rgb. Error is set, with HTTP 200,
// when the run completed but a threshold was not met.
type CheckResponse struct {
	Passed         bool    `json:"passed"`
	Error          string  `json:"error,omitempty"`
	Metric         string  `json:"metric,omitempty"`
	Correlation    float64 `json:"correlation"`
	PValue         float64 `json:"p_value"`
	NumValidPixels int     `json:"num_valid_pixels"`
	SceneID        string  `json:"scene_id"`
	SceneDate      string  `json:"scene_date"`
	CloudScore     float64 `json:"cloud_score"`
	Candidates     int     `json:"candidates"`
	Backend        string  `json:"backend"`
	Layer          string  `json:"layer"`
	CRS            string  `json:"crs"`
	TileURL        string  `json:"tile_url"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	BlankTile      bool    `json:"blank_tile"`
	DurationMS     int64   `json:"duration_ms"`
}

// NewCheckResponse renders a verdict.
func NewCheckResponse(v *check.Verdict) *CheckResponse {
	return &CheckResponse{
		Passed:         v.Passed,
		Error:          v.Failure,
		Metric:         v.Metric,
		Correlation:    v.Result.Correlation,
		PValue:         v.Result.PValue,
		NumValidPixels: v.Result.NumValidPixels,
		SceneID:        v.SceneID,
		SceneDate:      v.SceneDate.Format(catalog.DateFormat),
		CloudScore:     v.CloudScore,
		Candidates:     v.Candidates,
		Backend:        v.Backend,
		Layer:          v.Layer,
		CRS:            v.CRS,
		TileURL:        v.TileURL,
		Width:          v.Width,
		Height:         v.Height,
		BlankTile:      v.BlankTile,
		DurationMS:     v.Duration.Milliseconds(),
	}
}

// Ping answers liveness checks.
// GET /ping
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status":  "ok",
		"catalog": h.searcher.Name(),
		"layer":   h.cfg.WMS.Layer,
	}

	WriteJSON(w, http.StatusOK, response)
}

// CheckRGB validates a tile layer against the least cloudy scene of a window.
// GET /checks/rgb?start=&end=&duration_days=&rgblayer=&bounds=
func (h *Handlers) CheckRGB(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseCheckInput(r)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	verdict, err := h.runner.Run(r.Context(), in)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "imagery check errored",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("span", in.Span.String()),
			slog.String("layer", in.Layer),
			slog.String("error", err.Error()),
		)
		writeCheckError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, NewCheckResponse(verdict))
}

// parseCheckInput applies the check defaults: the window ends
// END_OFFSET_DAYS before today and spans DURATION_DAYS.
func (h *Handlers) parseCheckInput(r *http.Request) (check.Input, error) {
	query := r.URL.Query()

	duration := h.cfg.Check.DurationDays
	if s := query.Get("duration_days"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil {
			return check.Input{}, fmt.Errorf("invalid duration_days %q", s)
		}
		duration = d
	}

	span, err := check.Window(query.Get("start"), query.Get("end"), duration, h.cfg.Check.EndOffsetDays, h.now())
	if err != nil {
		return check.Input{}, err
	}

	bounds := h.cfg.Check.Bounds
	if s := query.Get("bounds"); s != "" {
		bounds, err = intstac.ParseBBox(s)
		if err != nil {
			return check.Input{}, fmt.Errorf("invalid bounds: %w", err)
		}
		if len(bounds) != 4 {
			return check.Input{}, fmt.Errorf("invalid bounds: expected west,south,east,north")
		}
	}
	if err := intstac.ValidateBBox(bounds); err != nil {
		return check.Input{}, fmt.Errorf("invalid bounds: %w", err)
	}
	area, err := geo.AreaFromBBox(bounds, geo.WGS84)
	if err != nil {
		return check.Input{}, fmt.Errorf("invalid bounds: %w", err)
	}

	layer := strings.TrimSpace(query.Get("rgblayer"))
	if layer == "" {
		layer = h.cfg.WMS.Layer
	}

	return check.Input{Area: area, Span: span, Layer: layer}, nil
}

// writeCheckError maps pipeline failures to HTTP statuses by error kind.
func writeCheckError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.Is(err, check.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidTimeSpan),
		errors.Is(err, tiles.ErrInvalidRequest):
		WriteInvalidParameter(w, err.Error())
	case errors.Is(err, catalog.ErrNoCandidate),
		errors.Is(err, catalog.ErrMalformedScene),
		errors.Is(err, compare.ErrInsufficientData):
		WriteError(w, http.StatusUnprocessableEntity, ErrCodeUnprocessable, err.Error())
	case errors.Is(err, catalog.ErrCatalogUnavailable),
		errors.Is(err, catalog.ErrInconsistentCatalog),
		errors.Is(err, tiles.ErrTileService),
		errors.Is(err, bands.ErrAssetRead):
		WriteUpstreamError(w, err.Error())
	default:
		WriteInternalError(w, err.Error())
	}
}

// Scenes lists catalog scenes as a STAC ItemCollection.
// GET /scenes, POST /scenes
func (h *Handlers) Scenes(w http.ResponseWriter, r *http.Request) {
	var searchReq *intstac.SearchRequest
	var err error

	switch r.Method {
	case http.MethodGet:
		searchReq, err = intstac.ParseSearchRequest(r)
	case http.MethodPost:
		searchReq, err = intstac.ParseSearchRequestBody(r.Body)
		defer r.Body.Close()
	default:
		WriteBadRequest(w, "method not allowed")
		return
	}
	if err != nil {
		WriteInvalidParameter(w, fmt.Sprintf("invalid search request: %v", err))
		return
	}

	// Fall back to the check area and window
	if len(searchReq.BBox) == 0 && len(searchReq.Intersects) == 0 {
		searchReq.BBox = h.cfg.Check.Bounds
	}
	if searchReq.DateTime == "" {
		span, err := check.Window("", "", h.cfg.Check.DurationDays, h.cfg.Check.EndOffsetDays, h.now())
		if err != nil {
			WriteInternalError(w, err.Error())
			return
		}
		searchReq.DateTime = span.String()
	}

	if err := intstac.ValidateSearchRequest(searchReq); err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	if searchReq.Limit == 0 {
		searchReq.Limit = DefaultLimit
	}
	if searchReq.Limit > MaxLimit {
		searchReq.Limit = MaxLimit
	}
	if searchReq.Page == 0 {
		searchReq.Page = 1
	}

	query, err := searchReq.Query()
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	ctx := r.Context()
	records, err := h.searcher.Search(ctx, query)
	if err != nil {
		h.logger.ErrorContext(ctx, "catalog search failed",
			slog.String("backend", h.searcher.Name()),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			WriteError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "catalog search timed out")
		} else {
			WriteUpstreamError(w, "upstream catalog error")
		}
		return
	}

	intstac.SortScenes(records, searchReq.Sortby)
	total := len(records)
	page := intstac.Paginate(records, searchReq.Page, searchReq.Limit)

	itemCollection := intstac.FromScenes(page)
	itemCollection.SetContext(h.searcher.Name(), searchReq.Limit, &total)

	baseURL := h.baseURL(r)
	scenesURL := baseURL + "/scenes"
	itemCollection.AddLink("self", scenesURL, "application/geo+json")
	itemCollection.AddLink("root", baseURL+"/", "application/json")

	queryParams := r.URL.Query()
	if r.Method == http.MethodPost {
		queryParams = searchReq.ToQueryParams()
	}
	itemCollection.Links = append(itemCollection.Links, intstac.BuildPaginationLinks(intstac.PaginationInfo{
		BaseURL:       scenesURL,
		CurrentPage:   searchReq.Page,
		Limit:         searchReq.Limit,
		TotalCount:    &total,
		ReturnedCount: len(page),
		QueryParams:   queryParams,
	})...)

	WriteGeoJSON(w, http.StatusOK, itemCollection)
}

// baseURL returns the configured public URL or the one the request came in on.
func (h *Handlers) baseURL(r *http.Request) string {
	if h.cfg.Server.BaseURL != "" {
		return strings.TrimSuffix(h.cfg.Server.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
