// Package tiles fetches rendered images from a WMS tile service and turns
// them into georeferenced rasters.
package tiles

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/webp"
	"github.com/paulmach/orb"
	"golang.org/x/image/tiff"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/geo"
	"github.com/robert-malhotra/imagery-check/internal/raster"
)

// GetMap defaults.
const (
	DefaultFormat = "image/png"
	DefaultDPI    = 144

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 64 << 20
)

// Request describes one GetMap call.
type Request struct {
	// Bound of the image in CRS coordinates.
	Bound orb.Bound
	CRS   geo.CRS

	// Start and End are the days of the TIME filter. A zero End means Start.
	Start time.Time
	End   time.Time

	Layer string

	// Resolution is the ground size of one output pixel in CRS units.
	Resolution float64
}

// Size returns the pixel width and height requested for the bound.
func (r Request) Size() (width, height int) {
	return raster.PixelCount(r.Bound.Max[0]-r.Bound.Min[0], r.Resolution),
		raster.PixelCount(r.Bound.Max[1]-r.Bound.Min[1], r.Resolution)
}

// Fetcher issues WMS 1.3.0 GetMap requests.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	format     string
	dpi        int
}

// NewFetcher creates a fetcher for the WMS endpoint at baseURL.
func NewFetcher(baseURL string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
		format: DefaultFormat,
		dpi:    DefaultDPI,
	}
}

// WithLogger sets a custom logger for the fetcher
func (f *Fetcher) WithLogger(logger *slog.Logger) *Fetcher {
	f.logger = logger
	return f
}

// WithHTTPClient replaces the underlying HTTP client
func (f *Fetcher) WithHTTPClient(hc *http.Client) *Fetcher {
	f.httpClient = hc
	return f
}

// WithFormat sets the FORMAT parameter.
func (f *Fetcher) WithFormat(format string) *Fetcher {
	f.format = format
	return f
}

// URL builds the GetMap URL for req.
func (f *Fetcher) URL(req Request) (string, error) {
	if req.Layer == "" {
		return "", fmt.Errorf("%w: no layer", ErrInvalidRequest)
	}
	if req.CRS.IsZero() {
		return "", fmt.Errorf("%w: no CRS", ErrInvalidRequest)
	}
	if req.Start.IsZero() {
		return "", fmt.Errorf("%w: no start date", ErrInvalidRequest)
	}
	width, height := req.Size()
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("%w: bound %v at resolution %g gives %dx%d pixels",
			ErrInvalidRequest, req.Bound, req.Resolution, width, height)
	}

	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: base URL: %v", ErrInvalidRequest, err)
	}

	end := req.End
	if end.IsZero() {
		end = req.Start
	}

	q := u.Query()
	q.Set("SERVICE", "WMS")
	q.Set("VERSION", "1.3.0")
	q.Set("REQUEST", "GetMap")
	q.Set("LAYERS", req.Layer)
	q.Set("BBOX", formatBBox(req.Bound, req.CRS))
	q.Set("WIDTH", strconv.Itoa(width))
	q.Set("HEIGHT", strconv.Itoa(height))
	q.Set("CRS", req.CRS.String())
	q.Set("FORMAT", f.format)
	q.Set("TRANSPARENT", "true")
	q.Set("FORMAT_OPTIONS", "dpi:"+strconv.Itoa(f.dpi))
	q.Set("DPI", strconv.Itoa(f.dpi))
	q.Set("TIME", req.Start.UTC().Format(catalog.DateFormat)+"T00:00:00.001Z/"+
		end.UTC().Format(catalog.DateFormat)+"T23:59:59.999Z")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// formatBBox writes the bound in the axis order WMS 1.3.0 uses for the CRS:
// latitude first for EPSG:4326, easting first otherwise.
func formatBBox(b orb.Bound, crs geo.CRS) string {
	vals := []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	if crs.IsGeographic() {
		vals = []float64{b.Min[1], b.Min[0], b.Max[1], b.Max[0]}
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Fetch requests the image and returns it as a raster with R, G, B and A
// bands holding 0-255 values. The transform spreads the requested bound over
// the decoded image size.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*raster.Image, error) {
	reqURL, err := f.URL(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	f.logger.DebugContext(ctx, "requesting WMS image",
		slog.String("url", reqURL),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "image/*")
	httpReq.Header.Set("User-Agent", "imagery-check/1.0")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ServiceError{URL: reqURL, StatusCode: resp.StatusCode, ContentType: contentType, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		f.logger.ErrorContext(ctx, "tile service returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", truncate(body, 1024)),
		)
		return nil, &ServiceError{URL: reqURL, StatusCode: resp.StatusCode, ContentType: contentType, Body: truncate(body, 1024)}
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		// Service exceptions come back as XML or text with a 200 status.
		f.logger.ErrorContext(ctx, "tile service returned non-image content",
			slog.String("content_type", contentType),
			slog.String("response_body", truncate(body, 1024)),
		)
		return nil, &ServiceError{URL: reqURL, StatusCode: resp.StatusCode, ContentType: contentType, Body: truncate(body, 1024)}
	}

	decoded, err := decodeImage(body, mediaType)
	if err != nil {
		return nil, &ServiceError{URL: reqURL, StatusCode: resp.StatusCode, ContentType: contentType,
			Err: fmt.Errorf("decoding image: %w", err)}
	}

	img, err := toRaster(decoded, req)
	if err != nil {
		return nil, err
	}

	f.logger.DebugContext(ctx, "WMS image fetched",
		slog.String("layer", req.Layer),
		slog.Int("width", img.Width),
		slog.Int("height", img.Height),
		slog.Duration("duration", time.Since(start)),
	)
	if Blank(img) {
		f.logger.WarnContext(ctx, "WMS image is blank",
			slog.String("layer", req.Layer),
			slog.String("url", reqURL),
		)
	}

	return img, nil
}

// decodeImage decodes data according to the response media type, falling
// back to format sniffing for other image types.
func decodeImage(data []byte, mediaType string) (image.Image, error) {
	r := bytes.NewReader(data)
	switch mediaType {
	case "image/png":
		return png.Decode(r)
	case "image/jpeg", "image/jpg":
		return jpeg.Decode(r)
	case "image/gif":
		return gif.Decode(r)
	case "image/tiff", "image/geotiff":
		return tiff.Decode(r)
	case "image/webp":
		return webp.Decode(r)
	default:
		img, _, err := image.Decode(r)
		return img, err
	}
}

// toRaster splits the decoded image into R, G, B and A bands.
func toRaster(img image.Image, req Request) (*raster.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	bands := make([][]float64, 4)
	for i := range bands {
		bands[i] = make([]float64, w*h)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := y*w + x
			bands[0][i] = float64(c.R)
			bands[1][i] = float64(c.G)
			bands[2][i] = float64(c.B)
			bands[3][i] = float64(c.A)
		}
	}

	return raster.NewImage(bands, w, h, raster.FromBounds(req.Bound, w, h), req.CRS)
}

// Blank reports whether every band of img is constant.
func Blank(img *raster.Image) bool {
	for _, band := range img.Bands {
		for _, v := range band[1:] {
			if v != band[0] {
				return false
			}
		}
	}
	return true
}

func truncate(body []byte, n int) string {
	if len(body) > n {
		body = body[:n]
	}
	return string(body)
}
