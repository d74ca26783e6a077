// Package compare measures how closely a rendered tile matches the reference
// bands of a scene.
package compare

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/robert-malhotra/imagery-check/internal/raster"
)

// channels is how many leading bands of each raster are normalized.
const channels = 3

var (
	// ErrInsufficientData is returned when no pixel is valid in the reference.
	ErrInsufficientData = errors.New("insufficient valid pixels")

	// ErrShapeMismatch is returned when the rasters differ in size or have
	// fewer than three bands.
	ErrShapeMismatch = errors.New("raster shapes do not match")
)

// Result holds the comparison statistics.
type Result struct {
	Correlation    float64 `json:"correlation"`
	PValue         float64 `json:"p_value"`
	NumValidPixels int     `json:"num_valid_pixels"`
}

// Engine compares tile rasters against reference rasters.
type Engine struct {
	noData *float64
}

// NewEngine creates an engine that treats reference values <= 0 as no-data.
func NewEngine() *Engine {
	return &Engine{}
}

// WithNoData additionally excludes reference pixels equal to v.
func (e *Engine) WithNoData(v float64) *Engine {
	e.noData = &v
	return e
}

// Compare normalizes the tile's first three channels to the reference
// statistics and correlates the first channel of both over valid pixels.
// Neither raster is modified.
func (e *Engine) Compare(tile, ref *raster.Image) (Result, error) {
	if !tile.SameShape(ref) {
		return Result{}, fmt.Errorf("%w: tile %dx%d, reference %dx%d",
			ErrShapeMismatch, tile.Width, tile.Height, ref.Width, ref.Height)
	}
	if tile.Count() < channels || ref.Count() < channels {
		return Result{}, fmt.Errorf("%w: tile has %d bands, reference has %d, need %d",
			ErrShapeMismatch, tile.Count(), ref.Count(), channels)
	}

	valid := e.mask(ref)
	n := len(valid)
	if n == 0 {
		return Result{}, ErrInsufficientData
	}

	normalized := make([][]float64, channels)
	refValid := make([][]float64, channels)
	for c := 0; c < channels; c++ {
		tv := gather(tile.Bands[c], valid)
		rv := gather(ref.Bands[c], valid)
		tileMean, tileStd := stat.PopMeanStdDev(tv, nil)
		refMean, refStd := stat.PopMeanStdDev(rv, nil)

		for i, v := range tv {
			if tileStd == 0 {
				tv[i] = refMean
				continue
			}
			tv[i] = (v-tileMean)/tileStd*refStd + refMean
		}
		normalized[c] = tv
		refValid[c] = rv
	}

	r, p := Pearson(normalized[0], refValid[0])
	return Result{Correlation: r, PValue: p, NumValidPixels: n}, nil
}

// mask returns the indexes of pixels where every reference channel holds data.
func (e *Engine) mask(ref *raster.Image) []int {
	var valid []int
	for i := 0; i < ref.Pixels(); i++ {
		ok := true
		for c := 0; c < channels; c++ {
			v := ref.Bands[c][i]
			if !(v > 0) || (e.noData != nil && v == *e.noData) {
				ok = false
				break
			}
		}
		if ok {
			valid = append(valid, i)
		}
	}
	return valid
}

func gather(band []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = band[j]
	}
	return out
}

// Pearson returns the correlation of x and y and its two-sided p-value under
// a Student's t distribution with len(x)-2 degrees of freedom. Constant
// input gives (0, 1); fewer than three samples give a p-value of 1.
func Pearson(x, y []float64) (r, p float64) {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0, 1
	}
	if constant(x) || constant(y) {
		return 0, 1
	}

	r = stat.Correlation(x, y, nil)
	r = math.Max(-1, math.Min(1, r))
	if n < 3 {
		return r, 1
	}
	if math.Abs(r) == 1 {
		return r, 0
	}

	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = 2 * dist.Survival(math.Abs(t))
	return r, math.Min(1, p)
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}
