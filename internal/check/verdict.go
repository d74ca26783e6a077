package check

import (
	"fmt"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/compare"
)

// Metric names reported in threshold failures.
const (
	MetricCorrelation    = "correlation"
	MetricPValue         = "p_value"
	MetricNumValidPixels = "num_valid_pixels"
)

// Thresholds is the pass/fail policy applied to a comparison result.
type Thresholds struct {
	MinCorrelation float64
	MaxPValue      float64
	MinValidPixels int
}

// DefaultThresholds requires r > 0.9, p < 0.05 and more than 100 valid pixels.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCorrelation: 0.9,
		MaxPValue:      0.05,
		MinValidPixels: 100,
	}
}

// Evaluate checks the result against the thresholds in order: correlation,
// p-value, then valid-pixel count. Only the first violation is reported.
func (t Thresholds) Evaluate(res compare.Result) (passed bool, metric, failure string) {
	switch {
	case !(res.Correlation > t.MinCorrelation):
		return false, MetricCorrelation, fmt.Sprintf("Correlation is too low: %v", res.Correlation)
	case !(res.PValue < t.MaxPValue):
		return false, MetricPValue, fmt.Sprintf("P-value is too high: %v", res.PValue)
	case !(res.NumValidPixels > t.MinValidPixels):
		return false, MetricNumValidPixels, fmt.Sprintf("Number of valid pixels is too low: %d", res.NumValidPixels)
	}
	return true, "", ""
}

// Verdict is the outcome of one pipeline run. A failed threshold is a
// verdict with Passed false, not an error.
type Verdict struct {
	Passed  bool
	Metric  string
	Failure string
	Result  compare.Result

	SceneID    string
	SceneDate  time.Time
	CloudScore float64
	Candidates int
	Backend    string
	Layer      string
	CRS        string
	TileURL    string
	Width      int
	Height     int
	BlankTile  bool
	Duration   time.Duration
}
