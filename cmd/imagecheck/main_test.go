package main

import (
	"testing"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/config"
)

func TestBuildInput(t *testing.T) {
	cfg := &config.Config{
		WMS: config.WMSConfig{Layer: "coramaps:s2_rgb"},
		Check: config.CheckConfig{
			DurationDays:  30,
			EndOffsetDays: 2,
			Bounds:        []float64{0.748182, 44.6840129, 0.7618833, 44.69329},
		},
	}
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		opts      options
		wantSpan  string
		wantLayer string
		wantErr   bool
	}{
		{
			name:      "defaults",
			opts:      options{duration: -1},
			wantSpan:  "2025-03-09/2025-04-08",
			wantLayer: "coramaps:s2_rgb",
		},
		{
			name:      "explicit window and layer",
			opts:      options{start: "2025-04-06", end: "2025-04-08", duration: -1, layer: "coramaps:blank"},
			wantSpan:  "2025-04-06/2025-04-08",
			wantLayer: "coramaps:blank",
		},
		{
			name:      "duration override",
			opts:      options{end: "2025-04-08", duration: 2},
			wantSpan:  "2025-04-06/2025-04-08",
			wantLayer: "coramaps:s2_rgb",
		},
		{
			name:    "three value bounds",
			opts:    options{duration: -1, bounds: "1,2,3"},
			wantErr: true,
		},
		{
			name:    "inverted bounds",
			opts:    options{duration: -1, bounds: "2,44,1,45"},
			wantErr: true,
		},
		{
			name:    "bad date",
			opts:    options{end: "08/04/2025", duration: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := buildInput(cfg, tt.opts, now)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildInput failed: %v", err)
			}
			if got := in.Span.String(); got != tt.wantSpan {
				t.Errorf("expected span %s, got %s", tt.wantSpan, got)
			}
			if in.Layer != tt.wantLayer {
				t.Errorf("expected layer %s, got %s", tt.wantLayer, in.Layer)
			}
			if in.Area.IsEmpty() {
				t.Error("expected a non-empty area")
			}
		})
	}
}
