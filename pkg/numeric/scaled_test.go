package numeric

import (
	"errors"
	"math"
	"testing"
)

func TestRescale(t *testing.T) {
	tests := []struct {
		name       string
		v          int64
		have, want int
		out        int64
		err        bool
	}{
		{"up", 125, 2, 4, 12500, false},
		{"down rounds half away", -125, 2, 1, -13, false},
		{"same", 7, 3, 3, 7, false},
		{"overflow", math.MaxInt64 / 2, 0, 1, 0, true},
		{"have beyond range", 1, MaxScale + 1, 2, 0, true},
		{"negative want", 1, 2, -1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rescale(tt.v, tt.have, tt.want)
			if tt.err {
				if err == nil {
					t.Fatalf("Rescale = %d, want an error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Rescale failed: %v", err)
			}
			if got != tt.out {
				t.Errorf("got %d, want %d", got, tt.out)
			}
		})
	}
}

func TestScaleUpOverflow(t *testing.T) {
	if _, err := ScaleUp(math.MinInt64/100-1, 100); !errors.Is(err, ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	if v, err := ScaleUp(-42, 1000); err != nil || v != -42000 {
		t.Errorf("ScaleUp = %d, %v", v, err)
	}
}
