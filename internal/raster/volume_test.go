package raster

import (
	"testing"
)

func TestVolumeIndexing(t *testing.T) {
	vol := NewVolume(Dims{TimeSteps: 3, Height: 2, Width: 4})
	vol.Set(1, 1, 2, 7.5)

	if got := vol.At(1, 1, 2); got != 7.5 {
		t.Errorf("At(1,1,2) = %v, want 7.5", got)
	}
	if got := vol.Slice(1)[1*4+2]; got != 7.5 {
		t.Errorf("Slice(1)[6] = %v, want 7.5", got)
	}
	if got := vol.At(0, 1, 2); got != 0 {
		t.Errorf("untouched sample = %v, want 0", got)
	}
}

func TestPixelSeries(t *testing.T) {
	vol := NewVolume(Dims{TimeSteps: 4, Height: 2, Width: 2})
	for ts := 0; ts < 4; ts++ {
		vol.Set(ts, 1, 0, float32(ts)*10)
	}

	series := vol.PixelSeries(1, 0)
	want := []float32{0, 10, 20, 30}
	for i := range want {
		if series[i] != want[i] {
			t.Fatalf("series[%d] = %v, want %v", i, series[i], want[i])
		}
	}
}

func TestFromSlices(t *testing.T) {
	slices := [][]float32{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
	}
	vol, err := FromSlices(slices, 2, 2)
	if err != nil {
		t.Fatalf("FromSlices: %v", err)
	}
	if vol.At(1, 1, 0) != 7 {
		t.Errorf("At(1,1,0) = %v, want 7", vol.At(1, 1, 0))
	}

	// Mismatched buffer length must be rejected.
	if _, err := FromSlices([][]float32{{1, 2, 3}}, 2, 2); err == nil {
		t.Error("expected error for short slice buffer")
	}

	// Empty input has no valid shape.
	if _, err := FromSlices(nil, 2, 2); err == nil {
		t.Error("expected error for empty slice list")
	}
}

func TestDimsEqual(t *testing.T) {
	a := Dims{TimeSteps: 2, Height: 3, Width: 4}
	if !a.Equal(Dims{TimeSteps: 2, Height: 3, Width: 4}) {
		t.Error("identical dims should be equal")
	}
	if a.Equal(Dims{TimeSteps: 2, Height: 4, Width: 3}) {
		t.Error("transposed dims should not be equal")
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"illumination", "illumination"},
		{"Shackleton Rim (20m)", "Shackleton_Rim__20m_"},
		{"avg-illum.2030", "avg_illum_2030"},
		{"2030_forecast", "_2030_forecast"},
		{"", "_"},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
