package colorsig

import "testing"

func TestCircularMean_WrapAround(t *testing.T) {
	// 350° and 10° straddle the wrap point; the mean must be 0°, not 180°.
	got, ok := CircularMean([]int{350, 10})
	if !ok {
		t.Fatalf("expected a mean, got none")
	}
	if got != 0 {
		t.Fatalf("CircularMean([350,10]) = %d; want 0", got)
	}
}

func TestCircularMean_Empty(t *testing.T) {
	if _, ok := CircularMean(nil); ok {
		t.Fatalf("expected no mean for empty input")
	}
	if _, ok := CircularMean([]int{}); ok {
		t.Fatalf("expected no mean for empty slice")
	}
}

func TestCircularMean_SingleAndCluster(t *testing.T) {
	cases := []struct {
		in   []int
		want int
	}{
		{[]int{42}, 42},
		{[]int{10, 20, 30}, 20},
		{[]int{355, 5}, 0},
		{[]int{90, 90, 90}, 90},
		{[]int{170, 190}, 180},
	}
	for _, c := range cases {
		got, ok := CircularMean(c.in)
		if !ok {
			t.Fatalf("CircularMean(%v): expected a mean", c.in)
		}
		if got != c.want {
			t.Errorf("CircularMean(%v) = %d; want %d", c.in, got, c.want)
		}
	}
}

func TestCircularMean_OpposingHuesCancel(t *testing.T) {
	if _, ok := CircularMean([]int{0, 180}); ok {
		t.Fatalf("expected no mean for perfectly opposing hues")
	}
}

func TestHueDistance(t *testing.T) {
	cases := []struct {
		a, b, want int
	}{
		{350, 10, 20},
		{10, 350, 20},
		{10, 200, 170},
		{0, 0, 0},
		{0, 180, 180},
		{40, 50, 10},
		{359, 0, 1},
	}
	for _, c := range cases {
		if got := HueDistance(c.a, c.b); got != c.want {
			t.Errorf("HueDistance(%d, %d) = %d; want %d", c.a, c.b, got, c.want)
		}
	}
}
