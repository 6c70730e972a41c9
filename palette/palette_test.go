package palette

import (
	"errors"
	"image/color"
	"testing"

	mandel "github.com/marben/mandel_explorer"
)

func TestGenerateLength(t *testing.T) {
	for _, count := range []int{1, 2, 3, 4, 5, 7, 10, 99, 250, 500, 1001} {
		p, err := Generate(count, DefaultRing, DefaultWeights)
		if err != nil {
			t.Fatalf("Generate(%d) error: %v", count, err)
		}
		if len(p) != count {
			t.Errorf("len(Generate(%d)) = %d, want %d", count, len(p), count)
		}
	}
}

func TestGenerateStartsSegmentsOnControlColors(t *testing.T) {
	p := Default(500)

	// with 500 colors the segments start at 0, 80, 210, 320, 430
	starts := []int{0, 80, 210, 320, 430}
	for i, k := range starts {
		if p[k] != DefaultRing[i] {
			t.Errorf("palette[%d] = %v, want control color %v", k, p[k], DefaultRing[i])
		}
	}
}

func TestTangent(t *testing.T) {
	tests := []struct {
		name       string
		v0, v1, v2 float64
		d0, d1     float64
		want       float64
	}{
		{"rising", 0, 10, 30, 1, 1, 15},
		{"falling", 30, 10, 0, 1, 1, -15},
		{"maximum", 0, 10, 5, 1, 1, 0},
		{"minimum", 10, 0, 5, 1, 1, 0},
		{"plateau", 10, 10, 20, 1, 1, 5},
		{"scaled", 0, 10, 30, 0.5, 2, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tangent(tt.v0, tt.v1, tt.v2, tt.d0, tt.d1); got != tt.want {
				t.Errorf("tangent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHermiteEndpoints(t *testing.T) {
	if got := hermite(3, 9, 100, -40, 0); got != 3 {
		t.Errorf("hermite(t=0) = %v, want 3", got)
	}
	if got := hermite(3, 9, 100, -40, 1); got != 9 {
		t.Errorf("hermite(t=1) = %v, want 9", got)
	}
}

func TestGenerateEqualEndpointsExact(t *testing.T) {
	ring := []color.RGBA{
		{R: 10, G: 50, B: 0, A: 255},
		{R: 200, G: 50, B: 255, A: 255},
		{R: 30, G: 50, B: 128, A: 255},
	}
	p, err := Generate(90, ring, []float64{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	for k, c := range p {
		if c.G != 50 || c.A != 255 {
			t.Errorf("palette[%d] = %v, want G=50 A=255", k, c)
		}
	}
}

func TestGenerateArbitraryRing(t *testing.T) {
	ring := []color.RGBA{
		{R: 255, A: 255},
		{G: 255, A: 255},
		{B: 255, A: 255},
		{R: 255, G: 255, A: 255},
		{G: 255, B: 255, A: 255},
		{R: 255, B: 255, A: 255},
		{R: 128, G: 128, B: 128, A: 255},
	}
	weights := []float64{3, 1, 1, 2, 1, 1, 1}
	p, err := Generate(333, ring, weights)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 333 {
		t.Fatalf("len = %d, want 333", len(p))
	}
	if p[0] != ring[0] {
		t.Errorf("palette[0] = %v, want %v", p[0], ring[0])
	}
}

func TestGenerateInvalid(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		ring    []color.RGBA
		weights []float64
	}{
		{"zero count", 0, DefaultRing, DefaultWeights},
		{"single control", 10, DefaultRing[:1], DefaultWeights[:1]},
		{"weights mismatch", 10, DefaultRing, DefaultWeights[:4]},
		{"zero weight", 10, DefaultRing, []float64{0.5, 0, 0.2, 0.2, 0.1}},
		{"negative weight", 10, DefaultRing, []float64{0.5, -0.1, 0.2, 0.2, 0.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.count, tt.ring, tt.weights)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Generate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestBoundaries(t *testing.T) {
	weightSets := [][]float64{
		DefaultWeights,
		{0.1, 0.2, 0.3, 0.4},
		{1.0 / 3, 1.0 / 3, 1.0 / 3},
		{0.7, 0.1, 0.1, 0.1 + 1e-12},
	}
	for _, weights := range weightSets {
		for count := 1; count <= 1000; count++ {
			b := Boundaries(count, weights)
			if len(b) != len(weights)+1 {
				t.Fatalf("len(Boundaries) = %d, want %d", len(b), len(weights)+1)
			}
			if b[0] != 0 {
				t.Fatalf("Boundaries(%d, %v)[0] = %d, want 0", count, weights, b[0])
			}
			if last := b[len(b)-1]; last != count {
				t.Fatalf("Boundaries(%d, %v) ends at %d, want %d", count, weights, last, count)
			}
			for i := 1; i < len(b); i++ {
				if b[i] < b[i-1] {
					t.Fatalf("Boundaries(%d, %v) = %v not monotonic", count, weights, b)
				}
			}
		}
	}
}

func TestBoundariesDefault500(t *testing.T) {
	got := Boundaries(500, DefaultWeights)
	want := []int{0, 80, 210, 320, 430, 500}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Boundaries(500) = %v, want %v", got, want)
		}
	}
}

func TestParseRing(t *testing.T) {
	ring, err := ParseRing([]string{"#000764", "#206bcb", "#edffff", "#ffaa00", "#000200"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range ring {
		if ring[i] != DefaultRing[i] {
			t.Errorf("ParseRing()[%d] = %v, want %v", i, ring[i], DefaultRing[i])
		}
	}

	if _, err := ParseRing([]string{"#zzz"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("ParseRing(bad) error = %v, want ErrInvalid", err)
	}
}

func TestColor(t *testing.T) {
	p := Palette{
		{R: 0, G: 0, B: 0, A: 255},
		{R: 100, G: 200, B: 50, A: 255},
		{R: 200, G: 0, B: 250, A: 255},
	}

	tests := []struct {
		name  string
		mu    float64
		shift int
		want  color.RGBA
	}{
		{"interior", mandel.Interior, 0, Black},
		{"exact entry", 1, 0, p[1]},
		{"midpoint", 0.5, 0, color.RGBA{R: 50, G: 100, B: 25, A: 255}},
		{"shifted", 0, 1, p[1]},
		{"wraps", 2, 0, p[2]},
		{"wraps blend", 2.5, 0, color.RGBA{R: 100, G: 0, B: 125, A: 255}},
		{"large", 301, 0, p[1]},
		{"negative", -1, 0, p[2]},
		{"negative shift", 0, -1, p[2]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Color(tt.mu, tt.shift); got != tt.want {
				t.Errorf("Color(%v, %d) = %v, want %v", tt.mu, tt.shift, got, tt.want)
			}
		})
	}
}

func TestColorEmptyPalette(t *testing.T) {
	if got := Palette(nil).Color(3.2, 0); got != Black {
		t.Errorf("Color() on empty palette = %v, want Black", got)
	}
}
