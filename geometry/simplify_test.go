package geometry

import (
	"reflect"
	"testing"
)

// squareWalk 沿 100x100 正方形的边每10个单位取一个点，最后停在 (0,1)
func squareWalk() []Point {
	var pts []Point
	for x := 0.0; x < 100; x += 10 {
		pts = append(pts, Point{x, 0})
	}
	for y := 0.0; y < 100; y += 10 {
		pts = append(pts, Point{100, y})
	}
	for x := 100.0; x > 0; x -= 10 {
		pts = append(pts, Point{x, 100})
	}
	for y := 100.0; y > 1; y -= 10 {
		pts = append(pts, Point{0, y})
	}
	return append(pts, Point{0, 1})
}

func TestSimplifyShortSequences(t *testing.T) {
	for _, pts := range [][]Point{nil, {{1, 2}}, {{1, 2}, {3, 4}}} {
		got := Simplify(pts, 2)
		if len(got) != len(pts) {
			t.Errorf("Simplify(%v) = %v, want unchanged", pts, got)
		}
	}
}

func TestSimplifyCollinear(t *testing.T) {
	pts := []Point{{0, 0}, {1, 0.1}, {2, -0.1}, {3, 0}, {4, 0}}
	got := Simplify(pts, 0.5)
	want := []Point{{0, 0}, {4, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Simplify = %v, want %v", got, want)
	}
}

func TestSimplifySquare(t *testing.T) {
	got := Simplify(squareWalk(), 2)
	want := []Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Simplify = %v, want %v", got, want)
	}
}

func TestSimplifyIdempotent(t *testing.T) {
	shapes := map[string][]Point{
		"square": squareWalk(),
		"zigzag": {{0, 0}, {2, 5}, {4, 0}, {6, 5}, {8, 0}, {10, 5}},
		"blob":   {{10, 0}, {7, 7}, {0, 10}, {-7, 7}, {-10, 0}, {-7, -7}, {0, -10}, {7, -7}},
	}
	for name, pts := range shapes {
		t.Run(name, func(t *testing.T) {
			once := Simplify(pts, 2)
			twice := Simplify(once, 2)
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("Simplify not idempotent: %v then %v", once, twice)
			}
		})
	}
}

func TestSimplifyDoesNotModifyInput(t *testing.T) {
	pts := squareWalk()
	before := append([]Point(nil), pts...)
	Simplify(pts, 2)
	if !reflect.DeepEqual(pts, before) {
		t.Error("Simplify modified its input")
	}
}
