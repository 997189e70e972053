package service

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/peterz0310/image-placer-sub000/config"
	"github.com/peterz0310/image-placer-sub000/geometry"
)

var (
	squareColor     = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	backgroundColor = color.RGBA{R: 20, G: 60, B: 200, A: 255}
)

// squareImage 100×100 背景上有一个 10×10 的纯色方块，覆盖像素 45..54
func squareImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(45, 45, 55, 55), image.NewUniform(squareColor), image.Point{}, draw.Src)
	return img
}

func newTestSelector() *ColorFloodSelector {
	cfg := config.Default().Selection
	return NewColorFloodSelector(&cfg, nil)
}

func TestSelectSquare(t *testing.T) {
	sel, err := newTestSelector().Select(squareImage(), geometry.Point{X: 0.5, Y: 0.5}, 0.1, 64)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if sel.PixelCount != 100 {
		t.Errorf("PixelCount = %d, want 100", sel.PixelCount)
	}
	if sel.Bounds != image.Rect(45, 45, 55, 55) {
		t.Errorf("Bounds = %v, want (45,45)-(55,55)", sel.Bounds)
	}
	// Douglas-Peucker 把36个边界像素化简为四个角加上起止点
	if n := len(sel.Polygon); n < 4 || n > 8 {
		t.Errorf("len(Polygon) = %d, want 4..8", n)
	}
	for _, p := range sel.Polygon {
		if p.X < 0.45 || p.X > 0.54 || p.Y < 0.45 || p.Y > 0.54 {
			t.Errorf("polygon point %v outside the square", p)
		}
	}
	if sel.SeedColor != "#dc2828" {
		t.Errorf("SeedColor = %q, want #dc2828", sel.SeedColor)
	}
}

func TestSelectVisitsEachPixelOnce(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	draw.Draw(img, img.Bounds(), image.NewUniform(squareColor), image.Point{}, draw.Src)

	sel, err := newTestSelector().Select(img, geometry.Point{X: 0.1, Y: 0.9}, 0, 32)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.PixelCount != 40*30 {
		t.Errorf("PixelCount = %d, want %d", sel.PixelCount, 40*30)
	}
	if len(sel.Polygon) > 32 {
		t.Errorf("len(Polygon) = %d, want <= 32", len(sel.Polygon))
	}
}

func TestSelectToleranceGrowsRegion(t *testing.T) {
	img := squareImage()
	seed := geometry.Point{X: 0.5, Y: 0.5}
	sel, err := newTestSelector().Select(img, seed, 1, 32)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.PixelCount != 100*100 {
		t.Errorf("PixelCount with tolerance 1 = %d, want %d", sel.PixelCount, 100*100)
	}
}

func TestSelectTooSmall(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(9, 9, 11, 11), image.NewUniform(squareColor), image.Point{}, draw.Src)

	_, err := newTestSelector().Select(img, geometry.Point{X: 0.5, Y: 0.5}, 0.1, 32)
	if !errors.Is(err, ErrNoSelection) {
		t.Errorf("Select on 4-pixel region err = %v, want ErrNoSelection", err)
	}
}

func TestSelectEmptyImage(t *testing.T) {
	_, err := newTestSelector().Select(image.NewRGBA(image.Rect(0, 0, 0, 0)), geometry.Point{}, 0.1, 32)
	if !errors.Is(err, ErrNoSelection) {
		t.Errorf("Select on empty image err = %v, want ErrNoSelection", err)
	}
}

func BenchmarkSelect(b *testing.B) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 640))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(120, 160, 520, 480), image.NewUniform(squareColor), image.Point{}, draw.Src)
	fs := newTestSelector()
	seed := geometry.Point{X: 0.5, Y: 0.5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := fs.Select(img, seed, 0.1, 32); err != nil {
			b.Fatal(err)
		}
	}
}
