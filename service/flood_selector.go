package service

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/peterz0310/image-placer-sub000/config"
	"github.com/peterz0310/image-placer-sub000/geometry"
	"github.com/peterz0310/image-placer-sub000/utils"
	"go.uber.org/zap"
)

// ErrNoSelection 区域过小或边界不足，未产生选区
var ErrNoSelection = errors.New("no region selected")

// RGB 空间中两种颜色的最大欧氏距离
var maxRGBDistance = math.Sqrt(3)

// Selection 颜色选区结果，Polygon 为归一化坐标
type Selection struct {
	Polygon    geometry.Polygon
	PixelCount int
	Bounds     image.Rectangle
	SeedColor  string
}

// ColorFloodSelector 从种子像素按颜色距离生长连通区域并生成多边形
type ColorFloodSelector struct {
	minVertices     int
	maxVertices     int
	minRegion       int
	simplifyEpsilon float64
	tracer          *BoundaryTracer
}

func NewColorFloodSelector(cfg *config.SelectionConfig, tracer *BoundaryTracer) *ColorFloodSelector {
	if tracer == nil {
		tracer = NewBoundaryTracer(nil)
	}
	return &ColorFloodSelector{
		minVertices:     cfg.MinVertices,
		maxVertices:     cfg.MaxVertices,
		minRegion:       cfg.MinRegion,
		simplifyEpsilon: cfg.SimplifyEpsilon,
		tracer:          tracer,
	}
}

// Select 以归一化种子点 seed 做4连通广度优先填充。
// tolerance ∈ [0,1] 是相对最大 RGB 距离的比例；vertices 是输出顶点数上限。
func (fs *ColorFloodSelector) Select(img image.Image, seed geometry.Point, tolerance float64, vertices int) (*Selection, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, ErrNoSelection
	}

	sx := max(0, min(int(seed.X*float64(w)), w-1))
	sy := max(0, min(int(seed.Y*float64(h)), h-1))

	colors := make([]colorful.Color, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			colors[y*w+x] = toColorful(img.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	seedColor := colors[sy*w+sx]
	limit := max(0, min(tolerance, 1)) * maxRGBDistance

	region := NewRasterMask(w, h)
	visited := make([]bool, w*h)
	queue := []int{sy*w + sx}
	visited[sy*w+sx] = true
	count := 0
	bounds := image.Rectangle{}

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if colors[idx].DistanceRgb(seedColor) > limit {
			continue
		}
		x, y := idx%w, idx/w
		region.Data[idx] = 1
		count++
		bounds = bounds.Union(image.Rect(x, y, x+1, y+1))

		for _, d := range fourNeighbours {
			nx, ny := x+d.X, y+d.Y
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			n := ny*w + nx
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}

	if count < fs.minRegion {
		utils.Logger.Debug("flood region too small", zap.Int("pixels", count))
		return nil, ErrNoSelection
	}

	boundary, err := fs.tracer.Trace(region, 0.5)
	if err != nil {
		return nil, ErrNoSelection
	}

	target := geometry.ClampVertexCount(vertices, fs.minVertices, fs.maxVertices)
	pts := geometry.Stride(boundary, target)
	if fs.simplifyEpsilon > 0 {
		if simplified := geometry.Simplify(pts, fs.simplifyEpsilon); len(simplified) >= 3 {
			pts = simplified
		}
	}
	if len(pts) < 3 {
		return nil, ErrNoSelection
	}

	return &Selection{
		Polygon:    geometry.Scale(pts, 1/float64(w), 1/float64(h)),
		PixelCount: count,
		Bounds:     bounds,
		SeedColor:  seedColor.Hex(),
	}, nil
}

// toColorful 转换为 [0,1] RGB，忽略 alpha
func toColorful(c color.Color) colorful.Color {
	r, g, b, _ := c.RGBA()
	return colorful.Color{R: float64(r) / 65535, G: float64(g) / 65535, B: float64(b) / 65535}
}
