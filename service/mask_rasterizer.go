package service

import (
	"image"

	"github.com/peterz0310/image-placer-sub000/geometry"
	"golang.org/x/image/vector"
)

// RasterOptions 栅格化参数。Offset 为归一化单位，Feather 为像素。
type RasterOptions struct {
	Feather   float64
	Smoothing float64
	Offset    geometry.Point
}

// MaskRasterizer 把归一化多边形填充为 alpha 掩码
type MaskRasterizer struct{}

func NewMaskRasterizer() *MaskRasterizer {
	return &MaskRasterizer{}
}

// Rasterize 在 width×height 的透明栅格上以白色填充多边形。
// smoothing>0 时沿 Catmull-Rom 曲线填充；feather>0 时再做边缘模糊。
// 顶点不足3个时返回全透明栅格。
func (mr *MaskRasterizer) Rasterize(poly geometry.Polygon, width, height int, opts RasterOptions) *image.Alpha {
	width, height = max(width, 0), max(height, 0)
	dst := image.NewAlpha(image.Rect(0, 0, width, height))
	if !poly.Valid() || width == 0 || height == 0 {
		return dst
	}

	path := geometry.BuildPath(poly, opts.Smoothing, opts.Offset).Scale(float64(width), float64(height))

	z := vector.NewRasterizer(width, height)
	for _, cmd := range path {
		switch cmd.Op {
		case geometry.MoveTo:
			p := cmd.Points[0]
			z.MoveTo(float32(p.X), float32(p.Y))
		case geometry.LineTo:
			p := cmd.Points[0]
			z.LineTo(float32(p.X), float32(p.Y))
		case geometry.CubeTo:
			c := cmd.Points
			z.CubeTo(
				float32(c[0].X), float32(c[0].Y),
				float32(c[1].X), float32(c[1].Y),
				float32(c[2].X), float32(c[2].Y),
			)
		case geometry.Close:
			z.ClosePath()
		}
	}
	z.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})

	if opts.Feather > 0 {
		return Feather(dst, opts.Feather)
	}
	return dst
}
