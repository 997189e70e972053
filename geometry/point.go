// Package geometry 提供多边形的简化、重采样、平滑与变换算法。
//
// 所有函数都是纯函数：输入不会被修改，返回值总是新分配的切片。
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point 二维点，归一化坐标或像素坐标由调用方决定
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add 返回 p+q
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub 返回 p-q
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Mul 返回 p 按 k 缩放后的点
func (p Point) Mul(k float64) Point { return Point{p.X * k, p.Y * k} }

// Dist 返回两点间的欧氏距离
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// IsZero p 是否为原点
func (p Point) IsZero() bool { return p.X == 0 && p.Y == 0 }

// Polygon 隐式闭合的有序顶点序列，不存储重复的首尾点
type Polygon []Point

// Clone 返回多边形的副本
func (poly Polygon) Clone() Polygon {
	if poly == nil {
		return nil
	}
	out := make(Polygon, len(poly))
	copy(out, poly)
	return out
}

// Valid 顶点数不少于3时多边形才可交给调用方
func (poly Polygon) Valid() bool { return len(poly) >= 3 }

// Translate 将每个顶点平移 offset
func Translate(poly Polygon, offset Point) Polygon {
	out := make(Polygon, len(poly))
	for i, p := range poly {
		out[i] = p.Add(offset)
	}
	return out
}

// Scale 按轴缩放每个顶点，用于归一化坐标与像素坐标互转
func Scale(poly Polygon, sx, sy float64) Polygon {
	out := make(Polygon, len(poly))
	for i, p := range poly {
		out[i] = Point{p.X * sx, p.Y * sy}
	}
	return out
}

// Centroid 顶点均值（不是面积质心）
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	return Point{c.X / n, c.Y / n}
}

// Ring 转换为闭合的 orb.Ring
func (poly Polygon) Ring() orb.Ring {
	ring := make(orb.Ring, 0, len(poly)+1)
	for _, p := range poly {
		ring = append(ring, orb.Point{p.X, p.Y})
	}
	if len(poly) > 0 {
		ring = append(ring, orb.Point{poly[0].X, poly[0].Y})
	}
	return ring
}

// Bounds 返回包围盒的最小点与最大点
func (poly Polygon) Bounds() (Point, Point) {
	if len(poly) == 0 {
		return Point{}, Point{}
	}
	b := poly.Ring().Bound()
	return Point{b.Min[0], b.Min[1]}, Point{b.Max[0], b.Max[1]}
}

// Area 多边形面积（绝对值）
func (poly Polygon) Area() float64 {
	if len(poly) < 3 {
		return 0
	}
	return math.Abs(planar.Area(poly.Ring()))
}

// Rect 按左上、右上、右下、左下顺序返回矩形的四个顶点
func Rect(x, y, w, h float64) Polygon {
	return Polygon{
		{x, y},
		{x + w, y},
		{x + w, y + h},
		{x, y + h},
	}
}
