package geometry

import (
	"math"
	"sort"
)

// Expand 以顶点均值为中心按 (1 + percent/100) 缩放多边形，结果限制在 [0,1]。
// percent 为0时只做限制。
func Expand(poly Polygon, percent float64) Polygon {
	if len(poly) == 0 {
		return poly.Clone()
	}
	c := Centroid(poly)
	k := 1 + percent/100
	out := make(Polygon, len(poly))
	for i, p := range poly {
		out[i] = Point{
			X: clamp01(c.X + (p.X-c.X)*k),
			Y: clamp01(c.Y + (p.Y-c.Y)*k),
		}
	}
	return out
}

// DedupeNear 删除与上一个保留点距离小于 minDist 的连续点，
// 末尾与首点过近时也会被删除。
func DedupeNear(pts []Point, minDist float64) []Point {
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		if len(out) > 0 && p.Dist(out[len(out)-1]) < minDist {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[len(out)-1].Dist(out[0]) < minDist {
		out = out[:len(out)-1]
	}
	return out
}

// SortByAngle 按绕 center 的极角（atan2）升序排列，角度相同时保持原有顺序
func SortByAngle(pts []Point, center Point) []Point {
	type polar struct {
		p     Point
		angle float64
	}
	items := make([]polar, len(pts))
	for i, p := range pts {
		items[i] = polar{p, math.Atan2(p.Y-center.Y, p.X-center.X)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].angle < items[j].angle
	})
	out := make([]Point, len(items))
	for i, it := range items {
		out[i] = it.p
	}
	return out
}

// Stride 按均匀下标步长把点数削减到不超过 n
func Stride(pts []Point, n int) []Point {
	if n <= 0 {
		return nil
	}
	if len(pts) <= n {
		out := make([]Point, len(pts))
		copy(out, pts)
		return out
	}
	step := float64(len(pts)) / float64(n)
	out := make([]Point, n)
	for i := range out {
		out[i] = pts[int(float64(i)*step)]
	}
	return out
}
