package geometry

import "math"

// Simplify 使用 Douglas-Peucker 算法删减点序列，epsilon 与点的坐标单位一致。
// 长度不超过2的序列原样返回。
func Simplify(pts []Point, epsilon float64) []Point {
	if len(pts) <= 2 {
		out := make([]Point, len(pts))
		copy(out, pts)
		return out
	}

	index, dmax := farthestFromChord(pts)
	if index > 0 && dmax > epsilon {
		left := Simplify(pts[:index+1], epsilon)
		right := Simplify(pts[index:], epsilon)
		// 拼接处的点在两段中都出现，去掉一个
		return append(left[:len(left)-1], right...)
	}
	return []Point{pts[0], pts[len(pts)-1]}
}

// farthestFromChord 返回离首尾连线最远的内部点下标及其距离
func farthestFromChord(pts []Point) (int, float64) {
	first, last := pts[0], pts[len(pts)-1]
	index, dmax := 0, 0.0
	for i := 1; i < len(pts)-1; i++ {
		if d := perpendicularDistance(pts[i], first, last); d > dmax {
			index, dmax = i, d
		}
	}
	return index, dmax
}

// perpendicularDistance 点到直线 ab 的垂直距离；a、b 重合时退化为点距
func perpendicularDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return p.Dist(a)
	}
	return math.Abs(dx*(a.Y-p.Y)-dy*(a.X-p.X)) / length
}
