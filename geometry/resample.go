package geometry

// 长度小于该值的边视为退化边
const degenerateEdge = 1e-12

// ClampVertexCount 将目标顶点数限制在 [lo, hi]
func ClampVertexCount(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

// Resample 将闭合多边形按弧长等距重新分布为恰好 n 个顶点。
//
// 空多边形返回空结果；单点或周长为0时返回 n 个首点副本。
func Resample(poly Polygon, n int) Polygon {
	if len(poly) == 0 || n <= 0 {
		return Polygon{}
	}
	if len(poly) == 1 {
		return repeat(poly[0], n)
	}

	count := len(poly)
	// cumulative[i] 为第 i 条边起点处的累计周长，最后一项为总周长
	cumulative := make([]float64, count+1)
	lengths := make([]float64, count)
	for i := 0; i < count; i++ {
		lengths[i] = poly[i].Dist(poly[(i+1)%count])
		cumulative[i+1] = cumulative[i] + lengths[i]
	}
	total := cumulative[count]
	if total <= degenerateEdge {
		return repeat(poly[0], n)
	}

	step := total / float64(n)
	out := make(Polygon, n)
	edge := 0
	for k := 0; k < n; k++ {
		target := float64(k) * step
		for edge < count-1 && (cumulative[edge+1] <= target || lengths[edge] <= degenerateEdge) {
			edge++
		}
		if lengths[edge] <= degenerateEdge {
			// 末尾只剩退化边时取下一条边的起点
			out[k] = poly[(edge+1)%count]
			continue
		}
		t := (target - cumulative[edge]) / lengths[edge]
		t = max(0, min(t, 1))
		a, b := poly[edge], poly[(edge+1)%count]
		out[k] = Point{a.X + (b.X-a.X)*t, a.Y + (b.Y-a.Y)*t}
	}
	return out
}

func repeat(p Point, n int) Polygon {
	out := make(Polygon, n)
	for i := range out {
		out[i] = p
	}
	return out
}
