package geometry

import "math"

const (
	minSamplesPerEdge = 4
	maxSamplesPerEdge = 16
)

// Average 对闭合多边形做 iterations 次邻点加权平均：(prev + 2*self + next) / 4
func Average(poly Polygon, iterations int) Polygon {
	out := poly.Clone()
	n := len(out)
	if n < 3 {
		return out
	}
	next := make(Polygon, n)
	for it := 0; it < iterations; it++ {
		for i := range out {
			prev, cur, nxt := out[(i-1+n)%n], out[i], out[(i+1)%n]
			next[i] = Point{
				X: (prev.X + 2*cur.X + nxt.X) / 4,
				Y: (prev.Y + 2*cur.Y + nxt.Y) / 4,
			}
		}
		out, next = next, out
	}
	return out
}

// Cubic 三次贝塞尔曲线段
type Cubic struct {
	Start, Ctrl1, Ctrl2, End Point
}

// At 计算参数 t ∈ [0,1] 处的点
func (c Cubic) At(t float64) Point {
	mt := 1 - t
	a := mt * mt * mt
	b := 3 * mt * mt * t
	d := 3 * mt * t * t
	e := t * t * t
	return Point{
		X: a*c.Start.X + b*c.Ctrl1.X + d*c.Ctrl2.X + e*c.End.X,
		Y: a*c.Start.Y + b*c.Ctrl1.Y + d*c.Ctrl2.Y + e*c.End.Y,
	}
}

// CatmullRom 把闭合多边形的每条边转换为一段三次贝塞尔曲线。
// smoothing ∈ [0,1]，张力 t = 0.5*smoothing。
func CatmullRom(poly Polygon, smoothing float64) []Cubic {
	n := len(poly)
	if n < 3 {
		return nil
	}
	k := 2 * tension(smoothing) / 6
	segs := make([]Cubic, n)
	for i := 0; i < n; i++ {
		p0 := poly[(i-1+n)%n]
		p1 := poly[i]
		p2 := poly[(i+1)%n]
		p3 := poly[(i+2)%n]
		segs[i] = Cubic{
			Start: p1,
			Ctrl1: p1.Add(p2.Sub(p0).Mul(k)),
			Ctrl2: p2.Sub(p3.Sub(p1).Mul(k)),
			End:   p2,
		}
	}
	return segs
}

// SamplesPerEdge 导出时每条边的采样数，随平滑强度从4线性增加到16
func SamplesPerEdge(smoothing float64) int {
	s := clamp01(smoothing)
	return minSamplesPerEdge + int(math.Round(s*(maxSamplesPerEdge-minSamplesPerEdge)))
}

// Bake 把平滑与偏移“烘焙”进顶点，导出的多边形不再需要样条求值。
// smoothing 为0时直接返回平移后的原多边形。
func Bake(poly Polygon, smoothing float64, offset Point) Polygon {
	if smoothing <= 0 || len(poly) < 3 {
		if offset.IsZero() {
			return poly.Clone()
		}
		return Translate(poly, offset)
	}

	samples := SamplesPerEdge(smoothing)
	segs := CatmullRom(poly, smoothing)
	out := make(Polygon, 0, len(segs)*samples)
	for _, seg := range segs {
		for j := 0; j < samples; j++ {
			out = append(out, seg.At(float64(j)/float64(samples)).Add(offset))
		}
	}
	return out
}

func tension(smoothing float64) float64 {
	return 0.5 * clamp01(smoothing)
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}
