package service

import (
	"errors"
	"image"

	"github.com/peterz0310/image-placer-sub000/geometry"
)

// ErrInsufficientBoundary 边界像素少于3个
var ErrInsufficientBoundary = errors.New("insufficient boundary pixels")

var fourNeighbours = [4]image.Point{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// eightNeighbours 按屏幕坐标（y 向下）顺时针排列，从正东开始
var eightNeighbours = [8]image.Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// BoundaryOrdering 把无序边界像素排成闭合多边形的顶点顺序
type BoundaryOrdering interface {
	Order(mask *RasterMask, threshold float64, edge []geometry.Point) []geometry.Point
}

// AngularOrdering 按绕区域质心的极角排序。对凹形区域只是近似。
type AngularOrdering struct{}

func (AngularOrdering) Order(mask *RasterMask, threshold float64, edge []geometry.Point) []geometry.Point {
	return geometry.SortByAngle(edge, regionCentroid(mask, threshold, edge))
}

// ContourOrdering 从最上最左的边界像素开始做 Moore 邻域跟踪，得到真正的轮廓顺序
type ContourOrdering struct{}

func (ContourOrdering) Order(mask *RasterMask, threshold float64, edge []geometry.Point) []geometry.Point {
	if len(edge) == 0 {
		return nil
	}
	start := image.Pt(int(edge[0].X), int(edge[0].Y))
	return NewBoundaryTracer(nil).TraceOrdered(mask, threshold, start)
}

// OrderingByName 按配置名称选择排序策略，未知名称使用 AngularOrdering
func OrderingByName(name string) BoundaryOrdering {
	switch name {
	case "contour":
		return ContourOrdering{}
	default:
		return AngularOrdering{}
	}
}

// BoundaryTracer 从栅格掩码中提取边界点（像素坐标）
type BoundaryTracer struct {
	ordering BoundaryOrdering
}

// NewBoundaryTracer ordering 为 nil 时使用 AngularOrdering
func NewBoundaryTracer(ordering BoundaryOrdering) *BoundaryTracer {
	if ordering == nil {
		ordering = AngularOrdering{}
	}
	return &BoundaryTracer{ordering: ordering}
}

// EdgePixels 返回所有边界像素：自身在阈值之上，且至少一个4邻域像素在阈值之下或位于栅格之外。
// 结果按行优先扫描顺序排列，第一个点是最上最左的边界像素。
func (bt *BoundaryTracer) EdgePixels(mask *RasterMask, threshold float64) []geometry.Point {
	var edge []geometry.Point
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if !mask.Inside(x, y, threshold) {
				continue
			}
			for _, d := range fourNeighbours {
				if !mask.Inside(x+d.X, y+d.Y, threshold) {
					edge = append(edge, geometry.Point{X: float64(x), Y: float64(y)})
					break
				}
			}
		}
	}
	return edge
}

// Trace 提取并排序边界点；不足3个时返回 ErrInsufficientBoundary，调用方应回退到包围盒
func (bt *BoundaryTracer) Trace(mask *RasterMask, threshold float64) ([]geometry.Point, error) {
	edge := bt.EdgePixels(mask, threshold)
	if len(edge) < 3 {
		return nil, ErrInsufficientBoundary
	}
	ordered := bt.ordering.Order(mask, threshold, edge)
	if len(ordered) < 3 {
		return nil, ErrInsufficientBoundary
	}
	return ordered, nil
}

// TraceOrdered 从 start 开始沿8连通边界顺时针行走（Moore 邻域跟踪），
// 回到起点或走满 width*height 步后停止。start 不在区域内时返回 nil。
func (bt *BoundaryTracer) TraceOrdered(mask *RasterMask, threshold float64, start image.Point) []geometry.Point {
	if !mask.Inside(start.X, start.Y, threshold) {
		return nil
	}

	// 回溯方向：从 start 的西侧开始搜索。最上最左的像素西侧一定在区域外。
	back := 4
	for i := 0; i < 8; i++ {
		d := eightNeighbours[(4+i)%8]
		if !mask.Inside(start.X+d.X, start.Y+d.Y, threshold) {
			back = (4 + i) % 8
			break
		}
	}

	pts := []geometry.Point{{X: float64(start.X), Y: float64(start.Y)}}
	cur := start
	// 起点已占一个位置，结果最多 width*height 个点
	maxSteps := mask.Width * mask.Height
	for step := 1; step < maxSteps; step++ {
		next, dir, ok := nextClockwise(mask, threshold, cur, back)
		if !ok {
			break // 孤立像素
		}
		// 新的回溯点是搜索中紧挨在 next 之前检查过的邻居，换算成相对 next 的方向
		prev := cur.Add(eightNeighbours[(dir+7)%8])
		back = directionOf(prev.Sub(next))
		cur = next
		if cur == start {
			break
		}
		pts = append(pts, geometry.Point{X: float64(cur.X), Y: float64(cur.Y)})
	}
	return pts
}

// nextClockwise 从 back 方向的下一个位置开始顺时针寻找第一个区域内邻居
func nextClockwise(mask *RasterMask, threshold float64, cur image.Point, back int) (image.Point, int, bool) {
	for i := 1; i <= 8; i++ {
		dir := (back + i) % 8
		n := cur.Add(eightNeighbours[dir])
		if mask.Inside(n.X, n.Y, threshold) {
			return n, dir, true
		}
	}
	return image.Point{}, 0, false
}

// directionOf 返回单位偏移在 eightNeighbours 中的下标
func directionOf(d image.Point) int {
	for i, n := range eightNeighbours {
		if n == d {
			return i
		}
	}
	return 4
}

// regionCentroid 区域内像素的均值；掩码为空时退化为边界点均值
func regionCentroid(mask *RasterMask, threshold float64, edge []geometry.Point) geometry.Point {
	var sx, sy float64
	count := 0
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.Inside(x, y, threshold) {
				sx += float64(x)
				sy += float64(y)
				count++
			}
		}
	}
	if count == 0 {
		return geometry.Centroid(edge)
	}
	return geometry.Point{X: sx / float64(count), Y: sy / float64(count)}
}
