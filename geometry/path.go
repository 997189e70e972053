package geometry

import (
	"bytes"
	"fmt"
)

// PathOp 路径命令类型
type PathOp int

const (
	MoveTo PathOp = iota
	LineTo
	CubeTo
	Close
)

// PathCommand 单条路径命令。CubeTo 依次携带两个控制点和终点，其余命令最多一个点。
type PathCommand struct {
	Op     PathOp
	Points []Point
}

// Path 可渲染的闭合路径
type Path []PathCommand

// BuildPath 构建多边形的预览路径：smoothing 为0时为直线边，否则为 Catmull-Rom 曲线
func BuildPath(poly Polygon, smoothing float64, offset Point) Path {
	if len(poly) < 3 {
		return nil
	}
	poly = Translate(poly, offset)

	path := make(Path, 0, len(poly)+2)
	path = append(path, PathCommand{Op: MoveTo, Points: []Point{poly[0]}})
	if smoothing <= 0 {
		for _, p := range poly[1:] {
			path = append(path, PathCommand{Op: LineTo, Points: []Point{p}})
		}
	} else {
		for _, seg := range CatmullRom(poly, smoothing) {
			path = append(path, PathCommand{Op: CubeTo, Points: []Point{seg.Ctrl1, seg.Ctrl2, seg.End}})
		}
	}
	return append(path, PathCommand{Op: Close})
}

// Scale 返回按轴缩放后的路径
func (p Path) Scale(sx, sy float64) Path {
	out := make(Path, len(p))
	for i, cmd := range p {
		out[i] = PathCommand{Op: cmd.Op, Points: Scale(cmd.Points, sx, sy)}
	}
	return out
}

// SVG 把路径转换为 SVG path 字符串
func (p Path) SVG() string {
	buf := bytes.NewBuffer(nil)
	for i, cmd := range p {
		if i > 0 {
			buf.WriteByte(' ')
		}
		switch cmd.Op {
		case MoveTo:
			fmt.Fprintf(buf, "M%g,%g", cmd.Points[0].X, cmd.Points[0].Y)
		case LineTo:
			fmt.Fprintf(buf, "L%g,%g", cmd.Points[0].X, cmd.Points[0].Y)
		case CubeTo:
			c := cmd.Points
			fmt.Fprintf(buf, "C%g,%g %g,%g %g,%g", c[0].X, c[0].Y, c[1].X, c[1].Y, c[2].X, c[2].Y)
		case Close:
			buf.WriteByte('Z')
		}
	}
	return buf.String()
}
