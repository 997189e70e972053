package model

import "github.com/peterz0310/image-placer-sub000/geometry"

// LayerShape 图层的控制多边形与渲染参数。
// Control 只在编辑顶点时替换，Smoothing/Offset 每次渲染时重新作用于 Control。
type LayerShape struct {
	Control   geometry.Polygon `json:"control" binding:"required"`
	Smoothing float64          `json:"smoothing" binding:"gte=0,lte=1"`
	Offset    geometry.Point   `json:"offset"`
}

// Rendered 由控制多边形派生出用于显示和导出的多边形
func (s LayerShape) Rendered() geometry.Polygon {
	if !s.Control.Valid() {
		return nil
	}
	return geometry.Bake(s.Control, s.Smoothing, s.Offset)
}

// BBox 边界框
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SelectionResult 颜色选区结果
type SelectionResult struct {
	MD5        string           `json:"md5"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Polygon    geometry.Polygon `json:"polygon"`
	Area       float64          `json:"area"` // 多边形面积，归一化单位
	PixelCount int              `json:"pixel_count"`
	Bounds     BBox             `json:"bounds"`
	SeedColor  string           `json:"seed_color"`
	Timestamp  int64            `json:"timestamp"`
}

// Detection 单个检测记录，Box 为源图像素坐标
type Detection struct {
	ID         int              `json:"id"`
	X          float64          `json:"x"`
	Y          float64          `json:"y"`
	Width      float64          `json:"width"`
	Height     float64          `json:"height"`
	Confidence float64          `json:"confidence"`
	Polygon    geometry.Polygon `json:"polygon"`
	Area       float64          `json:"area"`
	Color      string           `json:"color"`
}

// DetectionResult 一次检测的全部结果
type DetectionResult struct {
	MD5        string      `json:"md5"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Detections []Detection `json:"detections"`
	Timestamp  int64       `json:"timestamp"`
}

// MaskRequest 掩码栅格化请求，Feather 为空时使用配置值
type MaskRequest struct {
	Shape   LayerShape `json:"shape" binding:"required"`
	Width   int        `json:"width" binding:"required,gt=0"`
	Height  int        `json:"height" binding:"required,gt=0"`
	Feather *float64   `json:"feather,omitempty" binding:"omitempty,gte=0"`
}

// MaskResult 栅格化得到的 alpha 掩码
type MaskResult struct {
	Key       string  `json:"key"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Mask      string  `json:"mask"` // base64编码的PNG
	Coverage  float64 `json:"coverage"`
	Timestamp int64   `json:"timestamp"`
}

// PathRequest 路径导出请求
type PathRequest struct {
	Shape LayerShape `json:"shape" binding:"required"`
}

// PathResult 烘焙后的多边形与 SVG 路径，Min/Max 为烘焙多边形的包围盒
type PathResult struct {
	Polygon  geometry.Polygon `json:"polygon"`
	SVG      string           `json:"svg"`
	Vertices int              `json:"vertices"`
	Min      geometry.Point   `json:"min"`
	Max      geometry.Point   `json:"max"`
	Area     float64          `json:"area"`
}

// Response 通用响应
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
