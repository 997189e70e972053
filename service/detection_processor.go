package service

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/peterz0310/image-placer-sub000/config"
	"github.com/peterz0310/image-placer-sub000/geometry"
	"github.com/peterz0310/image-placer-sub000/utils"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidOutput 推理输出数组的形状与声明不符
var ErrInvalidOutput = errors.New("invalid inference output")

const (
	boxFields         = 4
	rowHeader         = boxFields + 1
	minDetectVertices = 3
	maxDetectVertices = 50
)

// Box 轴对齐包围盒，源图像素坐标
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area 包围盒面积
func (b Box) Area() float64 { return b.W * b.H }

// IoU 两个包围盒的交并比
func IoU(a, b Box) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.X+a.W, b.X+b.W)
	y2 := math.Min(a.Y+a.H, b.Y+b.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection 单个检测结果，Polygon 为归一化坐标
type Detection struct {
	Box          Box
	Confidence   float64
	Coefficients []float32
	Polygon      geometry.Polygon
	Color        string
}

// PrototypeBank 一次推理共享的原型激活图，按 CHW 顺序存储
type PrototypeBank struct {
	Channels int       `json:"channels"`
	Height   int       `json:"height"`
	Width    int       `json:"width"`
	Data     []float32 `json:"data"`
}

// InferenceOutput 推理引擎的原始输出。
// 每行依次为 cx, cy, w, h, confidence 以及0个或多个掩码系数，坐标位于模型输入空间。
// ColumnMajor 为 true 时数据按 [RowSize, Rows] 存储。
type InferenceOutput struct {
	Data        []float32      `json:"data"`
	Rows        int            `json:"rows"`
	RowSize     int            `json:"row_size"`
	ColumnMajor bool           `json:"column_major"`
	Protos      *PrototypeBank `json:"protos,omitempty"`
}

func (o *InferenceOutput) at(row, col int) float64 {
	if o.ColumnMajor {
		return float64(o.Data[col*o.Rows+row])
	}
	return float64(o.Data[row*o.RowSize+col])
}

func (o *InferenceOutput) validate() error {
	if o.Rows < 0 || o.RowSize < rowHeader {
		return fmt.Errorf("%w: %d rows of size %d", ErrInvalidOutput, o.Rows, o.RowSize)
	}
	// 先用除法比较，避免 Rows*RowSize 溢出
	if o.Rows > len(o.Data)/o.RowSize || o.Rows*o.RowSize != len(o.Data) {
		return fmt.Errorf("%w: %d values for %dx%d", ErrInvalidOutput, len(o.Data), o.Rows, o.RowSize)
	}
	if p := o.Protos; p != nil {
		if p.Channels <= 0 || p.Height <= 0 || p.Width <= 0 {
			return fmt.Errorf("%w: prototype bank shape %dx%dx%d",
				ErrInvalidOutput, p.Channels, p.Height, p.Width)
		}
		n := len(p.Data)
		if p.Height > n/p.Width || p.Channels > n/(p.Height*p.Width) ||
			p.Channels*p.Height*p.Width != n {
			return fmt.Errorf("%w: prototype bank has %d values for %dx%dx%d",
				ErrInvalidOutput, n, p.Channels, p.Height, p.Width)
		}
	}
	return nil
}

// ProcessOptions 单次调用可覆盖的参数。
// Vertices<=0 时使用配置；ExpandPercent 为 nil 时使用配置，指向0时不扩张。
type ProcessOptions struct {
	Vertices      int
	ExpandPercent *float64
}

// DetectionPostProcessor 负责把模型原始输出解码为带多边形的检测结果
type DetectionPostProcessor struct {
	confThreshold    float64
	iouThreshold     float64
	maskThreshold    float64
	vertices         int
	simplifyEpsilon  float64
	minPointDistance float64
	expandPercent    float64
	keepLargest      bool
	tracer           *BoundaryTracer
	maskProcessor    *MaskProcessor
}

func NewDetectionPostProcessor(cfg *config.DetectionConfig, tracer *BoundaryTracer) *DetectionPostProcessor {
	if tracer == nil {
		tracer = NewBoundaryTracer(nil)
	}
	return &DetectionPostProcessor{
		confThreshold:    cfg.ConfThreshold,
		iouThreshold:     cfg.IoUThreshold,
		maskThreshold:    cfg.MaskThreshold,
		vertices:         cfg.Vertices,
		simplifyEpsilon:  cfg.SimplifyEpsilon,
		minPointDistance: cfg.MinPointDistance,
		expandPercent:    cfg.ExpandPercent,
		keepLargest:      cfg.KeepLargest,
		tracer:           tracer,
		maskProcessor:    NewMaskProcessor(),
	}
}

// Process 解码、NMS、掩码解码、扩张。输出形状异常时记录日志并返回空结果。
func (p *DetectionPostProcessor) Process(out *InferenceOutput, lb Letterbox, srcW, srcH int, opts ProcessOptions) []Detection {
	dets, err := p.Decode(out, lb, srcW, srcH)
	if err != nil {
		utils.Logger.Warn("unexpected inference output, treating as no detections", zap.Error(err))
		return nil
	}
	dets = NMS(dets, p.iouThreshold)

	vertices := opts.Vertices
	if vertices <= 0 {
		vertices = p.vertices
	}
	vertices = geometry.ClampVertexCount(vertices, minDetectVertices, maxDetectVertices)
	expand := p.expandPercent
	if opts.ExpandPercent != nil {
		expand = *opts.ExpandPercent
	}

	var protos *mat.Dense
	if b := out.Protos; b != nil && b.Channels > 0 && b.Width*b.Height > 0 {
		protos = protoMatrix(out.Protos)
	}

	var wg sync.WaitGroup
	for i := range dets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := &dets[i]
			poly := p.DecodeMask(*d, out.Protos, protos, lb, srcW, srcH, vertices)
			d.Polygon = geometry.Expand(poly, expand)
			d.Color = DetectionColor(i)
		}(i)
	}
	wg.Wait()

	return dets
}

// Decode 按置信度过滤，映射回源图坐标并裁剪到图像范围内
func (p *DetectionPostProcessor) Decode(out *InferenceOutput, lb Letterbox, srcW, srcH int) ([]Detection, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: nil output", ErrInvalidOutput)
	}
	if err := out.validate(); err != nil {
		return nil, err
	}
	if lb.Scale <= 0 {
		return nil, fmt.Errorf("%w: letterbox scale %v", ErrInvalidOutput, lb.Scale)
	}

	var dets []Detection
	for i := 0; i < out.Rows; i++ {
		conf := out.at(i, boxFields)
		if conf < p.confThreshold {
			continue
		}
		cx, cy := out.at(i, 0), out.at(i, 1)
		w, h := out.at(i, 2), out.at(i, 3)

		x1 := clampRange((cx-w/2-lb.PadX)/lb.Scale, 0, float64(srcW))
		y1 := clampRange((cy-h/2-lb.PadY)/lb.Scale, 0, float64(srcH))
		x2 := clampRange((cx+w/2-lb.PadX)/lb.Scale, 0, float64(srcW))
		y2 := clampRange((cy+h/2-lb.PadY)/lb.Scale, 0, float64(srcH))
		if x2-x1 <= 0 || y2-y1 <= 0 {
			continue
		}

		var coeffs []float32
		if n := out.RowSize - rowHeader; n > 0 {
			coeffs = make([]float32, n)
			for j := range coeffs {
				coeffs[j] = float32(out.at(i, rowHeader+j))
			}
		}

		dets = append(dets, Detection{
			Box:          Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1},
			Confidence:   conf,
			Coefficients: coeffs,
		})
	}
	return dets, nil
}

// NMS 按置信度降序保留检测，抑制与已保留检测 IoU 超过阈值的后续检测
func NMS(dets []Detection, iouThreshold float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Detection, 0, len(sorted))
	suppressed := make([]bool, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if !suppressed[j] && IoU(sorted[i].Box, sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// DecodeMask 用检测的系数对原型图加权求和并做 sigmoid，在包围盒内提取边界多边形。
// 任何一步点数不足时回退为包围盒矩形的重采样。
func (p *DetectionPostProcessor) DecodeMask(det Detection, bank *PrototypeBank, protos *mat.Dense, lb Letterbox, srcW, srcH, vertices int) geometry.Polygon {
	fallback := func(reason string) geometry.Polygon {
		utils.Logger.Debug("mask decode fell back to bounding box", zap.String("reason", reason))
		return BoxPolygon(det.Box, srcW, srcH, vertices)
	}

	if bank == nil || protos == nil || len(det.Coefficients) == 0 {
		return BoxPolygon(det.Box, srcW, srcH, vertices)
	}
	if len(det.Coefficients) != bank.Channels {
		utils.Logger.Warn("coefficient count does not match prototype channels",
			zap.Int("coefficients", len(det.Coefficients)),
			zap.Int("channels", bank.Channels))
		return fallback("channel mismatch")
	}

	// 原型图覆盖整个模型输入正方形
	inputSize := float64(lb.InputSize)
	if inputSize <= 0 {
		return fallback("unknown input size")
	}
	sx := float64(bank.Width) / inputSize
	sy := float64(bank.Height) / inputSize

	crop := image.Rect(
		int(math.Floor((det.Box.X*lb.Scale+lb.PadX)*sx)),
		int(math.Floor((det.Box.Y*lb.Scale+lb.PadY)*sy)),
		int(math.Ceil(((det.Box.X+det.Box.W)*lb.Scale+lb.PadX)*sx)),
		int(math.Ceil(((det.Box.Y+det.Box.H)*lb.Scale+lb.PadY)*sy)),
	).Intersect(image.Rect(0, 0, bank.Width, bank.Height))
	if crop.Empty() {
		return fallback("empty crop")
	}

	mask := p.maskProcessor.Crop(Activate(protos, det.Coefficients, bank.Width, bank.Height), crop)
	if p.keepLargest {
		mask = p.maskProcessor.KeepLargest(mask, p.maskThreshold)
	}

	boundary, err := p.tracer.Trace(mask, p.maskThreshold)
	if err != nil {
		return fallback(err.Error())
	}

	pts := make([]geometry.Point, len(boundary))
	for i, b := range boundary {
		ix := (b.X + float64(crop.Min.X) + 0.5) / sx
		iy := (b.Y + float64(crop.Min.Y) + 0.5) / sy
		pts[i] = geometry.Point{
			X: clampRange((ix-lb.PadX)/lb.Scale, 0, float64(srcW)),
			Y: clampRange((iy-lb.PadY)/lb.Scale, 0, float64(srcH)),
		}
	}

	pts = geometry.DedupeNear(pts, p.minPointDistance)
	if len(pts) < 3 {
		return fallback("too few points after dedupe")
	}
	// 先平滑阶梯状的像素边界再简化，否则简化会削掉拐角
	poly := geometry.Average(pts, 1)
	if p.simplifyEpsilon > 0 {
		// 容差以原型像素计，换算到源图像素
		eps := p.simplifyEpsilon / (math.Min(sx, sy) * lb.Scale)
		if simplified := geometry.Simplify(poly, eps); len(simplified) >= 3 {
			poly = simplified
		}
	}
	poly = geometry.Resample(poly, vertices)
	poly = geometry.Average(poly, 1)
	poly = geometry.DedupeNear(poly, p.minPointDistance)
	// 面积不足1平方像素的轮廓视为退化
	if !poly.Valid() || poly.Area() < 1 {
		return fallback("degenerate polygon after smoothing")
	}

	return geometry.Scale(poly, 1/float64(srcW), 1/float64(srcH))
}

// BoxPolygon 把包围盒转换为归一化矩形并重采样到 vertices 个顶点
func BoxPolygon(box Box, srcW, srcH, vertices int) geometry.Polygon {
	rect := geometry.Rect(
		box.X/float64(srcW), box.Y/float64(srcH),
		box.W/float64(srcW), box.H/float64(srcH),
	)
	return geometry.Resample(rect, vertices)
}

// Activate 计算系数加权的原型图之和并做 sigmoid，得到 width×height 的概率图
func Activate(protos *mat.Dense, coeffs []float32, width, height int) *RasterMask {
	c := make([]float64, len(coeffs))
	for i, v := range coeffs {
		c[i] = float64(v)
	}
	var sum mat.VecDense
	sum.MulVec(protos.T(), mat.NewVecDense(len(c), c))

	mask := NewRasterMask(width, height)
	for i := range mask.Data {
		mask.Data[i] = sigmoid(sum.AtVec(i))
	}
	return mask
}

// protoMatrix 把原型图排成 C×(H*W) 的矩阵
func protoMatrix(bank *PrototypeBank) *mat.Dense {
	data := make([]float64, len(bank.Data))
	for i, v := range bank.Data {
		data[i] = float64(v)
	}
	return mat.NewDense(bank.Channels, bank.Height*bank.Width, data)
}

// DetectionColor 按下标生成确定的显示颜色（黄金角色相）
func DetectionColor(i int) string {
	hue := math.Mod(float64(i)*137.508, 360)
	return colorful.Hsv(hue, 0.65, 0.95).Hex()
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
