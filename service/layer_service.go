package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/peterz0310/image-placer-sub000/config"
	"github.com/peterz0310/image-placer-sub000/geometry"
	"github.com/peterz0310/image-placer-sub000/model"
	"github.com/peterz0310/image-placer-sub000/utils"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull 等待计算槽位超时
	ErrQueueFull = errors.New("processing queue is full")
	// ErrDetectorFailed 外部推理服务调用失败
	ErrDetectorFailed = errors.New("detector failed")
	// ErrInvalidInput 请求参数超出允许范围
	ErrInvalidInput = errors.New("invalid input")
)

// LayerService 串联选区、检测、栅格化和路径导出，并限制同时进行的计算数量
type LayerService struct {
	semaphore     chan struct{}
	queueTimeout  time.Duration
	tolerance     float64
	vertices      int
	feather       float64
	maxFeather    float64
	maxDimension  int
	selector      *ColorFloodSelector
	postProcessor *DetectionPostProcessor
	rasterizer    *MaskRasterizer
	maskProcessor *MaskProcessor
	detector      Detector
}

// NewLayerService detector 为 nil 时检测接口返回 ErrDetectorFailed
func NewLayerService(cfg *config.Config, detector Detector, ordering BoundaryOrdering) *LayerService {
	tracer := NewBoundaryTracer(ordering)
	return &LayerService{
		semaphore:     make(chan struct{}, max(1, cfg.Engine.MaxConcurrent)),
		queueTimeout:  time.Duration(cfg.Engine.QueueTimeout) * time.Second,
		tolerance:     cfg.Selection.Tolerance,
		vertices:      cfg.Selection.Vertices,
		feather:       cfg.Mask.Feather,
		maxFeather:    cfg.Mask.MaxFeather,
		maxDimension:  cfg.Mask.MaxDimension,
		selector:      NewColorFloodSelector(&cfg.Selection, tracer),
		postProcessor: NewDetectionPostProcessor(&cfg.Detection, tracer),
		rasterizer:    NewMaskRasterizer(),
		maskProcessor: NewMaskProcessor(),
		detector:      detector,
	}
}

// acquire 等待计算槽位
func (s *LayerService) acquire(ctx context.Context) (func(), error) {
	release := func() { <-s.semaphore }
	select {
	case s.semaphore <- struct{}{}:
		return release, nil
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()

	select {
	case s.semaphore <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, ErrQueueFull
	}
}

// SelectRegion 在 seed 处做颜色选区。tolerance<0 或 vertices<=0 时使用配置值。
func (s *LayerService) SelectRegion(ctx context.Context, img image.Image, md5 string, seed geometry.Point, tolerance float64, vertices int) (*model.SelectionResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if tolerance < 0 {
		tolerance = s.tolerance
	}
	if vertices <= 0 {
		vertices = s.vertices
	}

	startTime := time.Now()
	sel, err := s.selector.Select(img, seed, tolerance, vertices)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	utils.Logger.Info("region selected",
		zap.String("md5", md5),
		zap.Int("pixels", sel.PixelCount),
		zap.Int("vertices", len(sel.Polygon)),
		zap.Duration("duration", time.Since(startTime)))

	return &model.SelectionResult{
		MD5:        md5,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Polygon:    sel.Polygon,
		Area:       sel.Polygon.Area(),
		PixelCount: sel.PixelCount,
		Bounds: model.BBox{
			X:      sel.Bounds.Min.X,
			Y:      sel.Bounds.Min.Y,
			Width:  sel.Bounds.Dx(),
			Height: sel.Bounds.Dy(),
		},
		SeedColor: sel.SeedColor,
		Timestamp: time.Now().Unix(),
	}, nil
}

// DetectObjects 调用外部推理服务并解码其输出
func (s *LayerService) DetectObjects(ctx context.Context, img image.Image, md5 string, opts ProcessOptions) (*model.DetectionResult, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("%w: no detector configured", ErrDetectorFailed)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	startTime := time.Now()
	out, lb, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorFailed, err)
	}

	b := img.Bounds()
	dets := s.postProcessor.Process(out, lb, b.Dx(), b.Dy(), opts)

	records := make([]model.Detection, len(dets))
	for i, d := range dets {
		records[i] = model.Detection{
			ID:         i + 1,
			X:          d.Box.X,
			Y:          d.Box.Y,
			Width:      d.Box.W,
			Height:     d.Box.H,
			Confidence: d.Confidence,
			Polygon:    d.Polygon,
			Area:       d.Polygon.Area(),
			Color:      d.Color,
		}
	}

	utils.Logger.Info("objects detected",
		zap.String("md5", md5),
		zap.Int("detections", len(records)),
		zap.Duration("duration", time.Since(startTime)))

	return &model.DetectionResult{
		MD5:        md5,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Detections: records,
		Timestamp:  time.Now().Unix(),
	}, nil
}

// RenderMask 把图层形状栅格化为 base64 PNG alpha 掩码
func (s *LayerService) RenderMask(ctx context.Context, req *model.MaskRequest) (*model.MaskResult, error) {
	if req.Width <= 0 || req.Height <= 0 ||
		req.Width > s.maxDimension || req.Height > s.maxDimension {
		return nil, fmt.Errorf("%w: mask size %dx%d exceeds %d",
			ErrInvalidInput, req.Width, req.Height, s.maxDimension)
	}
	feather := s.feather
	if req.Feather != nil {
		feather = *req.Feather
	}
	// 模糊核大小随半径线性增长
	if feather < 0 || feather > s.maxFeather {
		return nil, fmt.Errorf("%w: feather %v outside [0, %v]", ErrInvalidInput, feather, s.maxFeather)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	alpha := s.rasterizer.Rasterize(req.Shape.Control, req.Width, req.Height, RasterOptions{
		Feather:   feather,
		Smoothing: req.Shape.Smoothing,
		Offset:    req.Shape.Offset,
	})
	encoded, err := s.maskProcessor.EncodeMask(alpha)
	if err != nil {
		return nil, err
	}

	return &model.MaskResult{
		Width:     req.Width,
		Height:    req.Height,
		Mask:      encoded,
		Coverage:  s.maskProcessor.Coverage(alpha),
		Timestamp: time.Now().Unix(),
	}, nil
}

// BakePath 导出烘焙多边形、包围盒和预览用 SVG 路径
func (s *LayerService) BakePath(req *model.PathRequest) *model.PathResult {
	shape := req.Shape
	rendered := shape.Rendered()
	lo, hi := rendered.Bounds()
	return &model.PathResult{
		Polygon:  rendered,
		SVG:      geometry.BuildPath(shape.Control, shape.Smoothing, shape.Offset).SVG(),
		Vertices: len(rendered),
		Min:      lo,
		Max:      hi,
		Area:     rendered.Area(),
	}
}

// VerifyMask 解码缓存的掩码，校验尺寸并按实际像素重新计算覆盖率
func (s *LayerService) VerifyMask(res *model.MaskResult) error {
	alpha, err := s.maskProcessor.DecodeMask(res.Mask)
	if err != nil {
		return err
	}
	if b := alpha.Bounds(); b.Dx() != res.Width || b.Dy() != res.Height {
		return fmt.Errorf("mask is %dx%d, recorded as %dx%d", b.Dx(), b.Dy(), res.Width, res.Height)
	}
	res.Coverage = s.maskProcessor.Coverage(alpha)
	return nil
}
