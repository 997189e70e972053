package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/peterz0310/image-placer-sub000/config"
	"github.com/peterz0310/image-placer-sub000/utils"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Letterbox 源图缩放并填充到模型输入正方形时的参数
type Letterbox struct {
	Scale     float64 `json:"scale"`
	PadX      float64 `json:"pad_x"`
	PadY      float64 `json:"pad_y"`
	InputSize int     `json:"input_size"`
}

// ComputeLetterbox 保持宽高比缩放到 inputSize，并在两侧均匀填充
func ComputeLetterbox(srcW, srcH, inputSize int) Letterbox {
	if srcW <= 0 || srcH <= 0 || inputSize <= 0 {
		return Letterbox{InputSize: inputSize}
	}
	scale := math.Min(float64(inputSize)/float64(srcW), float64(inputSize)/float64(srcH))
	newW := int(math.Round(float64(srcW) * scale))
	newH := int(math.Round(float64(srcH) * scale))
	return Letterbox{
		Scale:     scale,
		PadX:      float64((inputSize - newW) / 2),
		PadY:      float64((inputSize - newH) / 2),
		InputSize: inputSize,
	}
}

// letterboxFill YOLO 系模型常用的灰色填充
var letterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// LetterboxImage 按 lb 把图像缩放到输入正方形中
func LetterboxImage(img image.Image, lb Letterbox) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, lb.InputSize, lb.InputSize))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(letterboxFill), image.Point{}, draw.Src)

	b := img.Bounds()
	x0, y0 := int(lb.PadX), int(lb.PadY)
	target := image.Rect(x0, y0,
		x0+int(math.Round(float64(b.Dx())*lb.Scale)),
		y0+int(math.Round(float64(b.Dy())*lb.Scale)))
	draw.CatmullRom.Scale(dst, target, img, b, draw.Src, nil)
	return dst
}

// Detector 外部推理能力，只在检测解码边界被注入
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*InferenceOutput, Letterbox, error)
}

// HTTPDetector 通过 HTTP 调用外部推理服务
type HTTPDetector struct {
	inferenceURL string
	inputSize    int
	client       *http.Client
}

func NewHTTPDetector(cfg *config.DetectionConfig) *HTTPDetector {
	return &HTTPDetector{
		inferenceURL: cfg.InferenceURL,
		inputSize:    cfg.InputSize,
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

// Detect 把图像 letterbox 后以 PNG 上传，返回原始输出数组
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) (*InferenceOutput, Letterbox, error) {
	b := img.Bounds()
	lb := ComputeLetterbox(b.Dx(), b.Dy(), d.inputSize)
	input := LetterboxImage(img, lb)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "input.png")
	if err != nil {
		return nil, lb, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, input); err != nil {
		return nil, lb, fmt.Errorf("encode input: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, lb, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.inferenceURL, body)
	if err != nil {
		return nil, lb, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, lb, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, lb, fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	var out InferenceOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, lb, fmt.Errorf("decode response: %w", err)
	}

	utils.Logger.Debug("inference finished",
		zap.Int("rows", out.Rows),
		zap.Int("row_size", out.RowSize),
		zap.Bool("protos", out.Protos != nil),
		zap.Duration("duration", time.Since(start)))

	return &out, lb, nil
}

// CheckHealth 请求推理服务同主机下的 /health
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	u, err := url.Parse(d.inferenceURL)
	if err != nil {
		return fmt.Errorf("parse inference url: %w", err)
	}
	u.Path, u.RawQuery = "/health", ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
