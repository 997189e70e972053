package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// RasterMask 逐像素的成员强度：洪水填充为 0/1，模型解码为 [0,1] 概率
type RasterMask struct {
	Width  int
	Height int
	Data   []float64
}

// NewRasterMask 创建全零掩码
func NewRasterMask(width, height int) *RasterMask {
	return &RasterMask{
		Width:  width,
		Height: height,
		Data:   make([]float64, width*height),
	}
}

// At 返回 (x, y) 处的值，越界时为0
func (m *RasterMask) At(x, y int) float64 {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return 0
	}
	return m.Data[y*m.Width+x]
}

// Set 设置 (x, y) 处的值，越界时忽略
func (m *RasterMask) Set(x, y int, v float64) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	m.Data[y*m.Width+x] = v
}

// Inside 像素值严格大于阈值时视为区域内
func (m *RasterMask) Inside(x, y int, threshold float64) bool {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return false
	}
	return m.Data[y*m.Width+x] > threshold
}

// MaskProcessor 负责处理栅格掩码
type MaskProcessor struct{}

func NewMaskProcessor() *MaskProcessor {
	return &MaskProcessor{}
}

// Crop 裁剪掩码，rect 会先被限制在掩码范围内
func (mp *MaskProcessor) Crop(mask *RasterMask, rect image.Rectangle) *RasterMask {
	rect = rect.Intersect(image.Rect(0, 0, mask.Width, mask.Height))
	out := NewRasterMask(rect.Dx(), rect.Dy())
	for y := 0; y < out.Height; y++ {
		src := (rect.Min.Y+y)*mask.Width + rect.Min.X
		copy(out.Data[y*out.Width:(y+1)*out.Width], mask.Data[src:src+out.Width])
	}
	return out
}

// KeepLargest 保留掩码中最大的4连通区域，其余区域置0
func (mp *MaskProcessor) KeepLargest(mask *RasterMask, threshold float64) *RasterMask {
	labels := make([]int, len(mask.Data))
	sizes := []int{0}
	queue := make([]int, 0, 64)

	for start := range mask.Data {
		if labels[start] != 0 || mask.Data[start] <= threshold {
			continue
		}
		label := len(sizes)
		sizes = append(sizes, 0)
		labels[start] = label
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			sizes[label]++
			x, y := idx%mask.Width, idx/mask.Width
			for _, d := range fourNeighbours {
				nx, ny := x+d.X, y+d.Y
				if !mask.Inside(nx, ny, threshold) {
					continue
				}
				n := ny*mask.Width + nx
				if labels[n] == 0 {
					labels[n] = label
					queue = append(queue, n)
				}
			}
		}
	}

	largest := 0
	for label := 1; label < len(sizes); label++ {
		if sizes[label] > sizes[largest] {
			largest = label
		}
	}

	out := NewRasterMask(mask.Width, mask.Height)
	if largest == 0 {
		return out
	}
	for i, label := range labels {
		if label == largest {
			out.Data[i] = mask.Data[i]
		}
	}
	return out
}

// ToAlpha 把 [0,1] 掩码转换为 alpha 图像
func (mp *MaskProcessor) ToAlpha(mask *RasterMask) *image.Alpha {
	img := image.NewAlpha(image.Rect(0, 0, mask.Width, mask.Height))
	for i, v := range mask.Data {
		img.Pix[i] = uint8(max(0, min(v, 1))*255 + 0.5)
	}
	return img
}

// Coverage 计算 alpha 图像中非透明像素的比例
func (mp *MaskProcessor) Coverage(img *image.Alpha) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	count := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.AlphaAt(x, y).A > 0 {
				count++
			}
		}
	}
	return float64(count) / float64(b.Dx()*b.Dy())
}

// EncodeMask 将掩码编码为Base64 PNG字符串
func (mp *MaskProcessor) EncodeMask(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode mask: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeMask 解码 EncodeMask 生成的字符串
func (mp *MaskProcessor) DecodeMask(data string) (*image.Alpha, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	if a, ok := img.(*image.Alpha); ok {
		return a, nil
	}
	b := img.Bounds()
	out := image.NewAlpha(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, color.AlphaModel.Convert(img.At(x, y)))
		}
	}
	return out, nil
}
