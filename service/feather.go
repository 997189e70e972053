package service

import (
	"image"
	"math"
)

// GaussianKernel 生成归一化的一维高斯核，radius 作为标准差，
// 核大小为 2*ceil(3*radius)+1
func GaussianKernel(radius float64) []float32 {
	if radius <= 0 {
		return []float32{1}
	}
	halfSize := int(math.Ceil(radius * 3))
	size := halfSize*2 + 1
	kernel := make([]float32, size)

	twoSigmaSq := 2 * radius * radius
	sum := 0.0
	for i := 0; i < size; i++ {
		x := float64(i - halfSize)
		v := math.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = float32(v)
		sum += v
	}
	inv := float32(1 / sum)
	for i := range kernel {
		kernel[i] *= inv
	}
	return kernel
}

// Feather 对 alpha 图像做可分离高斯模糊，返回新图像。边缘像素向外延伸。
func Feather(src *image.Alpha, radius float64) *image.Alpha {
	b := src.Bounds()
	dst := image.NewAlpha(b)
	w, h := b.Dx(), b.Dy()
	if radius <= 0 || b.Empty() {
		for y := 0; y < h; y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return dst
	}

	kernel := GaussianKernel(radius)
	half := len(kernel) / 2
	temp := make([]float32, w*h)

	// 水平方向: src -> temp
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			var acc float32
			for k, weight := range kernel {
				kx := min(max(x+k-half, 0), w-1)
				acc += float32(row[kx]) * weight
			}
			temp[y*w+x] = acc
		}
	}

	// 垂直方向: temp -> dst
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float32
			for k, weight := range kernel {
				ky := min(max(y+k-half, 0), h-1)
				acc += temp[ky*w+x] * weight
			}
			dst.Pix[y*dst.Stride+x] = clampUint8(acc)
		}
	}
	return dst
}

func clampUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
