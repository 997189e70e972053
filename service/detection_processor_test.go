package service

import (
	"math"
	"testing"

	"github.com/peterz0310/image-placer-sub000/config"
	"github.com/peterz0310/image-placer-sub000/geometry"
)

func newTestPostProcessor() *DetectionPostProcessor {
	cfg := config.Default().Detection
	return NewDetectionPostProcessor(&cfg, nil)
}

func TestIoU(t *testing.T) {
	a := Box{X: 0, Y: 0, W: 10, H: 10}
	tests := []struct {
		name string
		b    Box
		want float64
	}{
		{"self", a, 1},
		{"disjoint", Box{X: 20, Y: 20, W: 5, H: 5}, 0},
		{"touching", Box{X: 10, Y: 0, W: 10, H: 10}, 0},
		{"half overlap", Box{X: 5, Y: 0, W: 10, H: 10}, 50.0 / 150.0},
		{"contained", Box{X: 0, Y: 0, W: 5, H: 5}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IoU(a, tt.b); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("IoU = %v, want %v", got, tt.want)
			}
			if got, rev := IoU(a, tt.b), IoU(tt.b, a); got != rev {
				t.Errorf("IoU not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func nmsFixture() []Detection {
	return []Detection{
		{Box: Box{X: 50, Y: 50, W: 10, H: 10}, Confidence: 0.6},
		{Box: Box{X: 5, Y: 0, W: 10, H: 10}, Confidence: 0.7},
		{Box: Box{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.9},
		{Box: Box{X: 2, Y: 0, W: 10, H: 10}, Confidence: 0.8},
	}
}

func TestNMS(t *testing.T) {
	kept := NMS(nmsFixture(), 0.5)

	want := []float64{0.9, 0.7, 0.6}
	if len(kept) != len(want) {
		t.Fatalf("len(NMS) = %d, want %d", len(kept), len(want))
	}
	for i, d := range kept {
		if d.Confidence != want[i] {
			t.Errorf("NMS[%d].Confidence = %v, want %v", i, d.Confidence, want[i])
		}
	}
}

func TestNMSMonotonic(t *testing.T) {
	thresholds := []float64{0, 0.3, 0.5, 0.7, 1}
	prev := 0
	for _, th := range thresholds {
		n := len(NMS(nmsFixture(), th))
		if n < prev {
			t.Errorf("NMS(threshold=%v) kept %d, fewer than %d at a lower threshold", th, n, prev)
		}
		prev = n
	}
	if prev != 4 {
		t.Errorf("NMS(threshold=1) kept %d, want 4", prev)
	}
}

func TestNMSDoesNotMutateInput(t *testing.T) {
	dets := nmsFixture()
	NMS(dets, 0.5)
	if dets[0].Confidence != 0.6 {
		t.Errorf("NMS reordered its input")
	}
}

func TestComputeLetterbox(t *testing.T) {
	got := ComputeLetterbox(200, 100, 640)
	want := Letterbox{Scale: 3.2, PadX: 0, PadY: 160, InputSize: 640}
	if got != want {
		t.Errorf("ComputeLetterbox = %+v, want %+v", got, want)
	}
}

// detectionRows 三行数据：一个有效框、一个低置信度框、一个完全落在填充区的框
func detectionRows() [][]float32 {
	return [][]float32{
		{320, 320, 320, 160, 0.9},
		{320, 320, 100, 100, 0.1},
		{320, 100, 10, 10, 0.8},
	}
}

func rowMajor(rows [][]float32) *InferenceOutput {
	out := &InferenceOutput{Rows: len(rows), RowSize: len(rows[0])}
	for _, r := range rows {
		out.Data = append(out.Data, r...)
	}
	return out
}

func columnMajor(rows [][]float32) *InferenceOutput {
	out := &InferenceOutput{Rows: len(rows), RowSize: len(rows[0]), ColumnMajor: true}
	for c := 0; c < out.RowSize; c++ {
		for _, r := range rows {
			out.Data = append(out.Data, r[c])
		}
	}
	return out
}

func TestDecode(t *testing.T) {
	lb := ComputeLetterbox(200, 100, 640)
	for name, out := range map[string]*InferenceOutput{
		"row major":    rowMajor(detectionRows()),
		"column major": columnMajor(detectionRows()),
	} {
		t.Run(name, func(t *testing.T) {
			dets, err := newTestPostProcessor().Decode(out, lb, 200, 100)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(dets) != 1 {
				t.Fatalf("len(Decode) = %d, want 1", len(dets))
			}
			want := Box{X: 50, Y: 25, W: 100, H: 50}
			if got := dets[0].Box; math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 ||
				math.Abs(got.W-want.W) > 1e-9 || math.Abs(got.H-want.H) > 1e-9 {
				t.Errorf("Box = %+v, want %+v", got, want)
			}
			if dets[0].Coefficients != nil {
				t.Errorf("Coefficients = %v, want nil", dets[0].Coefficients)
			}
		})
	}
}

func TestDecodeClampsToImage(t *testing.T) {
	lb := Letterbox{Scale: 1, InputSize: 100}
	out := rowMajor([][]float32{{95, 10, 20, 10, 0.9}})
	dets, err := newTestPostProcessor().Decode(out, lb, 100, 100)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("len(Decode) = %d, want 1", len(dets))
	}
	if got := dets[0].Box; got.X != 85 || got.W != 15 {
		t.Errorf("Box = %+v, want X=85 W=15", got)
	}
}

func TestProcessInvalidOutput(t *testing.T) {
	lb := ComputeLetterbox(200, 100, 640)
	tests := []struct {
		name string
		out  *InferenceOutput
	}{
		{"nil", nil},
		{"short row", &InferenceOutput{Data: []float32{1, 2, 3}, Rows: 1, RowSize: 3}},
		{"length mismatch", &InferenceOutput{Data: []float32{1, 2, 3, 4, 5, 6}, Rows: 2, RowSize: 5}},
		{"bad protos", &InferenceOutput{
			Data: []float32{320, 320, 320, 160, 0.9, 1}, Rows: 1, RowSize: 6,
			Protos: &PrototypeBank{Channels: 1, Height: 4, Width: 4, Data: make([]float32, 3)},
		}},
		{"overflowing rows", &InferenceOutput{Data: []float32{}, Rows: 1 << 62, RowSize: 8}},
		{"negative rows", &InferenceOutput{Data: []float32{}, Rows: -1, RowSize: 8}},
		{"overflowing protos", &InferenceOutput{
			Data: []float32{320, 320, 320, 160, 0.9, 1}, Rows: 1, RowSize: 6,
			Protos: &PrototypeBank{Channels: 1 << 62, Height: 2, Width: 2, Data: []float32{}},
		}},
		{"negative protos", &InferenceOutput{
			Data: []float32{320, 320, 320, 160, 0.9, 1}, Rows: 1, RowSize: 6,
			Protos: &PrototypeBank{Channels: -1, Height: -2, Width: 2, Data: make([]float32, 4)},
		}},
		{"empty protos", &InferenceOutput{
			Data: []float32{320, 320, 320, 160, 0.9, 1}, Rows: 1, RowSize: 6,
			Protos: &PrototypeBank{},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if dets := newTestPostProcessor().Process(tt.out, lb, 200, 100, ProcessOptions{}); dets != nil {
				t.Errorf("Process = %v, want nil", dets)
			}
		})
	}
}

func TestProcessBoundingBoxFallback(t *testing.T) {
	lb := ComputeLetterbox(200, 100, 640)
	dets := newTestPostProcessor().Process(rowMajor(detectionRows()), lb, 200, 100, ProcessOptions{Vertices: 8})
	if len(dets) != 1 {
		t.Fatalf("len(Process) = %d, want 1", len(dets))
	}

	want := BoxPolygon(dets[0].Box, 200, 100, 8)
	got := dets[0].Polygon
	if len(got) != 8 {
		t.Fatalf("len(Polygon) = %d, want 8", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Polygon[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if got[0].Dist(geometry.Point{X: 0.25, Y: 0.25}) > 1e-9 {
		t.Errorf("Polygon[0] = %v, want (0.25,0.25)", got[0])
	}
	if dets[0].Color != DetectionColor(0) {
		t.Errorf("Color = %q, want %q", dets[0].Color, DetectionColor(0))
	}
}

func TestProcessVertexClamp(t *testing.T) {
	lb := ComputeLetterbox(200, 100, 640)
	for _, tt := range []struct{ in, want int }{{1, 3}, {100, 50}, {24, 24}} {
		dets := newTestPostProcessor().Process(rowMajor(detectionRows()), lb, 200, 100, ProcessOptions{Vertices: tt.in})
		if len(dets) != 1 {
			t.Fatalf("len(Process) = %d, want 1", len(dets))
		}
		if got := len(dets[0].Polygon); got != tt.want {
			t.Errorf("Process(vertices=%d) polygon size = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// squareProtos 单通道 160×160 原型图，x,y ∈ [60,100) 为正值，其余为负值
func squareProtos() *PrototypeBank {
	bank := &PrototypeBank{Channels: 1, Height: 160, Width: 160, Data: make([]float32, 160*160)}
	for y := 0; y < 160; y++ {
		for x := 0; x < 160; x++ {
			v := float32(-8)
			if x >= 60 && x < 100 && y >= 60 && y < 100 {
				v = 8
			}
			bank.Data[y*160+x] = v
		}
	}
	return bank
}

func TestProcessPrototypeMask(t *testing.T) {
	lb := ComputeLetterbox(640, 640, 640)
	out := rowMajor([][]float32{{320, 320, 320, 320, 0.9, 1}})
	out.Protos = squareProtos()

	dets := newTestPostProcessor().Process(out, lb, 640, 640, ProcessOptions{Vertices: 24})
	if len(dets) != 1 {
		t.Fatalf("len(Process) = %d, want 1", len(dets))
	}
	poly := dets[0].Polygon
	if len(poly) < 3 || len(poly) > 24 {
		t.Fatalf("len(Polygon) = %d, want 3..24", len(poly))
	}

	// 方块在源图中为 [0.375, 0.625]²，包围盒为 [0.25, 0.75]²
	for _, p := range poly {
		if p.X < 0.37 || p.X > 0.63 || p.Y < 0.37 || p.Y > 0.63 {
			t.Errorf("polygon point %v outside the decoded square", p)
		}
	}
	// 简化在平滑之后进行，拐角只被轻微削圆
	if area, square := poly.Area(), 0.25*0.25; area < 0.85*square {
		t.Errorf("polygon area = %v, want >= %v", area, 0.85*square)
	}
}

func TestProcessChannelMismatchFallsBack(t *testing.T) {
	lb := ComputeLetterbox(640, 640, 640)
	out := rowMajor([][]float32{{320, 320, 320, 320, 0.9, 1, 1}})
	out.Protos = squareProtos()

	dets := newTestPostProcessor().Process(out, lb, 640, 640, ProcessOptions{Vertices: 8})
	if len(dets) != 1 {
		t.Fatalf("len(Process) = %d, want 1", len(dets))
	}
	want := BoxPolygon(dets[0].Box, 640, 640, 8)
	for i := range want {
		if dets[0].Polygon[i] != want[i] {
			t.Errorf("Polygon[%d] = %v, want %v", i, dets[0].Polygon[i], want[i])
		}
	}
}

func TestProcessExpand(t *testing.T) {
	lb := ComputeLetterbox(200, 100, 640)
	expand := 100.0
	dets := newTestPostProcessor().Process(rowMajor(detectionRows()), lb, 200, 100,
		ProcessOptions{Vertices: 4, ExpandPercent: &expand})
	if len(dets) != 1 {
		t.Fatalf("len(Process) = %d, want 1", len(dets))
	}
	// 中心 (0.5,0.5)，半宽 0.25 放大一倍后被限制在 [0,1]
	want := geometry.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	for i, p := range dets[0].Polygon {
		if p.Dist(want[i]) > 1e-9 {
			t.Errorf("Polygon[%d] = %v, want %v", i, p, want[i])
		}
	}
}

func TestProcessExpandOverride(t *testing.T) {
	cfg := config.Default().Detection
	cfg.ExpandPercent = 100
	pp := NewDetectionPostProcessor(&cfg, nil)
	lb := ComputeLetterbox(200, 100, 640)
	box := geometry.Polygon{{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.25}, {X: 0.75, Y: 0.75}, {X: 0.25, Y: 0.75}}
	full := geometry.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

	zero := 0.0
	tests := []struct {
		name   string
		expand *float64
		want   geometry.Polygon
	}{
		{"config", nil, full},
		{"explicit zero", &zero, box},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets := pp.Process(rowMajor(detectionRows()), lb, 200, 100,
				ProcessOptions{Vertices: 4, ExpandPercent: tt.expand})
			if len(dets) != 1 {
				t.Fatalf("len(Process) = %d, want 1", len(dets))
			}
			for i, p := range dets[0].Polygon {
				if p.Dist(tt.want[i]) > 1e-9 {
					t.Errorf("Polygon[%d] = %v, want %v", i, p, tt.want[i])
				}
			}
		})
	}
}

func TestDecodeMaskDegenerateFallsBack(t *testing.T) {
	// 单像素宽的竖线：边界点共线，面积为0
	bank := &PrototypeBank{Channels: 1, Height: 160, Width: 160, Data: make([]float32, 160*160)}
	for y := 0; y < 160; y++ {
		for x := 0; x < 160; x++ {
			v := float32(-8)
			if x == 80 && y >= 60 && y < 100 {
				v = 8
			}
			bank.Data[y*160+x] = v
		}
	}
	lb := ComputeLetterbox(640, 640, 640)
	out := rowMajor([][]float32{{320, 320, 320, 320, 0.9, 1}})
	out.Protos = bank

	dets := newTestPostProcessor().Process(out, lb, 640, 640, ProcessOptions{Vertices: 8})
	if len(dets) != 1 {
		t.Fatalf("len(Process) = %d, want 1", len(dets))
	}
	want := BoxPolygon(dets[0].Box, 640, 640, 8)
	for i := range want {
		if dets[0].Polygon[i] != want[i] {
			t.Errorf("Polygon[%d] = %v, want %v", i, dets[0].Polygon[i], want[i])
		}
	}
}

func TestActivate(t *testing.T) {
	bank := &PrototypeBank{Channels: 2, Height: 1, Width: 2, Data: []float32{1, -1, 2, 0}}
	mask := Activate(protoMatrix(bank), []float32{1, 0.5}, 2, 1)
	// 像素0: 1*1 + 0.5*2 = 2；像素1: -1 + 0 = -1
	if got, want := mask.At(0, 0), sigmoid(2); math.Abs(got-want) > 1e-12 {
		t.Errorf("mask(0,0) = %v, want %v", got, want)
	}
	if got, want := mask.At(1, 0), sigmoid(-1); math.Abs(got-want) > 1e-12 {
		t.Errorf("mask(1,0) = %v, want %v", got, want)
	}
}

func TestDetectionColor(t *testing.T) {
	if DetectionColor(3) != DetectionColor(3) {
		t.Error("DetectionColor is not deterministic")
	}
	if DetectionColor(0) == DetectionColor(1) {
		t.Error("DetectionColor(0) == DetectionColor(1)")
	}
	if c := DetectionColor(0); len(c) != 7 || c[0] != '#' {
		t.Errorf("DetectionColor(0) = %q, want #rrggbb", c)
	}
}
