package detect

import (
	"fmt"
	"image"
	"math"
	"os"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/facetrace/facetrace/internal/logger"
	"github.com/facetrace/facetrace/pkg/types"
)

const (
	yunetInputWidth  = 640
	yunetInputHeight = 640
	yunetMinConf     = 0.7
	yunetIoU         = 0.7
	yunetStride      = 8
	yunetGrid        = 80 // 640 / 8
	yunetAnchors     = yunetGrid * yunetGrid
)

// yunetBox is an intermediate detection in model-input coordinates.
type yunetBox struct {
	x, y, w, h float32
	conf       float32
}

// anchor is a detection anchor center in model-input coordinates.
type anchor struct {
	cx, cy float32
}

// YuNetDetector runs the YuNet face model through ONNX Runtime. Unlike the
// pigo backend it reports per-detection confidence scores.
type YuNetDetector struct {
	session     *ort.AdvancedSession
	inputTensor *ort.Tensor[float32]
	clsTensor   *ort.Tensor[float32]
	bboxTensor  *ort.Tensor[float32]
	anchors     []anchor
}

// NewYuNetDetector initializes the ONNX session for the stride-8 YuNet head.
func NewYuNetDetector(modelPath string) (*YuNetDetector, error) {
	libraryPath := "libonnxruntime.so"
	if os.PathSeparator == '\\' {
		libraryPath = "onnxruntime.dll"
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	inputShape := ort.NewShape(1, 3, yunetInputHeight, yunetInputWidth)
	inputData := make([]float32, 1*3*yunetInputHeight*yunetInputWidth)
	inputTensor, err := ort.NewTensor(inputShape, inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	clsTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, yunetAnchors, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create cls tensor: %w", err)
	}
	bboxTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, yunetAnchors, 4))
	if err != nil {
		return nil, fmt.Errorf("failed to create bbox tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input"},
		[]string{"cls_8", "bbox_8"},
		[]ort.Value{inputTensor},
		[]ort.Value{clsTensor, bboxTensor},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	d := &YuNetDetector{
		session:     session,
		inputTensor: inputTensor,
		clsTensor:   clsTensor,
		bboxTensor:  bboxTensor,
		anchors:     generateAnchors(),
	}
	logger.Info("YuNet", "model loaded with %d anchors", len(d.anchors))
	return d, nil
}

// generateAnchors creates anchor centers for the stride-8 feature map.
func generateAnchors() []anchor {
	result := make([]anchor, 0, yunetAnchors)
	for y := 0; y < yunetGrid; y++ {
		for x := 0; x < yunetGrid; x++ {
			result = append(result, anchor{
				cx: (float32(x) + 0.5) * yunetStride,
				cy: (float32(y) + 0.5) * yunetStride,
			})
		}
	}
	return result
}

// Close releases ONNX Runtime resources.
func (d *YuNetDetector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.clsTensor != nil {
		d.clsTensor.Destroy()
	}
	if d.bboxTensor != nil {
		d.bboxTensor.Destroy()
	}
	ort.DestroyEnvironment()
}

// Detect runs inference and returns confidence-scored detections in the
// coordinate space of the image passed in.
func (d *YuNetDetector) Detect(img image.Image) ([]types.RawDetection, error) {
	d.preprocess(img)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("yunet inference: %w", err)
	}

	boxes := applyNMS(d.decode(), yunetIoU)

	// Map from model-input space back to image space, floor semantics.
	bounds := img.Bounds()
	sx := float64(bounds.Dx()) / yunetInputWidth
	sy := float64(bounds.Dy()) / yunetInputHeight

	out := make([]types.RawDetection, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, types.RawDetection{
			X:             int(math.Floor(float64(b.x) * sx)),
			Y:             int(math.Floor(float64(b.y) * sy)),
			W:             int(math.Floor(float64(b.w) * sx)),
			H:             int(math.Floor(float64(b.h) * sy)),
			Confidence:    float64(b.conf),
			HasConfidence: true,
		})
	}
	return out, nil
}

// preprocess samples the image into the BGR NCHW input tensor.
func (d *YuNetDetector) preprocess(img image.Image) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	data := d.inputTensor.GetData()

	const plane = yunetInputHeight * yunetInputWidth
	for y := 0; y < yunetInputHeight; y++ {
		for x := 0; x < yunetInputWidth; x++ {
			origX := bounds.Min.X + x*width/yunetInputWidth
			origY := bounds.Min.Y + y*height/yunetInputHeight

			r, g, b, _ := img.At(origX, origY).RGBA()
			data[0*plane+y*yunetInputWidth+x] = float32(b >> 8)
			data[1*plane+y*yunetInputWidth+x] = float32(g >> 8)
			data[2*plane+y*yunetInputWidth+x] = float32(r >> 8)
		}
	}
}

// decode turns the raw cls/bbox outputs into boxes in input coordinates.
func (d *YuNetDetector) decode() []yunetBox {
	clsData := d.clsTensor.GetData()
	bboxData := d.bboxTensor.GetData()

	var boxes []yunetBox
	for i := 0; i < yunetAnchors; i++ {
		conf := sigmoid(clsData[i])
		if conf < yunetMinConf {
			continue
		}

		a := d.anchors[i]
		cx := a.cx + bboxData[i*4+0]*yunetStride
		cy := a.cy + bboxData[i*4+1]*yunetStride
		w := bboxData[i*4+2] * yunetStride
		h := bboxData[i*4+3] * yunetStride
		if w < 0 {
			w = -w
		}
		if h < 0 {
			h = -h
		}

		x := cx - w/2
		y := cy - h/2

		// Discard degenerate or out-of-bounds boxes before NMS.
		const minSize = 10.0
		if w < minSize || h < minSize || w > yunetInputWidth || h > yunetInputHeight {
			continue
		}
		if x < 0 || y < 0 || x+w > yunetInputWidth || y+h > yunetInputHeight {
			continue
		}

		boxes = append(boxes, yunetBox{x: x, y: y, w: w, h: h, conf: conf})
	}
	return boxes
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

// applyNMS suppresses overlapping boxes, keeping the highest-confidence one.
func applyNMS(boxes []yunetBox, iouThreshold float32) []yunetBox {
	if len(boxes) == 0 {
		return boxes
	}

	sort.Slice(boxes, func(i, j int) bool {
		return boxes[i].conf > boxes[j].conf
	})

	var keep []yunetBox
	used := make([]bool, len(boxes))

	for i := 0; i < len(boxes); i++ {
		if used[i] {
			continue
		}
		keep = append(keep, boxes[i])
		used[i] = true

		for j := i + 1; j < len(boxes); j++ {
			if used[j] {
				continue
			}
			if iou(boxes[i], boxes[j]) > iouThreshold {
				used[j] = true
			}
		}
	}
	return keep
}

func iou(a, b yunetBox) float32 {
	x1 := maxf(a.x, b.x)
	y1 := maxf(a.y, b.y)
	x2 := minf(a.x+a.w, b.x+b.w)
	y2 := minf(a.y+a.h, b.y+b.h)

	if x2 < x1 || y2 < y1 {
		return 0
	}
	intersection := (x2 - x1) * (y2 - y1)
	union := a.w*a.h + b.w*b.h - intersection
	if union == 0 {
		return 0
	}
	return intersection / union
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
