package infer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	scoreThreshold = 0.25
	iouThreshold   = 0.45
)

// Detection is the result of a detect run. Annotated holds the JPEG-encoded
// image with boxes drawn over it; a nil *Detection from Engine.Detect means
// the model identifier was not registered for detection.
type Detection struct {
	Annotated []byte
	WeedCount int
	CropCount int
}

type box struct {
	x1, y1, x2, y2 float32
	score          float32
	class          int
}

// Detect runs the named detection backend over raw image bytes. runTag
// disambiguates the scratch artifact this run writes, so concurrent requests
// sharing the scratch directory never collide.
func (e *Engine) Detect(imageData []byte, model, runTag string) (*Detection, error) {
	spec := e.reg.find(model, TaskDetect)
	if spec == nil {
		return nil, nil
	}
	img, err := imaging.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	s, err := e.session(spec)
	if err != nil {
		return nil, err
	}
	copy(s.input.GetData(), preprocess(img, spec.Meta.ImageSize))
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	boxes := decodeBoxes(s.output.GetData(), len(spec.Meta.Classes))
	kept := nonMaxSuppression(boxes, iouThreshold)

	det := &Detection{}
	for _, b := range kept {
		if className(spec.Meta.Classes, b.class) == "weed" {
			det.WeedCount++
		} else {
			det.CropCount++
		}
	}

	annotated, err := annotate(img, kept, spec)
	if err != nil {
		return nil, err
	}
	det.Annotated = annotated
	e.writeScratch(runTag, annotated)
	return det, nil
}

// decodeBoxes parses the flat output tensor as rows of
// [x1, y1, x2, y2, score, classIndex] in model-input coordinates, dropping
// rows below the score threshold and rows with out-of-range class indices.
func decodeBoxes(out []float32, numClasses int) []box {
	const stride = 6
	var boxes []box
	for i := 0; i+stride <= len(out); i += stride {
		b := box{
			x1:    out[i],
			y1:    out[i+1],
			x2:    out[i+2],
			y2:    out[i+3],
			score: out[i+4],
			class: int(out[i+5]),
		}
		if b.score < scoreThreshold {
			continue
		}
		if b.class < 0 || b.class >= numClasses {
			continue
		}
		if b.x2 <= b.x1 || b.y2 <= b.y1 {
			continue
		}
		boxes = append(boxes, b)
	}
	return boxes
}

// nonMaxSuppression keeps the highest-scoring box of every overlapping
// same-class cluster.
func nonMaxSuppression(boxes []box, iouThresh float32) []box {
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].score > boxes[j].score })
	var kept []box
	for _, cand := range boxes {
		suppressed := false
		for _, k := range kept {
			if k.class == cand.class && iou(k, cand) > iouThresh {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

func iou(a, b box) float32 {
	ix1, iy1 := maxf(a.x1, b.x1), maxf(a.y1, b.y1)
	ix2, iy2 := minf(a.x2, b.x2), minf(a.y2, b.y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	areaA := (a.x2 - a.x1) * (a.y2 - a.y1)
	areaB := (b.x2 - b.x1) * (b.y2 - b.y1)
	return inter / (areaA + areaB - inter)
}

// annotate draws the kept boxes onto the original image (weed red, crop
// green) and encodes it as JPEG. Box coordinates are scaled back from the
// model input size to the original dimensions.
func annotate(img image.Image, boxes []box, spec *ModelSpec) ([]byte, error) {
	canvas := imaging.Clone(img)
	sx := float32(canvas.Bounds().Dx()) / float32(spec.Meta.ImageSize)
	sy := float32(canvas.Bounds().Dy()) / float32(spec.Meta.ImageSize)
	for _, b := range boxes {
		col := color.NRGBA{0, 200, 0, 255}
		if className(spec.Meta.Classes, b.class) == "weed" {
			col = color.NRGBA{220, 0, 0, 255}
		}
		drawRect(canvas,
			int(b.x1*sx), int(b.y1*sy),
			int(b.x2*sx), int(b.y2*sy),
			col)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}

func drawRect(img *image.NRGBA, x1, y1, x2, y2 int, col color.NRGBA) {
	const thickness = 3
	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			img.Set(x, y1+t, col)
			img.Set(x, y2-t, col)
		}
		for y := y1; y <= y2; y++ {
			img.Set(x1+t, y, col)
			img.Set(x2-t, y, col)
		}
	}
}

// writeScratch drops the annotated artifact into the shared scratch
// directory. Failures are logged only; the counts are still valid.
func (e *Engine) writeScratch(runTag string, annotated []byte) {
	if e.reg.scratch == "" {
		return
	}
	path := filepath.Join(e.reg.scratch, "detect-"+runTag+".jpg")
	if err := os.WriteFile(path, annotated, 0644); err != nil {
		e.log.Warn("failed to write scratch artifact", zap.String("path", path), zap.Error(err))
	}
}

func className(classes []string, idx int) string {
	if idx >= 0 && idx < len(classes) {
		return classes[idx]
	}
	return ""
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
