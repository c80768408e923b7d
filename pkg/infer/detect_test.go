package infer

import (
	"bytes"
	"image"
	"math"
	"testing"

	"github.com/disintegration/imaging"
)

func TestDecodeBoxes(t *testing.T) {
	out := []float32{
		10, 10, 50, 50, 0.9, 0, // kept
		12, 12, 52, 52, 0.1, 1, // below score threshold
		10, 10, 50, 50, 0.8, 5, // class index out of range
		60, 60, 20, 20, 0.7, 1, // degenerate geometry
		100, 100, 180, 180, 0.6, 1, // kept
	}
	boxes := decodeBoxes(out, 2)
	if len(boxes) != 2 {
		t.Fatalf("kept %d boxes, want 2", len(boxes))
	}
	if boxes[0].class != 0 || boxes[1].class != 1 {
		t.Errorf("classes %d/%d, want 0/1", boxes[0].class, boxes[1].class)
	}
}

func TestDecodeBoxesIgnoresTrailingPartialRow(t *testing.T) {
	out := []float32{10, 10, 50, 50, 0.9, 0, 1, 2, 3}
	if boxes := decodeBoxes(out, 2); len(boxes) != 1 {
		t.Fatalf("kept %d boxes, want 1", len(boxes))
	}
}

func TestNonMaxSuppression(t *testing.T) {
	boxes := []box{
		{x1: 10, y1: 10, x2: 50, y2: 50, score: 0.6, class: 0},
		{x1: 12, y1: 12, x2: 52, y2: 52, score: 0.9, class: 0}, // overlaps above, higher score
		{x1: 12, y1: 12, x2: 52, y2: 52, score: 0.8, class: 1}, // same area, other class
		{x1: 200, y1: 200, x2: 240, y2: 240, score: 0.5, class: 0},
	}
	kept := nonMaxSuppression(boxes, iouThreshold)
	if len(kept) != 3 {
		t.Fatalf("kept %d boxes, want 3", len(kept))
	}
	// the winner of the overlapping same-class pair is the higher score
	if kept[0].score != 0.9 {
		t.Errorf("highest score first, got %v", kept[0].score)
	}
	for _, k := range kept {
		if k.class == 0 && k.score == 0.6 {
			t.Errorf("suppressed box survived")
		}
	}
}

func TestIOU(t *testing.T) {
	a := box{x1: 0, y1: 0, x2: 10, y2: 10}
	b := box{x1: 0, y1: 0, x2: 10, y2: 10}
	if got := iou(a, b); math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("identical boxes iou=%v, want 1", got)
	}
	c := box{x1: 20, y1: 20, x2: 30, y2: 30}
	if got := iou(a, c); got != 0 {
		t.Errorf("disjoint boxes iou=%v, want 0", got)
	}
	d := box{x1: 5, y1: 0, x2: 15, y2: 10}
	if got := iou(a, d); math.Abs(float64(got)-1.0/3.0) > 1e-6 {
		t.Errorf("half-overlap iou=%v, want 1/3", got)
	}
}

func TestAnnotateProducesJPEG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 128, 128))
	spec := &ModelSpec{
		Name: "yolov8_m",
		Meta: Metadata{Task: TaskDetect, Classes: []string{"crop", "weed"}, ImageSize: 64},
	}
	boxes := []box{
		{x1: 5, y1: 5, x2: 30, y2: 30, score: 0.9, class: 0},
		{x1: 35, y1: 35, x2: 60, y2: 60, score: 0.8, class: 1},
	}
	data, err := annotate(img, boxes, spec)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	decoded, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("annotated output is not a decodable image: %v", err)
	}
	if decoded.Bounds().Dx() != 128 || decoded.Bounds().Dy() != 128 {
		t.Errorf("annotated image resized to %v", decoded.Bounds())
	}
}

func TestClassName(t *testing.T) {
	classes := []string{"crop", "weed"}
	if got := className(classes, 1); got != "weed" {
		t.Errorf("className(1)=%q", got)
	}
	if got := className(classes, 7); got != "" {
		t.Errorf("out-of-range index gave %q, want empty", got)
	}
	if got := className(classes, -1); got != "" {
		t.Errorf("negative index gave %q, want empty", got)
	}
}
