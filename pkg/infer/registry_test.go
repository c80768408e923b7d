package infer

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"go.uber.org/zap"
)

func writeModelFiles(t *testing.T, dir, name, metaJSON string, withWeights bool) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(metaJSON), 0644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	if withWeights {
		if err := os.WriteFile(filepath.Join(dir, name+".onnx"), []byte("not real weights"), 0644); err != nil {
			t.Fatalf("write weights: %v", err)
		}
	}
}

func TestRegistryScan(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, "resnet18", `{"task":"classify","classes":["maize","weed"],"image_size":224,"input_shape":[1,3,224,224],"output_shape":[1,2]}`, true)
	writeModelFiles(t, dir, "yolov8_m", `{"task":"detect","classes":["crop","weed"],"image_size":640,"input_shape":[1,3,640,640],"output_shape":[1,300,6]}`, true)
	writeModelFiles(t, dir, "orphan", `{"task":"classify","classes":["a"],"image_size":64}`, false)
	writeModelFiles(t, dir, "broken", `{"task": nope`, true)
	writeModelFiles(t, dir, "segmenter", `{"task":"segment","classes":["a"],"image_size":64}`, true)

	reg, err := NewRegistry(dir, t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	names := reg.Names()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "resnet18" || names[1] != "yolov8_m" {
		t.Fatalf("registered %v, want [resnet18 yolov8_m]", names)
	}

	if spec := reg.find("resnet18", TaskClassify); spec == nil || spec.Meta.ImageSize != 224 {
		t.Errorf("resnet18 not registered for classification")
	}
	// a registered name does not answer for the other task
	if spec := reg.find("resnet18", TaskDetect); spec != nil {
		t.Errorf("classification model visible as detection backend")
	}
	if spec := reg.find("yolov8_m", TaskDetect); spec == nil || len(spec.Meta.Classes) != 2 {
		t.Errorf("yolov8_m not registered for detection")
	}
}

func TestRegistryRescanPicksUpNewModels(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(dir, "", zap.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if len(reg.Names()) != 0 {
		t.Fatalf("empty dir registered %v", reg.Names())
	}

	writeModelFiles(t, dir, "resnet18", `{"task":"classify","classes":["maize"],"image_size":64,"input_shape":[1,3,64,64],"output_shape":[1,1]}`, true)
	if err := reg.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if len(reg.Names()) != 1 {
		t.Fatalf("after rescan registered %v, want one model", reg.Names())
	}

	// rescan also drops models whose files went away
	if err := os.Remove(filepath.Join(dir, "resnet18.onnx")); err != nil {
		t.Fatalf("remove weights: %v", err)
	}
	if err := reg.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if len(reg.Names()) != 0 {
		t.Fatalf("stale model survived rescan: %v", reg.Names())
	}
}

func TestRegistryMissingDir(t *testing.T) {
	if _, err := NewRegistry(filepath.Join(t.TempDir(), "nope"), "", zap.NewNop()); err == nil {
		t.Fatalf("missing model dir should fail the initial scan")
	}
}

func TestEngineUnknownModelSignals(t *testing.T) {
	reg, err := NewRegistry(t.TempDir(), "", zap.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	eng := reg.Open()
	defer eng.Close()

	_, err = eng.Classify(nil, "resnet99")
	if !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Classify unknown model: err=%v, want ErrUnknownModel", err)
	}

	det, err := eng.Detect([]byte("irrelevant"), "yolo99", "run-1")
	if err != nil {
		t.Errorf("Detect unknown model: err=%v, want nil", err)
	}
	if det != nil {
		t.Errorf("Detect unknown model: det=%v, want nil", det)
	}
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	reg, err := NewRegistry(t.TempDir(), "", zap.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	eng := reg.Open()
	eng.Close()
	eng.Close()
}
