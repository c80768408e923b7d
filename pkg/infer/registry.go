package infer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Task distinguishes the two backend kinds a model file can implement.
type Task string

const (
	TaskClassify Task = "classify"
	TaskDetect   Task = "detect"
)

// Metadata describes one ONNX backend. It sits next to the weights file as
// <name>.json and is produced by the training pipeline.
type Metadata struct {
	Task        Task     `json:"task"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
}

// ModelSpec is a registered backend: weights path plus parsed metadata.
type ModelSpec struct {
	Name     string
	OnnxPath string
	Meta     Metadata
}

// Registry holds the set of registered model backends, keyed by model name.
// It is shared across requests; per-request native resources live on Engine.
type Registry struct {
	dir     string
	scratch string
	log     *zap.Logger

	mu    sync.RWMutex
	specs map[string]*ModelSpec
}

// NewRegistry scans dir for <name>.json metadata files with a matching
// <name>.onnx and registers each pair. An empty registry is not an error;
// every upload will just fail with an unknown-model response.
func NewRegistry(dir, scratch string, log *zap.Logger) (*Registry, error) {
	r := &Registry{dir: dir, scratch: scratch, log: log, specs: map[string]*ModelSpec{}}
	if err := r.Rescan(); err != nil {
		return nil, err
	}
	return r, nil
}

// Rescan re-reads the model directory, replacing the registered set.
func (r *Registry) Rescan() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read model dir: %w", err)
	}
	specs := map[string]*ModelSpec{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		onnxPath := filepath.Join(r.dir, name+".onnx")
		if _, err := os.Stat(onnxPath); err != nil {
			r.log.Warn("metadata without weights, skipping", zap.String("model", name))
			continue
		}
		raw, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			r.log.Warn("unreadable metadata, skipping", zap.String("model", name), zap.Error(err))
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			r.log.Warn("malformed metadata, skipping", zap.String("model", name), zap.Error(err))
			continue
		}
		if meta.Task != TaskClassify && meta.Task != TaskDetect {
			r.log.Warn("metadata with unknown task, skipping", zap.String("model", name), zap.String("task", string(meta.Task)))
			continue
		}
		specs[name] = &ModelSpec{Name: name, OnnxPath: onnxPath, Meta: meta}
		r.log.Info("registered model", zap.String("model", name), zap.String("task", string(meta.Task)))
	}
	r.mu.Lock()
	r.specs = specs
	r.mu.Unlock()
	return nil
}

// Names returns the registered model names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}

func (r *Registry) find(name string, task Task) *ModelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	if !ok || spec.Meta.Task != task {
		return nil
	}
	return spec
}
