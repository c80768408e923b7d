package infer

import (
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// The ONNX runtime environment is process-wide. Sessions and tensors are
// per-request and torn down by Engine.Close.
var ortInit sync.Once

// Classification is the result of a classify run.
type Classification struct {
	ClassName  string
	Confidence float64
}

// Engine is a single request's handle onto the inference backends. It owns
// every native session and tensor the request creates; Close releases them
// all and must run exactly once per request, whichever branch executed.
type Engine struct {
	reg *Registry
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]*ortSession
}

type ortSession struct {
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	session *ort.AdvancedSession
}

// Open acquires a fresh engine for one request.
func (r *Registry) Open() *Engine {
	return &Engine{reg: r, log: r.log, sessions: map[string]*ortSession{}}
}

// Classify runs the named classification backend over a decoded RGB image and
// returns the best class with its softmax confidence. An unregistered model
// yields ErrUnknownModel.
func (e *Engine) Classify(img image.Image, model string) (Classification, error) {
	spec := e.reg.find(model, TaskClassify)
	if spec == nil {
		return Classification{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	s, err := e.session(spec)
	if err != nil {
		return Classification{}, err
	}
	copy(s.input.GetData(), preprocess(img, spec.Meta.ImageSize))
	if err := s.session.Run(); err != nil {
		return Classification{}, fmt.Errorf("inference failed: %w", err)
	}
	probs := softmax(s.output.GetData())
	idx := argmax(probs)
	if idx < 0 || idx >= len(spec.Meta.Classes) {
		return Classification{}, fmt.Errorf("model %s produced %d outputs for %d classes", model, len(probs), len(spec.Meta.Classes))
	}
	return Classification{ClassName: spec.Meta.Classes[idx], Confidence: float64(probs[idx])}, nil
}

// Close destroys every session and tensor this engine created.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, s := range e.sessions {
		if s.session != nil {
			s.session.Destroy()
		}
		if s.input != nil {
			s.input.Destroy()
		}
		if s.output != nil {
			s.output.Destroy()
		}
		delete(e.sessions, name)
	}
}

// session creates (or reuses, within this request) the ONNX session for a
// registered model.
func (e *Engine) session(spec *ModelSpec) (*ortSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[spec.Name]; ok {
		return s, nil
	}

	var initErr error
	ortInit.Do(func() {
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = fmt.Errorf("initialize onnx environment: %w", err)
		}
	})
	if initErr != nil {
		return nil, initErr
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.Meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.Meta.OutputShape...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(spec.OnnxPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	s := &ortSession{input: input, output: output, session: session}
	e.sessions[spec.Name] = s
	e.log.Debug("opened session", zap.String("model", spec.Name))
	return s, nil
}
