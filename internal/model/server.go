package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// InitRuntime loads the onnxruntime shared library once per process. An empty
// path keeps the library default.
func InitRuntime(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return envErr
}

// DestroyRuntime releases the onnxruntime environment.
func DestroyRuntime() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// Server runs one ONNX model. Tensors are allocated per call so a Server can
// be shared by concurrent requests.
type Server struct {
	session  *ort.DynamicAdvancedSession
	Metadata Metadata
}

var _ Classifier = &Server{}

func NewServer(modelPath string, metadata Metadata) (*Server, error) {
	if len(metadata.OutputShape) == 0 {
		return nil, fmt.Errorf("metadata for %s has no output shape", modelPath)
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &Server{session: session, Metadata: metadata}, nil
}

func (s *Server) Predict(ctx context.Context, shape []int64, data []float32) ([]float32, error) {
	if want := s.Metadata.Features(); want > 0 && len(data) != want {
		return nil, fmt.Errorf("expected %d input values, got %d", want, len(data))
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputShape := make([]int64, len(s.Metadata.OutputShape))
	for i, dim := range s.Metadata.OutputShape {
		if dim <= 0 {
			dim = 1
		}
		outputShape[i] = dim
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return append([]float32(nil), outputTensor.GetData()...), nil
}

func (s *Server) Close() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}
