package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Classifier turns one input batch into a per-class score vector.
type Classifier interface {
	Predict(ctx context.Context, shape []int64, data []float32) ([]float32, error)
}

// Metadata describes the tensors of an exported model.
type Metadata struct {
	InputName     string   `json:"input_name,omitempty"`
	OutputName    string   `json:"output_name,omitempty"`
	InputShape    []int64  `json:"input_shape"`
	OutputShape   []int64  `json:"output_shape"`
	Classes       []string `json:"classes,omitempty"`
	ImageSize     int      `json:"image_size,omitempty"`
	ChannelsFirst bool     `json:"channels_first,omitempty"`
}

// PredictionResult is the top class of one prediction.
type PredictionResult struct {
	Index      int     `json:"-"`
	Label      string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

func ReadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	return metadata, nil
}

// DefaultImageMetadata is used for image models shipped without a metadata
// file: a Keras style NHWC input with one score per label.
func DefaultImageMetadata(size, classes int) Metadata {
	return Metadata{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, int64(size), int64(size), 3},
		OutputShape: []int64{1, int64(classes)},
		ImageSize:   size,
	}
}

// Features is the number of values per batch item the metadata expects, or 0
// when the input shape is not fixed.
func (m Metadata) Features() int {
	if len(m.InputShape) < 2 {
		return 0
	}
	n := 1
	for _, dim := range m.InputShape[1:] {
		if dim <= 0 {
			return 0
		}
		n *= int(dim)
	}
	return n
}

// Outputs is the number of scores per batch item, or 0 when unknown.
func (m Metadata) Outputs() int {
	if len(m.OutputShape) == 0 {
		return 0
	}
	last := m.OutputShape[len(m.OutputShape)-1]
	if last <= 0 {
		return 0
	}
	return int(last)
}
