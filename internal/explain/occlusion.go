package explain

import (
	"context"
	"fmt"

	"github.com/Brownie44l1/farm-api/internal/imaging"
)

const DefaultGrid = 4

// Predictor is the part of a classifier the occlusion explainer needs.
type Predictor interface {
	Predict(ctx context.Context, shape []int64, data []float32) ([]float32, error)
}

// Occlusion weighs each cell of a Grid×Grid partition of the image by how much
// blanking it lowers the score of the explained class.
type Occlusion struct {
	Predictor     Predictor
	Grid          int
	ChannelsFirst bool
}

func (o Occlusion) Regions(ctx context.Context, t imaging.Tensor, class int) ([]float64, error) {
	if len(t.Shape) != 4 {
		return nil, fmt.Errorf("expected a 4-d image tensor, got shape %v", t.Shape)
	}
	grid := o.Grid
	if grid <= 0 {
		grid = DefaultGrid
	}
	h, w, c := int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3])
	if o.ChannelsFirst {
		c, h, w = int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3])
	}

	base, err := o.score(ctx, t.Shape, t.Data, class)
	if err != nil {
		return nil, err
	}

	weights := make([]float64, 0, grid*grid)
	occluded := make([]float32, len(t.Data))
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			copy(occluded, t.Data)
			for y := gy * h / grid; y < (gy+1)*h/grid; y++ {
				for x := gx * w / grid; x < (gx+1)*w/grid; x++ {
					for ch := 0; ch < c; ch++ {
						if o.ChannelsFirst {
							occluded[(ch*h+y)*w+x] = 0
						} else {
							occluded[(y*w+x)*c+ch] = 0
						}
					}
				}
			}
			s, err := o.score(ctx, t.Shape, occluded, class)
			if err != nil {
				return nil, err
			}
			weights = append(weights, base-s)
		}
	}
	return weights, nil
}

func (o Occlusion) score(ctx context.Context, shape []int64, data []float32, class int) (float64, error) {
	scores, err := o.Predictor.Predict(ctx, shape, data)
	if err != nil {
		return 0, err
	}
	if class < 0 || class >= len(scores) {
		return 0, fmt.Errorf("class %d out of range for %d scores", class, len(scores))
	}
	return float64(scores[class]), nil
}
