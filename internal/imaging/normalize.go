package imaging

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

const DefaultSize = 128

// Tensor is a dense float32 batch in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Normalize decodes an image and converts it to a batch of one RGB image of
// size x size pixels with values in [0,1]. The source aspect ratio is not
// preserved. The layout is NHWC unless channelsFirst is set.
func Normalize(r io.Reader, size int, channelsFirst bool) (Tensor, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return Tensor{}, "", fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img, size, channelsFirst), format, nil
}

func FromImage(img image.Image, size int, channelsFirst bool) Tensor {
	if size <= 0 {
		size = DefaultSize
	}
	resized := resize.Resize(uint(size), uint(size), opaque(img), resize.NearestNeighbor)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// 16-bit channels down to 8-bit, then to [0,1].
			rv := float32(r>>8) / 255.0
			gv := float32(g>>8) / 255.0
			bv := float32(b>>8) / 255.0

			pixel := y*width + x
			if channelsFirst {
				data[pixel] = rv
				data[plane+pixel] = gv
				data[2*plane+pixel] = bv
			} else {
				data[3*pixel] = rv
				data[3*pixel+1] = gv
				data[3*pixel+2] = bv
			}
		}
	}

	shape := []int64{1, int64(height), int64(width), 3}
	if channelsFirst {
		shape = []int64{1, 3, int64(height), int64(width)}
	}
	return Tensor{Shape: shape, Data: data}
}

// opaque drops the alpha channel and keeps the stored colour of every pixel,
// so transparent pixels are not darkened by premultiplication.
func opaque(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 255
			out.SetNRGBA(x-bounds.Min.X, y-bounds.Min.Y, c)
		}
	}
	return out
}
