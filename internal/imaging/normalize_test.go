package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"strings"
	"testing"
)

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name          string
		w, h          int
		channelsFirst bool
		wantShape     []int64
	}{
		{name: "square nhwc", w: 64, h: 64, wantShape: []int64{1, 128, 128, 3}},
		{name: "wide image is stretched", w: 300, h: 40, wantShape: []int64{1, 128, 128, 3}},
		{name: "nchw", w: 10, h: 20, channelsFirst: true, wantShape: []int64{1, 3, 128, 128}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := solidPNG(t, tt.w, tt.h, color.RGBA{R: 255, G: 0, B: 51, A: 255})
			got, format, err := Normalize(bytes.NewReader(raw), DefaultSize, tt.channelsFirst)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if format != "png" {
				t.Errorf("format = %q, want png", format)
			}
			if !reflect.DeepEqual(got.Shape, tt.wantShape) {
				t.Errorf("Shape = %v, want %v", got.Shape, tt.wantShape)
			}
			if len(got.Data) != 128*128*3 {
				t.Fatalf("len(Data) = %d, want %d", len(got.Data), 128*128*3)
			}
			for i, v := range got.Data {
				if v < 0 || v > 1 {
					t.Fatalf("Data[%d] = %v, want value in [0,1]", i, v)
				}
			}
			var r, g, b float32
			if tt.channelsFirst {
				r, g, b = got.Data[0], got.Data[128*128], got.Data[2*128*128]
			} else {
				r, g, b = got.Data[0], got.Data[1], got.Data[2]
			}
			if r != 1 || g != 0 || b != float32(51)/255 {
				t.Errorf("first pixel = (%v, %v, %v), want (1, 0, 0.2)", r, g, b)
			}
		})
	}
}

func TestFromImageUpsamplesWithoutBlending(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})

	got := FromImage(img, 4, false)
	red, blue := 0, 0
	for i := 0; i < len(got.Data); i += 3 {
		switch px := [3]float32{got.Data[i], got.Data[i+1], got.Data[i+2]}; px {
		case [3]float32{1, 0, 0}:
			red++
		case [3]float32{0, 0, 1}:
			blue++
		default:
			t.Fatalf("pixel %d = %v, want a source colour", i/3, px)
		}
	}
	if red != 8 || blue != 8 {
		t.Errorf("red = %d, blue = %d, want 8 each", red, blue)
	}
	// The left half comes from the red source pixel.
	if got.Data[0] != 1 || got.Data[3*3+2] != 1 {
		t.Errorf("first row = %v", got.Data[:12])
	}
}

func TestFromImageIgnoresAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
		}
	}
	got := FromImage(img, 6, false)
	want := []float32{float32(200) / 255, float32(100) / 255, float32(50) / 255}
	if !reflect.DeepEqual(got.Data[:3], want) {
		t.Errorf("transparent pixel = %v, want stored colour %v", got.Data[:3], want)
	}
}

func TestNormalizeInvalid(t *testing.T) {
	if _, _, err := Normalize(strings.NewReader("definitely not an image"), DefaultSize, false); err == nil {
		t.Errorf("Normalize() on garbage, want error")
	}
}
