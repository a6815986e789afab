// Package augment implements the stochastic image augmentations that produce
// the two views of each training sample.
//
// Images are dense float32 tensors in CHW layout with values in [0,1] before
// normalization. Every transform takes an explicit RNG so loader workers can
// each run their own deterministic stream.
package augment

import (
	"fmt"
	"slices"
)

// Image is a dense CHW float32 image.
type Image struct {
	Pixels   []float32 // channels * height * width, channel-major
	Channels int
	Height   int
	Width    int
}

// NewImage allocates a zero image of the given shape.
func NewImage(channels, height, width int) Image {
	return Image{
		Pixels:   make([]float32, channels*height*width),
		Channels: channels,
		Height:   height,
		Width:    width,
	}
}

// FromBytes converts raw channel-major uint8 pixels to a float image scaled
// to [0,1].
func FromBytes(raw []byte, channels, height, width int) (Image, error) {
	if len(raw) != channels*height*width {
		return Image{}, fmt.Errorf("augment: raw length %d does not match %dx%dx%d", len(raw), channels, height, width)
	}

	img := NewImage(channels, height, width)
	for i, b := range raw {
		img.Pixels[i] = float32(b) / 255
	}

	return img, nil
}

// At returns the pixel value at (c, y, x).
func (img Image) At(c, y, x int) float32 {
	return img.Pixels[(c*img.Height+y)*img.Width+x]
}

// Set writes the pixel value at (c, y, x).
func (img Image) Set(c, y, x int, v float32) {
	img.Pixels[(c*img.Height+y)*img.Width+x] = v
}

// Clone returns a deep copy.
func (img Image) Clone() Image {
	out := img
	out.Pixels = slices.Clone(img.Pixels)
	return out
}

// resizeBilinear scales the image to the target shape with bilinear
// interpolation, sampling from the given source window.
func resizeBilinear(src Image, x0, y0, w, h, outH, outW int) Image {
	out := NewImage(src.Channels, outH, outW)

	scaleY := float32(h) / float32(outH)
	scaleX := float32(w) / float32(outW)

	for oy := 0; oy < outH; oy++ {
		sy := (float32(oy)+0.5)*scaleY - 0.5
		if sy < 0 {
			sy = 0
		}
		iy := int(sy)
		if iy > h-1 {
			iy = h - 1
		}
		iy2 := iy + 1
		if iy2 > h-1 {
			iy2 = h - 1
		}
		fy := sy - float32(iy)

		for ox := 0; ox < outW; ox++ {
			sx := (float32(ox)+0.5)*scaleX - 0.5
			if sx < 0 {
				sx = 0
			}
			ix := int(sx)
			if ix > w-1 {
				ix = w - 1
			}
			ix2 := ix + 1
			if ix2 > w-1 {
				ix2 = w - 1
			}
			fx := sx - float32(ix)

			for c := 0; c < src.Channels; c++ {
				tl := src.At(c, y0+iy, x0+ix)
				tr := src.At(c, y0+iy, x0+ix2)
				bl := src.At(c, y0+iy2, x0+ix)
				br := src.At(c, y0+iy2, x0+ix2)

				top := tl + (tr-tl)*fx
				bot := bl + (br-bl)*fx
				out.Set(c, oy, ox, top+(bot-top)*fy)
			}
		}
	}

	return out
}
