package augment

import (
	"math"
	"math/rand"
)

// Transform mutates or replaces an image using the supplied RNG.
type Transform interface {
	Apply(img Image, rng *rand.Rand) Image
}

// Compose chains transforms in order.
type Compose []Transform

// Apply runs every transform in sequence.
func (c Compose) Apply(img Image, rng *rand.Rand) Image {
	for _, t := range c {
		img = t.Apply(img, rng)
	}
	return img
}

// RandomApply runs the wrapped transform with probability P.
type RandomApply struct {
	Transform Transform
	P         float64
}

func (r RandomApply) Apply(img Image, rng *rand.Rand) Image {
	if rng.Float64() < r.P {
		return r.Transform.Apply(img, rng)
	}
	return img
}

// RandomResizedCrop samples a crop window covering a random fraction of the
// source area within [ScaleMin, ScaleMax] and a random aspect ratio in
// [3/4, 4/3], then resizes it to Size x Size. Falls back to a center crop
// after ten failed attempts.
type RandomResizedCrop struct {
	Size     int
	ScaleMin float64
	ScaleMax float64
}

func (r RandomResizedCrop) Apply(img Image, rng *rand.Rand) Image {
	area := float64(img.Height * img.Width)

	for attempt := 0; attempt < 10; attempt++ {
		targetArea := area * (r.ScaleMin + rng.Float64()*(r.ScaleMax-r.ScaleMin))
		logRatio := math.Log(3.0/4.0) + rng.Float64()*(math.Log(4.0/3.0)-math.Log(3.0/4.0))
		ratio := math.Exp(logRatio)

		w := int(math.Round(math.Sqrt(targetArea * ratio)))
		h := int(math.Round(math.Sqrt(targetArea / ratio)))
		if w < 1 || h < 1 || w > img.Width || h > img.Height {
			continue
		}

		x0 := rng.Intn(img.Width - w + 1)
		y0 := rng.Intn(img.Height - h + 1)
		return resizeBilinear(img, x0, y0, w, h, r.Size, r.Size)
	}

	// Center crop fallback.
	side := img.Height
	if img.Width < side {
		side = img.Width
	}
	x0 := (img.Width - side) / 2
	y0 := (img.Height - side) / 2
	return resizeBilinear(img, x0, y0, side, side, r.Size, r.Size)
}

// RandomHorizontalFlip mirrors the image left-right with probability P.
type RandomHorizontalFlip struct {
	P float64
}

func (r RandomHorizontalFlip) Apply(img Image, rng *rand.Rand) Image {
	if rng.Float64() >= r.P {
		return img
	}

	out := NewImage(img.Channels, img.Height, img.Width)
	for c := 0; c < img.Channels; c++ {
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				out.Set(c, y, x, img.At(c, y, img.Width-1-x))
			}
		}
	}
	return out
}

// ColorJitter perturbs brightness, contrast, saturation and hue, each by a
// factor drawn uniformly from the configured range around the identity.
type ColorJitter struct {
	Brightness float64 // factor in [1-b, 1+b]
	Contrast   float64
	Saturation float64
	Hue        float64 // shift in [-h, h] turns
}

func (c ColorJitter) Apply(img Image, rng *rand.Rand) Image {
	out := img.Clone()

	if c.Brightness > 0 {
		f := float32(1 + (rng.Float64()*2-1)*c.Brightness)
		for i, v := range out.Pixels {
			out.Pixels[i] = clamp01(v * f)
		}
	}

	if c.Contrast > 0 {
		f := float32(1 + (rng.Float64()*2-1)*c.Contrast)
		mean := grayMean(out)
		for i, v := range out.Pixels {
			out.Pixels[i] = clamp01(mean + (v-mean)*f)
		}
	}

	if c.Saturation > 0 && out.Channels == 3 {
		f := float32(1 + (rng.Float64()*2-1)*c.Saturation)
		blendTowardGray(out, f)
	}

	if c.Hue > 0 && out.Channels == 3 {
		shift := (rng.Float64()*2 - 1) * c.Hue
		shiftHue(out, shift)
	}

	return out
}

// RandomGrayscale converts to single-luma grayscale (replicated across
// channels) with probability P.
type RandomGrayscale struct {
	P float64
}

func (r RandomGrayscale) Apply(img Image, rng *rand.Rand) Image {
	if img.Channels != 3 || rng.Float64() >= r.P {
		return img
	}

	out := NewImage(img.Channels, img.Height, img.Width)
	n := img.Height * img.Width
	for i := 0; i < n; i++ {
		l := 0.299*img.Pixels[i] + 0.587*img.Pixels[n+i] + 0.114*img.Pixels[2*n+i]
		out.Pixels[i] = l
		out.Pixels[n+i] = l
		out.Pixels[2*n+i] = l
	}
	return out
}

// GaussianBlur convolves with a separable Gaussian kernel whose sigma is
// drawn uniformly from [SigmaMin, SigmaMax].
type GaussianBlur struct {
	SigmaMin float64
	SigmaMax float64
}

func (g GaussianBlur) Apply(img Image, rng *rand.Rand) Image {
	sigma := g.SigmaMin + rng.Float64()*(g.SigmaMax-g.SigmaMin)
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		return img
	}

	kernel := make([]float32, 2*radius+1)
	var sum float32
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = float32(math.Exp(-d * d / (2 * sigma * sigma)))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := NewImage(img.Channels, img.Height, img.Width)
	out := NewImage(img.Channels, img.Height, img.Width)

	// Horizontal pass with edge clamping.
	for c := 0; c < img.Channels; c++ {
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				var acc float32
				for k := -radius; k <= radius; k++ {
					sx := x + k
					if sx < 0 {
						sx = 0
					} else if sx > img.Width-1 {
						sx = img.Width - 1
					}
					acc += kernel[k+radius] * img.At(c, y, sx)
				}
				tmp.Set(c, y, x, acc)
			}
		}
	}

	// Vertical pass.
	for c := 0; c < img.Channels; c++ {
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				var acc float32
				for k := -radius; k <= radius; k++ {
					sy := y + k
					if sy < 0 {
						sy = 0
					} else if sy > img.Height-1 {
						sy = img.Height - 1
					}
					acc += kernel[k+radius] * tmp.At(c, sy, x)
				}
				out.Set(c, y, x, acc)
			}
		}
	}

	return out
}

// Normalize applies per-channel (v - mean) / std. It runs last in every
// pipeline; pixel values leave the [0,1] range here.
type Normalize struct {
	Mean []float32
	Std  []float32
}

func (n Normalize) Apply(img Image, _ *rand.Rand) Image {
	out := img.Clone()
	plane := img.Height * img.Width
	for c := 0; c < img.Channels; c++ {
		m, s := n.Mean[c], n.Std[c]
		for i := c * plane; i < (c+1)*plane; i++ {
			out.Pixels[i] = (out.Pixels[i] - m) / s
		}
	}
	return out
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func grayMean(img Image) float32 {
	if img.Channels != 3 {
		var sum float32
		for _, v := range img.Pixels {
			sum += v
		}
		return sum / float32(len(img.Pixels))
	}

	n := img.Height * img.Width
	var sum float32
	for i := 0; i < n; i++ {
		sum += 0.299*img.Pixels[i] + 0.587*img.Pixels[n+i] + 0.114*img.Pixels[2*n+i]
	}
	return sum / float32(n)
}

func blendTowardGray(img Image, f float32) {
	n := img.Height * img.Width
	for i := 0; i < n; i++ {
		l := 0.299*img.Pixels[i] + 0.587*img.Pixels[n+i] + 0.114*img.Pixels[2*n+i]
		img.Pixels[i] = clamp01(l + (img.Pixels[i]-l)*f)
		img.Pixels[n+i] = clamp01(l + (img.Pixels[n+i]-l)*f)
		img.Pixels[2*n+i] = clamp01(l + (img.Pixels[2*n+i]-l)*f)
	}
}

// shiftHue rotates the hue of every pixel by the given number of turns.
func shiftHue(img Image, turns float64) {
	n := img.Height * img.Width
	for i := 0; i < n; i++ {
		r, g, b := img.Pixels[i], img.Pixels[n+i], img.Pixels[2*n+i]
		h, s, v := rgbToHSV(r, g, b)
		h += float32(turns)
		h -= float32(math.Floor(float64(h)))
		r, g, b = hsvToRGB(h, s, v)
		img.Pixels[i], img.Pixels[n+i], img.Pixels[2*n+i] = r, g, b
	}
}

func rgbToHSV(r, g, b float32) (h, s, v float32) {
	maxC := r
	if g > maxC {
		maxC = g
	}
	if b > maxC {
		maxC = b
	}
	minC := r
	if g < minC {
		minC = g
	}
	if b < minC {
		minC = b
	}

	v = maxC
	d := maxC - minC
	if maxC > 0 {
		s = d / maxC
	}
	if d == 0 {
		return 0, s, v
	}

	switch maxC {
	case r:
		h = (g - b) / d
		if h < 0 {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h / 6, s, v
}

func hsvToRGB(h, s, v float32) (r, g, b float32) {
	if s == 0 {
		return v, v, v
	}

	h6 := h * 6
	sector := int(h6) % 6
	f := h6 - float32(math.Floor(float64(h6)))
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	switch sector {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
