package augment

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, seed int64) Image {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := NewImage(3, 32, 32)
	for i := range img.Pixels {
		img.Pixels[i] = rng.Float32()
	}
	return img
}

func TestFromBytes(t *testing.T) {
	raw := make([]byte, 3*2*2)
	for i := range raw {
		raw[i] = byte(i * 20)
	}

	img, err := FromBytes(raw, 3, 2, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0, img.At(0, 0, 0), 1e-6)
	assert.InDelta(t, float32(20)/255, img.At(0, 0, 1), 1e-6)
	assert.InDelta(t, float32(220)/255, img.At(2, 1, 1), 1e-6)

	_, err = FromBytes(raw[:5], 3, 2, 2)
	assert.Error(t, err)
}

func TestRandomResizedCropShape(t *testing.T) {
	img := testImage(t, 1)
	rng := rand.New(rand.NewSource(2))

	crop := RandomResizedCrop{Size: 32, ScaleMin: 0.2, ScaleMax: 1.0}
	for i := 0; i < 20; i++ {
		out := crop.Apply(img, rng)
		require.Equal(t, 3, out.Channels)
		require.Equal(t, 32, out.Height)
		require.Equal(t, 32, out.Width)
		for _, v := range out.Pixels {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.LessOrEqual(t, v, float32(1))
		}
	}
}

func TestHorizontalFlipIsInvolution(t *testing.T) {
	img := testImage(t, 3)

	flip := RandomHorizontalFlip{P: 1}
	rng := rand.New(rand.NewSource(4))

	once := flip.Apply(img, rng)
	assert.NotEqual(t, img.Pixels, once.Pixels)
	twice := flip.Apply(once, rng)
	assert.Equal(t, img.Pixels, twice.Pixels)
}

func TestGrayscaleChannelsEqual(t *testing.T) {
	img := testImage(t, 5)
	rng := rand.New(rand.NewSource(6))

	out := RandomGrayscale{P: 1}.Apply(img, rng)
	n := out.Height * out.Width
	for i := 0; i < n; i++ {
		assert.Equal(t, out.Pixels[i], out.Pixels[n+i])
		assert.Equal(t, out.Pixels[i], out.Pixels[2*n+i])
	}
}

func TestGaussianBlurPreservesConstantImage(t *testing.T) {
	img := NewImage(3, 8, 8)
	for i := range img.Pixels {
		img.Pixels[i] = 0.25
	}

	rng := rand.New(rand.NewSource(7))
	out := GaussianBlur{SigmaMin: 1, SigmaMax: 1}.Apply(img, rng)
	for _, v := range out.Pixels {
		assert.InDelta(t, 0.25, v, 1e-5)
	}
}

func TestColorJitterIdentityWhenZero(t *testing.T) {
	img := testImage(t, 8)
	rng := rand.New(rand.NewSource(9))

	out := ColorJitter{}.Apply(img, rng)
	assert.Equal(t, img.Pixels, out.Pixels)
}

func TestHueShiftFullTurnIsIdentity(t *testing.T) {
	img := testImage(t, 10)

	out := img.Clone()
	shiftHue(out, 1)
	for i := range img.Pixels {
		assert.InDelta(t, img.Pixels[i], out.Pixels[i], 1e-4)
	}
}

func TestNormalize(t *testing.T) {
	img := NewImage(3, 1, 1)
	img.Pixels = []float32{0.4914, 0.4822, 0.4465}

	out := Normalize{Mean: DefaultMean, Std: DefaultStd}.Apply(img, nil)
	for _, v := range out.Pixels {
		assert.InDelta(t, 0, v, 1e-6)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "weak/strong", want: Mode{Key: Weak, Query: Strong}},
		{in: "weak/weak", want: Mode{Key: Weak, Query: Weak}},
		{in: "strong/weak", want: Mode{Key: Strong, Query: Weak}},
		{in: "strong/strong", want: Mode{Key: Strong, Query: Strong}},
		{in: "mild/strong", wantErr: true},
		{in: "weak", wantErr: true},
		{in: "weak/strong/weak", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestTwoCropsProducesDistinctViews(t *testing.T) {
	mode, err := ParseMode("weak/strong")
	require.NoError(t, err)

	tc := NewTwoCrops(mode, 32, DefaultMean, DefaultStd)
	img := testImage(t, 11)
	rng := rand.New(rand.NewSource(12))

	q, k := tc.Apply(img, rng)
	require.Len(t, q.Pixels, 3*32*32)
	require.Len(t, k.Pixels, 3*32*32)
	assert.NotEqual(t, q.Pixels, k.Pixels)
}
