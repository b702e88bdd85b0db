package renderer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-scene-raytracer/pkg/core"
)

func totalWeight(im *SampledImage) float64 {
	w, h := im.Resolution()
	sum := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum += im.Pixel(x, y).Weight
		}
	}
	return sum
}

func TestSampledImage_SplatAtPixelCenter(t *testing.T) {
	im := NewSampledImage(4, 3)
	im.AddSample(Sample{X: 2.5, Y: 1.5, Color: core.NewVec3(1, 0.5, 0.25)})

	p := im.Pixel(2, 1)
	assert.InDelta(t, 1.0, p.Weight, 1e-12)
	assert.Equal(t, core.NewVec3(1, 0.5, 0.25), p.Value())
	assert.InDelta(t, 1.0, totalWeight(im), 1e-12)
	assert.Equal(t, int64(1), im.Samples())
}

func TestSampledImage_SplatBetweenCenters(t *testing.T) {
	im := NewSampledImage(4, 4)
	im.AddSample(Sample{X: 2, Y: 2, Color: core.NewVec3(1, 1, 1)})

	for _, xy := range [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 2}} {
		assert.InDelta(t, 0.25, im.Pixel(xy[0], xy[1]).Weight, 1e-12, "pixel %v", xy)
	}
	assert.Equal(t, 0.0, im.Pixel(0, 0).Weight)
}

func TestSampledImage_WeightsSumToOne(t *testing.T) {
	random := rand.New(rand.NewSource(7))
	im := NewSampledImage(5, 4)

	// Includes samples near and on the image edges
	const n = 1000
	for i := 0; i < n; i++ {
		im.AddSample(Sample{
			X:     random.Float64() * 5,
			Y:     random.Float64() * 4,
			Color: core.NewVec3(random.Float64(), random.Float64(), random.Float64()),
		})
	}
	im.AddSample(Sample{X: 0, Y: 0, Color: core.NewVec3(1, 1, 1)})
	im.AddSample(Sample{X: 5, Y: 4, Color: core.NewVec3(1, 1, 1)})

	assert.InDelta(t, float64(n+2), totalWeight(im), 1e-9)
	assert.Equal(t, int64(n+2), im.Samples())
}

func TestSampledImage_CornerSampleStaysInside(t *testing.T) {
	im := NewSampledImage(3, 3)
	im.AddSample(Sample{X: 0.1, Y: 0.1, Color: core.NewVec3(2, 2, 2)})

	p := im.Pixel(0, 0)
	assert.InDelta(t, 1.0, p.Weight, 1e-12)
	assert.InDelta(t, 2.0, p.Value().X, 1e-12)
}

func TestSampledImage_RejectsNonFinite(t *testing.T) {
	im := NewSampledImage(2, 2)
	im.AddSample(Sample{X: 1, Y: 1, Color: core.NewVec3(math.NaN(), 0, 0)})
	im.AddSample(Sample{X: 1, Y: 1, Color: core.NewVec3(math.Inf(1), 0, 0)})
	im.AddSample(Sample{X: math.NaN(), Y: 1, Color: core.NewVec3(1, 0, 0)})

	assert.Equal(t, int64(3), im.Rejected())
	assert.Equal(t, int64(0), im.Samples())
	assert.Equal(t, 0.0, totalWeight(im))
}

func TestSampledImage_SplatBucket(t *testing.T) {
	im := NewSampledImage(2, 2)
	b := NewBucket(4)
	b.Add(Sample{X: 0.5, Y: 0.5, Color: core.NewVec3(1, 1, 1)})
	b.Add(Sample{X: 0.5, Y: 0.5, Color: core.NewVec3(0, 0, 0)})
	im.Splat(b)

	p := im.Pixel(0, 0)
	assert.InDelta(t, 2.0, p.Weight, 1e-12)
	assert.InDelta(t, 0.5, p.Value().Y, 1e-12)
}

func TestSampledImage_Snapshot(t *testing.T) {
	im := NewSampledImage(2, 1)
	im.AddSample(Sample{X: 0.5, Y: 0.5, Color: core.NewVec3(1, 0.25, 4)})

	img := im.Snapshot()
	require.Equal(t, 2, img.Bounds().Dx())
	require.Equal(t, 1, img.Bounds().Dy())

	// Gamma 2 maps 0.25 to 0.5, values above one clamp
	c := img.RGBAAt(0, 0)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(127), c.G)
	assert.Equal(t, uint8(255), c.B)
	assert.Equal(t, uint8(255), c.A)

	// Untouched pixels are black
	c = img.RGBAAt(1, 0)
	assert.Equal(t, uint8(0), c.R)
	assert.Equal(t, uint8(255), c.A)
}
