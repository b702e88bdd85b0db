package renderer

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/df07/go-scene-raytracer/pkg/core"
)

// Pixel accumulates weighted radiance
type Pixel struct {
	Color  core.Vec3 // Sum of weight * radiance
	Weight float64   // Sum of weights
}

// Value returns the weighted mean color, black when nothing landed here
func (p Pixel) Value() core.Vec3 {
	if p.Weight <= 0 {
		return core.Vec3{}
	}
	return p.Color.Multiply(1 / p.Weight)
}

// SampledImage is the progressive accumulation buffer. Each sample is
// spread over the four nearest pixel centers with bilinear weights.
// All access goes through one mutex.
type SampledImage struct {
	mu       sync.Mutex
	width    int
	height   int
	pixels   []Pixel
	samples  int64
	rejected int64
}

// NewSampledImage creates a black image of the given size
func NewSampledImage(width, height int) *SampledImage {
	width, height = max(width, 0), max(height, 0)
	return &SampledImage{
		width:  width,
		height: height,
		pixels: make([]Pixel, width*height),
	}
}

// Resolution returns the image size in pixels
func (im *SampledImage) Resolution() (int, int) {
	return im.width, im.height
}

// AddSample splats a single sample
func (im *SampledImage) AddSample(s Sample) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.splatLocked(s)
}

// Splat adds every sample in the bucket under a single lock
func (im *SampledImage) Splat(b *Bucket) {
	im.mu.Lock()
	defer im.mu.Unlock()
	for _, s := range b.Samples() {
		im.splatLocked(s)
	}
}

func (im *SampledImage) splatLocked(s Sample) {
	if im.width == 0 || im.height == 0 {
		return
	}
	if !s.Color.IsFinite() || math.IsNaN(s.X) || math.IsNaN(s.Y) {
		im.rejected++
		return
	}

	// Pixel centers sit at i+0.5
	fx := s.X - 0.5
	fy := s.Y - 0.5
	x0 := math.Floor(fx)
	y0 := math.Floor(fy)
	tx := fx - x0
	ty := fy - y0

	ix0, ix1 := im.clampX(int(x0)), im.clampX(int(x0)+1)
	iy0, iy1 := im.clampY(int(y0)), im.clampY(int(y0)+1)

	im.accumulate(ix0, iy0, s.Color, (1-tx)*(1-ty))
	im.accumulate(ix1, iy0, s.Color, tx*(1-ty))
	im.accumulate(ix0, iy1, s.Color, (1-tx)*ty)
	im.accumulate(ix1, iy1, s.Color, tx*ty)
	im.samples++
}

func (im *SampledImage) accumulate(x, y int, c core.Vec3, w float64) {
	if w <= 0 {
		return
	}
	p := &im.pixels[y*im.width+x]
	p.Color = p.Color.Add(c.Multiply(w))
	p.Weight += w
}

func (im *SampledImage) clampX(x int) int { return min(max(x, 0), im.width-1) }
func (im *SampledImage) clampY(y int) int { return min(max(y, 0), im.height-1) }

// Pixel returns the accumulator at (x, y)
func (im *SampledImage) Pixel(x, y int) Pixel {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.pixels[y*im.width+x]
}

// Samples returns how many samples have been splatted
func (im *SampledImage) Samples() int64 {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.samples
}

// Rejected returns how many non-finite samples were dropped
func (im *SampledImage) Rejected() int64 {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.rejected
}

// Snapshot resolves the accumulation buffer into a displayable image
func (im *SampledImage) Snapshot() *image.RGBA {
	im.mu.Lock()
	defer im.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, im.width, im.height))
	for y := 0; y < im.height; y++ {
		for x := 0; x < im.width; x++ {
			img.SetRGBA(x, y, vec3ToColor(im.pixels[y*im.width+x].Value()))
		}
	}
	return img
}

// vec3ToColor converts a Vec3 color to RGBA with proper clamping and gamma correction
func vec3ToColor(colorVec core.Vec3) color.RGBA {
	// Apply gamma correction (gamma = 2.0)
	colorVec = colorVec.GammaCorrect(2.0)

	// Clamp to valid color range
	colorVec = colorVec.Clamp(0.0, 1.0)

	return color.RGBA{
		R: uint8(255 * colorVec.X),
		G: uint8(255 * colorVec.Y),
		B: uint8(255 * colorVec.Z),
		A: 255,
	}
}
