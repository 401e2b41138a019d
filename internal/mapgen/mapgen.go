// Package mapgen generates procedural terrain from fractal value noise.
package mapgen

import (
	"time"

	"github.com/chewxy/math32"

	"scene-engine/internal/primitives"
	"scene-engine/internal/scene"
)

// minHeight keeps every cube tile visible.
const minHeight = 0.15

// HeightMapOptions controls procedural height map generation.
// Width/Depth are in tiles; TileSize is the world size of one tile on X/Z.
// HeightScale is the maximum height of the terrain in world units.
// Seed controls randomness; Seed == 0 uses a time-based seed.
// Octaves, Frequency, Lacunarity, and Gain control the fractal noise shape.
type HeightMapOptions struct {
	Width       int
	Depth       int
	TileSize    float32
	HeightScale float32

	Seed       int64
	Octaves    int
	Frequency  float32
	Lacunarity float32
	Gain       float32
}

// DefaultHeightMapOptions returns a sane default configuration.
func DefaultHeightMapOptions() HeightMapOptions {
	return HeightMapOptions{
		Width:       32,
		Depth:       32,
		TileSize:    1.0,
		HeightScale: 3.0,
		Octaves:     4,
		Frequency:   0.08,
		Lacunarity:  2.0,
		Gain:        0.5,
	}
}

// normalized fills unset options from the defaults and picks a seed.
func (o HeightMapOptions) normalized() HeightMapOptions {
	d := DefaultHeightMapOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Depth <= 0 {
		o.Depth = d.Depth
	}
	if o.TileSize <= 0 {
		o.TileSize = d.TileSize
	}
	if o.HeightScale <= 0 {
		o.HeightScale = d.HeightScale
	}
	if o.Octaves <= 0 {
		o.Octaves = d.Octaves
	}
	if o.Frequency <= 0 {
		o.Frequency = d.Frequency
	}
	if o.Lacunarity <= 0 {
		o.Lacunarity = d.Lacunarity
	}
	if o.Gain <= 0 {
		o.Gain = d.Gain
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

// Heights samples the noise field on a Width x Depth grid, row-major by z.
// Every value is in [0,1].
func Heights(opts HeightMapOptions) []float32 {
	opts = opts.normalized()
	out := make([]float32, 0, opts.Width*opts.Depth)
	for z := range opts.Depth {
		for x := range opts.Width {
			h := fractalValueNoise2D(float32(x)*opts.Frequency, float32(z)*opts.Frequency, opts.Seed, opts.Octaves, opts.Lacunarity, opts.Gain)
			if !isFinite(h) {
				h = 0
			}
			out = append(out, math32.Max(0, math32.Min(1, h)))
		}
	}
	return out
}

// HeightMapCubes builds a height map as a grid of static box entities sitting
// on Y=0 and centered on the origin. Each tile's height comes from the noise.
func HeightMapCubes(opts HeightMapOptions) []scene.Entity {
	opts = opts.normalized()
	heights := Heights(opts)

	half := opts.TileSize * 0.5
	startX := -float32(opts.Width)*half + half
	startZ := -float32(opts.Depth)*half + half

	out := make([]scene.Entity, 0, len(heights))
	for z := range opts.Depth {
		for x := range opts.Width {
			height := minHeight + heights[z*opts.Width+x]*(opts.HeightScale-minHeight)
			if !isFinite(height) || height <= 0 {
				height = minHeight
			}
			e := scene.NewEntity("")
			e.Position = scene.Triplet{startX + float32(x)*opts.TileSize, height * 0.5, startZ + float32(z)*opts.TileSize}
			e.Mesh = scene.BoxMesh{Width: opts.TileSize, Height: height, Depth: opts.TileSize}
			e.Collider = scene.BoxCollider{Size: scene.Triplet{opts.TileSize, height, opts.TileSize}}
			out = append(out, e)
		}
	}
	return out
}

// Terrain builds one deformed plane of Width x Depth vertices spanning
// Width*TileSize by Depth*TileSize, centered on the origin, with heights in
// [0, HeightScale]. At least a 2x2 grid is generated.
func Terrain(opts HeightMapOptions) primitives.Geometry {
	opts.Width = max(opts.Width, 2)
	opts.Depth = max(opts.Depth, 2)
	opts = opts.normalized()
	heights := Heights(opts)
	w, d := opts.Width, opts.Depth

	sizeX := float32(w) * opts.TileSize
	sizeZ := float32(d) * opts.TileSize
	stepX := sizeX / float32(w-1)
	stepZ := sizeZ / float32(d-1)
	y := func(x, z int) float32 {
		x = min(max(x, 0), w-1)
		z = min(max(z, 0), d-1)
		return heights[z*w+x] * opts.HeightScale
	}

	pos := make([]float32, 0, w*d*3)
	nrm := make([]float32, 0, w*d*3)
	uv := make([]float32, 0, w*d*2)
	for z := range d {
		for x := range w {
			pos = append(pos, -sizeX/2+float32(x)*stepX, y(x, z), -sizeZ/2+float32(z)*stepZ)
			// Central differences; the normal is (-dy/dx, 1, -dy/dz) normalized.
			dx := (y(x+1, z) - y(x-1, z)) / (2 * stepX)
			dz := (y(x, z+1) - y(x, z-1)) / (2 * stepZ)
			l := math32.Sqrt(dx*dx + 1 + dz*dz)
			nrm = append(nrm, -dx/l, 1/l, -dz/l)
			uv = append(uv, float32(x)/float32(w-1), float32(z)/float32(d-1))
		}
	}

	idx := make([]uint32, 0, (w-1)*(d-1)*6)
	for z := range d - 1 {
		for x := range w - 1 {
			a := uint32(z*w + x)
			b := a + 1
			c := a + uint32(w)
			e := c + 1
			idx = append(idx, a, c, b, b, c, e)
		}
	}
	return primitives.NewGeometry(pos, nrm, uv, idx)
}

// fractalValueNoise2D is simple fractal value noise: layered smooth value noise with
// configurable octaves, lacunarity, and gain. Output is in [0,1].
func fractalValueNoise2D(x, y float32, seed int64, octaves int, lacunarity, gain float32) float32 {
	var sum, maxAmp float32
	amplitude := float32(1)
	freq := float32(1)

	for i := range octaves {
		n := valueNoise2D(x*freq, y*freq, int32(seed)+int32(i))
		sum += n * amplitude
		maxAmp += amplitude
		amplitude *= gain
		freq *= lacunarity
	}
	if maxAmp == 0 {
		return 0
	}
	return sum / maxAmp
}

// valueNoise2D is smooth value noise in [0,1] using a hash-based lattice and cubic easing.
func valueNoise2D(x, y float32, seed int32) float32 {
	x0 := int32(math32.Floor(x))
	y0 := int32(math32.Floor(y))
	tx := x - float32(x0)
	ty := y - float32(y0)

	v00 := hash2D(x0, y0, seed)
	v10 := hash2D(x0+1, y0, seed)
	v01 := hash2D(x0, y0+1, seed)
	v11 := hash2D(x0+1, y0+1, seed)

	sx := smoothStep(tx)
	sy := smoothStep(ty)
	return lerp(lerp(v00, v10, sx), lerp(v01, v11, sx), sy)
}

// hash2D maps integer lattice coordinates to a deterministic pseudo-random float in [0,1].
func hash2D(x, y, seed int32) float32 {
	n := x*374761393 + y*668265263 + seed*362437
	n = (n ^ (n >> 13)) * 1274126177
	n = n ^ (n >> 16)
	const invMaxInt = 1.0 / 2147483647.0
	return float32(n&0x7fffffff) * float32(invMaxInt)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// smoothStep is Perlin-style cubic easing: 3t^2 - 2t^3.
func smoothStep(t float32) float32 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

func isFinite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}
