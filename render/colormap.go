package render

import "image/color"

// Colormap is a precomputed 256-entry RGBA lookup table. Alpha is always
// fully opaque; a display intensity index selects the color directly.
type Colormap [256]color.RGBA

// anchor is one control point of a palette, position in [0,1]
type anchor struct {
	pos     float64
	r, g, b uint8
}

// magma and viridis anchors sampled from the matplotlib perceptual palettes,
// dark to bright
var magmaAnchors = []anchor{
	{0.000, 0, 0, 4},
	{0.125, 28, 16, 68},
	{0.250, 79, 18, 123},
	{0.375, 129, 37, 129},
	{0.500, 181, 54, 122},
	{0.625, 229, 80, 100},
	{0.750, 251, 135, 97},
	{0.875, 254, 194, 135},
	{1.000, 252, 253, 191},
}

var viridisAnchors = []anchor{
	{0.000, 68, 1, 84},
	{0.125, 72, 40, 120},
	{0.250, 62, 74, 137},
	{0.375, 49, 104, 142},
	{0.500, 38, 130, 142},
	{0.625, 31, 158, 137},
	{0.750, 53, 183, 121},
	{0.875, 109, 205, 89},
	{1.000, 253, 231, 37},
}

var grayAnchors = []anchor{
	{0.000, 0, 0, 0},
	{1.000, 255, 255, 255},
}

var colormaps = map[string]*Colormap{
	"magma":   buildColormap(magmaAnchors),
	"viridis": buildColormap(viridisAnchors),
	"gray":    buildColormap(grayAnchors),
}

// LookupColormap returns the named palette, falling back to magma
func LookupColormap(name string) *Colormap {
	if cm, ok := colormaps[name]; ok {
		return cm
	}
	return colormaps["magma"]
}

// buildColormap interpolates anchor colors into a full 256-entry table
func buildColormap(anchors []anchor) *Colormap {
	var cm Colormap
	for i := range cm {
		pos := float64(i) / 255.0

		// find the surrounding anchor pair
		hi := 1
		for hi < len(anchors)-1 && anchors[hi].pos < pos {
			hi++
		}
		lo := hi - 1

		span := anchors[hi].pos - anchors[lo].pos
		frac := 0.0
		if span > 0 {
			frac = (pos - anchors[lo].pos) / span
		}

		cm[i] = color.RGBA{
			R: lerpChannel(anchors[lo].r, anchors[hi].r, frac),
			G: lerpChannel(anchors[lo].g, anchors[hi].g, frac),
			B: lerpChannel(anchors[lo].b, anchors[hi].b, frac),
			A: 255,
		}
	}
	return &cm
}

// lerpChannel linearly interpolates one 8-bit channel
func lerpChannel(a, b uint8, frac float64) uint8 {
	return uint8(float64(a) + frac*(float64(b)-float64(a)) + 0.5)
}
