package render

import (
	"bytes"
	"fmt"
	"image/color"

	"github.com/fogleman/gg"
)

// RenderedImage is the finished product of one render request
type RenderedImage struct {
	PNG    []byte
	Width  int
	Height int
	Frames int
	NMels  int
}

// Rasterize maps a flattened mel buffer (frames x nMels, frame-major) onto a
// pixel buffer and encodes it as PNG. Pixel (x, y) shows frame x and mel bin
// nMels-1-y, so low frequencies render at the bottom. A window that resolved
// to zero frames produces a 1x1 placeholder rather than an error: an empty
// viewport is an expected state while scrolling.
func Rasterize(buf []float32, frames, nMels int, dp DisplayParams) (*RenderedImage, error) {
	if frames <= 0 || nMels <= 0 {
		return placeholderImage()
	}
	if len(buf) < frames*nMels {
		return nil, fmt.Errorf("mel buffer too short: %d values for %dx%d", len(buf), frames, nMels)
	}

	scale := computeScale(buf, dp)
	cm := LookupColormap(dp.Colormap)

	dc := gg.NewContext(frames, nMels)
	for x := 0; x < frames; x++ {
		row := buf[x*nMels : (x+1)*nMels]
		for m, v := range row {
			dc.SetColor(cm[scale.index(v, dp)])
			dc.SetPixel(x, nMels-1-m)
		}
	}

	var out bytes.Buffer
	if err := dc.EncodePNG(&out); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}

	return &RenderedImage{
		PNG:    out.Bytes(),
		Width:  frames,
		Height: nMels,
		Frames: frames,
		NMels:  nMels,
	}, nil
}

// placeholderImage is a 1x1 black PNG for degenerate windows
func placeholderImage() (*RenderedImage, error) {
	dc := gg.NewContext(1, 1)
	dc.SetColor(color.RGBA{A: 255})
	dc.SetPixel(0, 0)

	var out bytes.Buffer
	if err := dc.EncodePNG(&out); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}

	return &RenderedImage{PNG: out.Bytes(), Width: 1, Height: 1}, nil
}
