package render

import (
	"fmt"

	"github.com/RyanBlaney/sonido-scope/logging"
)

// Primitive is the spectral computation boundary: one dB mel vector per
// analysis frame for the given sample slice. Implementations must be pure in
// the sense that a frame's output depends only on the samples under its own
// window, so separately computed segments can be stitched without seams.
type Primitive interface {
	MelSpectrogramDB(samples []float32, p AnalysisParams) ([][]float32, error)
}

// PrimitiveFunc adapts a plain function to the Primitive interface
type PrimitiveFunc func(samples []float32, p AnalysisParams) ([][]float32, error)

func (f PrimitiveFunc) MelSpectrogramDB(samples []float32, p AnalysisParams) ([][]float32, error) {
	return f(samples, p)
}

// tileRange is one tile's frame span before it gets a cache key
type tileRange struct {
	start int
	count int
}

// Assembler turns a requested time window into a flattened mel buffer,
// computing only the tiles the cache does not already hold. Contiguous
// missing tiles are batched into a single primitive invocation.
type Assembler struct {
	store     *SampleStore
	cache     *TileCache
	prim      Primitive
	gridAlign bool
	logger    logging.Logger
}

// NewAssembler wires the assembler to its collaborators. With gridAlign set,
// tile starts snap down to multiples of TileFrames so overlapping windows at
// different offsets share cache entries; without it tiles are keyed by the
// exact requested start frame, matching the historical behavior.
func NewAssembler(store *SampleStore, cache *TileCache, prim Primitive, gridAlign bool) *Assembler {
	return &Assembler{
		store:     store,
		cache:     cache,
		prim:      prim,
		gridAlign: gridAlign,
		logger:    logging.WithFields(logging.Fields{"component": "assembler"}),
	}
}

// AssembleWindow resolves the window [t0, t0+duration) to a frame range and
// returns the flattened mel buffer (frames x NMels, frame-major) plus the
// frame count. A window past the end of the audio returns (nil, 0, nil);
// the caller renders a degenerate placeholder for it.
func (a *Assembler) AssembleWindow(fileID string, t0, duration float64, p AnalysisParams) ([]float32, int, error) {
	buf, err := a.store.Get(fileID)
	if err != nil {
		return nil, 0, err
	}

	framesPerSecond := float64(p.SampleRate) / float64(p.HopLength)
	f0 := int(t0 * framesPerSecond)
	total := int(duration * framesPerSecond)
	if total < 1 {
		total = 1
	}

	// last frame whose full window still fits in the buffer
	if len(buf.Samples) < p.NFFT {
		return nil, 0, nil
	}
	maxFrame := (len(buf.Samples) - p.NFFT) / p.HopLength
	if f0 > maxFrame {
		return nil, 0, nil
	}

	f1 := f0 + total - 1
	if f1 > maxFrame {
		f1 = maxFrame
		total = f1 - f0 + 1
	}

	tileStart, last := f0, f1
	if a.gridAlign {
		// Snap to the tile grid and round the covered range up to whole
		// tiles (clamped at EOF) so scrolled windows share cache entries.
		tileStart = (f0 / TileFrames) * TileFrames
		last = (f1/TileFrames+1)*TileFrames - 1
		if last > maxFrame {
			last = maxFrame
		}
	}

	tiles := partitionTiles(tileStart, last)

	// Collect hits up front so a later eviction cannot invalidate them,
	// then batch the misses into contiguous segments.
	local := make(map[int][]float32, len(tiles))
	var missing []tileRange
	for _, tr := range tiles {
		key := TileKey{FileID: fileID, Start: tr.start, Count: tr.count, Params: p}
		if tile, ok := a.cache.Get(key); ok {
			local[tr.start] = tile.Data
		} else {
			missing = append(missing, tr)
		}
	}

	for _, seg := range groupSegments(missing) {
		if err := a.fillSegment(buf, fileID, seg, p, local); err != nil {
			return nil, 0, err
		}
	}

	a.logger.Debug("assembled window", logging.Fields{
		"file_id": fileID,
		"f0":      f0,
		"frames":  total,
		"tiles":   len(tiles),
		"misses":  len(missing),
	})

	// Concatenate the covered range, trimming tile frames outside [f0, f1]
	out := make([]float32, 0, total*p.NMels)
	for _, tr := range tiles {
		data := local[tr.start]
		lo := 0
		if tr.start < f0 {
			lo = f0 - tr.start
		}
		hi := tr.count
		if tr.start+tr.count-1 > f1 {
			hi = f1 - tr.start + 1
		}
		out = append(out, data[lo*p.NMels:hi*p.NMels]...)
	}

	return out, total, nil
}

// partitionTiles splits [start, last] into TileFrames-wide ranges, the final
// one possibly shorter
func partitionTiles(start, last int) []tileRange {
	var tiles []tileRange
	for s := start; s <= last; s += TileFrames {
		c := TileFrames
		if s+c-1 > last {
			c = last - s + 1
		}
		tiles = append(tiles, tileRange{start: s, count: c})
	}
	return tiles
}

// groupSegments merges frame-adjacent missing tiles into maximal contiguous
// runs so each run costs exactly one primitive invocation
func groupSegments(missing []tileRange) [][]tileRange {
	var segments [][]tileRange
	for _, tr := range missing {
		n := len(segments)
		if n > 0 {
			lastSeg := segments[n-1]
			prev := lastSeg[len(lastSeg)-1]
			if prev.start+prev.count == tr.start {
				segments[n-1] = append(lastSeg, tr)
				continue
			}
		}
		segments = append(segments, []tileRange{tr})
	}
	return segments
}

// fillSegment computes one contiguous run of missing tiles with a single
// primitive call and commits each tile to the cache. The PCM slice is padded
// on both sides to keep the windowing function away from the segment edges;
// the pad is rounded down to a hop multiple so the surviving frames land on
// exactly the same sample offsets as an un-tiled computation.
func (a *Assembler) fillSegment(buf *SampleBuffer, fileID string, seg []tileRange, p AnalysisParams, local map[int][]float32) error {
	first := seg[0]
	lastTile := seg[len(seg)-1]
	segStart := first.start
	segFrames := lastTile.start + lastTile.count - segStart

	firstSample := segStart * p.HopLength
	lastSampleEnd := (segStart+segFrames-1)*p.HopLength + p.NFFT

	pad := p.NFFT
	if pad > firstSample {
		pad = firstSample
	}
	pad -= pad % p.HopLength

	sliceStart := firstSample - pad
	sliceEnd := lastSampleEnd + p.NFFT
	if sliceEnd > len(buf.Samples) {
		sliceEnd = len(buf.Samples)
	}

	rows, err := a.prim.MelSpectrogramDB(buf.Samples[sliceStart:sliceEnd], p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrimitiveFailure, err)
	}

	skip := pad / p.HopLength
	if len(rows) < skip+segFrames {
		return fmt.Errorf("%w: got %d frames, need %d", ErrPrimitiveFailure, len(rows), skip+segFrames)
	}
	usable := rows[skip : skip+segFrames]

	for _, tr := range seg {
		data := make([]float32, 0, tr.count*p.NMels)
		for f := 0; f < tr.count; f++ {
			data = append(data, usable[tr.start-segStart+f]...)
		}
		tile := &Tile{
			Key:  TileKey{FileID: fileID, Start: tr.start, Count: tr.count, Params: p},
			Data: data,
		}
		a.cache.Put(tile)
		local[tr.start] = data
	}

	return nil
}
