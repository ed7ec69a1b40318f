package render

import (
	"container/list"

	"github.com/RyanBlaney/sonido-scope/logging"
)

// TileKey identifies one cached spectral tile. AnalysisParams is comparable,
// so the whole key can be used directly as a map key; display parameters are
// deliberately absent because they do not affect spectral values.
type TileKey struct {
	FileID string
	Start  int // first global frame covered by the tile
	Count  int // frames in the tile, <= TileFrames
	Params AnalysisParams
}

// Tile is an immutable cached block of mel-spectrogram output, flattened
// frame-major: Data[f*NMels+m] is mel bin m of frame Start+f.
type Tile struct {
	Key  TileKey
	Data []float32
}

// TileCache is a bounded LRU over spectral tiles. Capacity is counted in
// float32 values rather than entries so memory use stays tunable regardless
// of tile shape. Capacity <= 0 disables eviction (grow-only).
//
// The cache is only touched from the engine worker goroutine.
type TileCache struct {
	capacity int
	size     int
	entries  map[TileKey]*list.Element
	order    *list.List // front = most recently used
	logger   logging.Logger
}

// NewTileCache creates a cache holding at most capacity float32 values
func NewTileCache(capacity int) *TileCache {
	return &TileCache{
		capacity: capacity,
		entries:  make(map[TileKey]*list.Element),
		order:    list.New(),
		logger:   logging.WithFields(logging.Fields{"component": "tile_cache"}),
	}
}

// Has reports membership without refreshing recency
func (c *TileCache) Has(key TileKey) bool {
	_, ok := c.entries[key]
	return ok
}

// Get returns the tile for key and marks it most recently used
func (c *TileCache) Get(key TileKey) (*Tile, bool) {
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*Tile), true
}

// Put inserts a tile, evicting least recently used entries if the capacity
// is exceeded. A tile already present for the exact key is left untouched:
// tile content is immutable per key.
func (c *TileCache) Put(t *Tile) {
	if _, ok := c.entries[t.Key]; ok {
		return
	}

	el := c.order.PushFront(t)
	c.entries[t.Key] = el
	c.size += len(t.Data)

	if c.capacity <= 0 {
		return
	}
	for c.size > c.capacity && c.order.Len() > 1 {
		back := c.order.Back()
		evicted := back.Value.(*Tile)
		c.order.Remove(back)
		delete(c.entries, evicted.Key)
		c.size -= len(evicted.Data)
		c.logger.Debug("evicted tile", logging.Fields{
			"file_id": evicted.Key.FileID,
			"start":   evicted.Key.Start,
			"count":   evicted.Key.Count,
		})
	}
}

// Len returns the number of cached tiles
func (c *TileCache) Len() int {
	return c.order.Len()
}

// Size returns the number of cached float32 values
func (c *TileCache) Size() int {
	return c.size
}
