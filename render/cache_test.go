package render

import "testing"

func testTile(fileID string, start, count, nMels int, p AnalysisParams) *Tile {
	return &Tile{
		Key:  TileKey{FileID: fileID, Start: start, Count: count, Params: p},
		Data: make([]float32, count*nMels),
	}
}

func TestTileCachePutGet(t *testing.T) {
	p := DefaultAnalysisParams(32000)
	c := NewTileCache(0)

	tile := testTile("a", 0, 8, 4, p)
	c.Put(tile)

	if !c.Has(tile.Key) {
		t.Fatal("Has should report the inserted tile")
	}
	got, ok := c.Get(tile.Key)
	if !ok {
		t.Fatal("Get missed the inserted tile")
	}
	if &got.Data[0] != &tile.Data[0] {
		t.Fatal("Get should return the stored tile")
	}

	other := TileKey{FileID: "a", Start: 8, Count: 8, Params: p}
	if c.Has(other) {
		t.Fatal("Has reported a tile that was never inserted")
	}
}

func TestTileCacheKeyIncludesParams(t *testing.T) {
	p := DefaultAnalysisParams(32000)
	c := NewTileCache(0)
	c.Put(testTile("a", 0, 8, 4, p))

	q := p
	q.NMels = 64
	if c.Has(TileKey{FileID: "a", Start: 0, Count: 8, Params: q}) {
		t.Fatal("cache hit across different analysis params")
	}
}

func TestTileCacheLRUEviction(t *testing.T) {
	p := DefaultAnalysisParams(32000)
	// room for exactly two 8x4 tiles
	c := NewTileCache(64)

	t0 := testTile("a", 0, 8, 4, p)
	t1 := testTile("a", 8, 8, 4, p)
	t2 := testTile("a", 16, 8, 4, p)

	c.Put(t0)
	c.Put(t1)

	// refresh t0 so t1 becomes the eviction candidate
	if _, ok := c.Get(t0.Key); !ok {
		t.Fatal("t0 missing before eviction")
	}

	c.Put(t2)

	if c.Has(t1.Key) {
		t.Fatal("least recently used tile survived eviction")
	}
	if !c.Has(t0.Key) || !c.Has(t2.Key) {
		t.Fatal("wrong tile evicted")
	}
	if c.Size() > 64 {
		t.Fatalf("cache size %d exceeds capacity", c.Size())
	}
}

func TestTileCacheUnbounded(t *testing.T) {
	p := DefaultAnalysisParams(32000)
	c := NewTileCache(0)

	for i := 0; i < 100; i++ {
		c.Put(testTile("a", i*8, 8, 4, p))
	}
	if c.Len() != 100 {
		t.Fatalf("unbounded cache evicted: len=%d", c.Len())
	}
}
