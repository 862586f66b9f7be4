package sampler

import (
	"container/list"
	"sync"

	"github.com/airbusgeo/godal"
)

// openTile holds a GDAL dataset kept open across samples.
type openTile struct {
	mu        sync.Mutex // per-tile lock for GDAL reads
	ds        *godal.Dataset
	transform *godal.Transform // WGS84 -> native, nil for geographic rasters
	gt        [6]float64
	band      godal.Band
	sizeX     int
	sizeY     int
	nodata    float64
	hasNodata bool
}

func (t *openTile) close() {
	if t == nil {
		return
	}
	if t.transform != nil {
		t.transform.Close()
	}
	if t.ds != nil {
		t.ds.Close()
	}
}

type cacheEntry struct {
	key   string
	tile  *openTile
	valid bool // false = known unreadable tile
}

// tileCache is a thread-safe LRU over open GDAL datasets. Bounded so a
// long-running server holds a predictable number of file handles.
type tileCache struct {
	maxSize int
	mu      sync.Mutex
	cache   map[string]*list.Element
	lru     *list.List
}

func newTileCache(maxSize int) *tileCache {
	return &tileCache{
		maxSize: maxSize,
		cache:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *tileCache) get(key string) (*openTile, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		return entry.tile, entry.valid, true
	}
	return nil, false, false
}

func (c *tileCache) put(key string, tile *openTile, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.tile.close()
		entry.tile = tile
		entry.valid = valid
		return
	}

	for c.lru.Len() >= c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*cacheEntry)
		entry.tile.close()
		delete(c.cache, entry.key)
		c.lru.Remove(oldest)
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, tile: tile, valid: valid})
	c.cache[key] = elem
}

func (c *tileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// closeAll releases every cached dataset. Called at engine shutdown.
func (c *tileCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		elem.Value.(*cacheEntry).tile.close()
	}
	c.cache = make(map[string]*list.Element)
	c.lru.Init()
}
