package voxel

import (
	"fmt"
	"sync"

	"voxelcam.ai/internal/worldstate"
)

// Encodings accepted by SetChunk.
const (
	EncodingPAL16 = "PAL16_U16LE_YZX"
	EncodingRLE   = "RLE"
)

type chunkKey struct{ cx, cz int }

// Cell is a chunk-local block update.
type Cell struct {
	X, Y, Z int
	Block   uint16
}

// Cache holds decoded chunks. It is written by the feed reader and queried by
// the camera, so every method locks.
type Cache struct {
	mu     sync.RWMutex
	sx, sz int
	height int
	solid  []bool
	chunks map[chunkKey][]uint16
}

func NewCache() *Cache {
	return &Cache{chunks: map[chunkKey][]uint16{}}
}

// Configure sets the world layout and which palette entries are solid. It
// drops every cached chunk.
func (c *Cache) Configure(sizeX, sizeZ, height int, palette, solidBlocks []string) error {
	if sizeX <= 0 || sizeZ <= 0 || height <= 0 {
		return fmt.Errorf("bad chunk layout %dx%dx%d", sizeX, sizeZ, height)
	}
	solidSet := make(map[string]struct{}, len(solidBlocks))
	for _, name := range solidBlocks {
		solidSet[name] = struct{}{}
	}
	solid := make([]bool, len(palette))
	for i, name := range palette {
		_, solid[i] = solidSet[name]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sx, c.sz, c.height = sizeX, sizeZ, height
	c.solid = solid
	c.chunks = map[chunkKey][]uint16{}
	return nil
}

func (c *Cache) chunkLen() int { return c.sx * c.sz * c.height }

// SetChunk replaces one chunk from its encoded payload.
func (c *Cache) SetChunk(cx, cz int, encoding, data string) error {
	c.mu.RLock()
	want := c.chunkLen()
	c.mu.RUnlock()
	if want == 0 {
		return fmt.Errorf("chunk %d,%d before world layout", cx, cz)
	}

	var ids []uint16
	var err error
	switch encoding {
	case EncodingPAL16:
		ids, err = DecodePAL16(data)
	case EncodingRLE:
		ids, err = DecodeRLE(data, want)
	default:
		return fmt.Errorf("chunk %d,%d: unsupported encoding %q", cx, cz, encoding)
	}
	if err != nil {
		return fmt.Errorf("chunk %d,%d: %w", cx, cz, err)
	}
	if len(ids) != want {
		return fmt.Errorf("chunk %d,%d: %d ids, want %d", cx, cz, len(ids), want)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chunkLen() != want {
		return fmt.Errorf("chunk %d,%d: layout changed while decoding", cx, cz)
	}
	c.chunks[chunkKey{cx, cz}] = ids
	return nil
}

// Patch applies cell updates to a loaded chunk. Patches for chunks not in the
// cache are dropped; the next full chunk supersedes them.
func (c *Cache) Patch(cx, cz int, cells []Cell) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.chunks[chunkKey{cx, cz}]
	if !ok {
		return 0
	}
	n := 0
	for _, cell := range cells {
		if cell.X < 0 || cell.X >= c.sx || cell.Z < 0 || cell.Z >= c.sz || cell.Y < 0 || cell.Y >= c.height {
			continue
		}
		ids[c.index(cell.X, cell.Y, cell.Z)] = cell.Block
		n++
	}
	return n
}

func (c *Cache) Evict(cx, cz int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chunks, chunkKey{cx, cz})
}

// Loaded is the number of cached chunks.
func (c *Cache) Loaded() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

func (c *Cache) index(x, y, z int) int { return (y*c.sz+z)*c.sx + x }

// Solidity classifies a world block. Unloaded chunks and heights outside the
// world are Unknown.
func (c *Cache) Solidity(x, y, z int) worldstate.Solidity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sx == 0 || y < 0 || y >= c.height {
		return worldstate.Unknown
	}
	ids, ok := c.chunks[chunkKey{FloorDiv(x, c.sx), FloorDiv(z, c.sz)}]
	if !ok {
		return worldstate.Unknown
	}
	id := ids[c.index(Mod(x, c.sx), y, Mod(z, c.sz))]
	if int(id) < len(c.solid) && c.solid[id] {
		return worldstate.Solid
	}
	return worldstate.Empty
}

func (c *Cache) QuerySolid(p worldstate.Vec3) worldstate.Solidity {
	return c.Solidity(worldstate.BlockOf(p))
}
