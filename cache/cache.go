// Package cache models a set-associative cache with LRU replacement and
// write-back dirty accounting. The model tracks tag state only; it holds
// no data and produces the per-access facts a replay driver needs to
// count hits, misses, evictions, and dirty bytes.
package cache

const addrBits = 64

// A Block is the information that is associated with one cache line.
type Block struct {
	Tag      uint64
	SetID    int
	WayID    int
	IsValid  bool
	IsDirty  bool
	LastUsed uint64
}

// A Set is a list of blocks where a certain piece of memory can be
// stored. Recency among the blocks is carried by their LastUsed
// timestamps rather than by block order.
type Set struct {
	Blocks []*Block
}

// A Cache tracks which memory blocks are resident in each set and
// whether they have been written since being filled.
type Cache struct {
	SetBits   int
	NumWays   int
	BlockBits int

	NumSets   int
	BlockSize uint64

	Sets []Set

	victimFinder VictimFinder
}

// New returns a cache with 2^setBits sets of numWays blocks each and
// 2^blockBits bytes per block. It panics when numWays < 1 or when the
// set and offset fields together exceed the 64-bit address width.
func New(setBits, numWays, blockBits int) *Cache {
	if setBits < 0 || blockBits < 0 {
		panic("cache: set and offset field widths must be non-negative")
	}

	if numWays < 1 {
		panic("cache: associativity must be at least 1")
	}

	if setBits+blockBits > addrBits {
		panic("cache: set and offset fields exceed the address width")
	}

	c := &Cache{
		SetBits:      setBits,
		NumWays:      numWays,
		BlockBits:    blockBits,
		NumSets:      1 << setBits,
		BlockSize:    1 << blockBits,
		victimFinder: NewLRUVictimFinder(),
	}

	c.Reset()

	return c
}

// Reset marks every block in the cache invalid and clean.
func (c *Cache) Reset() {
	c.Sets = make([]Set, c.NumSets)
	for i := range c.Sets {
		blocks := make([]*Block, c.NumWays)
		for j := range blocks {
			blocks[j] = &Block{SetID: i, WayID: j}
		}

		c.Sets[i].Blocks = blocks
	}
}

// TotalSize returns the maximum number of bytes the cache can hold.
func (c *Cache) TotalSize() uint64 {
	return uint64(c.NumSets) * uint64(c.NumWays) * c.BlockSize
}

// Decompose splits an address into its tag and set index. The low
// BlockBits bits are the block offset and play no role in placement.
func (c *Cache) Decompose(addr uint64) (tag uint64, setID int) {
	tag = addr >> (c.SetBits + c.BlockBits)

	// A zero-width set field always selects set 0. Computing it with
	// shift arithmetic is not well-defined when the offset field spans
	// the whole address.
	if c.SetBits == 0 {
		return tag, 0
	}

	setID = int((addr >> c.BlockBits) & uint64(c.NumSets-1))

	return tag, setID
}

// A Result reports what one access did to the cache. Exactly one of Hit
// and Miss is set per access; Eviction can accompany a miss. BecameDirty
// and EvictedDirty report whole-block dirty transitions and leave the
// byte accounting to the caller.
type Result struct {
	Hit          bool
	Miss         bool
	Eviction     bool
	BecameDirty  bool
	EvictedDirty bool
}

// Access performs one load or store at addr. now is the logical time of
// the access and must strictly increase across calls for the LRU
// ordering to hold.
func (c *Cache) Access(addr uint64, store bool, now uint64) Result {
	tag, setID := c.Decompose(addr)
	set := &c.Sets[setID]

	for _, block := range set.Blocks {
		if block.IsValid && block.Tag == tag {
			block.LastUsed = now

			res := Result{Hit: true}
			if store && !block.IsDirty {
				block.IsDirty = true
				res.BecameDirty = true
			}

			return res
		}
	}

	res := Result{Miss: true}

	victim := c.victimFinder.FindVictim(set)
	if victim.IsValid {
		res.Eviction = true

		if victim.IsDirty {
			victim.IsDirty = false
			res.EvictedDirty = true
		}
	}

	victim.IsValid = true
	victim.Tag = tag
	victim.LastUsed = now

	// A freshly filled or evicted block cannot already be dirty, so a
	// store always marks it here.
	if store {
		victim.IsDirty = true
		res.BecameDirty = true
	}

	return res
}

// DirtyBlockCount returns the number of valid blocks whose data has been
// written since being filled.
func (c *Cache) DirtyBlockCount() int {
	count := 0
	for i := range c.Sets {
		for _, block := range c.Sets[i].Blocks {
			if block.IsValid && block.IsDirty {
				count++
			}
		}
	}

	return count
}
