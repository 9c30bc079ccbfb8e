package cache

// A VictimFinder decides which block of a set should hold newly filled
// data.
type VictimFinder interface {
	FindVictim(set *Set) *Block
}

// LRUVictimFinder picks the least recently used block to evict.
type LRUVictimFinder struct {
}

// NewLRUVictimFinder returns a newly constructed LRU evictor.
func NewLRUVictimFinder() *LRUVictimFinder {
	return &LRUVictimFinder{}
}

// FindVictim returns the first invalid block in way order. When the set
// is full, it returns the valid block with the smallest timestamp,
// keeping the first one found on ties.
func (f *LRUVictimFinder) FindVictim(set *Set) *Block {
	var victim *Block

	for _, block := range set.Blocks {
		if !block.IsValid {
			return block
		}

		if victim == nil || block.LastUsed < victim.LastUsed {
			victim = block
		}
	}

	return victim
}
