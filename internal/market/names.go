package market

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// NameCache remembers itemID → display name mappings observed in listings
// and top-5 rankings, so grouped results can show a resolved name even when
// a row only carried the numeric ID.
type NameCache struct {
	cache *lru.Cache[int, string]
}

// NewNameCache creates a name cache holding up to size entries
func NewNameCache(size int) (*NameCache, error) {
	cache, err := lru.New[int, string](size)
	if err != nil {
		return nil, err
	}
	return &NameCache{cache: cache}, nil
}

// Learn records a name for an item ID
func (n *NameCache) Learn(itemID int, name string) {
	if itemID <= 0 || name == "" {
		return
	}
	n.cache.Add(itemID, name)
}

// Resolve returns the known name for an item ID
func (n *NameCache) Resolve(itemID int) (string, bool) {
	if itemID <= 0 {
		return "", false
	}
	return n.cache.Get(itemID)
}

// Len returns the number of cached names
func (n *NameCache) Len() int {
	return n.cache.Len()
}
