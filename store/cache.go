package store

import lru "github.com/hashicorp/golang-lru"

// RevisionCache caches encoded records by revision. It is also used to avoid
// re-storing records, so a cache must not be shared between DBs with
// different Persists.
type RevisionCache interface {
	// Add adds a freshly-persisted record to the cache.
	Add(key, value interface{})
	// Contains indicates the record with the given revision has already been persisted.
	Contains(key interface{}) bool
	// Get retrieves the encoded record with the given revision, if cached.
	Get(key interface{}) (value interface{}, ok bool)
}

// NewRevisionCache creates a new ARC-based revision cache holding up to size
// records.
func NewRevisionCache(size int) RevisionCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}
