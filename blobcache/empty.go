package blobcache

// An EmptyCache always misses. It contains nothing and saves nothing.
type EmptyCache struct{}

var _ Cache = EmptyCache{}

// Get always returns a cache miss.
func (EmptyCache) Get(id string) ([]byte, string, int64, bool) {
	return nil, "", 0, false
}

// Put discards its input.
func (EmptyCache) Put(id string, data []byte, typ string, version int64) error {
	return nil
}

// Remove does nothing.
func (EmptyCache) Remove(id string) error {
	return nil
}
