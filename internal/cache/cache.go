package cache

// Cache is a generic bounded cache. It is an explicit object passed by
// reference to whoever needs read-side caching, never a process-wide
// singleton.
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}
