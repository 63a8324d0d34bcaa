package ports

// Events receives notifications from the fetch and eviction workers so the
// transport layer can push them to subscribers. Implementations must not
// block; workers call these inline.
type Events interface {
	TrackCached(query, fileName string)
	TrackError(query string)
	CacheEvicted(files int, freedBytes int64)
}
