package ports

// ArtifactStore is the flat directory of cached audio files as the workers
// see it. Implementations validate names against escapes; domain.ErrNotFound
// and domain.ErrUnsafeName are the sentinel failures.
type ArtifactStore interface {
	Exists(name string) bool
	Size(name string) (int64, error)
	Remove(name string) error
	Rename(srcPath, name string) (string, error)
	TempBase(stem string) (string, error)
	TotalSize() (int64, error)
}
