package usecase

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trackcache/internal/domain"
)

// fakeTrackRepo mirrors the compare-and-set behavior of the SQL store in
// memory. The mutex matters: the resolve tests race real goroutines against
// it and count how many observe each transition.
type fakeTrackRepo struct {
	mu   sync.Mutex
	rows map[string]domain.TrackRecord

	// casLose forces every CAS transition to report lost without mutating,
	// standing in for a concurrent caller that got there first.
	casLose bool

	getErr        error
	insertErr     error
	resetErr      error
	retryErr      error
	markCachedErr error
	markErrorErr  error
	touchErr      error
	listErr       error
	deleteErr     error

	insertCalled     int
	resetCalled      int
	retryCalled      int
	markCachedCalled int
	markErrorCalled  int
	touchCalled      int
	deleteCalled     int
	deletedNames     []string
}

func newFakeTrackRepo() *fakeTrackRepo {
	return &fakeTrackRepo{rows: make(map[string]domain.TrackRecord)}
}

func (f *fakeTrackRepo) put(rec domain.TrackRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[rec.SearchQuery] = rec
}

func (f *fakeTrackRepo) row(query string) (domain.TrackRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[query]
	return rec, ok
}

func (f *fakeTrackRepo) Get(ctx context.Context, query string) (domain.TrackRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.TrackRecord{}, f.getErr
	}
	rec, ok := f.rows[query]
	if !ok {
		return domain.TrackRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeTrackRepo) TryInsertCaching(ctx context.Context, query string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalled++
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if f.casLose {
		return false, nil
	}
	if _, ok := f.rows[query]; ok {
		return false, nil
	}
	now := time.Now()
	f.rows[query] = domain.TrackRecord{
		SearchQuery:    query,
		Status:         domain.TrackCaching,
		CachedAt:       now,
		LastAccessedAt: now,
	}
	return true, nil
}

func (f *fakeTrackRepo) ResetToCaching(ctx context.Context, query string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalled++
	if f.resetErr != nil {
		return false, f.resetErr
	}
	if f.casLose {
		return false, nil
	}
	rec, ok := f.rows[query]
	if !ok || rec.Status != domain.TrackCached {
		return false, nil
	}
	rec.Status = domain.TrackCaching
	rec.FileName = ""
	f.rows[query] = rec
	return true, nil
}

func (f *fakeTrackRepo) RetryFromError(ctx context.Context, query string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryCalled++
	if f.retryErr != nil {
		return false, f.retryErr
	}
	if f.casLose {
		return false, nil
	}
	rec, ok := f.rows[query]
	if !ok || rec.Status != domain.TrackError {
		return false, nil
	}
	rec.Status = domain.TrackCaching
	rec.FileName = ""
	f.rows[query] = rec
	return true, nil
}

func (f *fakeTrackRepo) MarkCached(ctx context.Context, query, fileName string, tags domain.TrackTags, duration float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCachedCalled++
	if f.markCachedErr != nil {
		return f.markCachedErr
	}
	rec, ok := f.rows[query]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = domain.TrackCached
	rec.FileName = fileName
	rec.Title = tags.Title
	rec.Artist = tags.Artist
	rec.Album = tags.Album
	rec.Duration = duration
	rec.CachedAt = time.Now()
	rec.LastAccessedAt = time.Now()
	f.rows[query] = rec
	return nil
}

func (f *fakeTrackRepo) MarkError(ctx context.Context, query string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markErrorCalled++
	if f.markErrorErr != nil {
		return f.markErrorErr
	}
	rec, ok := f.rows[query]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = domain.TrackError
	f.rows[query] = rec
	return nil
}

func (f *fakeTrackRepo) Touch(ctx context.Context, fileName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touchCalled++
	if f.touchErr != nil {
		return f.touchErr
	}
	for query, rec := range f.rows {
		if rec.FileName == fileName {
			rec.LastAccessedAt = time.Now()
			f.rows[query] = rec
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeTrackRepo) ListCachedLRU(ctx context.Context) ([]domain.TrackRecord, error) {
	return f.listCached(func(a, b domain.TrackRecord) bool {
		return a.LastAccessedAt.Before(b.LastAccessedAt)
	})
}

func (f *fakeTrackRepo) ListCachedByRecency(ctx context.Context) ([]domain.TrackRecord, error) {
	return f.listCached(func(a, b domain.TrackRecord) bool {
		return a.CachedAt.After(b.CachedAt)
	})
}

func (f *fakeTrackRepo) listCached(less func(a, b domain.TrackRecord) bool) ([]domain.TrackRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var result []domain.TrackRecord
	for _, rec := range f.rows {
		if rec.Status == domain.TrackCached {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result, nil
}

func (f *fakeTrackRepo) DeleteByFileName(ctx context.Context, fileName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalled++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for query, rec := range f.rows {
		if rec.FileName == fileName {
			delete(f.rows, query)
			f.deletedNames = append(f.deletedNames, fileName)
			return nil
		}
	}
	return domain.ErrNotFound
}

// fakeArtifacts is an in-memory ArtifactStore tracking names and sizes.
type fakeArtifacts struct {
	mu    sync.Mutex
	files map[string]int64

	removeErr    error
	totalErr     error
	removeCalled int
	removed      []string
}

func newFakeArtifacts(files map[string]int64) *fakeArtifacts {
	f := &fakeArtifacts{files: make(map[string]int64)}
	for name, size := range files {
		f.files[name] = size
	}
	return f
}

func (f *fakeArtifacts) Exists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[name]
	return ok
}

func (f *fakeArtifacts) Size(name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.files[name]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return size, nil
}

func (f *fakeArtifacts) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalled++
	if f.removeErr != nil {
		return f.removeErr
	}
	if _, ok := f.files[name]; !ok {
		return domain.ErrNotFound
	}
	delete(f.files, name)
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeArtifacts) Rename(srcPath, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.files[srcPath]
	if !ok {
		return "", domain.ErrNotFound
	}
	delete(f.files, srcPath)
	f.files[name] = size
	return name, nil
}

func (f *fakeArtifacts) TempBase(stem string) (string, error) {
	return stem, nil
}

func (f *fakeArtifacts) TotalSize() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.totalErr != nil {
		return 0, f.totalErr
	}
	var total int64
	for _, size := range f.files {
		total += size
	}
	return total, nil
}

type fakeDispatcher struct {
	mu      sync.Mutex
	called  int
	queries []domain.TrackQuery
}

func (d *fakeDispatcher) Dispatch(query domain.TrackQuery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.called++
	d.queries = append(d.queries, query)
}

type fakeEvents struct {
	mu            sync.Mutex
	cachedCalled  int
	cachedQuery   string
	cachedFile    string
	errorCalled   int
	errorQuery    string
	evictedCalled int
	evictedFiles  int
	evictedBytes  int64
}

func (e *fakeEvents) TrackCached(query, fileName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cachedCalled++
	e.cachedQuery = query
	e.cachedFile = fileName
}

func (e *fakeEvents) TrackError(query string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorCalled++
	e.errorQuery = query
}

func (e *fakeEvents) CacheEvicted(files int, freedBytes int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evictedCalled++
	e.evictedFiles = files
	e.evictedBytes = freedBytes
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
