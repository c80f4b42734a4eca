package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// episodeLocks hands out one lock file per episode so that two workers, in
// this process or another daemon sharing the data directory, never run the
// same episode at once.
type episodeLocks struct {
	dir string
}

func newEpisodeLocks(dir string) *episodeLocks {
	return &episodeLocks{dir: dir}
}

// TryAcquire takes the episode's lock without blocking. The returned release
// func is nil when the lock is held elsewhere.
func (l *episodeLocks) TryAcquire(id string) (func(), error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(l.dir, id+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock episode %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return func() { _ = lock.Unlock() }, nil
}
