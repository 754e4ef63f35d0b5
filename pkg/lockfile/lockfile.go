// Package lockfile is the advisory build lock: a marker file the producer holds
// while it writes the manifest and handoff file. Presence means "build in
// progress"; content is ignored and no flock is taken.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/poll"
)

// ErrHeld is returned by Acquire when another writer holds the lock.
var ErrHeld = errors.New("lockfile: lock is held")

// Held reports whether the lock file exists. An empty path never holds.
func Held(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// WaitReleased returns as soon as the lock file is absent, re-checking every
// interval. It has no timeout of its own: deadline is the caller's overall wait
// budget, and poll.ErrDeadline is returned when it passes.
func WaitReleased(ctx context.Context, path string, interval time.Duration, deadline time.Time) error {
	return poll.Until(ctx, interval, deadline, func(context.Context) (bool, error) {
		return !Held(path), nil
	})
}

// Lock is a held lock file. Producers (and tests standing in for one) use it.
type Lock struct {
	path string
}

// Acquire creates the lock file exclusively.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrHeld, path)
	}
	if err != nil {
		return nil, err
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Releasing twice is harmless.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Lock) Path() string { return l.path }
