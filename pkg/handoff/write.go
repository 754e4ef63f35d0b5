package handoff

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/codec"
	"github.com/zeebo/blake3"
)

// Write replaces path with rec in one rename so a concurrent Read sees either the
// old or the new record. This is the producer side of the protocol; the consumer
// never writes the handoff file it watches.
func Write(path string, rec *Record) error {
	b, err := codec.JSON.Marshal(rec)
	if err != nil {
		return Wrap(ErrWriteFailure, path, err)
	}
	return writeAtomic(path, b)
}

// Remove deletes a stale handoff file unless keepExisting is set. A missing file
// is not an error.
func Remove(path string, keepExisting bool) error {
	if keepExisting {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Wrap(ErrWriteFailure, path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return Wrap(ErrWriteFailure, path, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return Wrap(ErrWriteFailure, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return Wrap(ErrWriteFailure, path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return Wrap(ErrWriteFailure, path, err)
	}
	return nil
}

// WriteFile is the atomic write used for derived artifacts.
func WriteFile(path string, b []byte) error { return writeAtomic(path, b) }

// Fingerprint identifies one version of the handoff file. Producers may rewrite the
// file within the mtime granularity, so the content digest is part of it.
type Fingerprint struct {
	ModTime time.Time
	Size    int64
	Sum     [32]byte
}

func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.ModTime.Equal(o.ModTime) && f.Size == o.Size && bytes.Equal(f.Sum[:], o.Sum[:])
}

// IsZero reports whether f was taken from a missing file.
func (f Fingerprint) IsZero() bool { return f.ModTime.IsZero() && f.Size == 0 }

// Fingerprint stats and hashes the handoff file. A missing file yields the zero
// Fingerprint and no error.
func (p *Protocol) Fingerprint() (Fingerprint, error) {
	path, err := p.Locate()
	if err != nil {
		return Fingerprint{}, err
	}
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fingerprint{}, nil
	}
	if err != nil {
		return Fingerprint{}, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fingerprint{}, nil
	}
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{ModTime: fi.ModTime(), Size: fi.Size(), Sum: blake3.Sum256(b)}, nil
}
