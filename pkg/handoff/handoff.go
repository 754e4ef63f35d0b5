// Package handoff implements the consumer side of the build handoff file: a small
// JSON document the build tool (re)writes on every build telling us where the
// asset manifest lives and whether it is ready to read.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/codec"
	"github.com/joeydtaylor/steeze-assets/pkg/poll"
	"go.uber.org/zap"
)

// SchemaVersion is the handoff schema this consumer understands.
const SchemaVersion = "1.0.0"

// Record is the handoff file as written by the build tool.
type Record struct {
	SchemaVersion string          `json:"schemaVersion"`
	Valid         bool            `json:"valid"`
	AssetsFile    string          `json:"assetsFile"`
	IsDevMode     bool            `json:"isDevMode,omitempty"`
	DevServer     json.RawMessage `json:"webpackDev,omitempty"`
	PublicPath    *string         `json:"publicPath,omitempty"`

	// ManifestPath is AssetsFile made absolute against the handoff directory.
	ManifestPath string `json:"-"`
}

// CorruptPolicy decides what Poll does with a handoff file that exists but does
// not decode. A file read mid-write looks exactly like a corrupt one.
type CorruptPolicy int

const (
	// CorruptFatal surfaces ErrInvalidConfigParse on the first bad read.
	CorruptFatal CorruptPolicy = iota
	// CorruptRetry keeps polling until the file decodes or the deadline passes.
	CorruptRetry
)

func (p CorruptPolicy) String() string {
	if p == CorruptRetry {
		return "retry"
	}
	return "fatal"
}

// Protocol reads one fixed handoff location.
type Protocol struct {
	Path   string
	Policy CorruptPolicy
	Logger *zap.Logger
}

func (p *Protocol) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Locate returns the configured path, absolute. The location is configuration,
// never discovered.
func (p *Protocol) Locate() (string, error) {
	if p.Path == "" {
		return "", Wrap(ErrConfigNotFound, "", errors.New("no handoff path configured"))
	}
	abs, err := filepath.Abs(p.Path)
	if err != nil {
		return "", Wrap(ErrConfigNotFound, p.Path, err)
	}
	return abs, nil
}

// Read decodes the handoff file once. A missing file is reported as an error
// matching fs.ErrNotExist; undecodable content as ErrInvalidConfigParse.
func (p *Protocol) Read() (*Record, error) {
	path, err := p.Locate()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := codec.JSON.Unmarshal(b, &rec); err != nil {
		return nil, Wrap(ErrInvalidConfigParse, path, err)
	}
	rec.ManifestPath = manifestPath(path, rec.AssetsFile)
	return &rec, nil
}

// Poll re-reads the handoff file every interval until it exists and decodes, or
// the deadline passes (ErrConfigNotFound). Once noticeDelay has elapsed a single
// informational line is logged so long builds are not silent.
func (p *Protocol) Poll(ctx context.Context, interval time.Duration, deadline time.Time, noticeDelay time.Duration) (*Record, error) {
	start := time.Now()
	noticed := false
	var rec *Record

	err := poll.Until(ctx, interval, deadline, func(context.Context) (bool, error) {
		r, err := p.Read()
		switch {
		case err == nil:
			rec = r
			return true, nil
		case errors.Is(err, ErrInvalidConfigParse):
			if p.Policy != CorruptRetry {
				return false, err
			}
			p.log().Debug("handoff file not decodable yet, retrying", zap.String("path", p.Path), zap.Error(err))
		case errors.Is(err, fs.ErrNotExist):
		case errors.Is(err, ErrConfigNotFound):
			return false, err
		default:
			p.log().Debug("handoff file not readable yet", zap.String("path", p.Path), zap.Error(err))
		}
		if !noticed && noticeDelay > 0 && time.Since(start) >= noticeDelay {
			noticed = true
			p.log().Info("waiting for build to write asset handoff file",
				zap.String("path", p.Path),
				zap.Duration("waited", time.Since(start)),
			)
		}
		return false, nil
	})
	if errors.Is(err, poll.ErrDeadline) {
		return nil, Wrap(ErrConfigNotFound, p.Path, nil)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate compares the record's schema version with expected. handoffPath is
// the file rec was read from. Version skew is a configuration problem and is
// never retried.
func Validate(rec *Record, handoffPath, expected string) error {
	if rec == nil {
		return Wrap(ErrConfigNotFound, handoffPath, nil)
	}
	if rec.SchemaVersion != expected {
		return Wrap(ErrVersionMismatch, handoffPath, fmt.Errorf("config has %q, expected %q", rec.SchemaVersion, expected))
	}
	return nil
}

// ManifestPath returns where rec's manifest lives for a handoff file at handoffPath.
func ManifestPath(handoffPath string, rec *Record) string {
	if rec == nil {
		return ""
	}
	abs, err := filepath.Abs(handoffPath)
	if err != nil {
		abs = handoffPath
	}
	return manifestPath(abs, rec.AssetsFile)
}

func manifestPath(handoffPath, assetsFile string) string {
	if assetsFile == "" {
		return ""
	}
	if filepath.IsAbs(assetsFile) {
		return filepath.Clean(assetsFile)
	}
	return filepath.Join(filepath.Dir(handoffPath), filepath.FromSlash(assetsFile))
}
