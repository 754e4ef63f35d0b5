package resolver

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/codec"
	"github.com/joeydtaylor/steeze-assets/pkg/handoff"
	"github.com/joeydtaylor/steeze-assets/pkg/lockfile"
	"github.com/joeydtaylor/steeze-assets/pkg/manifest"
	"github.com/joeydtaylor/steeze-assets/pkg/poll"
	"go.uber.org/zap"
)

// run is one attempt: discover the handoff file, wait out the build lock and
// an invalid record, then load the manifest. Every wait shares one deadline.
func (r *Resolver) run(ctx context.Context, a *Attempt) (*snapshot, error) {
	if !a.reload {
		if err := poll.Sleep(ctx, r.opts.StartDelay); err != nil {
			return nil, err
		}
	}
	deadline := time.Now().Add(r.opts.WaitConfigTimeout)

	r.setState(ctx, Discovering)
	notice := r.opts.InitialWaitingNoticeDelay
	var rec *handoff.Record
	for {
		var err error
		rec, err = r.proto.Poll(ctx, r.opts.PollConfigInterval, deadline, notice)
		if err != nil {
			return nil, err
		}
		notice = -1

		if lockfile.Held(r.opts.LockPath) {
			r.setState(ctx, WaitingForLock)
			r.log.Debug("build lock held, waiting", zap.String("lock", r.opts.LockPath))
			err := lockfile.WaitReleased(ctx, r.opts.LockPath, r.opts.LockFilePollInterval, deadline)
			if errors.Is(err, poll.ErrDeadline) {
				return nil, handoff.Wrap(handoff.ErrLockTimeout, r.opts.LockPath, nil)
			}
			if err != nil {
				return nil, err
			}
			// The producer may have rewritten the record while it held the lock.
			continue
		}
		if !rec.Valid {
			r.setState(ctx, WaitingForValidConfig)
			if err := r.waitValid(ctx, deadline); err != nil {
				return nil, err
			}
			continue
		}
		// Only an unlocked, valid record belongs to the build we will load.
		if err := handoff.Validate(rec, r.opts.HandoffPath, r.opts.ExpectedVersion); err != nil {
			return nil, err
		}
		break
	}

	r.setState(ctx, Loading)
	fp, err := r.proto.Fingerprint()
	if err != nil {
		r.log.Debug("handoff fingerprint failed", zap.Error(err))
	}
	m, err := load(rec)
	if err != nil {
		return nil, err
	}
	if r.opts.PostProcess != nil {
		if m = r.opts.PostProcess(m); m == nil {
			m = &manifest.Manifest{Marked: map[string]string{}}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &snapshot{
		manifest:    m,
		record:      rec,
		publicPath:  r.publicPath(rec),
		fingerprint: fp,
		loadedAt:    time.Now(),
	}
	r.snap.Store(snap)
	r.persist(snap)
	if r.opts.Watch {
		r.startWatch(ctx)
	}
	return snap, nil
}

// waitValid re-reads the record every ValidPollInterval until it turns valid
// or the build lock reappears; the caller re-checks both.
func (r *Resolver) waitValid(ctx context.Context, deadline time.Time) error {
	err := poll.Until(ctx, r.opts.ValidPollInterval, deadline, func(context.Context) (bool, error) {
		if lockfile.Held(r.opts.LockPath) {
			return true, nil
		}
		next, err := r.proto.Read()
		switch {
		case err == nil:
			return next.Valid, nil
		case errors.Is(err, fs.ErrNotExist):
			return false, nil
		case errors.Is(err, handoff.ErrInvalidConfigParse) && r.opts.CorruptPolicy == handoff.CorruptRetry:
			return false, nil
		default:
			return false, err
		}
	})
	if errors.Is(err, poll.ErrDeadline) {
		return handoff.Wrap(handoff.ErrInvalidConfigTimeout, r.opts.HandoffPath, nil)
	}
	return err
}

func load(rec *handoff.Record) (*manifest.Manifest, error) {
	if rec.ManifestPath == "" {
		return nil, handoff.Wrap(handoff.ErrAssetsFileMissing, "", errors.New("handoff record has no assetsFile"))
	}
	m, err := manifest.LoadFile(rec.ManifestPath)
	if err != nil {
		var pe *manifest.ParseError
		if errors.As(err, &pe) {
			return nil, handoff.Wrap(handoff.ErrAssetsFileInvalid, rec.ManifestPath, err)
		}
		return nil, handoff.Wrap(handoff.ErrAssetsFileMissing, rec.ManifestPath, err)
	}
	return m, nil
}

// publicPath picks the URL prefix: explicit override, then the record, then "/".
func (r *Resolver) publicPath(rec *handoff.Record) string {
	var p string
	switch {
	case r.opts.PublicPathOverride != nil:
		p = *r.opts.PublicPathOverride
	case rec.PublicPath != nil:
		p = *rec.PublicPath
	}
	if p == "" {
		return "/"
	}
	return p
}

type persisted struct {
	SchemaVersion string            `json:"schemaVersion"`
	ManifestPath  string            `json:"manifestPath"`
	PublicPath    string            `json:"publicPath"`
	IsDevMode     bool              `json:"isDevMode,omitempty"`
	LoadedAt      time.Time         `json:"loadedAt"`
	Marked        map[string]string `json:"marked"`
}

// persist writes the resolved snapshot for out-of-process consumers. Failure
// is logged and never affects the load.
func (r *Resolver) persist(s *snapshot) {
	if r.opts.SnapshotPath == "" {
		return
	}
	b, err := codec.JSONStrict.Marshal(persisted{
		SchemaVersion: s.record.SchemaVersion,
		ManifestPath:  s.record.ManifestPath,
		PublicPath:    s.publicPath,
		IsDevMode:     s.record.IsDevMode,
		LoadedAt:      s.loadedAt,
		Marked:        s.manifest.Marked,
	})
	if err == nil {
		err = handoff.WriteFile(r.opts.SnapshotPath, b)
	}
	if err != nil {
		if !errors.Is(err, handoff.ErrWriteFailure) {
			err = handoff.Wrap(handoff.ErrWriteFailure, r.opts.SnapshotPath, err)
		}
		r.log.Warn(handoff.ErrWriteFailure.Error(), zap.String("path", r.opts.SnapshotPath), zap.Error(err))
	}
}
