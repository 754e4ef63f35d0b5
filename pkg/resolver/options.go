package resolver

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/handoff"
	"github.com/joeydtaylor/steeze-assets/pkg/manifest"
	"go.uber.org/zap"
)

const (
	DefaultHandoffPath               = "dist/steeze-assets.json"
	DefaultReloadDelay               = 500 * time.Millisecond
	DefaultPollConfigInterval        = 200 * time.Millisecond
	DefaultValidPollInterval         = 200 * time.Millisecond
	DefaultLockFilePollInterval      = 200 * time.Millisecond
	DefaultWaitConfigTimeout         = 60 * time.Second
	DefaultInitialWaitingNoticeDelay = 5 * time.Second
)

// Options configures a Resolver. Zero intervals and timeouts take the defaults
// above; a zero StartDelay or ReloadDelay means "immediately".
type Options struct {
	// HandoffPath is the fixed location of the build handoff file.
	HandoffPath string
	// LockPath is the producer's advisory lock. Default: HandoffPath + ".lock".
	LockPath string
	// ProjectRoot anchors request normalization. Default: working directory.
	ProjectRoot string

	StartDelay           time.Duration
	ReloadDelay          time.Duration
	PollConfigInterval   time.Duration
	ValidPollInterval    time.Duration
	LockFilePollInterval time.Duration
	// WaitConfigTimeout is one budget shared by every wait phase of an attempt.
	WaitConfigTimeout time.Duration
	// InitialWaitingNoticeDelay: negative disables the "still waiting" notice.
	InitialWaitingNoticeDelay time.Duration

	// ExpectedVersion overrides handoff.SchemaVersion for the version check.
	ExpectedVersion string
	// PostProcess runs once per successful load, before Ready. Its result
	// replaces the loaded manifest; nil means an empty manifest.
	PostProcess func(*manifest.Manifest) *manifest.Manifest
	// PublicPathOverride wins over the handoff record's publicPath.
	PublicPathOverride *string

	// Watch re-synchronizes when the handoff file changes after Ready.
	Watch bool
	// CorruptPolicy decides whether an undecodable handoff file fails the attempt.
	CorruptPolicy handoff.CorruptPolicy
	// SnapshotPath, when set, receives the resolved record after each load.
	SnapshotPath string

	Logger    *zap.Logger
	Observers []Observer
}

func (o *Options) defaults() {
	if o.HandoffPath == "" {
		o.HandoffPath = DefaultHandoffPath
	}
	if o.LockPath == "" {
		o.LockPath = o.HandoffPath + ".lock"
	}
	if o.ProjectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			o.ProjectRoot = wd
		} else {
			o.ProjectRoot = "."
		}
	}
	if abs, err := filepath.Abs(o.ProjectRoot); err == nil {
		o.ProjectRoot = abs
	}
	if o.StartDelay < 0 {
		o.StartDelay = 0
	}
	if o.ReloadDelay < 0 {
		o.ReloadDelay = 0
	}
	if o.PollConfigInterval <= 0 {
		o.PollConfigInterval = DefaultPollConfigInterval
	}
	if o.ValidPollInterval <= 0 {
		o.ValidPollInterval = DefaultValidPollInterval
	}
	if o.LockFilePollInterval <= 0 {
		o.LockFilePollInterval = DefaultLockFilePollInterval
	}
	if o.WaitConfigTimeout <= 0 {
		o.WaitConfigTimeout = DefaultWaitConfigTimeout
	}
	if o.InitialWaitingNoticeDelay == 0 {
		o.InitialWaitingNoticeDelay = DefaultInitialWaitingNoticeDelay
	}
	if o.ExpectedVersion == "" {
		o.ExpectedVersion = handoff.SchemaVersion
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}
