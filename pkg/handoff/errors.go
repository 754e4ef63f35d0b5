package handoff

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; messages are stable so downstream tooling can
// pattern-match on them.
var (
	ErrConfigNotFound       = errors.New("steeze-assets config not found")
	ErrLockTimeout          = errors.New("timed out waiting for build lock to clear")
	ErrInvalidConfigTimeout = errors.New("timed out waiting for valid steeze-assets config")
	ErrInvalidConfigParse   = errors.New("steeze-assets config is not valid JSON")
	ErrAssetsFileMissing    = errors.New("assets file not found")
	ErrAssetsFileInvalid    = errors.New("assets file is invalid")
	ErrVersionMismatch      = errors.New("steeze-assets config version mismatch")
	ErrWriteFailure         = errors.New("failed write config file")
)

// Error attaches the file involved and the underlying cause to a kind.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	// ConfigNotFound is matched verbatim by consumers.
	if e.Kind == ErrConfigNotFound {
		return e.Kind.Error()
	}
	msg := e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap builds an *Error. Layers above the protocol (lock waits, manifest loads)
// use it so every failure shares one taxonomy.
func Wrap(kind error, path string, err error) error {
	return &Error{Kind: kind, Path: path, Err: err}
}

var kindNames = []struct {
	kind error
	name string
}{
	{ErrConfigNotFound, "config_not_found"},
	{ErrLockTimeout, "lock_timeout"},
	{ErrInvalidConfigTimeout, "invalid_config_timeout"},
	{ErrInvalidConfigParse, "invalid_config_parse"},
	{ErrAssetsFileMissing, "assets_file_missing"},
	{ErrAssetsFileInvalid, "assets_file_invalid"},
	{ErrVersionMismatch, "version_mismatch"},
	{ErrWriteFailure, "write_failure"},
}

// KindName is a stable label for err's kind: "ok" for nil, "other" when err
// carries none of the kinds above.
func KindName(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "other"
}
