package resolver

import (
	"context"
	"path"
	"path/filepath"
	"strings"
)

// ResolvedAsset is a manifest hit translated to its public URL.
type ResolvedAsset struct {
	Request string `json:"request"`
	Key     string `json:"key"`
	File    string `json:"file"`
	URL     string `json:"url"`
}

// Resolve is ResolveFrom with requests taken relative to the project root.
func (r *Resolver) Resolve(ctx context.Context, request string) (ResolvedAsset, bool, error) {
	return r.ResolveFrom(ctx, request, "")
}

// ResolveFrom maps an import-like request to a public URL. ok is false when the
// request is not an asset request (no extension, or no manifest entry); callers
// then fall through to their normal resolution.
//
// Before the first load completes ResolveFrom blocks, starting discovery if
// nothing has yet. It never resolves against an empty manifest and never
// restarts a failed attempt.
func (r *Resolver) ResolveFrom(ctx context.Context, request, fromDir string) (ResolvedAsset, bool, error) {
	p, ok := assetPath(request)
	if !ok {
		r.obs.OnResolve(ResolveNotAsset)
		return ResolvedAsset{}, false, nil
	}
	s := r.snap.Load()
	if s == nil {
		if err := r.pending().Wait(ctx); err != nil {
			return ResolvedAsset{}, false, err
		}
		if s = r.snap.Load(); s == nil {
			return ResolvedAsset{}, false, ErrClosed
		}
	}
	res, ok := r.lookup(s, request, p, fromDir)
	return res, ok, nil
}

// Lookup answers from the current snapshot without waiting. Before the first
// load every request misses.
func (r *Resolver) Lookup(request string) (ResolvedAsset, bool) {
	p, ok := assetPath(request)
	if !ok {
		r.obs.OnResolve(ResolveNotAsset)
		return ResolvedAsset{}, false
	}
	s := r.snap.Load()
	if s == nil {
		r.obs.OnResolve(ResolveMiss)
		return ResolvedAsset{}, false
	}
	return r.lookup(s, request, p, "")
}

func (r *Resolver) lookup(s *snapshot, request, p, fromDir string) (ResolvedAsset, bool) {
	key := r.key(p, fromDir)
	file, ok := s.manifest.Lookup(key)
	if !ok {
		r.obs.OnResolve(ResolveMiss)
		return ResolvedAsset{}, false
	}
	r.obs.OnResolve(ResolveHit)
	return ResolvedAsset{Request: request, Key: key, File: file, URL: s.publicPath + file}, true
}

// assetPath strips the loader chain and any query or fragment. Requests whose
// last path element has no extension are not asset requests.
func assetPath(request string) (string, bool) {
	p := request
	if i := strings.LastIndexByte(p, '!'); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = filepath.ToSlash(p)
	if ext := path.Ext(p); ext == "" || ext == "." {
		return "", false
	}
	return p, true
}

// key normalizes p into the manifest key space: a POSIX path relative to the
// project root. "./" and "../" requests are taken relative to fromDir when given.
func (r *Resolver) key(p, fromDir string) string {
	root := r.opts.ProjectRoot
	native := filepath.FromSlash(p)

	var abs string
	switch {
	case filepath.IsAbs(native):
		abs = native
	case fromDir != "" && (strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../")):
		if !filepath.IsAbs(fromDir) {
			fromDir = filepath.Join(root, fromDir)
		}
		abs = filepath.Join(fromDir, native)
	default:
		abs = filepath.Join(root, native)
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return path.Clean(p)
	}
	return filepath.ToSlash(rel)
}
