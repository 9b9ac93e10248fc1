// Package libload resolves shared libraries by name from an ordered list of
// manifest directories. A library is an HCL manifest exporting static
// values; the resolver finds the first matching manifest, decodes it once
// and serves every later request from its cache. Server-private directories
// are only consulted on the authoritative side.
package libload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/fsutil"
)

// SearchPath is one directory the resolver looks in, in declaration order.
// Private paths hold server-only libraries; clients skip them.
type SearchPath struct {
	Name    string
	Dir     string
	Private bool
}

// Library is one loaded manifest.
type Library struct {
	Name    string
	Version string
	Exports map[string]any
}

// manifestFile is the HCL shape of a library manifest:
//
//	library {
//	  name    = "soundfx"
//	  version = "1.2.0"
//	  exports = { ... }
//	}
type manifestFile struct {
	Library *manifestBlock `hcl:"library,block"`
}

type manifestBlock struct {
	Name    string         `hcl:"name"`
	Version string         `hcl:"version,optional"`
	Exports hcl.Expression `hcl:"exports,optional"`
}

// Resolver finds and caches libraries. Lookups that fail are not cached:
// the directories are searched again on the next ask.
type Resolver struct {
	role  channel.Role
	paths []SearchPath

	mu    sync.Mutex
	cache map[string]*Library
}

// New builds a Resolver searching paths in order on behalf of role.
func New(role channel.Role, paths []SearchPath) *Resolver {
	return &Resolver{
		role:  role,
		paths: paths,
		cache: make(map[string]*Library),
	}
}

// Library returns the library called name, loading `<dir>/<name>.hcl` from
// the first eligible search path that has it. Loaded libraries are cached by
// name. A miss or an unloadable manifest is logged and reported as
// (nil, false).
func (r *Resolver) Library(ctx context.Context, name string) (*Library, bool) {
	logger := ctxlog.FromContext(ctx)

	r.mu.Lock()
	if lib, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return lib, true
	}
	r.mu.Unlock()

	candidates := r.candidates(name)
	file := fsutil.FirstExisting(candidates...)
	if file == "" {
		logger.Error("Library not found in any search path.", "name", name, "searched", candidates)
		return nil, false
	}

	lib, err := loadManifest(file)
	if err != nil {
		logger.Error("Library manifest failed to load.", "name", name, "path", file, "error", err)
		return nil, false
	}
	if lib.Name != name {
		logger.Warn("Library manifest declares a different name than its file.",
			"requested", name, "declared", lib.Name, "path", file)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[name]; ok {
		return cached, true
	}
	r.cache[name] = lib
	logger.Debug("Library loaded.", "name", name, "version", lib.Version, "path", file)
	return lib, true
}

// candidates lists the manifest files to probe, respecting path order and
// the role's visibility.
func (r *Resolver) candidates(name string) []string {
	out := make([]string, 0, len(r.paths))
	for _, p := range r.paths {
		if p.Private && r.role != channel.RoleAuthoritative {
			continue
		}
		out = append(out, filepath.Join(p.Dir, name+".hcl"))
	}
	return out
}

func loadManifest(path string) (*Library, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %s", path, diags.Error())
	}

	var m manifestFile
	if diags := gohcl.DecodeBody(file.Body, nil, &m); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %s", path, diags.Error())
	}
	if m.Library == nil {
		return nil, fmt.Errorf("manifest %s has no library block", path)
	}

	exports, err := decodeExports(m.Library.Exports)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	return &Library{
		Name:    m.Library.Name,
		Version: m.Library.Version,
		Exports: exports,
	}, nil
}

func decodeExports(expr hcl.Expression) (map[string]any, error) {
	if expr == nil {
		return map[string]any{}, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate exports: %s", diags.Error())
	}
	if val.IsNull() {
		return map[string]any{}, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("exports must be an object, got %s", val.Type().FriendlyName())
	}
	decoded, err := ctyValueToInterface(val)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exports: %w", err)
	}
	exports, ok := decoded.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return exports, nil
}
